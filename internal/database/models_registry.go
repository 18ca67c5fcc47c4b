package database

import "studyhub/internal/models"

// PersistentModels returns the authoritative set of schema-managed GORM models.
func PersistentModels() []any {
	return []any{
		&models.User{},
		&models.Topic{},
		&models.Post{},
		&models.Message{},
		&models.StudySession{},
		&models.AuditLog{},
		&models.AnalyticsEvent{},
		&models.Visitor{},
		&models.Setting{},
		&models.BlacklistedToken{},
		&models.Feedback{},
	}
}
