package service

import (
	"context"
	"strconv"
	"time"

	"studyhub/internal/models"
	"studyhub/internal/repository"
)

const dauWindowDays = 14

// DashboardTotals are lifetime counts.
type DashboardTotals struct {
	Users          int64 `json:"users"`
	Topics         int64 `json:"topics"`
	Posts          int64 `json:"posts"`
	Messages       int64 `json:"messages"`
	ActiveSessions int64 `json:"active_sessions"`
	OpenFeedback   int64 `json:"open_feedback"`
}

// DailyCount is one day of a time series.
type DailyCount struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// DashboardStats is the admin overview.
type DashboardStats struct {
	Totals           DashboardTotals        `json:"totals"`
	NewUsers7d       int64                  `json:"new_users_7d"`
	VisitorsToday    int64                  `json:"visitors_today"`
	Visitors7d       int64                  `json:"visitors_7d"`
	EventsByType     []repository.TypeCount `json:"events_by_type"`
	DailyActiveUsers []DailyCount           `json:"daily_active_users"`
	TopTopics        []models.Topic         `json:"top_topics"`
	GeneratedAt      time.Time              `json:"generated_at"`
}

// AdminRepos groups the repositories the admin service reads.
type AdminRepos struct {
	Users     repository.UserRepository
	Topics    repository.TopicRepository
	Posts     repository.PostRepository
	Messages  repository.MessageRepository
	Sessions  repository.StudySessionRepository
	Feedback  repository.FeedbackRepository
	Analytics repository.AnalyticsRepository
}

// AdminService powers the dashboard and user moderation.
type AdminService struct {
	repos AdminRepos
	audit *AuditService
	now   func() time.Time
}

func NewAdminService(repos AdminRepos, audit *AuditService) *AdminService {
	return &AdminService{repos: repos, audit: audit, now: time.Now}
}

func (s *AdminService) Dashboard(ctx context.Context) (*DashboardStats, error) {
	now := s.now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	weekAgo := now.AddDate(0, 0, -7)

	var (
		stats DashboardStats
		err   error
	)
	counters := []struct {
		dst *int64
		fn  func(context.Context) (int64, error)
	}{
		{&stats.Totals.Users, s.repos.Users.Count},
		{&stats.Totals.Topics, s.repos.Topics.Count},
		{&stats.Totals.Posts, s.repos.Posts.Count},
		{&stats.Totals.Messages, s.repos.Messages.Count},
		{&stats.Totals.ActiveSessions, s.repos.Sessions.CountActive},
	}
	for _, c := range counters {
		if *c.dst, err = c.fn(ctx); err != nil {
			return nil, err
		}
	}
	if stats.Totals.OpenFeedback, err = s.repos.Feedback.CountByStatus(ctx, models.FeedbackOpen); err != nil {
		return nil, err
	}
	if stats.NewUsers7d, err = s.repos.Users.CountSince(ctx, weekAgo); err != nil {
		return nil, err
	}
	if stats.VisitorsToday, err = s.repos.Analytics.CountVisitorsSince(ctx, today); err != nil {
		return nil, err
	}
	if stats.Visitors7d, err = s.repos.Analytics.CountVisitorsSince(ctx, weekAgo); err != nil {
		return nil, err
	}
	if stats.EventsByType, err = s.repos.Analytics.CountByType(ctx, weekAgo); err != nil {
		return nil, err
	}

	since := today.AddDate(0, 0, -(dauWindowDays - 1))
	activity, err := s.repos.Analytics.UserActivitySince(ctx, since, 0)
	if err != nil {
		return nil, err
	}
	stats.DailyActiveUsers = dailyActiveUsers(activity, since, dauWindowDays)

	if stats.TopTopics, err = s.repos.Topics.TopByPosts(ctx, 5); err != nil {
		return nil, err
	}
	stats.GeneratedAt = now
	return &stats, nil
}

// dailyActiveUsers counts distinct users per calendar day starting at since.
func dailyActiveUsers(activity []repository.UserActivity, since time.Time, days int) []DailyCount {
	seen := make(map[string]map[uint]struct{}, days)
	for _, a := range activity {
		day := a.CreatedAt.In(since.Location()).Format(time.DateOnly)
		if seen[day] == nil {
			seen[day] = make(map[uint]struct{})
		}
		seen[day][a.UserID] = struct{}{}
	}
	out := make([]DailyCount, 0, days)
	for i := 0; i < days; i++ {
		day := since.AddDate(0, 0, i).Format(time.DateOnly)
		out = append(out, DailyCount{Date: day, Count: len(seen[day])})
	}
	return out
}

func (s *AdminService) ListUsers(ctx context.Context, filter repository.UserFilter) ([]models.User, int64, error) {
	return s.repos.Users.List(ctx, filter)
}

// SetBanned bans or unbans targetID.
func (s *AdminService) SetBanned(ctx context.Context, actorID, targetID uint, banned bool) (*models.User, error) {
	action := "user.unban"
	if banned {
		action = "user.ban"
	}
	return s.setFlag(ctx, actorID, targetID, "is_banned", banned, action)
}

// SetAdmin promotes or demotes targetID.
func (s *AdminService) SetAdmin(ctx context.Context, actorID, targetID uint, admin bool) (*models.User, error) {
	action := "user.demote"
	if admin {
		action = "user.promote"
	}
	return s.setFlag(ctx, actorID, targetID, "is_admin", admin, action)
}

func (s *AdminService) setFlag(ctx context.Context, actorID, targetID uint, column string, value bool, action string) (*models.User, error) {
	if actorID == targetID {
		return nil, models.NewValidationError("You cannot change your own account")
	}
	before, err := s.repos.Users.GetByID(ctx, targetID)
	if err != nil {
		return nil, err
	}
	if err := s.repos.Users.UpdateFields(ctx, targetID, map[string]any{column: value}); err != nil {
		return nil, err
	}
	after, err := s.repos.Users.GetByID(ctx, targetID)
	if err != nil {
		return nil, err
	}
	s.record(ctx, actorID, action, targetID, map[string]any{column: flagOf(before, column)}, map[string]any{column: value})
	return after, nil
}

func (s *AdminService) DeleteUser(ctx context.Context, actorID, targetID uint) error {
	if actorID == targetID {
		return models.NewValidationError("You cannot delete your own account")
	}
	before, err := s.repos.Users.GetByID(ctx, targetID)
	if err != nil {
		return err
	}
	if err := s.repos.Users.Delete(ctx, targetID); err != nil {
		return err
	}
	s.record(ctx, actorID, "user.delete", targetID, map[string]any{"username": before.Username, "email": before.Email}, nil)
	return nil
}

func (s *AdminService) record(ctx context.Context, actorID uint, action string, targetID uint, before, after any) {
	if s.audit == nil {
		return
	}
	s.audit.RecordAction(ctx, AdminActionInput{
		ActorID:      actorID,
		Action:       action,
		ResourceType: "users",
		ResourceID:   strconv.FormatUint(uint64(targetID), 10),
		Before:       before,
		After:        after,
	})
}

func flagOf(u *models.User, column string) bool {
	switch column {
	case "is_banned":
		return u.IsBanned
	case "is_admin":
		return u.IsAdmin
	}
	return false
}
