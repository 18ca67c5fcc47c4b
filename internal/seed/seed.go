// Package seed populates a database with demo data for development and load testing.
package seed

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"studyhub/internal/database"
	"studyhub/internal/models"
	"studyhub/internal/observability"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// DefaultPassword is the password every seeded account shares.
const DefaultPassword = "StudyHub123!"

var (
	universities = []string{
		"State University", "Institute of Technology", "City College",
		"University of the North", "Polytechnic University", "Open University",
	}
	majors = []string{
		"Computer Science", "Mathematics", "Chemistry", "Biology", "Physics",
		"Economics", "History", "Psychology", "Mechanical Engineering",
	}
	years = []string{"Freshman", "Sophomore", "Junior", "Senior", "Graduate"}

	roomSubjects = []string{
		"calculus", "organic chemistry", "algorithms", "statistics",
		"microeconomics", "physics", "linear algebra", "writing",
	}
)

// Options control how much data a Seeder creates.
type Options struct {
	Users         int
	Messages      int
	StudySessions int
	// PasswordCost is the bcrypt cost for the shared password hash.
	PasswordCost int
	// RandSeed makes runs reproducible when non-zero.
	RandSeed int64
}

// Summary reports what a run created.
type Summary struct {
	Users         int
	Topics        int
	Posts         int
	Messages      int
	StudySessions int
}

// Seeder creates demo records.
type Seeder struct {
	db    *gorm.DB
	opts  Options
	faker *gofakeit.Faker
}

// NewSeeder returns a Seeder bound to db.
func NewSeeder(db *gorm.DB, opts Options) *Seeder {
	if opts.PasswordCost == 0 {
		opts.PasswordCost = bcrypt.DefaultCost
	}
	seed := opts.RandSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Seeder{db: db, opts: opts, faker: gofakeit.New(seed)}
}

// Run seeds users, the fixture forum, direct messages and study sessions.
func (s *Seeder) Run(fixture *Fixture) (*Summary, error) {
	users, err := s.Users(s.opts.Users)
	if err != nil {
		return nil, err
	}
	sum := &Summary{Users: len(users)}

	if fixture != nil {
		topics, posts, err := s.Forum(users, fixture)
		if err != nil {
			return nil, err
		}
		sum.Topics, sum.Posts = topics, posts
	}

	if sum.Messages, err = s.Messages(users, s.opts.Messages); err != nil {
		return nil, err
	}

	sessions, err := s.StudySessions(users, s.opts.StudySessions)
	if err != nil {
		return nil, err
	}
	sum.StudySessions = len(sessions)

	observability.GlobalLogger.Info("seed complete",
		slog.Int("users", sum.Users),
		slog.Int("topics", sum.Topics),
		slog.Int("posts", sum.Posts),
		slog.Int("messages", sum.Messages),
		slog.Int("study_sessions", sum.StudySessions),
	)
	return sum, nil
}

// ClearAll hard-deletes every persisted record, children first.
func (s *Seeder) ClearAll() error {
	all := database.PersistentModels()
	tx := s.db.Session(&gorm.Session{AllowGlobalUpdate: true}).Unscoped()
	for i := len(all) - 1; i >= 0; i-- {
		if err := tx.Delete(all[i]).Error; err != nil {
			return fmt.Errorf("clear %T: %w", all[i], err)
		}
	}
	return nil
}

// Users creates n student accounts sharing DefaultPassword.
func (s *Seeder) Users(n int) ([]models.User, error) {
	if n <= 0 {
		return nil, nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(DefaultPassword), s.opts.PasswordCost)
	if err != nil {
		return nil, fmt.Errorf("hash seed password: %w", err)
	}

	users := make([]models.User, 0, n)
	for i := 0; i < n; i++ {
		first, last := s.faker.FirstName(), s.faker.LastName()
		username := usernameFor(first, last, i)
		users = append(users, models.User{
			Username:    username,
			Email:       username + "@studyhub.test",
			Password:    string(hash),
			DisplayName: first + " " + last,
			Bio:         s.faker.Sentence(10),
			University:  s.faker.RandomString(universities),
			Major:       s.faker.RandomString(majors),
			Year:        s.faker.RandomString(years),
		})
	}
	if err := s.db.CreateInBatches(&users, 100).Error; err != nil {
		return nil, fmt.Errorf("create users: %w", err)
	}
	return users, nil
}

// usernameFor builds a unique handle that satisfies the username rules.
func usernameFor(first, last string, i int) string {
	clean := func(v string) string {
		return strings.Map(func(r rune) rune {
			switch {
			case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
				return r
			case r >= 'A' && r <= 'Z':
				return r + ('a' - 'A')
			}
			return -1
		}, v)
	}
	name := clean(first)
	if len(name) < 2 {
		name = "student"
	}
	if len(name) > 16 {
		name = name[:16]
	}
	initial := clean(last)
	if initial != "" {
		initial = initial[:1]
	}
	return fmt.Sprintf("%s_%s%d", name, initial, i+1)
}

// Forum creates the fixture topics, rotating authors through users.
func (s *Seeder) Forum(users []models.User, fixture *Fixture) (topics, posts int, err error) {
	if len(users) == 0 {
		return 0, 0, nil
	}
	now := time.Now()
	for i, tf := range fixture.Topics {
		category := tf.Category
		if category == "" {
			category = models.DefaultTopicCategory
		}
		created := now.Add(-time.Duration(len(fixture.Topics)-i) * 24 * time.Hour)
		topic := models.Topic{
			Title:          tf.Title,
			Content:        tf.Content,
			Category:       category,
			AuthorID:       users[i%len(users)].ID,
			IsPinned:       tf.Pinned,
			IsLocked:       tf.Locked,
			LastActivityAt: created,
			CreatedAt:      created,
		}

		err := s.db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Create(&topic).Error; err != nil {
				return err
			}
			for j, content := range tf.Replies {
				at := created.Add(time.Duration(j+1) * time.Hour)
				post := models.Post{
					TopicID:   topic.ID,
					AuthorID:  users[s.faker.Number(0, len(users)-1)].ID,
					Content:   content,
					CreatedAt: at,
				}
				if err := tx.Create(&post).Error; err != nil {
					return err
				}
				topic.LastActivityAt = at
				posts++
			}
			return tx.Model(&topic).Update("last_activity_at", topic.LastActivityAt).Error
		})
		if err != nil {
			return topics, posts, fmt.Errorf("seed topic %q: %w", tf.Title, err)
		}
		topics++
	}
	return topics, posts, nil
}

// Messages creates n direct messages between random pairs of distinct users.
func (s *Seeder) Messages(users []models.User, n int) (int, error) {
	if len(users) < 2 || n <= 0 {
		return 0, nil
	}
	msgs := make([]models.Message, 0, n)
	now := time.Now()
	for i := 0; i < n; i++ {
		a := s.faker.Number(0, len(users)-1)
		b := s.faker.Number(0, len(users)-2)
		if b >= a {
			b++
		}
		msg := models.Message{
			SenderID:    users[a].ID,
			RecipientID: users[b].ID,
			Content:     s.faker.Sentence(s.faker.Number(4, 16)),
			CreatedAt:   now.Add(-time.Duration(n-i) * time.Minute),
		}
		if s.faker.Bool() {
			read := msg.CreatedAt.Add(time.Minute)
			msg.ReadAt = &read
		}
		msgs = append(msgs, msg)
	}
	if err := s.db.CreateInBatches(&msgs, 200).Error; err != nil {
		return 0, fmt.Errorf("create messages: %w", err)
	}
	return len(msgs), nil
}

// StudySessions opens n active rooms hosted by random users.
func (s *Seeder) StudySessions(users []models.User, n int) ([]models.StudySession, error) {
	if len(users) == 0 || n <= 0 {
		return nil, nil
	}
	sessions := make([]models.StudySession, 0, n)
	for i := 0; i < n; i++ {
		subject := s.faker.RandomString(roomSubjects)
		sessions = append(sessions, models.StudySession{
			RoomID:          uuid.NewString(),
			Title:           fmt.Sprintf("%s study group", strings.ToUpper(subject[:1])+subject[1:]),
			Subject:         subject,
			Description:     s.faker.Sentence(12),
			HostID:          users[s.faker.Number(0, len(users)-1)].ID,
			MaxParticipants: s.faker.Number(2, 8),
			IsActive:        true,
			StartedAt:       time.Now(),
		})
	}
	if err := s.db.Create(&sessions).Error; err != nil {
		return nil, fmt.Errorf("create study sessions: %w", err)
	}
	return sessions, nil
}
