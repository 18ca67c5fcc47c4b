package service

import (
	"context"
	"strings"
	"time"

	"studyhub/internal/models"
	"studyhub/internal/repository"
	"studyhub/internal/validation"

	"golang.org/x/crypto/bcrypt"
)

// BcryptCost is lowered by tests.
var BcryptCost = bcrypt.DefaultCost

// RegisterInput is the signup payload.
type RegisterInput struct {
	Username string
	Email    string
	Password string
}

// AuthResult is a freshly issued token and its user.
type AuthResult struct {
	Token  string       `json:"token"`
	User   *models.User `json:"user"`
	Claims *Claims      `json:"-"`
}

// AuthService handles password accounts and token lifecycle.
type AuthService struct {
	users    repository.UserRepository
	tokens   *TokenService
	settings *SettingsService
}

func NewAuthService(users repository.UserRepository, tokens *TokenService, settings *SettingsService) *AuthService {
	return &AuthService{users: users, tokens: tokens, settings: settings}
}

// HashPassword bcrypt-hashes a plaintext password.
func HashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), BcryptCost)
	if err != nil {
		return "", models.NewInternalError(err)
	}
	return string(hashed), nil
}

// Register creates a password account. Duplicate email or username is a validation error.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))

	if in.Username == "" || in.Email == "" || in.Password == "" {
		return nil, models.NewValidationError("Username, email, and password are required")
	}
	if err := validation.ValidateUsername(in.Username); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	if err := validation.ValidateEmail(in.Email); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	if err := validation.ValidatePassword(in.Password); err != nil {
		return nil, models.NewValidationError(err.Error())
	}

	if s.settings != nil && !s.settings.Bool(ctx, models.SettingRegistrationOpen, true) {
		return nil, models.NewForbiddenError("Registration is currently closed")
	}

	existing, err := s.users.GetByEmail(ctx, in.Email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, models.NewValidationError("Email is already registered")
	}
	existing, err = s.users.GetByUsername(ctx, in.Username)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, models.NewValidationError("Username is already taken")
	}

	hashed, err := HashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	user := &models.User{
		Username:    in.Username,
		Email:       in.Email,
		Password:    hashed,
		DisplayName: in.Username,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}
	return s.issue(user)
}

// Login checks credentials. Unknown email and wrong password are indistinguishable.
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, models.NewValidationError("Email and password are required")
	}
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user == nil || !user.HasPassword() {
		return nil, models.NewUnauthorizedError("Invalid credentials")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, models.NewUnauthorizedError("Invalid credentials")
	}
	if user.IsBanned {
		return nil, models.NewForbiddenError("Account is banned")
	}

	now := time.Now()
	if err := s.users.UpdateFields(ctx, user.ID, map[string]any{"last_login_at": now}); err != nil {
		return nil, err
	}
	user.LastLoginAt = &now
	return s.issue(user)
}

// Logout revokes the presented token.
func (s *AuthService) Logout(ctx context.Context, claims *Claims) error {
	return s.tokens.Revoke(ctx, claims)
}

// Refresh swaps a valid token for a new one and revokes the old id.
func (s *AuthService) Refresh(ctx context.Context, claims *Claims) (*AuthResult, error) {
	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if models.IsCode(err, models.CodeNotFound) {
			return nil, models.NewUnauthorizedError("User no longer exists")
		}
		return nil, err
	}
	if user.IsBanned {
		return nil, models.NewForbiddenError("Account is banned")
	}
	res, err := s.issue(user)
	if err != nil {
		return nil, err
	}
	if err := s.tokens.Revoke(ctx, claims); err != nil {
		return nil, err
	}
	return res, nil
}

func (s *AuthService) issue(user *models.User) (*AuthResult, error) {
	token, claims, err := s.tokens.Issue(user.ID, user.Username)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return &AuthResult{Token: token, User: user, Claims: claims}, nil
}
