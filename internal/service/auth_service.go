package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"todolist/internal/config"
	"todolist/internal/ids"
	"todolist/internal/models"
	"todolist/internal/repository"
	"todolist/internal/security"
)

const unknownDevice = "Unknown Device"

type AuthService struct {
	users       UserStore
	sessions    SessionStore
	tokens      *security.TokenIssuer
	hasher      *security.PasswordHasher
	maxSessions int
	log         zerolog.Logger
	now         func() time.Time
}

func NewAuthService(
	users UserStore,
	sessions SessionStore,
	tokens *security.TokenIssuer,
	hasher *security.PasswordHasher,
	cfg *config.AppConfig,
	log zerolog.Logger,
) *AuthService {
	return &AuthService{
		users:       users,
		sessions:    sessions,
		tokens:      tokens,
		hasher:      hasher,
		maxSessions: cfg.Security.MaxSessions,
		log:         log,
		now:         time.Now,
	}
}

type SignupInput struct {
	Name     string `validate:"required,min=3,max=20"`
	Email    string `validate:"required,email"`
	Password string `validate:"required,min=8,max=72,maxbytes=72"`
	Role     string `validate:"omitempty,oneof=user admin"`
}

func (s *AuthService) Signup(ctx context.Context, input SignupInput) (models.User, error) {
	input.Name = strings.TrimSpace(input.Name)
	input.Email = normalizeEmail(input.Email)
	if err := validateInput(input); err != nil {
		return models.User{}, err
	}

	role := models.UserRole(input.Role)
	if role == "" {
		role = models.UserRoleUser
	}

	passwordHash, err := s.hashPassword(input.Password)
	if err != nil {
		return models.User{}, err
	}

	user, err := s.users.Create(ctx, models.User{
		ID:           ids.New(),
		Name:         input.Name,
		Email:        input.Email,
		PasswordHash: passwordHash,
		Role:         role,
	})
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return models.User{}, ErrUserExists
		}
		return models.User{}, err
	}
	return user, nil
}

type LoginInput struct {
	Email      string `validate:"required"`
	Password   string `validate:"required"`
	DeviceName string
	IPAddress  string
	UserAgent  string
}

// TokenPair is what login and refresh hand back to the client.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	RefreshExpiresAt time.Time
}

type LoginResult struct {
	TokenPair
	User models.User
}

func (s *AuthService) Login(ctx context.Context, input LoginInput) (LoginResult, error) {
	input.Email = normalizeEmail(input.Email)
	if err := validateInput(input); err != nil {
		return LoginResult{}, err
	}

	user, err := s.users.FindByEmail(ctx, input.Email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return LoginResult{}, ErrUserNotFound
		}
		return LoginResult{}, err
	}

	ok, err := s.hasher.VerifyPassword(input.Password, user.PasswordHash)
	if err != nil {
		return LoginResult{}, err
	}
	if !ok {
		return LoginResult{}, ErrInvalidCredentials
	}

	pair, err := s.issuePair(user)
	if err != nil {
		return LoginResult{}, err
	}

	deviceName := strings.TrimSpace(input.DeviceName)
	if deviceName == "" {
		deviceName = unknownDevice
	}

	// the pair is only handed out once its refresh token is on record
	if err := s.sessions.Create(ctx, models.RefreshToken{
		ID:         ids.New(),
		UserID:     user.ID,
		TokenHash:  security.HashRefreshToken(pair.RefreshToken),
		DeviceName: deviceName,
		IPAddress:  input.IPAddress,
		UserAgent:  input.UserAgent,
		ExpiresAt:  pair.RefreshExpiresAt,
	}); err != nil {
		return LoginResult{}, fmt.Errorf("store refresh token: %w", err)
	}

	if err := s.enforceSessionLimit(ctx, user.ID); err != nil {
		s.log.Warn().Err(err).Str("user_id", user.ID).Msg("enforce session limit failed")
	}

	return LoginResult{TokenPair: pair, User: user}, nil
}

func (s *AuthService) enforceSessionLimit(ctx context.Context, userID string) error {
	if s.maxSessions <= 0 {
		return nil
	}

	count, err := s.sessions.CountByUser(ctx, userID)
	if err != nil {
		return err
	}
	if count <= s.maxSessions {
		return nil
	}

	return s.sessions.DeleteOldestSessions(ctx, userID, s.maxSessions)
}

// Refresh exchanges a refresh token for a new pair. The presented token is consumed: its record
// is replaced by the new one, keeping the original device descriptor.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return TokenPair{}, ErrNoRefreshToken
	}

	claims, err := s.tokens.VerifyRefreshToken(refreshToken)
	if err != nil {
		return TokenPair{}, ErrInvalidRefreshToken
	}

	oldHash := security.HashRefreshToken(refreshToken)
	stored, err := s.sessions.FindByHash(ctx, oldHash)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return TokenPair{}, ErrInvalidRefreshToken
		}
		return TokenPair{}, err
	}
	if stored.UserID != claims.UserID {
		return TokenPair{}, ErrInvalidRefreshToken
	}
	if stored.Expired(s.now()) {
		return TokenPair{}, ErrRefreshExpired
	}

	user, err := s.users.GetByID(ctx, stored.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return TokenPair{}, ErrInvalidRefreshToken
		}
		return TokenPair{}, err
	}

	pair, err := s.issuePair(user)
	if err != nil {
		return TokenPair{}, err
	}

	next := models.RefreshToken{
		ID:         ids.New(),
		UserID:     user.ID,
		TokenHash:  security.HashRefreshToken(pair.RefreshToken),
		DeviceName: stored.DeviceName,
		IPAddress:  stored.IPAddress,
		UserAgent:  stored.UserAgent,
		ExpiresAt:  pair.RefreshExpiresAt,
	}
	if err := s.sessions.Rotate(ctx, oldHash, next); err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return TokenPair{}, ErrInvalidRefreshToken
		}
		return TokenPair{}, fmt.Errorf("rotate refresh token: %w", err)
	}

	return pair, nil
}

// Logout removes the caller's sessions on the device identified by userAgent.
func (s *AuthService) Logout(ctx context.Context, userID string, userAgent string) error {
	if userID == "" {
		return ErrUserNotFound
	}

	removed, err := s.sessions.DeleteByDevice(ctx, userID, userAgent)
	if err != nil {
		return fmt.Errorf("delete sessions: %w", err)
	}
	if removed == 0 {
		return ErrNoSession
	}
	return nil
}

type UpdateUserInput struct {
	Name     string `validate:"required,min=3,max=20"`
	Email    string `validate:"required,email"`
	Password string `validate:"required,min=8,max=72,maxbytes=72"`
}

// UpdateUser replaces name, email and password. The password is always re-hashed.
func (s *AuthService) UpdateUser(ctx context.Context, id string, input UpdateUserInput) (models.User, error) {
	input.Name = strings.TrimSpace(input.Name)
	input.Email = normalizeEmail(input.Email)
	if err := validateInput(input); err != nil {
		return models.User{}, err
	}

	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return models.User{}, ErrUserNotFound
		}
		return models.User{}, err
	}

	passwordHash, err := s.hashPassword(input.Password)
	if err != nil {
		return models.User{}, err
	}

	user.Name = input.Name
	user.Email = input.Email
	user.PasswordHash = passwordHash

	updated, err := s.users.Update(ctx, user)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicate):
			return models.User{}, ErrUserExists
		case errors.Is(err, repository.ErrUserNotFound):
			return models.User{}, ErrUserNotFound
		}
		return models.User{}, err
	}
	return updated, nil
}

func (s *AuthService) ListSessions(ctx context.Context, userID string) ([]models.RefreshToken, error) {
	if userID == "" {
		return nil, ErrUserNotFound
	}
	return s.sessions.ListByUser(ctx, userID)
}

func (s *AuthService) hashPassword(password string) (string, error) {
	hash, err := s.hasher.HashPassword(password)
	if errors.Is(err, security.ErrPasswordTooLong) {
		return "", &ValidationError{Fields: map[string]string{"password": "password must be at most 72 bytes"}}
	}
	return hash, err
}

func (s *AuthService) issuePair(user models.User) (TokenPair, error) {
	accessToken, err := s.tokens.IssueAccessToken(user)
	if err != nil {
		return TokenPair{}, err
	}
	refreshToken, expiresAt, err := s.tokens.IssueRefreshToken(user)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		RefreshExpiresAt: expiresAt,
	}, nil
}

func normalizeEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}
