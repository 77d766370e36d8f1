package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"todolist/internal/config"
	"todolist/internal/ids"
	"todolist/internal/models"
	"todolist/internal/repository/memory"
	"todolist/internal/security"
)

type authFixture struct {
	svc      *AuthService
	users    *memory.Users
	sessions *memory.Sessions
	tokens   *security.TokenIssuer
}

func newAuthFixture(t *testing.T, maxSessions int) authFixture {
	t.Helper()

	users := memory.NewUsers()
	sessions := memory.NewSessions()
	tokens := security.NewTokenIssuer("access-secret", "refresh-secret", 0, 0)
	cfg := &config.AppConfig{Security: config.SecurityConfig{MaxSessions: maxSessions}}

	return authFixture{
		svc:      NewAuthService(users, sessions, tokens, security.NewPasswordHasher(4), cfg, zerolog.Nop()),
		users:    users,
		sessions: sessions,
		tokens:   tokens,
	}
}

func (f authFixture) signup(t *testing.T) models.User {
	t.Helper()
	user, err := f.svc.Signup(context.Background(), SignupInput{
		Name:     "Test User",
		Email:    "Test@Example.com",
		Password: "TestPassword123!",
	})
	require.NoError(t, err)
	return user
}

func (f authFixture) login(t *testing.T, userAgent string) LoginResult {
	t.Helper()
	result, err := f.svc.Login(context.Background(), LoginInput{
		Email:     "test@example.com",
		Password:  "TestPassword123!",
		IPAddress: "10.0.0.1",
		UserAgent: userAgent,
	})
	require.NoError(t, err)
	return result
}

func TestSignupStoresBcryptHash(t *testing.T) {
	f := newAuthFixture(t, 10)
	user := f.signup(t)

	assert.Equal(t, "test@example.com", user.Email)
	assert.Equal(t, models.UserRoleUser, user.Role)
	assert.NotEqual(t, "TestPassword123!", user.PasswordHash)
	assert.Regexp(t, `^\$2[aby]\$\d{2}\$`, user.PasswordHash)
	assert.True(t, ids.Valid(user.ID))
}

func TestSignupValidation(t *testing.T) {
	f := newAuthFixture(t, 10)

	_, err := f.svc.Signup(context.Background(), SignupInput{
		Name:     "ab",
		Email:    "not-an-email",
		Password: "short",
		Role:     "root",
	})

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "name")
	assert.Contains(t, verr.Fields, "email")
	assert.Contains(t, verr.Fields, "password")
	assert.Contains(t, verr.Fields, "role")
	assert.Equal(t, "Please enter a valid email", verr.Fields["email"])
}

func TestPasswordLimitCountsBytes(t *testing.T) {
	f := newAuthFixture(t, 10)
	user := f.signup(t)
	wide := strings.Repeat("é", 40)

	_, err := f.svc.Signup(context.Background(), SignupInput{
		Name:     "Wide User",
		Email:    "wide@example.com",
		Password: wide,
	})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "password must be at most 72 bytes", verr.Fields["password"])

	_, err = f.svc.UpdateUser(context.Background(), user.ID, UpdateUserInput{
		Name:     "Test User",
		Email:    "test@example.com",
		Password: wide,
	})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "password must be at most 72 bytes", verr.Fields["password"])

	_, err = f.svc.Signup(context.Background(), SignupInput{
		Name:     "Wide User",
		Email:    "wide@example.com",
		Password: strings.Repeat("é", 36),
	})
	assert.NoError(t, err)
}

func TestSignupDuplicate(t *testing.T) {
	f := newAuthFixture(t, 10)
	f.signup(t)

	_, err := f.svc.Signup(context.Background(), SignupInput{
		Name:     "Other User",
		Email:    "test@example.com",
		Password: "TestPassword123!",
	})
	assert.ErrorIs(t, err, ErrUserExists)
}

func TestLoginFailures(t *testing.T) {
	f := newAuthFixture(t, 10)
	f.signup(t)
	ctx := context.Background()

	_, err := f.svc.Login(ctx, LoginInput{Email: "nobody@example.com", Password: "TestPassword123!"})
	assert.ErrorIs(t, err, ErrUserNotFound)

	_, err = f.svc.Login(ctx, LoginInput{Email: "test@example.com", Password: "wrong-password"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = f.svc.Login(ctx, LoginInput{Email: "test@example.com"})
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestLoginPersistsSession(t *testing.T) {
	f := newAuthFixture(t, 10)
	user := f.signup(t)

	result := f.login(t, "agent-a")
	assert.Equal(t, user.ID, result.User.ID)

	stored, err := f.sessions.FindByHash(context.Background(), security.HashRefreshToken(result.RefreshToken))
	require.NoError(t, err)
	assert.Equal(t, user.ID, stored.UserID)
	assert.Equal(t, "agent-a", stored.UserAgent)
	assert.Equal(t, "10.0.0.1", stored.IPAddress)
	assert.Equal(t, unknownDevice, stored.DeviceName)
	assert.WithinDuration(t, result.RefreshExpiresAt, stored.ExpiresAt, time.Second)

	claims, err := f.tokens.VerifyAccessToken(result.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
	assert.Equal(t, "user", claims.Role)
}

func TestRefreshRotatesToken(t *testing.T) {
	f := newAuthFixture(t, 10)
	user := f.signup(t)
	ctx := context.Background()

	login := f.login(t, "agent-a")

	pair, err := f.svc.Refresh(ctx, login.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, login.AccessToken, pair.AccessToken)
	assert.NotEqual(t, login.RefreshToken, pair.RefreshToken)

	_, err = f.svc.Refresh(ctx, login.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidRefreshToken, "a consumed refresh token must not rotate twice")

	count, err := f.sessions.CountByUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	rotated, err := f.sessions.FindByHash(ctx, security.HashRefreshToken(pair.RefreshToken))
	require.NoError(t, err)
	assert.Equal(t, "agent-a", rotated.UserAgent)

	_, err = f.svc.Refresh(ctx, pair.RefreshToken)
	assert.NoError(t, err)
}

func TestRefreshRejectsBadTokens(t *testing.T) {
	f := newAuthFixture(t, 10)
	user := f.signup(t)
	ctx := context.Background()

	_, err := f.svc.Refresh(ctx, "")
	assert.ErrorIs(t, err, ErrNoRefreshToken)

	_, err = f.svc.Refresh(ctx, "garbage")
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)

	login := f.login(t, "agent-a")
	_, err = f.svc.Refresh(ctx, login.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)

	unstored, _, err := f.tokens.IssueRefreshToken(user)
	require.NoError(t, err)
	_, err = f.svc.Refresh(ctx, unstored)
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)
}

func TestRefreshHonoursStoredExpiry(t *testing.T) {
	f := newAuthFixture(t, 10)
	user := f.signup(t)

	login := f.login(t, "agent-a")
	f.sessions.Expire(user.ID, time.Now().Add(-time.Minute))

	_, err := f.svc.Refresh(context.Background(), login.RefreshToken)
	assert.ErrorIs(t, err, ErrRefreshExpired)
}

func TestLogoutOnlyEndsMatchingDevice(t *testing.T) {
	f := newAuthFixture(t, 10)
	user := f.signup(t)
	ctx := context.Background()

	laptop := f.login(t, "laptop")
	phone := f.login(t, "phone")

	require.NoError(t, f.svc.Logout(ctx, user.ID, "laptop"))

	_, err := f.svc.Refresh(ctx, laptop.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)

	_, err = f.svc.Refresh(ctx, phone.RefreshToken)
	assert.NoError(t, err)

	assert.ErrorIs(t, f.svc.Logout(ctx, user.ID, "laptop"), ErrNoSession)
	assert.ErrorIs(t, f.svc.Logout(ctx, "", "laptop"), ErrUserNotFound)
}

func TestLoginTrimsSessionsToLimit(t *testing.T) {
	f := newAuthFixture(t, 2)
	user := f.signup(t)

	first := f.login(t, "one")
	f.login(t, "two")
	f.login(t, "three")

	count, err := f.sessions.CountByUser(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	_, err = f.svc.Refresh(context.Background(), first.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidRefreshToken, "oldest session is evicted")
}

func TestUpdateUserRehashesPassword(t *testing.T) {
	f := newAuthFixture(t, 10)
	user := f.signup(t)
	ctx := context.Background()

	updated, err := f.svc.UpdateUser(ctx, user.ID, UpdateUserInput{
		Name:     "Renamed User",
		Email:    "renamed@example.com",
		Password: "AnotherPassword1!",
	})
	require.NoError(t, err)
	assert.Equal(t, "Renamed User", updated.Name)
	assert.NotEqual(t, user.PasswordHash, updated.PasswordHash)

	_, err = f.svc.Login(ctx, LoginInput{Email: "renamed@example.com", Password: "AnotherPassword1!"})
	assert.NoError(t, err)

	_, err = f.svc.UpdateUser(ctx, ids.New(), UpdateUserInput{
		Name:     "Ghost User",
		Email:    "ghost@example.com",
		Password: "AnotherPassword1!",
	})
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestListSessionsReturnsActiveOnly(t *testing.T) {
	f := newAuthFixture(t, 10)
	user := f.signup(t)

	f.login(t, "laptop")
	f.login(t, "phone")

	sessions, err := f.svc.ListSessions(context.Background(), user.ID)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, "phone", sessions[0].UserAgent)

	f.sessions.Expire(user.ID, time.Now().Add(-time.Second))
	sessions, err = f.svc.ListSessions(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Empty(t, sessions)
}
