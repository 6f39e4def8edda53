package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/fieldops-api/internal/models"
	appErrors "github.com/noah-isme/fieldops-api/pkg/errors"
)

type fakeUserRepo struct {
	usersByEmail map[string]*models.User
	usersByID    map[string]*models.User
	lastLogin    map[string]time.Time
	passwords    map[string]string
}

func newFakeUserRepo(users ...*models.User) *fakeUserRepo {
	repo := &fakeUserRepo{
		usersByEmail: map[string]*models.User{},
		usersByID:    map[string]*models.User{},
		lastLogin:    map[string]time.Time{},
		passwords:    map[string]string{},
	}
	for _, u := range users {
		repo.usersByEmail[u.Email] = u
		repo.usersByID[u.ID] = u
	}
	return repo
}

func (f *fakeUserRepo) FindByEmail(_ context.Context, email string) (*models.User, error) {
	user, ok := f.usersByEmail[email]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return user, nil
}

func (f *fakeUserRepo) FindByID(_ context.Context, id string) (*models.User, error) {
	user, ok := f.usersByID[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return user, nil
}

func (f *fakeUserRepo) UpdateLastLogin(_ context.Context, id string, ts time.Time) error {
	f.lastLogin[id] = ts
	return nil
}

func (f *fakeUserRepo) UpdatePassword(_ context.Context, id, passwordHash string, _ time.Time) error {
	f.passwords[id] = passwordHash
	if u, ok := f.usersByID[id]; ok {
		u.PasswordHash = passwordHash
	}
	return nil
}

type recordingAuditor struct {
	logs []*models.AuditLog
}

func (r *recordingAuditor) Record(_ context.Context, log *models.AuditLog) {
	r.logs = append(r.logs, log)
}

func mustHash(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}

func newAuthFixture(t *testing.T, localEnabled bool, users ...*models.User) (*AuthService, *recordingAuditor, *memorySessionStore) {
	t.Helper()
	repo := newFakeUserRepo(users...)
	store := newMemorySessionStore()
	tokens := NewTokenService(store, repo, zap.NewNop(), testTokenConfig())
	audit := &recordingAuditor{}
	svc := NewAuthService(repo, tokens, audit, nil, zap.NewNop(), AuthConfig{
		Secret:               testTokenConfig().Secret,
		LocalProviderEnabled: localEnabled,
	})
	return svc, audit, store
}

func ssoUser(t *testing.T) *models.User {
	return &models.User{
		ID:           "user-1",
		Email:        "tech@fieldops.test",
		PasswordHash: mustHash(t, "correct horse"),
		FullName:     "Field Tech",
		Role:         models.RoleTechnician,
		Provider:     models.ProviderSSO,
		Active:       true,
	}
}

func TestLoginSuccess(t *testing.T) {
	svc, audit, store := newAuthFixture(t, false, ssoUser(t))

	resp, err := svc.Login(context.Background(), models.LoginRequest{
		Email: "tech@fieldops.test", Password: "correct horse", IP: "10.0.0.9",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEmpty(t, resp.RefreshToken)
	assert.Equal(t, "user-1", resp.User.ID)
	assert.Len(t, store.sessions, 1)

	require.Len(t, audit.logs, 1)
	assert.Equal(t, models.AuditActionLogin, audit.logs[0].Action)
}

func TestLoginWrongPassword(t *testing.T) {
	svc, audit, _ := newAuthFixture(t, false, ssoUser(t))

	_, err := svc.Login(context.Background(), models.LoginRequest{
		Email: "tech@fieldops.test", Password: "wrong",
	})
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErr.Code)
	assert.Empty(t, audit.logs)
}

func TestLoginUnknownUserSameError(t *testing.T) {
	svc, _, _ := newAuthFixture(t, false, ssoUser(t))

	_, err := svc.Login(context.Background(), models.LoginRequest{
		Email: "nobody@fieldops.test", Password: "whatever",
	})
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErr.Code)
}

func TestLoginInactiveAccount(t *testing.T) {
	user := ssoUser(t)
	user.Active = false
	svc, _, _ := newAuthFixture(t, false, user)

	_, err := svc.Login(context.Background(), models.LoginRequest{
		Email: user.Email, Password: "correct horse",
	})
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrInactiveAccount.Code, appErr.Code)
}

func TestLoginLocalProviderGate(t *testing.T) {
	local := ssoUser(t)
	local.Provider = models.ProviderLocal

	svc, _, _ := newAuthFixture(t, false, local)
	_, err := svc.Login(context.Background(), models.LoginRequest{
		Email: local.Email, Password: "correct horse",
	})
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErr.Code)

	svc, _, _ = newAuthFixture(t, true, local)
	_, err = svc.Login(context.Background(), models.LoginRequest{
		Email: local.Email, Password: "correct horse",
	})
	require.NoError(t, err)
}

func TestLoginValidatesPayload(t *testing.T) {
	svc, _, _ := newAuthFixture(t, false)

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "not-an-email", Password: "x"})
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestLogoutRejectsForeignToken(t *testing.T) {
	svc, _, _ := newAuthFixture(t, false, ssoUser(t))

	resp, err := svc.Login(context.Background(), models.LoginRequest{
		Email: "tech@fieldops.test", Password: "correct horse",
	})
	require.NoError(t, err)

	err = svc.Logout(context.Background(), resp.RefreshToken, "someone-else", "", "")
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErr.Code)
}

func TestLogoutRevokesSession(t *testing.T) {
	svc, _, store := newAuthFixture(t, false, ssoUser(t))

	resp, err := svc.Login(context.Background(), models.LoginRequest{
		Email: "tech@fieldops.test", Password: "correct horse",
	})
	require.NoError(t, err)

	require.NoError(t, svc.Logout(context.Background(), resp.RefreshToken, "user-1", "", ""))
	for _, session := range store.sessions {
		assert.NotNil(t, session.RevokedAt)
	}

	_, err = svc.Refresh(context.Background(), models.RefreshTokenRequest{RefreshToken: resp.RefreshToken})
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrInvalidRefreshToken.Code, appErr.Code)
}

func TestChangePasswordRevokesAllSessions(t *testing.T) {
	user := ssoUser(t)
	svc, audit, store := newAuthFixture(t, false, user)

	for i := 0; i < 2; i++ {
		_, err := svc.Login(context.Background(), models.LoginRequest{
			Email: user.Email, Password: "correct horse",
		})
		require.NoError(t, err)
	}

	err := svc.ChangePassword(context.Background(), user.ID, models.ChangePasswordRequest{
		OldPassword: "correct horse", NewPassword: "battery staple",
	})
	require.NoError(t, err)

	for _, session := range store.sessions {
		assert.NotNil(t, session.RevokedAt)
	}
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("battery staple")))

	last := audit.logs[len(audit.logs)-1]
	assert.Equal(t, models.AuditActionPasswordChange, last.Action)
}

func TestChangePasswordWrongOldPassword(t *testing.T) {
	user := ssoUser(t)
	svc, _, _ := newAuthFixture(t, false, user)

	err := svc.ChangePassword(context.Background(), user.ID, models.ChangePasswordRequest{
		OldPassword: "wrong", NewPassword: "battery staple",
	})
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErr.Code)
}

func TestValidateTokenProviders(t *testing.T) {
	user := ssoUser(t)
	svc, _, _ := newAuthFixture(t, false, user)

	resp, err := svc.Login(context.Background(), models.LoginRequest{
		Email: user.Email, Password: "correct horse",
	})
	require.NoError(t, err)

	claims, err := svc.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
	assert.Equal(t, models.ProviderSSO, claims.Provider)

	_, err = svc.ValidateToken(resp.AccessToken + "x")
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErr.Code)
}

func TestValidateTokenLocalProviderGate(t *testing.T) {
	local := ssoUser(t)
	local.Provider = models.ProviderLocal

	enabled, _, _ := newAuthFixture(t, true, local)
	resp, err := enabled.Login(context.Background(), models.LoginRequest{
		Email: local.Email, Password: "correct horse",
	})
	require.NoError(t, err)

	_, err = enabled.ValidateToken(resp.AccessToken)
	require.NoError(t, err)

	// A previously issued local token stops working once the gate closes.
	disabled, _, _ := newAuthFixture(t, false, local)
	_, err = disabled.ValidateToken(resp.AccessToken)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErr.Code)
}
