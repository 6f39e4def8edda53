package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/fieldops-api/internal/models"
	appErrors "github.com/noah-isme/fieldops-api/pkg/errors"
)

type authUserRepository interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	UpdateLastLogin(ctx context.Context, id string, ts time.Time) error
	UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error
}

type auditor interface {
	Record(ctx context.Context, log *models.AuditLog)
}

// AuthConfig defines configuration for authentication flows.
type AuthConfig struct {
	Secret string
	// LocalProviderEnabled admits the offline "local" provider. It is an
	// explicit per-instance value so tests can vary it.
	LocalProviderEnabled bool
}

// AuthService provides login, logout and credential validation, delegating
// session lifecycle to the TokenService.
type AuthService struct {
	repo      authUserRepository
	tokens    *TokenService
	audit     auditor
	validator *validator.Validate
	logger    *zap.Logger
	config    AuthConfig
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(repo authUserRepository, tokens *TokenService, audit auditor, validate *validator.Validate, logger *zap.Logger, config AuthConfig) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &AuthService{repo: repo, tokens: tokens, audit: audit, validator: validate, logger: logger, config: config}
}

// Login authenticates a user and returns an issued token pair.
func (s *AuthService) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid login payload")
	}

	user, err := s.repo.FindByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch user")
	}

	if !user.Active {
		return nil, appErrors.Clone(appErrors.ErrInactiveAccount, "")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "")
	}

	if user.Provider == models.ProviderLocal && !s.config.LocalProviderEnabled {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "local authentication is disabled")
	}

	pair, err := s.tokens.GenerateTokenPair(ctx, user, req.IP, req.UserAgent)
	if err != nil {
		return nil, err
	}

	if err := s.repo.UpdateLastLogin(ctx, user.ID, time.Now().UTC()); err != nil {
		s.logger.Warn("failed to update last login", zap.Error(err))
	}

	s.record(ctx, &user.ID, models.AuditActionLogin, req.IP, req.UserAgent, []byte(`{"status":"success"}`))

	return &models.LoginResponse{
		TokenPair: *pair,
		User: models.UserInfo{
			ID:       user.ID,
			Email:    user.Email,
			FullName: user.FullName,
			Role:     user.Role,
		},
	}, nil
}

// Refresh exchanges a refresh token for a rotated pair.
func (s *AuthService) Refresh(ctx context.Context, req models.RefreshTokenRequest) (*models.TokenPair, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid refresh payload")
	}

	pair, err := s.tokens.RefreshAccessToken(ctx, req.RefreshToken, req.IP, req.UserAgent)
	if err != nil {
		return nil, err
	}

	s.record(ctx, nil, models.AuditActionRefresh, req.IP, req.UserAgent, []byte(`{"refresh":"rotated"}`))
	return pair, nil
}

// Logout revokes the session behind the provided refresh token. The token
// must belong to the calling user.
func (s *AuthService) Logout(ctx context.Context, rawRefreshToken, userID, ip, userAgent string) error {
	claims, err := s.tokens.ParseRefreshClaims(rawRefreshToken)
	if err != nil {
		return err
	}
	if claims.UserID != userID {
		return appErrors.Clone(appErrors.ErrForbidden, "token does not belong to user")
	}

	if _, err := s.tokens.RevokeToken(ctx, claims.TokenID); err != nil {
		return err
	}

	s.record(ctx, &userID, models.AuditActionLogout, ip, userAgent, []byte(`{"status":"logout"}`))
	return nil
}

// LogoutAll revokes every active session of the calling user and returns the
// count revoked.
func (s *AuthService) LogoutAll(ctx context.Context, userID, ip, userAgent string) (int64, error) {
	count, err := s.tokens.RevokeAllUserTokens(ctx, userID)
	if err != nil {
		return 0, err
	}

	s.record(ctx, &userID, models.AuditActionLogoutAll, ip, userAgent,
		[]byte(fmt.Sprintf(`{"revoked":%d}`, count)))
	return count, nil
}

// Sessions lists the calling user's sessions for display.
func (s *AuthService) Sessions(ctx context.Context, userID string) ([]models.SessionInfo, error) {
	return s.tokens.GetUserTokens(ctx, userID)
}

// ChangePassword changes the password for the given user ID and revokes all
// outstanding sessions.
func (s *AuthService) ChangePassword(ctx context.Context, userID string, req models.ChangePasswordRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid change password payload")
	}

	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.OldPassword)); err != nil {
		return appErrors.Clone(appErrors.ErrForbidden, "old password does not match")
	}

	newHash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	if err := s.repo.UpdatePassword(ctx, userID, string(newHash), time.Now().UTC()); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update password")
	}

	if _, err := s.tokens.RevokeAllUserTokens(ctx, userID); err != nil {
		s.logger.Warn("failed to revoke sessions after password change", zap.Error(err))
	}

	s.record(ctx, &userID, models.AuditActionPasswordChange, "", "", []byte(`{"status":"changed"}`))
	return nil
}

// ValidateToken parses and validates an access token, returning its claims.
// A recognised provider claim and a subject are mandatory; tokens from
// unrecognised providers are rejected, not defaulted.
func (s *AuthService) ValidateToken(tokenString string) (*models.JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &models.JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.Secret), nil
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid token")
	}

	claims, ok := token.Claims.(*models.JWTClaims)
	if !ok || !token.Valid {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token claims")
	}

	if claims.Subject == "" || claims.UserID == "" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "token missing subject")
	}

	switch claims.Provider {
	case models.ProviderSSO:
	case models.ProviderLocal:
		if !s.config.LocalProviderEnabled {
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "local authentication is disabled")
		}
	default:
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "unrecognized provider")
	}

	return claims, nil
}

func (s *AuthService) record(ctx context.Context, userID *string, action, ip, userAgent string, payload []byte) {
	if s.audit == nil {
		return
	}
	s.audit.Record(ctx, &models.AuditLog{
		UserID:     userID,
		Action:     action,
		Resource:   "auth",
		ResourceID: userID,
		NewValues:  payload,
		IPAddress:  ip,
		UserAgent:  userAgent,
	})
}
