package service

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/fieldops-api/internal/models"
	appErrors "github.com/noah-isme/fieldops-api/pkg/errors"
)

type sessionStore interface {
	Create(ctx context.Context, session *models.RefreshSession) error
	Rotate(ctx context.Context, tokenID string, now time.Time, verify func(*models.RefreshSession) error, next *models.RefreshSession) (*models.RefreshSession, error)
	Revoke(ctx context.Context, tokenID string, revokedAt time.Time) (bool, error)
	RevokeAllForUser(ctx context.Context, userID string, revokedAt time.Time) (int64, error)
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error)
	ListForUser(ctx context.Context, userID string) ([]models.RefreshSession, error)
}

type tokenUserStore interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// TokenConfig defines token issuance parameters.
type TokenConfig struct {
	Secret             string
	AccessTokenExpiry  time.Duration
	RefreshTokenExpiry time.Duration
	// SessionRetention is how long an expired session row is kept before the
	// cleanup sweep may delete it.
	SessionRetention time.Duration
	Issuer           string
}

// TokenService owns the refresh-token session lifecycle: issuance, rotation,
// revocation and expiry cleanup. Raw refresh tokens never touch storage; only
// a salted slow hash does.
type TokenService struct {
	sessions sessionStore
	users    tokenUserStore
	logger   *zap.Logger
	config   TokenConfig
}

// NewTokenService constructs a TokenService.
func NewTokenService(sessions sessionStore, users tokenUserStore, logger *zap.Logger, config TokenConfig) *TokenService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.SessionRetention <= 0 {
		config.SessionRetention = 30 * 24 * time.Hour
	}
	return &TokenService{sessions: sessions, users: users, logger: logger, config: config}
}

// GenerateTokenPair creates a fresh Active session for the user and returns
// the access/refresh pair. Each call inserts exactly one row with a new
// random token id; concurrent calls for one user are independent.
func (s *TokenService) GenerateTokenPair(ctx context.Context, user *models.User, ip, userAgent string) (*models.TokenPair, error) {
	now := time.Now().UTC()
	tokenID := uuid.NewString()

	accessToken, err := s.signToken(user, "", now, s.config.AccessTokenExpiry)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign access token")
	}

	refreshToken, err := s.signToken(user, tokenID, now, s.config.RefreshTokenExpiry)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign refresh token")
	}

	hash, err := hashRefreshToken(refreshToken)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash refresh token")
	}

	session := &models.RefreshSession{
		UserID:    user.ID,
		TokenID:   tokenID,
		TokenHash: hash,
		IPAddress: optional(ip),
		UserAgent: optional(userAgent),
		ExpiresAt: now.Add(s.config.RefreshTokenExpiry),
		CreatedAt: now,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		if isForeignKeyViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "user does not exist")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist session")
	}

	return &models.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(s.config.AccessTokenExpiry.Seconds()),
		IssuedAt:     now,
	}, nil
}

// RefreshAccessToken rotates a refresh token: the presented session is
// consumed and a new one issued atomically, so the same raw token can be
// exchanged exactly once. All failure causes surface as the same generic
// invalid-token error.
func (s *TokenService) RefreshAccessToken(ctx context.Context, rawToken, ip, userAgent string) (*models.TokenPair, error) {
	claims, err := s.parseToken(rawToken)
	if err != nil || claims.TokenID == "" {
		return nil, appErrors.Clone(appErrors.ErrInvalidRefreshToken, "")
	}

	user, err := s.users.FindByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidRefreshToken, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	if !user.Active {
		return nil, appErrors.Clone(appErrors.ErrInvalidRefreshToken, "")
	}

	now := time.Now().UTC()
	tokenID := uuid.NewString()

	accessToken, err := s.signToken(user, "", now, s.config.AccessTokenExpiry)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign access token")
	}
	refreshToken, err := s.signToken(user, tokenID, now, s.config.RefreshTokenExpiry)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign refresh token")
	}
	hash, err := hashRefreshToken(refreshToken)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash refresh token")
	}

	next := &models.RefreshSession{
		UserID:    user.ID,
		TokenID:   tokenID,
		TokenHash: hash,
		IPAddress: optional(ip),
		UserAgent: optional(userAgent),
		ExpiresAt: now.Add(s.config.RefreshTokenExpiry),
		CreatedAt: now,
	}

	_, err = s.sessions.Rotate(ctx, claims.TokenID, now, func(current *models.RefreshSession) error {
		return verifyRefreshToken(current.TokenHash, rawToken)
	}, next)
	if err != nil {
		// Absent, expired, revoked, replayed and tampered tokens are all the
		// same failure from the caller's point of view.
		if errors.Is(err, sql.ErrNoRows) || errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return nil, appErrors.Clone(appErrors.ErrInvalidRefreshToken, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to rotate session")
	}

	return &models.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(s.config.AccessTokenExpiry.Seconds()),
		IssuedAt:     now,
	}, nil
}

// RevokeToken revokes the session with the given token id. Calling it on an
// already-revoked or unknown session returns false, never an error.
func (s *TokenService) RevokeToken(ctx context.Context, tokenID string) (bool, error) {
	revoked, err := s.sessions.Revoke(ctx, tokenID, time.Now().UTC())
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to revoke session")
	}
	return revoked, nil
}

// RevokeAllUserTokens revokes every active session for the user and returns
// the count revoked.
func (s *TokenService) RevokeAllUserTokens(ctx context.Context, userID string) (int64, error) {
	count, err := s.sessions.RevokeAllForUser(ctx, userID, time.Now().UTC())
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to revoke sessions")
	}
	return count, nil
}

// CleanupExpiredTokens deletes sessions whose expiry passed the retention
// threshold and returns the count deleted. Revoked-but-unexpired rows are
// deliberately retained.
func (s *TokenService) CleanupExpiredTokens(ctx context.Context) (int64, error) {
	cutoff := time.Now().UTC().Add(-s.config.SessionRetention)
	deleted, err := s.sessions.DeleteExpiredBefore(ctx, cutoff)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to clean up sessions")
	}
	if deleted > 0 {
		s.logger.Info("purged expired sessions", zap.Int64("deleted", deleted))
	}
	return deleted, nil
}

// GetUserTokens returns displayable session metadata for the user. The token
// hash never leaves this package.
func (s *TokenService) GetUserTokens(ctx context.Context, userID string) ([]models.SessionInfo, error) {
	sessions, err := s.sessions.ListForUser(ctx, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sessions")
	}
	infos := make([]models.SessionInfo, len(sessions))
	for i := range sessions {
		infos[i] = sessions[i].Info()
	}
	return infos, nil
}

// ParseRefreshClaims decodes a raw refresh token without consuming it. Used
// by logout to learn which session to revoke.
func (s *TokenService) ParseRefreshClaims(rawToken string) (*models.JWTClaims, error) {
	claims, err := s.parseToken(rawToken)
	if err != nil || claims.TokenID == "" {
		return nil, appErrors.Clone(appErrors.ErrInvalidRefreshToken, "")
	}
	return claims, nil
}

func (s *TokenService) signToken(user *models.User, tokenID string, issuedAt time.Time, ttl time.Duration) (string, error) {
	claims := &models.JWTClaims{
		UserID:   user.ID,
		Email:    user.Email,
		Role:     user.Role,
		Provider: user.Provider,
		TokenID:  tokenID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.config.Issuer,
			Subject:   user.ID,
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.config.Secret))
}

func (s *TokenService) parseToken(tokenString string) (*models.JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &models.JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.Secret), nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*models.JWTClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	return claims, nil
}

// hashRefreshToken digests the raw token before bcrypt so arbitrarily long
// tokens fit bcrypt's input limit. bcrypt supplies the salt and the
// deliberately slow comparison.
func hashRefreshToken(raw string) (string, error) {
	digest := sha256.Sum256([]byte(raw))
	hash, err := bcrypt.GenerateFromPassword(digest[:], bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func verifyRefreshToken(hash, raw string) error {
	digest := sha256.Sum256([]byte(raw))
	return bcrypt.CompareHashAndPassword([]byte(hash), digest[:])
}

func isForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23503"
}

func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
