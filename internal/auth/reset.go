package auth

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/black-bourne/educ-backend/internal/models"
	"github.com/black-bourne/educ-backend/pkg/crypto"
)

// DefaultResetTokenTTL bounds how long a reset link stays redeemable.
const DefaultResetTokenTTL = 24 * time.Hour

const resetTokenBytes = 32

// ErrResetTokenInvalid covers unknown, expired, and already-used tokens. The
// three cases are deliberately indistinguishable to the caller.
var ErrResetTokenInvalid = errors.New("reset: token invalid or expired")

// PasswordResetService issues and redeems single-use password reset tokens.
// Tokens are stored as SHA-256 digests so a database leak does not expose
// usable links.
type PasswordResetService struct {
	db  *gorm.DB
	ttl time.Duration
	now func() time.Time
}

// NewPasswordResetService constructs a PasswordResetService.
func NewPasswordResetService(db *gorm.DB, ttl time.Duration) (*PasswordResetService, error) {
	if db == nil {
		return nil, errors.New("reset: db is required")
	}
	if ttl <= 0 {
		ttl = DefaultResetTokenTTL
	}
	return &PasswordResetService{db: db, ttl: ttl, now: time.Now}, nil
}

// Issue creates a fresh token for the user, invalidating any outstanding ones.
// The returned string is the only copy of the raw token.
func (s *PasswordResetService) Issue(ctx context.Context, userID string) (string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", errors.New("reset: user id is required")
	}

	token, err := crypto.GenerateToken(resetTokenBytes)
	if err != nil {
		return "", fmt.Errorf("reset: generate token: %w", err)
	}

	record := models.PasswordResetToken{
		UserID:    userID,
		TokenHash: hashResetToken(token),
		ExpiresAt: s.now().Add(s.ttl),
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ? AND used_at IS NULL", userID).
			Delete(&models.PasswordResetToken{}).Error; err != nil {
			return err
		}
		return tx.Create(&record).Error
	})
	if err != nil {
		return "", fmt.Errorf("reset: store token: %w", err)
	}

	return token, nil
}

// Consume redeems a token and returns the owning user id. The token is marked
// used inside the same transaction, so a second redemption fails.
func (s *PasswordResetService) Consume(ctx context.Context, token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrResetTokenInvalid
	}

	var userID string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var record models.PasswordResetToken
		err := tx.Where("token_hash = ?", hashResetToken(token)).Take(&record).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrResetTokenInvalid
		}
		if err != nil {
			return err
		}

		if record.UsedAt != nil || s.now().After(record.ExpiresAt) {
			return ErrResetTokenInvalid
		}

		now := s.now()
		if err := tx.Model(&record).Update("used_at", &now).Error; err != nil {
			return err
		}

		userID = record.UserID
		return nil
	})
	if err != nil {
		return "", err
	}

	return userID, nil
}

// PurgeExpired deletes tokens past their expiry. Called by the maintenance
// cleaner.
func (s *PasswordResetService) PurgeExpired(ctx context.Context) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("expires_at < ?", s.now()).
		Delete(&models.PasswordResetToken{})
	return result.RowsAffected, result.Error
}

// EncodeUserID renders a user id the way reset links carry it.
func EncodeUserID(userID string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(userID))
}

// DecodeUserID reverses EncodeUserID.
func DecodeUserID(encoded string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return "", fmt.Errorf("reset: decode user id: %w", err)
	}
	return string(raw), nil
}

func hashResetToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
