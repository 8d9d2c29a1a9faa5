package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/black-bourne/educ-backend/internal/cache"
	"github.com/black-bourne/educ-backend/pkg/crypto"
)

// OTP issuance parameters. Codes are three random bytes rendered as six
// uppercase hex characters and expire after five minutes.
const (
	otpByteLength = 3
	otpKeyPrefix  = "otp:"

	DefaultOTPTTL = 5 * time.Minute
)

// OTPService issues and verifies the single-use email codes that complete a
// login. Codes live in the cache store keyed by user id, so a fresh login
// replaces any outstanding code.
type OTPService struct {
	store cache.Store
	ttl   time.Duration
}

// NewOTPService constructs an OTPService backed by the supplied cache store.
func NewOTPService(store cache.Store, ttl time.Duration) (*OTPService, error) {
	if store == nil {
		return nil, errors.New("otp: cache store is required")
	}
	if ttl <= 0 {
		ttl = DefaultOTPTTL
	}
	return &OTPService{store: store, ttl: ttl}, nil
}

// Issue generates a new code for the user and stores it for the configured TTL.
func (s *OTPService) Issue(ctx context.Context, userID string) (string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", errors.New("otp: user id is required")
	}

	code, err := crypto.GenerateOTP(otpByteLength)
	if err != nil {
		return "", fmt.Errorf("otp: generate code: %w", err)
	}

	if err := s.store.Set(ctx, otpKeyPrefix+userID, []byte(code), s.ttl); err != nil {
		return "", fmt.Errorf("otp: store code: %w", err)
	}

	return code, nil
}

// Verify checks a submitted code against the stored one. A successful match
// consumes the code; missing, expired, and mismatched codes are
// indistinguishable to the caller.
func (s *OTPService) Verify(ctx context.Context, userID, code string) (bool, error) {
	userID = strings.TrimSpace(userID)
	code = strings.TrimSpace(code)
	if userID == "" || code == "" {
		return false, nil
	}

	stored, found, err := s.store.Get(ctx, otpKeyPrefix+userID)
	if err != nil {
		return false, fmt.Errorf("otp: load code: %w", err)
	}
	if !found {
		return false, nil
	}

	if subtle.ConstantTimeCompare(stored, []byte(code)) != 1 {
		return false, nil
	}

	if err := s.store.Delete(ctx, otpKeyPrefix+userID); err != nil {
		return false, fmt.Errorf("otp: consume code: %w", err)
	}

	return true, nil
}
