package mfa

import (
	cryptoRand "crypto/rand"
	"encoding/base32"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/skip2/go-qrcode"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/black-bourne/educ-backend/internal/models"
	"github.com/black-bourne/educ-backend/pkg/crypto"
)

const (
	defaultIssuer          = "Educ"
	defaultBackupCodeCount = 10
	defaultQRCodeSize      = 256
)

// ErrNotEnrolled is returned when a user has no stored authenticator secret.
var ErrNotEnrolled = errors.New("totp: user not enrolled")

// Option allows customising the TOTP service.
type Option func(*TOTPService)

// WithIssuer overrides the default issuer string encoded in provisioning URIs.
func WithIssuer(issuer string) Option {
	return func(s *TOTPService) {
		if strings.TrimSpace(issuer) != "" {
			s.issuer = issuer
		}
	}
}

// WithBackupCodeCount overrides the number of backup codes generated for users.
func WithBackupCodeCount(count int) Option {
	return func(s *TOTPService) {
		if count > 0 {
			s.backupCodes = count
		}
	}
}

// WithQRCodeSize controls the pixel size of generated QR codes.
func WithQRCodeSize(size int) Option {
	return func(s *TOTPService) {
		if size > 0 {
			s.qrCodeSize = size
		}
	}
}

// WithClock injects a custom clock, primarily for testing.
func WithClock(clock func() time.Time) Option {
	return func(s *TOTPService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// TOTPService manages authenticator-app enrollments: encrypted secrets,
// backup codes, and QR provisioning. An enrollment starts pending and only
// counts as a second factor once activated with a valid code.
type TOTPService struct {
	db            *gorm.DB
	encryptionKey []byte

	issuer      string
	backupCodes int
	qrCodeSize  int
	now         func() time.Time
}

// NewTOTPService constructs a TOTP service backed by the provided database.
func NewTOTPService(db *gorm.DB, encryptionKey []byte, opts ...Option) (*TOTPService, error) {
	if db == nil {
		return nil, errors.New("totp: db is required")
	}
	if len(encryptionKey) == 0 {
		return nil, errors.New("totp: encryption key is required")
	}

	service := &TOTPService{
		db:            db,
		encryptionKey: encryptionKey,
		issuer:        defaultIssuer,
		backupCodes:   defaultBackupCodeCount,
		qrCodeSize:    defaultQRCodeSize,
		now:           time.Now,
	}

	for _, opt := range opts {
		opt(service)
	}

	return service, nil
}

// Enroll provisions a new pending secret and backup codes for a user,
// replacing any prior enrollment.
func (s *TOTPService) Enroll(userID, email string) (*otp.Key, []string, error) {
	userID = strings.TrimSpace(userID)
	email = strings.TrimSpace(email)

	if userID == "" || email == "" {
		return nil, nil, errors.New("totp: user id and email are required")
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.issuer,
		AccountName: email,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("totp: generate key: %w", err)
	}

	backupCodes := make([]string, s.backupCodes)
	for i := range backupCodes {
		code, err := generateBackupCode()
		if err != nil {
			return nil, nil, fmt.Errorf("totp: generate backup code: %w", err)
		}
		backupCodes[i] = code
	}

	encryptedSecret, err := crypto.Encrypt([]byte(key.Secret()), s.encryptionKey)
	if err != nil {
		return nil, nil, fmt.Errorf("totp: encrypt secret: %w", err)
	}

	hashedCodes := make([]string, len(backupCodes))
	for i, code := range backupCodes {
		hash, err := crypto.HashPassword(code)
		if err != nil {
			return nil, nil, fmt.Errorf("totp: hash backup code: %w", err)
		}
		hashedCodes[i] = hash
	}

	codesJSON, err := json.Marshal(hashedCodes)
	if err != nil {
		return nil, nil, fmt.Errorf("totp: marshal backup codes: %w", err)
	}

	var secret models.MFASecret
	if err := s.db.Where("user_id = ?", userID).First(&secret).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, fmt.Errorf("totp: load mfa secret: %w", err)
		}

		secret = models.MFASecret{
			UserID:      userID,
			Secret:      encryptedSecret,
			BackupCodes: datatypes.JSON(codesJSON),
		}

		if err := s.db.Create(&secret).Error; err != nil {
			return nil, nil, fmt.Errorf("totp: create mfa secret: %w", err)
		}
	} else {
		secret.Secret = encryptedSecret
		secret.BackupCodes = datatypes.JSON(codesJSON)
		secret.ActivatedAt = nil
		secret.LastUsedAt = nil

		if err := s.db.Save(&secret).Error; err != nil {
			return nil, nil, fmt.Errorf("totp: update mfa secret: %w", err)
		}
	}

	return key, backupCodes, nil
}

// Activate confirms a pending enrollment with a code from the authenticator
// app and flips the user's MFA flag.
func (s *TOTPService) Activate(userID, code string) (bool, error) {
	valid, err := s.verify(userID, code, false)
	if err != nil || !valid {
		return false, err
	}

	now := s.now()
	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.MFASecret{}).
			Where("user_id = ?", userID).
			Update("activated_at", &now).Error; err != nil {
			return err
		}
		return tx.Model(&models.User{}).
			Where("id = ?", userID).
			Update("mfa_enabled", true).Error
	})
	if err != nil {
		return false, fmt.Errorf("totp: activate: %w", err)
	}

	return true, nil
}

// VerifyCode checks a submitted TOTP code against an activated enrollment.
func (s *TOTPService) VerifyCode(userID, code string) (bool, error) {
	return s.verify(userID, code, true)
}

func (s *TOTPService) verify(userID, code string, requireActivated bool) (bool, error) {
	userID = strings.TrimSpace(userID)
	code = strings.TrimSpace(code)
	if userID == "" || code == "" {
		return false, errors.New("totp: user id and code are required")
	}

	secret, err := s.loadSecret(userID)
	if err != nil {
		return false, err
	}

	if requireActivated && secret.ActivatedAt == nil {
		return false, ErrNotEnrolled
	}

	rawSecret, err := crypto.Decrypt(secret.Secret, s.encryptionKey)
	if err != nil {
		return false, fmt.Errorf("totp: decrypt secret: %w", err)
	}

	valid := totp.Validate(code, string(rawSecret))
	if valid {
		now := s.now()
		if err := s.db.Model(secret).Update("last_used_at", &now).Error; err != nil {
			return false, fmt.Errorf("totp: update last used: %w", err)
		}
	}

	return valid, nil
}

// UseBackupCode validates and consumes a single backup code.
func (s *TOTPService) UseBackupCode(userID, code string) (bool, error) {
	userID = strings.TrimSpace(userID)
	code = strings.TrimSpace(code)
	if userID == "" || code == "" {
		return false, errors.New("totp: user id and code are required")
	}

	secret, err := s.loadSecret(userID)
	if err != nil {
		return false, err
	}
	if secret.ActivatedAt == nil {
		return false, ErrNotEnrolled
	}

	var hashedCodes []string
	if err := json.Unmarshal(secret.BackupCodes, &hashedCodes); err != nil {
		return false, fmt.Errorf("totp: unmarshal backup codes: %w", err)
	}

	consumed := false
	for i, stored := range hashedCodes {
		if crypto.VerifyPassword(stored, code) {
			hashedCodes = append(hashedCodes[:i], hashedCodes[i+1:]...)
			consumed = true
			break
		}
	}

	if !consumed {
		return false, nil
	}

	encoded, err := json.Marshal(hashedCodes)
	if err != nil {
		return false, fmt.Errorf("totp: marshal backup codes: %w", err)
	}

	if err := s.db.Model(secret).Update("backup_codes", datatypes.JSON(encoded)).Error; err != nil {
		return false, fmt.Errorf("totp: update backup codes: %w", err)
	}

	return true, nil
}

// RemainingBackupCodes returns the number of backup codes still available.
func (s *TOTPService) RemainingBackupCodes(userID string) (int, error) {
	secret, err := s.loadSecret(strings.TrimSpace(userID))
	if err != nil {
		return 0, err
	}

	var hashedCodes []string
	if err := json.Unmarshal(secret.BackupCodes, &hashedCodes); err != nil {
		return 0, fmt.Errorf("totp: unmarshal backup codes: %w", err)
	}

	return len(hashedCodes), nil
}

// Enrolled reports whether the user has an activated enrollment.
func (s *TOTPService) Enrolled(userID string) (bool, error) {
	secret, err := s.loadSecret(strings.TrimSpace(userID))
	if errors.Is(err, ErrNotEnrolled) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return secret.ActivatedAt != nil, nil
}

// GenerateQRCode returns a PNG-encoded QR code for the provided TOTP key.
func (s *TOTPService) GenerateQRCode(key *otp.Key) ([]byte, error) {
	if key == nil {
		return nil, errors.New("totp: key is required")
	}
	return qrcode.Encode(key.String(), qrcode.Medium, s.qrCodeSize)
}

func (s *TOTPService) loadSecret(userID string) (*models.MFASecret, error) {
	if userID == "" {
		return nil, errors.New("totp: user id is required")
	}

	var secret models.MFASecret
	if err := s.db.Where("user_id = ?", userID).First(&secret).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotEnrolled
		}
		return nil, fmt.Errorf("totp: load secret: %w", err)
	}

	return &secret, nil
}

func generateBackupCode() (string, error) {
	buf := make([]byte, 5)
	if _, err := cryptoRand.Read(buf); err != nil {
		return "", err
	}

	return base32.StdEncoding.EncodeToString(buf)[:8], nil
}
