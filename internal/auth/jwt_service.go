package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/black-bourne/educ-backend/internal/models"
)

// Default validity periods for the two token stages. A pre-auth token is
// issued after password verification and only grants access to the code
// verification endpoint; a session token is issued once the emailed code has
// been confirmed.
const (
	DefaultPreAuthTokenTTL = 15 * time.Minute
	DefaultSessionTokenTTL = 24 * time.Hour
)

// ErrTokenExpired is returned when a structurally valid token is past its expiry.
var ErrTokenExpired = errors.New("jwt: token expired")

// JWTConfig bundles the configuration required to build a JWTService.
type JWTConfig struct {
	Secret          string
	Issuer          string
	PreAuthTokenTTL time.Duration
	SessionTokenTTL time.Duration
	Clock           func() time.Time
}

// Claims represents the custom claims embedded in issued JWTs.
type Claims struct {
	UserID            string `json:"uid"`
	Email             string `json:"email"`
	Role              string `json:"role"`
	TwoFactorVerified bool   `json:"2fa_verified"`
	jwt.RegisteredClaims
}

// JWTService is responsible for issuing and validating JSON Web Tokens.
type JWTService struct {
	secret     []byte
	issuer     string
	preAuthTTL time.Duration
	sessionTTL time.Duration
	now        func() time.Time
}

// NewJWTService constructs a JWTService instance when provided with the required configuration.
func NewJWTService(cfg JWTConfig) (*JWTService, error) {
	if cfg.Secret == "" {
		return nil, errors.New("jwt: secret must be provided")
	}

	preAuthTTL := cfg.PreAuthTokenTTL
	if preAuthTTL <= 0 {
		preAuthTTL = DefaultPreAuthTokenTTL
	}

	sessionTTL := cfg.SessionTokenTTL
	if sessionTTL <= 0 {
		sessionTTL = DefaultSessionTokenTTL
	}

	now := time.Now
	if cfg.Clock != nil {
		now = cfg.Clock
	}

	return &JWTService{
		secret:     []byte(cfg.Secret),
		issuer:     cfg.Issuer,
		preAuthTTL: preAuthTTL,
		sessionTTL: sessionTTL,
		now:        now,
	}, nil
}

// GeneratePreAuthToken issues a short-lived token with the two-factor flag
// cleared. Holders can only call the code verification endpoint.
func (s *JWTService) GeneratePreAuthToken(user *models.User) (string, error) {
	return s.generate(user, false, s.preAuthTTL)
}

// GenerateSessionToken issues a full session token with the two-factor flag set.
func (s *JWTService) GenerateSessionToken(user *models.User) (string, error) {
	return s.generate(user, true, s.sessionTTL)
}

func (s *JWTService) generate(user *models.User, verified bool, ttl time.Duration) (string, error) {
	if user == nil || user.ID == "" {
		return "", errors.New("jwt: user is required")
	}

	now := s.now()

	claims := &Claims{
		UserID:            user.ID,
		Email:             user.Email,
		Role:              user.Role,
		TwoFactorVerified: verified,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			Issuer:    s.issuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("jwt: sign token: %w", err)
	}

	return signed, nil
}

// ValidateToken parses and validates a signed JWT, returning the application claims.
func (s *JWTService) ValidateToken(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, errors.New("jwt: token string is empty")
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)

	var claims Claims
	_, err := parser.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("jwt: parse token: %w", err)
	}

	if s.issuer != "" && claims.Issuer != s.issuer {
		return nil, errors.New("jwt: invalid issuer")
	}

	if claims.UserID == "" {
		return nil, errors.New("jwt: missing user id claim")
	}

	return &claims, nil
}
