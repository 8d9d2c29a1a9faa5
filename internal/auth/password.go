package auth

import (
	"errors"
	"fmt"
	"unicode"
)

// PasswordPolicy validates candidate passwords before they are hashed.
type PasswordPolicy interface {
	Validate(password string) error
}

// DefaultPasswordPolicy enforces a minimum length plus at least one letter
// and one digit.
type DefaultPasswordPolicy struct {
	MinLength int
}

// NewDefaultPasswordPolicy returns the policy applied when none is configured.
func NewDefaultPasswordPolicy() DefaultPasswordPolicy {
	return DefaultPasswordPolicy{MinLength: 8}
}

// Validate reports why a password is unacceptable, or nil.
func (p DefaultPasswordPolicy) Validate(password string) error {
	minLength := p.MinLength
	if minLength <= 0 {
		minLength = 8
	}

	if len(password) < minLength {
		return fmt.Errorf("password must be at least %d characters", minLength)
	}

	var hasLetter, hasDigit bool
	for _, r := range password {
		switch {
		case unicode.IsLetter(r):
			hasLetter = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}

	if !hasLetter || !hasDigit {
		return errors.New("password must contain at least one letter and one digit")
	}

	return nil
}
