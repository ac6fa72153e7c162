package utils

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	emailRegex    = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
	currencyRegex = regexp.MustCompile(`^[A-Z]{3}$`)
	controlChars  = regexp.MustCompile(`[\x00-\x1f\x7f]`)
)

// MaxAmount caps a single expense
var MaxAmount = decimal.NewFromInt(10_000_000)

// ValidateEmail validates an email address
func ValidateEmail(email string) error {
	if !emailRegex.MatchString(email) {
		return fmt.Errorf("invalid email format: %s", email)
	}
	return nil
}

// ValidateAmount checks that amount is positive, below MaxAmount and has at most two decimal places
func ValidateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("amount must be positive: %s", amount)
	}
	if amount.GreaterThan(MaxAmount) {
		return fmt.Errorf("amount exceeds maximum limit: %s", amount)
	}
	if !amount.Equal(amount.Round(2)) {
		return fmt.Errorf("amount has more than 2 decimal places: %s", amount)
	}
	return nil
}

// NormalizeCurrency upper-cases code and checks it is a 3-letter ISO-4217 style code
func NormalizeCurrency(code string) (string, error) {
	c := strings.ToUpper(strings.TrimSpace(code))
	if !currencyRegex.MatchString(c) {
		return "", fmt.Errorf("invalid currency code: %q", code)
	}
	return c, nil
}

// SanitizeString removes control characters and surrounding whitespace
func SanitizeString(s string) string {
	return strings.TrimSpace(controlChars.ReplaceAllString(s, ""))
}
