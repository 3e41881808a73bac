package utils

import (
	"fmt"
	"math"
	"regexp"
	"strings"
)

// MaxInvoiceAmount caps a single invoice
const MaxInvoiceAmount = 10_000_000

var (
	emailRegex         = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
	invoiceNumberRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._/\-]{0,63}$`)
	projectKeyRegex    = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_\-]{0,31}$`)
	controlChars       = regexp.MustCompile(`[\x00-\x1f\x7f]`)
)

// ValidateEmail validates an email address
func ValidateEmail(email string) error {
	if !emailRegex.MatchString(email) {
		return fmt.Errorf("invalid email format: %s", email)
	}
	return nil
}

// ValidateInvoiceNumber accepts vendor numbering such as INV-2024/001
func ValidateInvoiceNumber(number string) error {
	if !invoiceNumberRegex.MatchString(number) {
		return fmt.Errorf("invalid invoice number: %q", number)
	}
	return nil
}

// ValidateProjectKey validates a project key such as P1 or website-redesign
func ValidateProjectKey(key string) error {
	if !projectKeyRegex.MatchString(key) {
		return fmt.Errorf("invalid project key: %q", key)
	}
	return nil
}

// ValidateAmount validates an invoice amount with at most two decimal places
func ValidateAmount(amount float64) error {
	if amount <= 0 || math.IsNaN(amount) {
		return fmt.Errorf("amount must be positive: %.2f", amount)
	}

	if amount > MaxInvoiceAmount {
		return fmt.Errorf("amount exceeds maximum limit: %.2f", amount)
	}

	cents := amount * 100
	if math.Abs(cents-math.Round(cents)) > 1e-6 {
		return fmt.Errorf("amount has more than two decimal places: %v", amount)
	}

	return nil
}

// SanitizeString removes control characters and surrounding whitespace
func SanitizeString(s string) string {
	return strings.TrimSpace(controlChars.ReplaceAllString(s, ""))
}
