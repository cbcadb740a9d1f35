package recovery

import (
	"regexp"
	"strings"
	"unicode"
)

var specialChar = regexp.MustCompile(`[!@#$%^&*(),.?":{}|<>]`)

// Strength rates a password for the reset form meter.
type Strength struct {
	// Progress is a percentage from 0 to 100.
	Progress int    `json:"progress"`
	Message  string `json:"message"`
}

// Rate scores password. A password shorter than MinPasswordLen or without a
// digit or special character never scores above the minimum-length ratio.
func Rate(password string) Strength {
	if password == "" {
		return Strength{Message: "Password must be 8 characters long and contain one special character or number"}
	}
	if len(password) < MinPasswordLen {
		return Strength{Progress: len(password) * 100 / MinPasswordLen, Message: "Minimum 8 characters required"}
	}
	hasSpecial := specialChar.MatchString(password)
	hasDigit := strings.IndexFunc(password, unicode.IsDigit) >= 0
	if !hasSpecial && !hasDigit {
		return Strength{Message: "Must contain at least one number or special character"}
	}

	factors := 0
	for _, ok := range []bool{
		hasSpecial && hasDigit,
		len(password) >= 12,
		strings.IndexFunc(password, unicode.IsUpper) >= 0,
		strings.IndexFunc(password, unicode.IsLower) >= 0,
	} {
		if ok {
			factors++
		}
	}
	s := Strength{Progress: factors * 25, Message: "Good start"}
	switch {
	case factors >= 3:
		s.Message = "Strong password!"
	case factors >= 2:
		s.Message = "Almost there - try adding more complexity"
	}
	return s
}
