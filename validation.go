package clinicauth

import (
	"net/mail"
	"strings"
	"unicode"

	"github.com/MrEthical07/clinicauth/password"
)

const (
	usernameMinLen = 3
	usernameMaxLen = 30
	nameMaxLen     = 50
	phoneMaxLen    = 20
	roleNameMaxLen = 50
)

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func validEmail(s string) bool {
	if s == "" || len(s) > 254 {
		return false
	}
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s {
		return false
	}
	at := strings.LastIndexByte(s, '@')
	return at > 0 && strings.Contains(s[at+1:], ".")
}

// validUsername accepts letters, digits, '_' and '.'.
func validUsername(s string) bool {
	if len(s) < usernameMinLen || len(s) > usernameMaxLen {
		return false
	}
	for _, r := range s {
		if r > unicode.MaxASCII {
			return false
		}
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' && r != '.' {
			return false
		}
	}
	return true
}

func validPhone(s string) bool {
	if len(s) > phoneMaxLen {
		return false
	}
	for i, r := range s {
		if unicode.IsDigit(r) || r == ' ' || r == '-' || (r == '+' && i == 0) {
			continue
		}
		return false
	}
	return true
}

// validRoleName accepts lower-case slugs: letters, digits, '_' and '-'.
func validRoleName(s string) bool {
	if s == "" || len(s) > roleNameMaxLen {
		return false
	}
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' || r == '-' {
			continue
		}
		return false
	}
	return true
}

func checkName(fieldName, v string, required bool) []FieldError {
	v = strings.TrimSpace(v)
	switch {
	case v == "" && required:
		return []FieldError{field(fieldName, "is required")}
	case len([]rune(v)) > nameMaxLen:
		return []FieldError{field(fieldName, "is too long")}
	}
	return nil
}

// checkNewPassword applies the strength policy to pw.
func checkNewPassword(p password.Policy, fieldName, pw string) []FieldError {
	if pw == "" {
		return []FieldError{field(fieldName, "is required")}
	}
	ok, reasons := p.Validate(pw)
	if ok {
		return nil
	}
	msgs := password.Describe(p, reasons)
	out := make([]FieldError, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, field(fieldName, m))
	}
	return out
}
