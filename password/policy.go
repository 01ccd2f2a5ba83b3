package password

import (
	"strconv"
	"unicode"
)

// Reason codes reported by [Policy.Validate].
const (
	ReasonTooShort      = "too_short"
	ReasonTooLong       = "too_long"
	ReasonMissingUpper  = "missing_upper"
	ReasonMissingLower  = "missing_lower"
	ReasonMissingDigit  = "missing_digit"
	ReasonMissingSymbol = "missing_symbol"
)

// Policy describes the strength rules a new password must meet.
type Policy struct {
	MinLength     int
	MaxLength     int
	RequireUpper  bool
	RequireLower  bool
	RequireDigit  bool
	RequireSymbol bool
}

// DefaultPolicy is min 8 with upper, lower and digit.
func DefaultPolicy() Policy {
	return Policy{
		MinLength:    8,
		MaxLength:    128,
		RequireUpper: true,
		RequireLower: true,
		RequireDigit: true,
	}
}

// Validate checks s and returns every failed rule.
func (p Policy) Validate(s string) (ok bool, reasons []string) {
	n := len([]rune(s))
	if n < p.MinLength {
		reasons = append(reasons, ReasonTooShort)
	}
	if p.MaxLength > 0 && n > p.MaxLength {
		reasons = append(reasons, ReasonTooLong)
	}
	var hasU, hasL, hasD, hasS bool
	for _, r := range s {
		switch {
		case unicode.IsUpper(r):
			hasU = true
		case unicode.IsLower(r):
			hasL = true
		case unicode.IsDigit(r):
			hasD = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			hasS = true
		}
	}
	if p.RequireUpper && !hasU {
		reasons = append(reasons, ReasonMissingUpper)
	}
	if p.RequireLower && !hasL {
		reasons = append(reasons, ReasonMissingLower)
	}
	if p.RequireDigit && !hasD {
		reasons = append(reasons, ReasonMissingDigit)
	}
	if p.RequireSymbol && !hasS {
		reasons = append(reasons, ReasonMissingSymbol)
	}
	return len(reasons) == 0, reasons
}

// Describe turns reason codes into user-facing messages.
func Describe(p Policy, reasons []string) []string {
	out := make([]string, 0, len(reasons))
	for _, r := range reasons {
		switch r {
		case ReasonTooShort:
			out = append(out, "password must be at least "+strconv.Itoa(p.MinLength)+" characters")
		case ReasonTooLong:
			out = append(out, "password must be at most "+strconv.Itoa(p.MaxLength)+" characters")
		case ReasonMissingUpper:
			out = append(out, "password must contain an uppercase letter")
		case ReasonMissingLower:
			out = append(out, "password must contain a lowercase letter")
		case ReasonMissingDigit:
			out = append(out, "password must contain a digit")
		case ReasonMissingSymbol:
			out = append(out, "password must contain a symbol")
		default:
			out = append(out, r)
		}
	}
	return out
}
