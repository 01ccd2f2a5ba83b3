package password

import (
	"reflect"
	"testing"
)

func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy()

	tests := []struct {
		in      string
		reasons []string
	}{
		{"Clinic01", nil},
		{"Sh0rt", []string{ReasonTooShort}},
		{"alllowercase1", []string{ReasonMissingUpper}},
		{"ALLUPPERCASE1", []string{ReasonMissingLower}},
		{"NoDigitsHere", []string{ReasonMissingDigit}},
		{"", []string{ReasonTooShort, ReasonMissingUpper, ReasonMissingLower, ReasonMissingDigit}},
	}
	for _, tc := range tests {
		ok, reasons := p.Validate(tc.in)
		if ok != (len(tc.reasons) == 0) {
			t.Fatalf("Validate(%q) ok=%v, reasons=%v", tc.in, ok, reasons)
		}
		if !reflect.DeepEqual(reasons, tc.reasons) {
			t.Fatalf("Validate(%q) reasons=%v, want %v", tc.in, reasons, tc.reasons)
		}
	}
}

func TestPolicySymbolAndMaxLength(t *testing.T) {
	p := Policy{MinLength: 4, MaxLength: 6, RequireSymbol: true}
	if ok, reasons := p.Validate("abc!"); !ok {
		t.Fatalf("expected symbol password to pass, got %v", reasons)
	}
	_, reasons := p.Validate("abcdefgh")
	if !reflect.DeepEqual(reasons, []string{ReasonTooLong, ReasonMissingSymbol}) {
		t.Fatalf("unexpected reasons: %v", reasons)
	}
}

func TestDescribe(t *testing.T) {
	msgs := Describe(DefaultPolicy(), []string{ReasonTooShort, ReasonMissingDigit})
	want := []string{"password must be at least 8 characters", "password must contain a digit"}
	if !reflect.DeepEqual(msgs, want) {
		t.Fatalf("Describe = %v, want %v", msgs, want)
	}
}
