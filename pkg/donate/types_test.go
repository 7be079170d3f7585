package donate

import (
	"errors"
	"math"
	"regexp"
	"testing"

	"github.com/shopspring/decimal"
)

var nickShape = regexp.MustCompile(`^[A-Za-z0-9_-]*$`)

func TestNormalizeNick(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		name string
		raw  string
		want string
	}{
		{name: "plain", raw: "Bob_1", want: "Bob_1"},
		{name: "surrounding whitespace", raw: "  alice  ", want: "alice"},
		{name: "inner invalid characters", raw: "a!b@c#d$", want: "abcd"},
		{name: "unicode stripped", raw: "донатер-dan", want: "-dan"},
		{name: "truncated to 24", raw: "abcdefghijklmnopqrstuvwxyz", want: "abcdefghijklmnopqrstuvwx"},
		{name: "all invalid", raw: " !!! ", want: ""},
		{name: "empty", raw: "", want: ""},
		{name: "case preserved", raw: "MiXeD", want: "MiXeD"},
	}
	for _, testCase := range testCases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			got := NormalizeNick(testCase.raw)
			if got != testCase.want {
				test.Fatalf("expected %q, got %q", testCase.want, got)
			}
			if len(got) > 24 {
				test.Fatalf("normalized nick longer than 24: %q", got)
			}
			if !nickShape.MatchString(got) {
				test.Fatalf("normalized nick has invalid characters: %q", got)
			}
			if NormalizeNick(got) != got {
				test.Fatalf("normalization not idempotent for %q", testCase.raw)
			}
		})
	}
}

func TestNewNickRejectsEmptyNormalization(test *testing.T) {
	test.Parallel()
	if _, err := NewNick(" @@@ "); !errors.Is(err, ErrInvalidNick) {
		test.Fatalf("expected ErrInvalidNick, got %v", err)
	}
	nick, err := NewNick("  Bob_1!  ")
	if err != nil {
		test.Fatalf("nick: %v", err)
	}
	if nick.String() != "Bob_1" {
		test.Fatalf("expected Bob_1, got %q", nick.String())
	}
}

func TestNewPledgeAmountStrictMode(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		name    string
		raw     float64
		want    string
		invalid bool
	}{
		{name: "minimum", raw: 1, want: "1.00"},
		{name: "floored", raw: 7.99, want: "7.00"},
		{name: "maximum", raw: 100000, want: "100000.00"},
		{name: "below minimum after floor", raw: 0.99, invalid: true},
		{name: "zero", raw: 0, invalid: true},
		{name: "negative", raw: -5, invalid: true},
		{name: "above maximum", raw: 100001, invalid: true},
		{name: "nan", raw: math.NaN(), invalid: true},
		{name: "positive infinity", raw: math.Inf(1), invalid: true},
		{name: "negative infinity", raw: math.Inf(-1), invalid: true},
	}
	for _, testCase := range testCases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			amount, err := NewPledgeAmount(testCase.raw)
			if testCase.invalid {
				if !errors.Is(err, ErrInvalidAmount) {
					test.Fatalf("expected ErrInvalidAmount, got %v", err)
				}
				return
			}
			if err != nil {
				test.Fatalf("amount: %v", err)
			}
			if amount.String() != testCase.want {
				test.Fatalf("expected %s, got %s", testCase.want, amount.String())
			}
		})
	}
}

func TestSettledAmountDecimalMode(test *testing.T) {
	test.Parallel()
	amount, err := NewSettledAmount(decimal.RequireFromString("0.37"))
	if err != nil {
		test.Fatalf("settled amount: %v", err)
	}
	if amount.String() != "0.37" {
		test.Fatalf("expected 0.37, got %s", amount.String())
	}
	if _, err := NewSettledAmount(decimal.Zero); !errors.Is(err, ErrInvalidAmount) {
		test.Fatalf("expected ErrInvalidAmount for zero, got %v", err)
	}
	if _, err := NewSettledAmount(decimal.RequireFromString("-1")); !errors.Is(err, ErrInvalidAmount) {
		test.Fatalf("expected ErrInvalidAmount for negative, got %v", err)
	}
}

func TestParseSettledAmount(test *testing.T) {
	test.Parallel()
	amount, err := ParseSettledAmount(" 12.345 ")
	if err != nil {
		test.Fatalf("parse: %v", err)
	}
	if !amount.Decimal().Equal(decimal.RequireFromString("12.345")) {
		test.Fatalf("expected 12.345, got %s", amount.Decimal())
	}
	if _, err := ParseSettledAmount("not-a-number"); !errors.Is(err, ErrInvalidAmount) {
		test.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if _, err := ParseSettledAmount(""); !errors.Is(err, ErrInvalidAmount) {
		test.Fatalf("expected ErrInvalidAmount for empty, got %v", err)
	}
}
