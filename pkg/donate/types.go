package donate

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// Nick is a canonicalized donor nickname used as the board key.
type Nick struct {
	value string
}

// Amount is a strictly positive credit amount in dollars.
type Amount struct {
	value decimal.Decimal
}

// Row is one leaderboard line.
type Row struct {
	Nick  string
	Total decimal.Decimal
}

// NormalizeNick trims surrounding whitespace, strips every character outside
// [A-Za-z0-9_-], and truncates to the maximum nick length. It never fails;
// an all-invalid input normalizes to the empty string.
func NormalizeNick(raw string) string {
	trimmed := strings.TrimSpace(raw)
	var builder strings.Builder
	for _, character := range trimmed {
		if !isNickCharacter(character) {
			continue
		}
		builder.WriteRune(character)
		if builder.Len() == maxNickLength {
			break
		}
	}
	return builder.String()
}

func isNickCharacter(character rune) bool {
	switch {
	case character >= 'a' && character <= 'z':
		return true
	case character >= 'A' && character <= 'Z':
		return true
	case character >= '0' && character <= '9':
		return true
	case character == '_' || character == '-':
		return true
	}
	return false
}

// NewNick normalizes a raw nickname and rejects inputs that normalize to nothing.
func NewNick(raw string) (Nick, error) {
	normalized := NormalizeNick(raw)
	if normalized == "" {
		return Nick{}, fmt.Errorf("%w: empty after normalization", ErrInvalidNick)
	}
	return Nick{value: normalized}, nil
}

// String returns the canonical nickname.
func (nick Nick) String() string {
	return nick.value
}

// NewPledgeAmount validates a caller-chosen amount in strict integer-dollar
// mode: the value is floored and must land in [1, 100000]. Used on the paths
// where this service decides what the provider will charge.
func NewPledgeAmount(raw float64) (Amount, error) {
	if math.IsNaN(raw) || math.IsInf(raw, 0) {
		return Amount{}, fmt.Errorf("%w: not finite", ErrInvalidAmount)
	}
	floored := int64(math.Floor(raw))
	if floored < minPledgeDollars || floored > maxPledgeDollars {
		return Amount{}, fmt.Errorf("%w: %d outside [%d, %d]", ErrInvalidAmount, floored, minPledgeDollars, maxPledgeDollars)
	}
	return Amount{value: decimal.NewFromInt(floored)}, nil
}

// NewSettledAmount validates a provider-asserted captured amount in decimal
// mode: any strictly positive value is accepted, since the payment already
// happened and rejecting it would desynchronize paid from credited.
func NewSettledAmount(raw decimal.Decimal) (Amount, error) {
	if raw.Sign() <= 0 {
		return Amount{}, fmt.Errorf("%w: must be greater than zero", ErrInvalidAmount)
	}
	return Amount{value: raw}, nil
}

// ParseSettledAmount parses a provider-reported amount string in decimal mode.
func ParseSettledAmount(raw string) (Amount, error) {
	parsed, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return Amount{}, fmt.Errorf("%w: %q is not a number", ErrInvalidAmount, raw)
	}
	return NewSettledAmount(parsed)
}

// Decimal returns the amount value.
func (amount Amount) Decimal() decimal.Decimal {
	return amount.value
}

// String returns the amount formatted with two fractional digits.
func (amount Amount) String() string {
	return amount.value.StringFixed(totalPlaces)
}

// Store is the persistence contract used by Service. The board is one logical
// document; Save replaces it wholesale (last write wins at document
// granularity).
type Store interface {
	Load(ctx context.Context) (Document, error)
	Save(ctx context.Context, document Document) error
}

// Incrementer is an optional store upgrade: a per-nick atomic increment that
// closes the load-then-save race where the backing medium supports it.
type Incrementer interface {
	Increment(ctx context.Context, nick Nick, amount Amount) (decimal.Decimal, error)
}
