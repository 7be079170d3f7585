package donate

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Document is the serialized board: a single JSON object mapping canonical
// nicks to accumulated totals. An absent document is an empty mapping.
type Document struct {
	Totals map[string]decimal.Decimal
}

type documentWire struct {
	Totals map[string]json.RawMessage `json:"totals"`
}

// NewDocument returns an empty board document.
func NewDocument() Document {
	return Document{Totals: map[string]decimal.Decimal{}}
}

// ParseDocument decodes stored board bytes. Malformed content degrades to an
// empty document rather than failing; the store self-heals on the next save.
// Entries with invalid nicks or non-positive totals are dropped on read so a
// corrupted value can never surface on the board.
func ParseDocument(raw []byte) Document {
	document := NewDocument()
	if len(raw) == 0 {
		return document
	}
	var wire documentWire
	if err := json.Unmarshal(raw, &wire); err != nil {
		return document
	}
	for nick, rawTotal := range wire.Totals {
		if NormalizeNick(nick) != nick || nick == "" {
			continue
		}
		total, err := decimal.NewFromString(string(rawTotal))
		if err != nil || total.Sign() < 0 {
			continue
		}
		document.Totals[nick] = total
	}
	return document
}

// MarshalJSON encodes totals as plain JSON numbers with two fractional digits.
func (document Document) MarshalJSON() ([]byte, error) {
	wire := documentWire{Totals: map[string]json.RawMessage{}}
	for nick, total := range document.Totals {
		wire.Totals[nick] = json.RawMessage(total.StringFixed(totalPlaces))
	}
	return json.Marshal(wire)
}

// UnmarshalJSON decodes a stored document, applying the same sanitation as
// ParseDocument but reporting malformed JSON to the caller.
func (document *Document) UnmarshalJSON(raw []byte) error {
	var wire documentWire
	if err := json.Unmarshal(raw, &wire); err != nil {
		return WrapError("document", "totals", "decode", ErrInvalidDocument)
	}
	*document = ParseDocument(raw)
	return nil
}

// Total returns the accumulated total for a nick, defaulting to zero.
func (document Document) Total(nick Nick) decimal.Decimal {
	total, ok := document.Totals[nick.String()]
	if !ok {
		return decimal.Zero
	}
	return total
}
