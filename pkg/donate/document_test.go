package donate

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseDocumentMalformedBytes(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		name string
		raw  string
	}{
		{name: "empty", raw: ""},
		{name: "not json", raw: "{corrupted"},
		{name: "wrong shape", raw: `["totals"]`},
		{name: "totals not an object", raw: `{"totals": 7}`},
	}
	for _, testCase := range testCases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			document := ParseDocument([]byte(testCase.raw))
			if len(document.Totals) != 0 {
				test.Fatalf("expected empty document, got %d entries", len(document.Totals))
			}
		})
	}
}

func TestParseDocumentDropsCorruptEntries(test *testing.T) {
	test.Parallel()
	raw := `{"totals":{"alice":10.5,"bad nick!":3,"":4,"bob":-1,"carol":"nope","dave":0}}`
	document := ParseDocument([]byte(raw))
	if len(document.Totals) != 2 {
		test.Fatalf("expected 2 surviving entries, got %d: %v", len(document.Totals), document.Totals)
	}
	if !document.Totals["alice"].Equal(decimal.RequireFromString("10.5")) {
		test.Fatalf("unexpected alice total: %s", document.Totals["alice"])
	}
	if !document.Totals["dave"].Equal(decimal.Zero) {
		test.Fatalf("unexpected dave total: %s", document.Totals["dave"])
	}
}

func TestDocumentMarshalEmitsPlainNumbers(test *testing.T) {
	test.Parallel()
	document := NewDocument()
	document.Totals["Bob_1"] = decimal.RequireFromString("25")
	raw, err := json.Marshal(document)
	if err != nil {
		test.Fatalf("marshal: %v", err)
	}
	var wire struct {
		Totals map[string]json.Number `json:"totals"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		test.Fatalf("unmarshal: %v", err)
	}
	if wire.Totals["Bob_1"].String() != "25.00" {
		test.Fatalf("expected 25.00, got %s", wire.Totals["Bob_1"])
	}
}

func TestDocumentRoundTrip(test *testing.T) {
	test.Parallel()
	document := NewDocument()
	document.Totals["alice"] = decimal.RequireFromString("10.50")
	document.Totals["bob"] = decimal.RequireFromString("3.33")
	raw, err := json.Marshal(document)
	if err != nil {
		test.Fatalf("marshal: %v", err)
	}
	parsed := ParseDocument(raw)
	if len(parsed.Totals) != 2 {
		test.Fatalf("expected 2 entries, got %d", len(parsed.Totals))
	}
	if !parsed.Totals["alice"].Equal(document.Totals["alice"]) {
		test.Fatalf("alice total changed across round trip: %s", parsed.Totals["alice"])
	}
}

func TestDocumentTotalDefaultsToZero(test *testing.T) {
	test.Parallel()
	document := NewDocument()
	nick := mustNick(test, "ghost")
	if !document.Total(nick).Equal(decimal.Zero) {
		test.Fatalf("expected zero total for unknown nick")
	}
}
