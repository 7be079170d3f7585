package docstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

func mustOpen(test *testing.T) *Store {
	test.Helper()
	store, err := OpenSQLite(filepath.Join(test.TempDir(), "board.db"))
	if err != nil {
		test.Fatalf("open sqlite: %v", err)
	}
	return store
}

func TestLoadEmptyBoard(test *testing.T) {
	test.Parallel()

	store := mustOpen(test)
	document, err := store.Load(context.Background())
	if err != nil {
		test.Fatalf("load: %v", err)
	}
	if len(document.Totals) != 0 {
		test.Fatalf("expected empty board, got %d entries", len(document.Totals))
	}
}

func TestSaveThenLoadRoundTrip(test *testing.T) {
	test.Parallel()

	store := mustOpen(test)
	document, err := store.Load(context.Background())
	if err != nil {
		test.Fatalf("load: %v", err)
	}
	document.Totals["alice"] = decimal.RequireFromString("10.50")
	document.Totals["bob"] = decimal.NewFromInt(3)
	if err := store.Save(context.Background(), document); err != nil {
		test.Fatalf("save: %v", err)
	}

	reloaded, err := store.Load(context.Background())
	if err != nil {
		test.Fatalf("load: %v", err)
	}
	if len(reloaded.Totals) != 2 {
		test.Fatalf("expected two entries, got %d", len(reloaded.Totals))
	}
	if reloaded.Totals["alice"].StringFixed(2) != "10.50" {
		test.Fatalf("expected alice=10.50, got %s", reloaded.Totals["alice"])
	}
	if reloaded.Totals["bob"].StringFixed(2) != "3.00" {
		test.Fatalf("expected bob=3.00, got %s", reloaded.Totals["bob"])
	}
}

func TestSaveReplacesDocumentWholesale(test *testing.T) {
	test.Parallel()

	store := mustOpen(test)
	first, _ := store.Load(context.Background())
	first.Totals["alice"] = decimal.NewFromInt(10)
	if err := store.Save(context.Background(), first); err != nil {
		test.Fatalf("save: %v", err)
	}

	second, _ := store.Load(context.Background())
	delete(second.Totals, "alice")
	second.Totals["bob"] = decimal.NewFromInt(7)
	if err := store.Save(context.Background(), second); err != nil {
		test.Fatalf("save: %v", err)
	}

	reloaded, err := store.Load(context.Background())
	if err != nil {
		test.Fatalf("load: %v", err)
	}
	if _, found := reloaded.Totals["alice"]; found {
		test.Fatalf("save must replace the document, alice survived")
	}
	if !reloaded.Totals["bob"].Equal(decimal.NewFromInt(7)) {
		test.Fatalf("expected bob=7, got %s", reloaded.Totals["bob"])
	}
}

func TestLoadDegradesCorruptRowToEmptyBoard(test *testing.T) {
	test.Parallel()

	store := mustOpen(test)
	row := BoardDocument{
		DocID:     boardDocID,
		Doc:       datatypes.JSON(`{"totals":`),
		UpdatedAt: time.Now().UTC(),
	}
	if err := store.db.Create(&row).Error; err != nil {
		test.Fatalf("seed corrupt row: %v", err)
	}

	document, err := store.Load(context.Background())
	if err != nil {
		test.Fatalf("load: %v", err)
	}
	if len(document.Totals) != 0 {
		test.Fatalf("corrupt bytes must degrade to an empty board")
	}
}
