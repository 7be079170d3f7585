package memstore

import (
	"context"
	"sync"

	"github.com/MarkoPoloResearchLab/donateboard/pkg/donate"
	"github.com/shopspring/decimal"
)

// Store is an in-memory donate.Store for tests and demo deployments. It keeps
// the plain load/save document semantics, guarded by a mutex.
type Store struct {
	mu       sync.RWMutex
	document donate.Document
}

// New returns an empty in-memory store.
func New() *Store {
	return &Store{document: donate.NewDocument()}
}

// Load returns a copy of the current board document.
func (store *Store) Load(ctx context.Context) (donate.Document, error) {
	store.mu.RLock()
	defer store.mu.RUnlock()
	return copyDocument(store.document), nil
}

// Save replaces the board document wholesale.
func (store *Store) Save(ctx context.Context, document donate.Document) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.document = copyDocument(document)
	return nil
}

func copyDocument(document donate.Document) donate.Document {
	copied := donate.Document{Totals: make(map[string]decimal.Decimal, len(document.Totals))}
	for nick, total := range document.Totals {
		copied.Totals[nick] = total
	}
	return copied
}
