package pgstore

import (
	"context"
	"errors"

	"github.com/MarkoPoloResearchLab/donateboard/pkg/donate"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const (
	boardDocID = "leaderboard"

	errorOperationStore = "store"
	errorSubjectBoard   = "board"
	errorCodeConnect    = "connect"
	errorCodeEncode     = "encode"
	errorCodeIncrement  = "increment"
	errorCodeLoad       = "load"
	errorCodeMigrate    = "migrate"
	errorCodeSave       = "save"

	sqlEnsureSchema = `
		create table if not exists board_documents(
			doc_id text primary key,
			doc jsonb not null,
			updated_at timestamptz not null default now()
		)
	`

	sqlSelectDocument = `
		select doc from board_documents where doc_id = $1
	`

	sqlUpsertDocument = `
		insert into board_documents(doc_id, doc, updated_at)
		values($1, $2::jsonb, now())
		on conflict (doc_id) do update set doc = excluded.doc, updated_at = now()
	`

	sqlIncrementNick = `
		insert into board_documents(doc_id, doc, updated_at)
		values($1, jsonb_build_object('totals', jsonb_build_object($2::text, round($3::numeric, 2))), now())
		on conflict (doc_id) do update set
			doc = jsonb_set(
				case when board_documents.doc ? 'totals'
					then board_documents.doc
					else jsonb_build_object('totals', '{}'::jsonb)
				end,
				array['totals', $2::text],
				to_jsonb(round(coalesce((board_documents.doc #>> array['totals', $2::text])::numeric, 0) + $3::numeric, 2))
			),
			updated_at = now()
		returning doc #>> array['totals', $2::text]
	`
)

// Store implements donate.Store using a pgx connection pool. Unlike the
// portable document stores it also implements donate.Incrementer: the
// per-nick increment runs as a single jsonb_set upsert, so concurrent
// settlements never lose a write.
type Store struct {
	pool *pgxpool.Pool
}

// New returns a Store over an existing pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Connect opens a pool for the DSN and ensures the board table exists.
func Connect(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, wrapStoreError(errorCodeConnect, err)
	}
	if _, err := pool.Exec(ctx, sqlEnsureSchema); err != nil {
		pool.Close()
		return nil, wrapStoreError(errorCodeMigrate, err)
	}
	return New(pool), nil
}

// Close releases the underlying pool.
func (store *Store) Close() {
	store.pool.Close()
}

// Load reads the board document; an absent row is an empty board.
func (store *Store) Load(ctx context.Context) (donate.Document, error) {
	var raw []byte
	err := store.pool.QueryRow(ctx, sqlSelectDocument, boardDocID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return donate.NewDocument(), nil
	}
	if err != nil {
		return donate.Document{}, wrapStoreError(errorCodeLoad, err)
	}
	return donate.ParseDocument(raw), nil
}

// Save upserts the board document wholesale.
func (store *Store) Save(ctx context.Context, document donate.Document) error {
	raw, err := document.MarshalJSON()
	if err != nil {
		return wrapStoreError(errorCodeEncode, err)
	}
	if _, err := store.pool.Exec(ctx, sqlUpsertDocument, boardDocID, raw); err != nil {
		return wrapStoreError(errorCodeSave, err)
	}
	return nil
}

// Increment atomically adds the amount to the nick's total inside the stored
// document and returns the new total.
func (store *Store) Increment(ctx context.Context, nick donate.Nick, amount donate.Amount) (decimal.Decimal, error) {
	var rawTotal string
	err := store.pool.QueryRow(ctx, sqlIncrementNick, boardDocID, nick.String(), amount.Decimal().String()).Scan(&rawTotal)
	if err != nil {
		return decimal.Zero, wrapStoreError(errorCodeIncrement, err)
	}
	newTotal, err := decimal.NewFromString(rawTotal)
	if err != nil {
		return decimal.Zero, wrapStoreError(errorCodeIncrement, err)
	}
	return newTotal, nil
}

func wrapStoreError(code string, err error) error {
	return donate.WrapError(errorOperationStore, errorSubjectBoard, code, err)
}
