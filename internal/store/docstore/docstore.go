package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/MarkoPoloResearchLab/donateboard/pkg/donate"
	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

const (
	boardDocID = "leaderboard"

	errorOperationStore = "store"
	errorSubjectBoard   = "board"
	errorCodeEncode     = "encode"
	errorCodeLoad       = "load"
	errorCodeMigrate    = "migrate"
	errorCodeOpen       = "open"
	errorCodeSave       = "save"
)

// Store implements donate.Store over a single gorm-backed document row.
// Save replaces the whole document; concurrent writers are last-write-wins at
// document granularity, which is the contract the service documents.
type Store struct {
	db *gorm.DB
}

// New returns a Store backed by gorm.DB.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// OpenSQLite opens (and migrates) a sqlite-backed store at the given path.
func OpenSQLite(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: logger.Discard})
	if err != nil {
		return nil, wrapStoreError(errorCodeOpen, err)
	}
	return migrate(db)
}

// OpenPostgres opens (and migrates) a postgres-backed store for the given DSN.
func OpenPostgres(dsn string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: logger.Discard})
	if err != nil {
		return nil, wrapStoreError(errorCodeOpen, err)
	}
	return migrate(db)
}

func migrate(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&BoardDocument{}); err != nil {
		return nil, wrapStoreError(errorCodeMigrate, err)
	}
	return New(db), nil
}

// Load reads the board document. An absent row is an empty board, and
// malformed stored bytes degrade to an empty board as well.
func (store *Store) Load(ctx context.Context) (donate.Document, error) {
	var row BoardDocument
	err := store.db.WithContext(ctx).First(&row, "doc_id = ?", boardDocID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return donate.NewDocument(), nil
	}
	if err != nil {
		return donate.Document{}, wrapStoreError(errorCodeLoad, err)
	}
	return donate.ParseDocument(row.Doc), nil
}

// Save upserts the board document wholesale.
func (store *Store) Save(ctx context.Context, document donate.Document) error {
	raw, err := json.Marshal(document)
	if err != nil {
		return wrapStoreError(errorCodeEncode, err)
	}
	row := BoardDocument{
		DocID:     boardDocID,
		Doc:       raw,
		UpdatedAt: time.Now().UTC(),
	}
	err = store.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "doc_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"doc", "updated_at"}),
		}).
		Create(&row).Error
	if err != nil {
		return wrapStoreError(errorCodeSave, err)
	}
	return nil
}

func wrapStoreError(code string, err error) error {
	return donate.WrapError(errorOperationStore, errorSubjectBoard, code, err)
}
