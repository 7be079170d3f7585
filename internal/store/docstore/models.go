package docstore

import (
	"time"

	"gorm.io/datatypes"
)

// BoardDocument holds the serialized board as a single row.
type BoardDocument struct {
	DocID     string         `gorm:"primaryKey"`
	Doc       datatypes.JSON `gorm:"not null"`
	UpdatedAt time.Time      `gorm:"not null"`
}

func (BoardDocument) TableName() string { return "board_documents" }
