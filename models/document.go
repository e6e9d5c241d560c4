package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Metadata is a free-form metadata map stored as JSONB
type Metadata map[string]interface{}

// Value implements driver.Valuer for JSONB
func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return json.Marshal(Metadata{})
	}
	return json.Marshal(m)
}

// Scan implements sql.Scanner for JSONB
func (m *Metadata) Scan(value interface{}) error {
	if value == nil {
		*m = make(Metadata)
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		*m = make(Metadata)
		return nil
	}

	if len(bytes) == 0 {
		*m = make(Metadata)
		return nil
	}

	return json.Unmarshal(bytes, m)
}

// Document represents an uploaded contract. It is created once on upload and
// never mutated afterwards; its chunks belong to it exclusively.
type Document struct {
	ID        uuid.UUID `json:"id"`
	Title     string    `json:"title"`
	MimeType  string    `json:"mime_type"`
	Content   string    `json:"content"` // full extracted text
	CreatedAt time.Time `json:"created_at"`
}

// ContractChunk is one segment of an uploaded contract document.
// ChunkIndex is contiguous from 0 within a document.
type ContractChunk struct {
	ID             uuid.UUID `json:"id"`
	DocumentID     uuid.UUID `json:"document_id"`
	ArticleNumber  *int      `json:"article_number,omitempty"`
	ParagraphIndex *int      `json:"paragraph_index,omitempty"`
	ChunkIndex     int       `json:"chunk_index"`
	Content        string    `json:"content"`
	Embedding      []float32 `json:"-"`
	Metadata       Metadata  `json:"metadata,omitempty"`
	Similarity     float64   `json:"similarity,omitempty"` // set on search results
}
