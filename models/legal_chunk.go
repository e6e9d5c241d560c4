package models

import (
	"github.com/google/uuid"
)

// SourceType classifies a unit of the legal corpus
type SourceType string

const (
	SourceTypeLaw              SourceType = "law"
	SourceTypeManual           SourceType = "manual"
	SourceTypeStandardContract SourceType = "standard_contract"
	SourceTypeCase             SourceType = "case"
)

// LegalChunk represents a chunk of legal text from the knowledge base:
// statutes, ministry manuals, standard contract forms and applied cases.
// (external_id, chunk_index) is unique; re-ingestion of the same source
// file is a no-op.
type LegalChunk struct {
	ID         uuid.UUID  `json:"id"`
	ExternalID string     `json:"external_id"` // deterministic hash of source file path
	ChunkIndex int        `json:"chunk_index"`
	SourceType SourceType `json:"source_type"`
	Title      string     `json:"title"`
	Content    string     `json:"content"`
	FilePath   string     `json:"file_path,omitempty"`
	Embedding  []float32  `json:"-"`
	Metadata   Metadata   `json:"metadata,omitempty"`
	Similarity float64    `json:"similarity,omitempty"` // cosine similarity on search results
}

// BasisStatus states how a grounding chunk relates to an issue
type BasisStatus string

const (
	BasisSupports    BasisStatus = "supports"
	BasisContradicts BasisStatus = "contradicts"
	BasisUnclear     BasisStatus = "unclear"
)

const snippetLimit = 300

// GroundingChunk is a legal chunk projected into the value shape attached to
// analysis output. It holds no independent lifetime; SourceID weakly
// references the legal chunk it was copied from.
type GroundingChunk struct {
	SourceID   string      `json:"sourceId"`
	SourceType SourceType  `json:"sourceType"`
	Title      string      `json:"title"`
	Snippet    string      `json:"snippet"`
	Score      float64     `json:"score"`
	FilePath   string      `json:"filePath,omitempty"`
	Status     BasisStatus `json:"status,omitempty"`
}

// NewGroundingChunk projects a legal chunk into a grounding value,
// truncating content to the snippet limit.
func NewGroundingChunk(c LegalChunk) GroundingChunk {
	snippet := c.Content
	if len([]rune(snippet)) > snippetLimit {
		snippet = string([]rune(snippet)[:snippetLimit])
	}
	return GroundingChunk{
		SourceID:   c.ExternalID,
		SourceType: c.SourceType,
		Title:      c.Title,
		Snippet:    snippet,
		Score:      c.Similarity,
		FilePath:   c.FilePath,
	}
}
