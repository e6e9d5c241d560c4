package service

import "errors"

var (
	ErrDocumentNotFound       = errors.New("document not found")
	ErrVectorStoreUnavailable = errors.New("vector store unavailable")
	ErrLLMInvalidOutput       = errors.New("llm returned unusable output")
	ErrEmptyQuery             = errors.New("query is empty")
)
