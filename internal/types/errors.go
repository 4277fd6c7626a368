package types

import "errors"

var (
	ErrMissingCredential = errors.New("missing API credential")
	ErrLoad              = errors.New("failed to load document")
	ErrEmbedding         = errors.New("embedding failed")
	ErrGeneration        = errors.New("answer generation failed")
	ErrEmptyIndex        = errors.New("vector index has not been built")

	ErrNoDocument    = errors.New("no document has been processed")
	ErrEmptyQuestion = errors.New("question is empty")
	ErrBusy          = errors.New("another operation is in progress")
	ErrNotPDF        = errors.New("only PDF files are accepted")
)
