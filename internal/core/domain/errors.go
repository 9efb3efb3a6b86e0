package domain

import (
	"errors"
	"fmt"
)

var (
	ErrDocumentNotFound = errors.New("document not found")
	ErrInvalidInput     = errors.New("invalid input")
	ErrTemporary        = errors.New("temporary failure")

	// ErrCorpusEmpty is reported by the keyword ranker when the chunk store holds nothing.
	ErrCorpusEmpty = errors.New("corpus empty")
	// ErrRetrievalDegraded marks a ranking source that was skipped for a query.
	ErrRetrievalDegraded = errors.New("retrieval degraded")
	// ErrGeneration means the generation backend exhausted its retry budget.
	ErrGeneration = errors.New("generation failure")
	// ErrMalformedOutput marks structured generator output that could not be parsed.
	ErrMalformedOutput = errors.New("malformed structured output")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
