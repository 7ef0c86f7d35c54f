// Package docstore defines the document-store boundary the scoring engine
// works against: collections of documents keyed by id, nested collections
// addressed by path ("users/ID/monthly_savings"), and transactions.
package docstore

import (
	"context"
	"errors"
	"path"
)

// ErrNotFound is returned by Get and Update for a missing document.
var ErrNotFound = errors.New("document not found")

type (
	// Document is a stored record. Fields hold JSON-compatible values.
	Document struct {
		ID     string
		Fields Fields
	}

	// Filter selects documents whose Field equals Value.
	Filter struct {
		Field string
		Value any
	}

	// Ops are the document operations available both on a Store and inside
	// a transaction.
	Ops interface {
		Get(ctx context.Context, collection, id string) (Document, error)
		Set(ctx context.Context, collection, id string, fields Fields) error
		Update(ctx context.Context, collection, id string, partial Fields) error
		Query(ctx context.Context, collection string, filters ...Filter) ([]Document, error)
	}

	// Store is a document store with atomic multi-document transactions.
	Store interface {
		Ops
		// RunTransaction runs fn with exclusive access to the store. Writes
		// made through tx become visible together when fn returns nil and
		// are discarded when it returns an error.
		RunTransaction(ctx context.Context, fn func(tx Ops) error) error
		Close() error
	}
)

// Where builds an equality filter.
func Where(field string, value any) Filter {
	return Filter{Field: field, Value: value}
}

// Sub returns the path of a nested collection under a parent document.
func Sub(collection, id, sub string) string {
	return path.Join(collection, id, sub)
}

// Exists reports whether err is nil, treating ErrNotFound as absence.
func Exists(err error) (bool, error) {
	if err == nil {
		return true, nil
	}
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return false, err
}
