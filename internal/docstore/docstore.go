// Package docstore exposes the narrow document-database surface the rest of
// the system consumes: collections of JSON documents with id lookup,
// filtered queries with cursor pagination, and an atomic multi-write batch.
package docstore

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("not found")

// Document is a raw record returned by Query. Callers unmarshal Data into
// their own types.
type Document struct {
	ID   string
	Data []byte
}

// Filter is an equality constraint on a top-level document field.
type Filter struct {
	Field string
	Value any
}

// Query describes a filtered, ordered, paginated read of a collection.
// StartAfterID names a previously seen document; the store resolves it to
// its order-key value and returns documents strictly after it. Pagination
// is not snapshot-isolated: inserts during iteration may shift results.
type Query struct {
	Filters      []Filter
	OrderBy      string
	Descending   bool
	Limit        int
	StartAfterID string
}

// Writer is the mutating half of the store. The same interface serves
// direct writes and writes queued inside a batch.
type Writer interface {
	Set(ctx context.Context, collection, id string, doc any) error
	Update(ctx context.Context, collection, id string, fields map[string]any) error
	Delete(ctx context.Context, collection, id string) error
}

// Store is the full document-store contract.
type Store interface {
	Writer
	GetByID(ctx context.Context, collection, id string, out any) error
	Query(ctx context.Context, collection string, q Query) ([]Document, error)
	// RunBatch applies every write issued through the callback's Writer
	// atomically: either all of them become visible or none do.
	RunBatch(ctx context.Context, fn func(Writer) error) error
}
