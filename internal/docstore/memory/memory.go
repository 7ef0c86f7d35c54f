// Package memory is an in-process docstore used for development and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"cariya/internal/docstore"
)

type Store struct {
	mu   sync.Mutex
	data map[string]map[string]docstore.Fields
}

var _ docstore.Store = (*Store)(nil)

func New() *Store {
	return &Store{data: map[string]map[string]docstore.Fields{}}
}

func (s *Store) Get(_ context.Context, collection, id string) (docstore.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return getFrom(s.data, nil, collection, id)
}

func (s *Store) Set(_ context.Context, collection, id string, fields docstore.Fields) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	put(s.data, collection, id, fields.Clone())
	return nil
}

func (s *Store) Update(_ context.Context, collection, id string, partial docstore.Fields) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := getFrom(s.data, nil, collection, id)
	if err != nil {
		return err
	}
	put(s.data, collection, id, doc.Fields.Merge(partial))
	return nil
}

func (s *Store) Query(_ context.Context, collection string, filters ...docstore.Filter) ([]docstore.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return queryFrom(s.data, nil, collection, filters), nil
}

// RunTransaction holds the store lock for the whole of fn, so transactions
// are serialized. Writes are staged and applied only when fn succeeds.
// fn must use tx; calling the Store itself from inside fn deadlocks.
func (s *Store) RunTransaction(ctx context.Context, fn func(tx docstore.Ops) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	t := &tx{base: s.data, staged: map[string]map[string]docstore.Fields{}}
	if err := fn(t); err != nil {
		return err
	}
	for collection, docs := range t.staged {
		for id, fields := range docs {
			put(s.data, collection, id, fields)
		}
	}
	return nil
}

func (s *Store) Close() error {
	return nil
}

// Len returns the number of documents in a collection.
func (s *Store) Len(collection string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data[collection])
}

type tx struct {
	base   map[string]map[string]docstore.Fields
	staged map[string]map[string]docstore.Fields
}

func (t *tx) Get(_ context.Context, collection, id string) (docstore.Document, error) {
	return getFrom(t.base, t.staged, collection, id)
}

func (t *tx) Set(_ context.Context, collection, id string, fields docstore.Fields) error {
	put(t.staged, collection, id, fields.Clone())
	return nil
}

func (t *tx) Update(_ context.Context, collection, id string, partial docstore.Fields) error {
	doc, err := getFrom(t.base, t.staged, collection, id)
	if err != nil {
		return err
	}
	put(t.staged, collection, id, doc.Fields.Merge(partial))
	return nil
}

func (t *tx) Query(_ context.Context, collection string, filters ...docstore.Filter) ([]docstore.Document, error) {
	return queryFrom(t.base, t.staged, collection, filters), nil
}

func put(data map[string]map[string]docstore.Fields, collection, id string, fields docstore.Fields) {
	docs, ok := data[collection]
	if !ok {
		docs = map[string]docstore.Fields{}
		data[collection] = docs
	}
	if fields == nil {
		fields = docstore.Fields{}
	}
	docs[id] = fields
}

func getFrom(base, staged map[string]map[string]docstore.Fields, collection, id string) (docstore.Document, error) {
	if fields, ok := staged[collection][id]; ok {
		return docstore.Document{ID: id, Fields: fields.Clone()}, nil
	}
	if fields, ok := base[collection][id]; ok {
		return docstore.Document{ID: id, Fields: fields.Clone()}, nil
	}
	return docstore.Document{}, fmt.Errorf("%s/%s: %w", collection, id, docstore.ErrNotFound)
}

func queryFrom(base, staged map[string]map[string]docstore.Fields, collection string, filters []docstore.Filter) []docstore.Document {
	ids := map[string]struct{}{}
	for id := range base[collection] {
		ids[id] = struct{}{}
	}
	for id := range staged[collection] {
		ids[id] = struct{}{}
	}
	sorted := make([]string, 0, len(ids))
	for id := range ids {
		sorted = append(sorted, id)
	}
	sort.Strings(sorted)

	var out []docstore.Document
	for _, id := range sorted {
		doc, err := getFrom(base, staged, collection, id)
		if err != nil {
			continue
		}
		if matches(doc.Fields, filters) {
			out = append(out, doc)
		}
	}
	return out
}

func matches(fields docstore.Fields, filters []docstore.Filter) bool {
	for _, f := range filters {
		if !fields.Equal(f.Field, f.Value) {
			return false
		}
	}
	return true
}
