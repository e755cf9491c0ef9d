package store

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore is an in-process DocumentStore
type MemoryStore struct {
	mu   sync.Mutex
	docs map[string]Document
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string]Document)}
}

// Load returns a copy of the stored document
func (m *MemoryStore) Load(_ context.Context, name string) (Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, ok := m.docs[name]
	if !ok {
		return Document{Name: name}, nil
	}
	body := make([]byte, len(doc.Body))
	copy(body, doc.Body)
	return Document{Name: name, Body: body, Version: doc.Version}, nil
}

// Save stores body when the current version equals expected
func (m *MemoryStore) Save(_ context.Context, name string, body []byte, expected Version) (Version, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.docs[name].Version != expected {
		return "", fmt.Errorf("%s: %w", name, ErrStaleWrite)
	}

	stored := make([]byte, len(body))
	copy(stored, body)
	next := VersionOf(stored)
	m.docs[name] = Document{Name: name, Body: stored, Version: next}
	return next, nil
}
