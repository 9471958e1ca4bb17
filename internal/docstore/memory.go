package docstore

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is a simple in-memory store used for unit tests and single-node
// development runs.
type MemoryStore struct {
	mu     sync.RWMutex
	docs   map[string]*Document
	grants map[string]map[string]*Grant // documentID -> userID -> grant
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs:   make(map[string]*Document),
		grants: make(map[string]map[string]*Grant),
	}
}

func (m *MemoryStore) Create(ctx context.Context, doc *Document) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if doc.ID == "" {
		doc.ID = "doc_" + uuid.NewString()
	}
	now := time.Now().UTC()
	doc.CreatedAt = now
	doc.UpdatedAt = now
	if doc.Version == 0 {
		doc.Version = 1
	}
	cp := *doc
	m.docs[doc.ID] = &cp
	return doc.ID, nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.docs[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (m *MemoryStore) Put(ctx context.Context, id, body string, expectedVersion int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[id]
	if !ok {
		return 0, ErrNotFound
	}
	if expectedVersion >= 0 && d.Version != expectedVersion {
		return 0, ErrVersionConflict
	}
	d.Body = body
	d.Version++
	d.UpdatedAt = time.Now().UTC()
	return d.Version, nil
}

func (m *MemoryStore) ListGrants(ctx context.Context, documentID string) ([]Grant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	byUser := m.grants[documentID]
	out := make([]Grant, 0, len(byUser))
	for _, g := range byUser {
		out = append(out, *g)
	}
	return out, nil
}

func (m *MemoryStore) GetGrant(ctx context.Context, documentID, userID string) (*Grant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if g, ok := m.grants[documentID][userID]; ok {
		cp := *g
		return &cp, nil
	}
	return nil, nil
}

func (m *MemoryStore) UpsertGrant(ctx context.Context, g Grant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	byUser, ok := m.grants[g.DocumentID]
	if !ok {
		byUser = make(map[string]*Grant)
		m.grants[g.DocumentID] = byUser
	}
	now := time.Now().UTC()
	if prev, ok := byUser[g.UserID]; ok {
		g.CreatedAt = prev.CreatedAt
	} else {
		g.CreatedAt = now
	}
	g.UpdatedAt = now
	cp := g
	byUser[g.UserID] = &cp
	return nil
}

func (m *MemoryStore) DeleteGrant(ctx context.Context, documentID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.grants[documentID], userID)
	return nil
}
