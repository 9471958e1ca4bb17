package invite

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepo keeps invites in process. The single mutex makes ConsumeUse
// trivially atomic.
type MemoryRepo struct {
	mu     sync.RWMutex
	byID   map[string]*Invite
	byCode map[string]string // code -> id
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{byID: make(map[string]*Invite), byCode: make(map[string]string)}
}

func (r *MemoryRepo) Create(ctx context.Context, inv *Invite) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if inv.ID == "" {
		inv.ID = uuid.NewString()
	}
	inv.CreatedAt = time.Now().UTC()
	cp := *inv
	r.byID[inv.ID] = &cp
	r.byCode[inv.Code] = inv.ID
	return nil
}

func (r *MemoryRepo) Get(ctx context.Context, id string) (*Invite, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	inv, ok := r.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *inv
	return &cp, nil
}

func (r *MemoryRepo) GetByCode(ctx context.Context, code string) (*Invite, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byCode[code]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r.byID[id]
	return &cp, nil
}

func (r *MemoryRepo) ListByDocument(ctx context.Context, documentID string) ([]*Invite, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []*Invite{}
	for _, inv := range r.byID {
		if inv.DocumentID == documentID {
			cp := *inv
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *MemoryRepo) Deactivate(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.byID[id]
	if !ok {
		return ErrNotFound
	}
	inv.Active = false
	return nil
}

func (r *MemoryRepo) ConsumeUse(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.byID[id]
	if !ok {
		return ErrNotFound
	}
	if !inv.Active {
		return ErrNotFound
	}
	if inv.Exhausted() {
		return ErrExhausted
	}
	inv.Uses++
	return nil
}
