// Copyright (c) 2026 Storyforge. All rights reserved.
// Author: dev@fablemint.io

package job

import (
	"context"
	"sort"
	"sync"

	"github.com/fablemint/storyforge/internal/platform/apperr"
)

// MemoryStore is an in-memory [Store] used by tests and local development.
// It honors the same compare-and-set contract as the PostgreSQL store.
type MemoryStore struct {
	mu   sync.Mutex
	jobs map[string]*Job
}

// NewMemoryStore creates an empty in-memory job store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]*Job)}
}

func (store *MemoryStore) Create(ctx context.Context, j *Job) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	clone := *j
	store.jobs[j.ID] = &clone
	return nil
}

func (store *MemoryStore) Get(ctx context.Context, id string) (*Job, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	j, ok := store.jobs[id]
	if !ok {
		return nil, apperr.NotFound("Job")
	}

	clone := *j
	return &clone, nil
}

func (store *MemoryStore) Update(ctx context.Context, j *Job, fromStatus Status) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	current, ok := store.jobs[j.ID]
	if !ok {
		return apperr.NotFound("Job")
	}
	if current.Status != fromStatus {
		return ErrStale
	}

	clone := *j
	store.jobs[j.ID] = &clone
	return nil
}

func (store *MemoryStore) ListByOwner(ctx context.Context, kind OwnerKind, ownerID string) ([]*Job, error) {
	return store.list(func(j *Job) bool {
		return j.OwnerKind == kind && j.OwnerID == ownerID
	}, false), nil
}

func (store *MemoryStore) ListByProject(ctx context.Context, projectID string) ([]*Job, error) {
	return store.list(func(j *Job) bool { return j.ProjectID == projectID }, true), nil
}

func (store *MemoryStore) ListPending(ctx context.Context) ([]*Job, error) {
	return store.list(func(j *Job) bool { return !j.Status.Terminal() }, false), nil
}

func (store *MemoryStore) FindActive(ctx context.Context, kind OwnerKind, ownerID string, jobKind Kind) (*Job, error) {
	matches := store.list(func(j *Job) bool {
		return j.OwnerKind == kind && j.OwnerID == ownerID && j.Kind == jobKind && !j.Status.Terminal()
	}, true)

	if len(matches) == 0 {
		return nil, nil
	}
	return matches[0], nil
}

// list returns cloned matches ordered by CreatedAt (descending when newestFirst).
func (store *MemoryStore) list(match func(*Job) bool, newestFirst bool) []*Job {
	store.mu.Lock()
	defer store.mu.Unlock()

	var out []*Job
	for _, j := range store.jobs {
		if match(j) {
			clone := *j
			out = append(out, &clone)
		}
	}

	sort.Slice(out, func(a, b int) bool {
		if newestFirst {
			return out[a].CreatedAt.After(out[b].CreatedAt)
		}
		return out[a].CreatedAt.Before(out[b].CreatedAt)
	})

	return out
}
