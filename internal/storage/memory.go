package storage

import (
	"context"
	"iter"
	"sort"
	"sync"
	"time"
)

type memDoc struct {
	key       docKey
	body      []byte
	createdAt time.Time
	updatedAt time.Time
}

// memStore keeps documents in a map. The file driver wraps it with a journal.
type memStore struct {
	mu     sync.RWMutex
	docs   map[string]*memDoc
	closed bool
	now    func() time.Time

	// onWrite persists a mutation; called with mu held. nil for the memory driver.
	onWrite func(op journalOp) error
}

// NewMemory returns an in-memory Store. Nothing is persisted.
func NewMemory() Store {
	return newMemStore()
}

func newMemStore() *memStore {
	return &memStore{docs: map[string]*memDoc{}, now: time.Now}
}

func (s *memStore) Get(ctx context.Context, path string) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}
	k, err := parseDocPath(path)
	if err != nil {
		return Snapshot{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return Snapshot{}, ErrClosed
	}
	d, ok := s.docs[k.path]
	if !ok {
		return Snapshot{}, ErrNotFound
	}
	snap := d.snapshot()
	if snap.Err != nil {
		return Snapshot{}, snap.Err
	}
	return snap, nil
}

func (s *memStore) Set(ctx context.Context, path string, data Doc, opts ...SetOption) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	k, err := parseDocPath(path)
	if err != nil {
		return err
	}
	var o setOptions
	for _, opt := range opts {
		opt(&o)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return s.putLocked(k, data, o.merge)
}

func (s *memStore) putLocked(k docKey, data Doc, merge bool) error {
	now := s.now()
	var prev Doc
	old, exists := s.docs[k.path]
	if exists && merge {
		d, err := decodeDoc(old.body)
		if err != nil {
			return err
		}
		prev = d
	}
	body, err := encodeDoc(resolve(prev, data, merge, now))
	if err != nil {
		return err
	}
	created := now
	if exists {
		created = old.createdAt
	}
	if s.onWrite != nil {
		if err := s.onWrite(journalOp{Op: opPut, Path: k.path, Body: body, CreatedAt: created, UpdatedAt: now}); err != nil {
			return err
		}
	}
	s.docs[k.path] = &memDoc{key: k, body: body, createdAt: created, updatedAt: now}
	return nil
}

func (s *memStore) Add(ctx context.Context, collection string, data Doc) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	c, err := parseCollectionPath(collection)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", ErrClosed
	}
	for {
		id := newID()
		k, err := parseDocPath(c + "/" + id)
		if err != nil {
			return "", err
		}
		if _, taken := s.docs[k.path]; taken {
			continue
		}
		if err := s.putLocked(k, data, false); err != nil {
			return "", err
		}
		return id, nil
	}
}

func (s *memStore) Delete(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	k, err := parseDocPath(path)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if _, ok := s.docs[k.path]; !ok {
		return nil
	}
	if s.onWrite != nil {
		if err := s.onWrite(journalOp{Op: opDelete, Path: k.path}); err != nil {
			return err
		}
	}
	delete(s.docs, k.path)
	return nil
}

func (s *memStore) List(ctx context.Context, collection string) ([]Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c, err := parseCollectionPath(collection)
	if err != nil {
		return nil, err
	}
	return s.collect(func(k docKey) bool { return k.collection == c })
}

func (s *memStore) CollectionGroup(ctx context.Context, group string) iter.Seq2[Snapshot, error] {
	return func(yield func(Snapshot, error) bool) {
		if err := ctx.Err(); err != nil {
			yield(Snapshot{}, err)
			return
		}
		// Materialize under the read lock so the caller may write while iterating.
		out, err := s.collect(func(k docKey) bool { return k.group == group })
		if err != nil {
			yield(Snapshot{}, err)
			return
		}
		for _, snap := range out {
			if err := ctx.Err(); err != nil {
				yield(Snapshot{}, err)
				return
			}
			if !yield(snap, nil) {
				return
			}
		}
	}
}

func (s *memStore) collect(match func(docKey) bool) ([]Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	out := make([]Snapshot, 0)
	for _, d := range s.docs {
		if !match(d.key) {
			continue
		}
		out = append(out, d.snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func (s *memStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (d *memDoc) snapshot() Snapshot {
	data, err := decodeBody(d.key.path, d.body)
	return Snapshot{
		Path:       d.key.path,
		ID:         d.key.id,
		Collection: d.key.collection,
		Data:       data,
		CreatedAt:  d.createdAt,
		UpdatedAt:  d.updatedAt,
		Err:        err,
	}
}
