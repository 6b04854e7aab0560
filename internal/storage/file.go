package storage

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	logx "nightbot/pkg/logx"
)

// fileStore is a dependency-free persistent backend.
//
// Files:
//   - <prefix>.snapshot.json  (all documents at the last compaction)
//   - <prefix>.journal.jsonl  (append-only mutations since then)
//
// The journal is compacted into the snapshot every CompactEvery writes and on Close.
type fileStore struct {
	*memStore

	log logx.Logger

	snapshotPath string
	journalPath  string
	journal      *os.File
	writes       int
	compactEvery int
}

const (
	opPut    = "put"
	opDelete = "del"
)

type journalOp struct {
	Op        string          `json:"op"`
	Path      string          `json:"path"`
	Body      json.RawMessage `json:"body,omitempty"`
	CreatedAt time.Time       `json:"created_at,omitzero"`
	UpdatedAt time.Time       `json:"updated_at,omitzero"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	dir := filepath.Dir(path)
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	prefix := filepath.Join(dir, base)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	fs := &fileStore{
		memStore:     newMemStore(),
		log:          log,
		snapshotPath: prefix + ".snapshot.json",
		journalPath:  prefix + ".journal.jsonl",
		compactEvery: cfg.CompactEvery,
	}
	if fs.compactEvery <= 0 {
		fs.compactEvery = 500
	}

	if err := fs.loadSnapshot(); err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	replayed, err := fs.replayJournal()
	if err != nil {
		return nil, fmt.Errorf("replay journal: %w", err)
	}

	jf, err := os.OpenFile(fs.journalPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	fs.journal = jf
	fs.memStore.onWrite = fs.appendJournal

	log.Info("file store opened",
		logx.String("path", path),
		logx.Int("documents", len(fs.docs)),
		logx.Int("journal_replayed", replayed),
	)
	return fs, nil
}

func (s *fileStore) loadSnapshot() error {
	b, err := os.ReadFile(s.snapshotPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	var ops []journalOp
	if err := json.Unmarshal(b, &ops); err != nil {
		return err
	}
	for _, op := range ops {
		s.apply(op)
	}
	return nil
}

func (s *fileStore) replayJournal() (int, error) {
	f, err := os.Open(s.journalPath)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	defer f.Close()

	n := 0
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var op journalOp
		if err := json.Unmarshal(line, &op); err != nil {
			// A torn final line after a crash is expected; skip it.
			s.log.Warn("skipping corrupt journal line", logx.Err(err))
			continue
		}
		s.apply(op)
		n++
	}
	return n, sc.Err()
}

func (s *fileStore) apply(op journalOp) {
	k, err := parseDocPath(op.Path)
	if err != nil {
		return
	}
	switch op.Op {
	case opPut:
		s.docs[k.path] = &memDoc{key: k, body: []byte(op.Body), createdAt: op.CreatedAt, updatedAt: op.UpdatedAt}
	case opDelete:
		delete(s.docs, k.path)
	}
}

// appendJournal runs with memStore.mu held.
func (s *fileStore) appendJournal(op journalOp) error {
	if s.journal == nil {
		return ErrClosed
	}
	b, err := json.Marshal(op)
	if err != nil {
		return err
	}
	if _, err := s.journal.Write(append(b, '\n')); err != nil {
		return err
	}
	s.writes++
	if s.writes >= s.compactEvery {
		// The mutation is applied to the map after this returns, so fold it in now.
		if err := s.compactLocked(&op); err != nil {
			s.log.Warn("journal compaction failed", logx.Err(err))
		}
	}
	return nil
}

// compactLocked writes the snapshot and truncates the journal. pending is a
// mutation that is journaled but not yet applied to the map.
func (s *fileStore) compactLocked(pending *journalOp) error {
	docs := make(map[string]journalOp, len(s.docs)+1)
	for p, d := range s.docs {
		docs[p] = journalOp{Op: opPut, Path: p, Body: d.body, CreatedAt: d.createdAt, UpdatedAt: d.updatedAt}
	}
	if pending != nil {
		switch pending.Op {
		case opPut:
			docs[pending.Path] = *pending
		case opDelete:
			delete(docs, pending.Path)
		}
	}
	ops := make([]journalOp, 0, len(docs))
	for _, op := range docs {
		ops = append(ops, op)
	}
	b, err := json.Marshal(ops)
	if err != nil {
		return err
	}
	tmp := s.snapshotPath + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.snapshotPath); err != nil {
		return err
	}
	if err := s.journal.Truncate(0); err != nil {
		return err
	}
	s.writes = 0
	return nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.journal == nil {
		return nil
	}
	err := s.compactLocked(nil)
	if cerr := s.journal.Close(); err == nil {
		err = cerr
	}
	s.journal = nil
	return err
}
