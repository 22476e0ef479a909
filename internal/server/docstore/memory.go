package docstore

import (
	"context"
	"strings"
	"sync"
)

type memDoc struct {
	data     Data
	revision int64
}

// MemoryStore keeps documents in process memory. Transactions are
// optimistic: each records the revision of every path it read and commits
// only if all of them are unchanged.
type MemoryStore struct {
	mu    sync.Mutex
	docs  map[string]memDoc
	seq   int64
	retry RetryPolicy
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: map[string]memDoc{}, retry: DefaultRetryPolicy}
}

// WithRetryPolicy replaces the conflict retry policy.
func (s *MemoryStore) WithRetryPolicy(p RetryPolicy) *MemoryStore {
	s.retry = p
	return s
}

func (s *MemoryStore) read(path string) (*Doc, int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.docs[path]
	if !ok {
		return nil, 0
	}
	return &Doc{Path: path, Data: clone(d.data), Revision: d.revision}, d.revision
}

func (s *MemoryStore) Get(ctx context.Context, path string) (*Doc, error) {
	if err := ValidatePath(path); err != nil {
		return nil, err
	}
	d, _ := s.read(path)
	return d, nil
}

func (s *MemoryStore) Create(ctx context.Context, path string, data Data) error {
	if err := ValidatePath(path); err != nil {
		return err
	}
	norm, err := Normalize(data)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[path]; ok {
		return ErrAlreadyExists
	}
	s.seq++
	s.docs[path] = memDoc{data: norm, revision: s.seq}
	return nil
}

func (s *MemoryStore) Query(ctx context.Context, q Query) ([]*Doc, error) {
	q, err := q.validate()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	var out []*Doc
	for path, d := range s.docs {
		if Collection(path) != q.Collection {
			continue
		}
		if q.StartAfterID != "" && ID(path) <= q.StartAfterID {
			continue
		}
		ok := true
		for _, f := range q.Filters {
			if !f.matches(d.data) {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, &Doc{Path: path, Data: clone(d.data), Revision: d.revision})
		}
	}
	s.mu.Unlock()

	sortDocs(out, q.OrderBy)
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (s *MemoryStore) RunTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return runWithRetry(ctx, s.retry, func(ctx context.Context) error {
		tx := &memTx{store: s, reads: map[string]int64{}, base: map[string]*Doc{}}
		if err := fn(ctx, tx); err != nil {
			return err
		}
		return s.commit(tx)
	})
}

func (s *MemoryStore) commit(tx *memTx) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for path, rev := range tx.reads {
		if s.docs[path].revision != rev {
			return ErrConflict
		}
	}

	for _, w := range tx.writes {
		cur, exists := s.docs[w.path]
		switch w.kind {
		case writeDelete:
			delete(s.docs, w.path)
			continue
		case writeMerge:
			if exists {
				w.data = mergeData(cur.data, w.data)
			}
		}
		s.seq++
		s.docs[w.path] = memDoc{data: clone(w.data), revision: s.seq}
	}
	return nil
}

// Len reports how many documents are stored under prefix.
func (s *MemoryStore) Len(prefix string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for path := range s.docs {
		if strings.HasPrefix(path, prefix) {
			n++
		}
	}
	return n
}

func (s *MemoryStore) Close() error { return nil }

type writeKind int

const (
	writeSet writeKind = iota
	writeMerge
	writeDelete
)

type memWrite struct {
	kind writeKind
	path string
	data Data
}

type memTx struct {
	store  *MemoryStore
	reads  map[string]int64
	base   map[string]*Doc
	writes []memWrite
}

func (t *memTx) Get(ctx context.Context, path string) (*Doc, error) {
	if err := ValidatePath(path); err != nil {
		return nil, err
	}

	doc, seen := t.base[path]
	if !seen {
		var rev int64
		doc, rev = t.store.read(path)
		t.base[path] = doc
		t.reads[path] = rev
	}

	var view *Doc
	if doc != nil {
		view = &Doc{Path: path, Data: clone(doc.Data), Revision: doc.Revision}
	}
	for _, w := range t.writes {
		if w.path != path {
			continue
		}
		switch w.kind {
		case writeDelete:
			view = nil
		case writeSet:
			view = &Doc{Path: path, Data: clone(w.data)}
		case writeMerge:
			if view == nil {
				view = &Doc{Path: path, Data: Data{}}
			}
			view.Data = mergeData(view.Data, w.data)
		}
	}
	return view, nil
}

func (t *memTx) Set(ctx context.Context, path string, data Data) error {
	return t.write(writeSet, path, data)
}

func (t *memTx) Merge(ctx context.Context, path string, data Data) error {
	return t.write(writeMerge, path, data)
}

func (t *memTx) Delete(ctx context.Context, path string) error {
	return t.write(writeDelete, path, nil)
}

func (t *memTx) write(kind writeKind, path string, data Data) error {
	if err := ValidatePath(path); err != nil {
		return err
	}
	norm, err := Normalize(data)
	if err != nil {
		return err
	}
	t.writes = append(t.writes, memWrite{kind: kind, path: path, data: norm})
	return nil
}

func mergeData(dst, src Data) Data {
	out := clone(dst)
	if out == nil {
		out = Data{}
	}
	for k, v := range src {
		out[k] = cloneValue(v)
	}
	return out
}
