package workspace

import (
	"sort"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// Entry is one local file: a path and its full text content.
type Entry struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// Op identifies the mutation that produced a Change.
type Op int

const (
	OpPut Op = iota
	OpRename
	OpDelete
	OpAddMany
)

func (o Op) String() string {
	switch o {
	case OpPut:
		return "put"
	case OpRename:
		return "rename"
	case OpDelete:
		return "delete"
	case OpAddMany:
		return "add_many"
	default:
		return "unknown"
	}
}

// Change describes a fully applied store mutation.
type Change struct {
	Op    Op
	Paths []string // affected paths; for OpRename: [old, new]
}

type record struct {
	content string
	digest  uint64
	// synced is the digest of the content last acknowledged by the
	// workspace service; zero with hasSynced=false means never synced.
	synced    uint64
	hasSynced bool
}

func (r *record) pending() bool {
	return !r.hasSynced || r.synced != r.digest
}

// Store is the local, in-memory file store. Every mutating call notifies all
// subscribers exactly once after the mutation is fully applied; calls that
// change nothing do not notify.
//
// Writers are serialized by writeMu, which is held through notification so
// subscribers observe changes in mutation order. Subscribers may read the
// store but must not mutate it synchronously.
type Store struct {
	writeMu sync.Mutex

	mu      sync.RWMutex
	entries map[string]*record

	subMu   sync.Mutex
	subs    map[int]func(Change)
	nextSub int
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		entries: make(map[string]*record),
		subs:    make(map[int]func(Change)),
	}
}

// Subscribe registers fn for change notifications and returns a function
// that removes it.
func (s *Store) Subscribe(fn func(Change)) (unsubscribe func()) {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subs, id)
			s.subMu.Unlock()
		})
	}
}

func (s *Store) notify(c Change) {
	s.subMu.Lock()
	ids := make([]int, 0, len(s.subs))
	for id := range s.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(Change), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, s.subs[id])
	}
	s.subMu.Unlock()

	for _, fn := range fns {
		fn(c)
	}
}

// Get returns the content stored at path.
func (s *Store) Get(path string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.entries[path]
	if !ok {
		return "", false
	}
	return r.content, true
}

// Has reports whether path exists locally.
func (s *Store) Has(path string) bool {
	_, ok := s.Get(path)
	return ok
}

// Put inserts or replaces the content at path.
func (s *Store) Put(path, content string) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	s.putLocked(path, content)
	s.mu.Unlock()

	s.notify(Change{Op: OpPut, Paths: []string{path}})
}

func (s *Store) putLocked(path, content string) {
	digest := xxhash.Sum64String(content)
	if r, ok := s.entries[path]; ok {
		r.content = content
		r.digest = digest
		return
	}
	s.entries[path] = &record{content: content, digest: digest}
}

// Rename moves oldPath to newPath as one atomic delete+insert. It returns
// false, without notifying, when oldPath is not present. An existing entry at
// newPath is replaced.
func (s *Store) Rename(oldPath, newPath string) bool {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	r, ok := s.entries[oldPath]
	if !ok {
		s.mu.Unlock()
		return false
	}
	if oldPath == newPath {
		s.mu.Unlock()
		return true
	}
	delete(s.entries, oldPath)
	// The service has never seen newPath.
	s.entries[newPath] = &record{content: r.content, digest: r.digest}
	s.mu.Unlock()

	s.notify(Change{Op: OpRename, Paths: []string{oldPath, newPath}})
	return true
}

// Delete removes path. It returns false, without notifying, when path is not
// present.
func (s *Store) Delete(path string) bool {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	if _, ok := s.entries[path]; !ok {
		s.mu.Unlock()
		return false
	}
	delete(s.entries, path)
	s.mu.Unlock()

	s.notify(Change{Op: OpDelete, Paths: []string{path}})
	return true
}

// AddMany inserts all entries and notifies once. Later duplicates of a path
// win. An empty batch is a no-op.
func (s *Store) AddMany(entries []Entry) {
	if len(entries) == 0 {
		return
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	paths := make([]string, 0, len(entries))
	s.mu.Lock()
	for _, e := range entries {
		s.putLocked(e.Path, e.Content)
		paths = append(paths, e.Path)
	}
	s.mu.Unlock()

	s.notify(Change{Op: OpAddMany, Paths: paths})
}

// MarkSynced records that content was acknowledged by the workspace service
// for path. It is ignored when the local content changed in the meantime.
// Sync bookkeeping is not a content mutation and does not notify.
func (s *Store) MarkSynced(path, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.entries[path]
	if !ok {
		return
	}
	digest := xxhash.Sum64String(content)
	if digest != r.digest {
		return
	}
	r.synced = digest
	r.hasSynced = true
}

// Pending returns, sorted, the paths whose current content has not been
// acknowledged by the workspace service.
func (s *Store) Pending() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var paths []string
	for p, r := range s.entries {
		if r.pending() {
			paths = append(paths, p)
		}
	}
	sort.Strings(paths)
	return paths
}

// Snapshot returns a copy of every entry sorted by path.
func (s *Store) Snapshot() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Entry, 0, len(s.entries))
	for p, r := range s.entries {
		out = append(out, Entry{Path: p, Content: r.content})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// Len returns the number of entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
