// Package workspace implements the virtual workspace: a local in-memory file
// store merged with an optional remote workspace service.
//
// The local store always wins for content. The remote service is a soft
// dependency: every failure talking to it is logged and degrades to
// local-only behavior instead of surfacing to the caller.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"path"

	"github.com/codefionn/runpad/internal/apperr"
	"github.com/codefionn/runpad/internal/logger"
	"github.com/codefionn/runpad/internal/metrics"
	"github.com/pmezard/go-difflib/difflib"
)

// Workspace merges a Store with an optional Remote.
type Workspace struct {
	store  *Store
	remote Remote
	log    *logger.Logger
}

// New creates a workspace over store. remote may be nil for local-only use.
func New(store *Store, remote Remote) *Workspace {
	if store == nil {
		store = NewStore()
	}
	return &Workspace{
		store:  store,
		remote: remote,
		log:    logger.Global().WithPrefix("workspace"),
	}
}

// Store returns the underlying local store.
func (w *Workspace) Store() *Store {
	return w.store
}

// HasRemote reports whether a workspace service is configured.
func (w *Workspace) HasRemote() bool {
	return w.remote != nil
}

type healthChecker interface {
	Ping(ctx context.Context) error
	IsOnline() bool
}

// Online reports whether the workspace service answered its last request.
// It is false without a remote.
func (w *Workspace) Online() bool {
	if w.remote == nil {
		return false
	}
	if hc, ok := w.remote.(healthChecker); ok {
		return hc.IsOnline()
	}
	return true
}

// Ping checks that the workspace service is reachable.
func (w *Workspace) Ping(ctx context.Context) error {
	if w.remote == nil {
		return apperr.New(apperr.KindUnavailable, "no workspace service configured")
	}
	if hc, ok := w.remote.(healthChecker); ok {
		return hc.Ping(ctx)
	}
	return nil
}

// Subscribe registers fn for local store changes.
func (w *Workspace) Subscribe(fn func(Change)) (unsubscribe func()) {
	return w.store.Subscribe(fn)
}

// List returns the merged tree. The remote tree is fetched on every call;
// when it is unavailable the result contains local entries only.
//
// Local entries are overlaid as flat file nodes directly under the root,
// named by their full path. A local entry whose path is already a remote
// file is not listed twice: the remote node is flagged Local instead. A local
// entry whose path collides with a remote folder is left out of the listing
// (it stays openable).
func (w *Workspace) List(ctx context.Context) *FileNode {
	root := NewRoot()
	if w.remote != nil {
		tree, err := w.remote.Tree(ctx)
		if err != nil {
			w.log.Warn("Failed to fetch remote tree, listing local files only: %v", err)
			metrics.RecordRemoteFailure("tree")
		} else {
			root = tree
			root.Name = RootName
			root.Path = ""
			root.Kind = KindFolder
		}
	}

	remoteNodes := Flatten(root)
	for _, e := range w.store.Snapshot() {
		if node, ok := remoteNodes[e.Path]; ok {
			if node.IsFolder() {
				w.log.Debug("Local file %s shadowed by remote folder in listing", e.Path)
				continue
			}
			node.Local = true
			continue
		}
		root.Children = append(root.Children, &FileNode{
			Name:  e.Path,
			Path:  e.Path,
			Kind:  KindFile,
			Local: true,
		})
	}

	SortChildren(root)
	return root
}

// Open returns the content at p, checking the local store before the remote
// service. It fails with apperr.KindNotFound when neither source has it.
func (w *Workspace) Open(ctx context.Context, p string) (string, error) {
	p = CleanPath(p)
	if content, ok := w.store.Get(p); ok {
		return content, nil
	}

	if w.remote == nil {
		return "", apperr.Errorf(apperr.KindNotFound, "file %q not found", p)
	}

	content, err := w.remote.Open(ctx, p)
	if err != nil {
		if !apperr.IsKind(err, apperr.KindNotFound) {
			w.log.Warn("Remote open of %s failed: %v", p, err)
			metrics.RecordRemoteFailure("open")
		}
		return "", apperr.Errorf(apperr.KindNotFound, "file %q not found", p)
	}
	return content, nil
}

// Create inserts a local-only entry (new file, file opened from disk).
func (w *Workspace) Create(p, content string) error {
	p = CleanPath(p)
	if p == "" {
		return apperr.New(apperr.KindValidation, "path must not be empty")
	}
	w.store.Put(p, content)
	metrics.SetPendingSaves(len(w.store.Pending()))
	return nil
}

// Save applies the edit to the local store immediately and then attempts a
// best-effort remote write. Remote failures are logged, never returned; the
// entry stays pending until a later save or Flush succeeds.
func (w *Workspace) Save(ctx context.Context, p, content string) error {
	p = CleanPath(p)
	if p == "" {
		return apperr.New(apperr.KindValidation, "path must not be empty")
	}

	w.store.Put(p, content)
	if w.remote != nil {
		if err := w.remote.Save(ctx, p, content); err != nil {
			w.log.Warn("Remote save of %s failed, keeping local copy: %v", p, err)
			metrics.RecordRemoteFailure("save")
		} else {
			w.store.MarkSynced(p, content)
		}
	}
	metrics.SetPendingSaves(len(w.store.Pending()))
	return nil
}

// Rename moves a local entry. Remote-only files cannot be renamed.
func (w *Workspace) Rename(oldPath, newPath string) bool {
	oldPath, newPath = CleanPath(oldPath), CleanPath(newPath)
	if newPath == "" {
		return false
	}
	return w.store.Rename(oldPath, newPath)
}

// Delete removes a local entry. The remote copy, if any, is untouched.
func (w *Workspace) Delete(p string) bool {
	return w.store.Delete(CleanPath(p))
}

// AddMany bulk-inserts entries with a single change notification. Entries
// with empty paths are dropped.
func (w *Workspace) AddMany(entries []Entry) {
	cleaned := make([]Entry, 0, len(entries))
	for _, e := range entries {
		p := CleanPath(e.Path)
		if p == "" {
			continue
		}
		cleaned = append(cleaned, Entry{Path: p, Content: e.Content})
	}
	w.store.AddMany(cleaned)
	metrics.SetPendingSaves(len(w.store.Pending()))
}

// Upload adds entries under dest locally and then pushes them to the
// workspace service as a multipart upload. The local insert always happens.
func (w *Workspace) Upload(ctx context.Context, dest string, entries []Entry) {
	batch := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if p := CleanPath(JoinPath(CleanPath(dest), e.Path)); p != "" {
			batch = append(batch, Entry{Path: p, Content: e.Content})
		}
	}
	if len(batch) == 0 {
		return
	}

	w.store.AddMany(batch)
	if w.remote != nil {
		if err := w.remote.Upload(ctx, batch); err != nil {
			w.log.Warn("Upload of %d files failed, keeping local copies: %v", len(batch), err)
			metrics.RecordRemoteFailure("upload")
		} else {
			for _, e := range batch {
				w.store.MarkSynced(e.Path, e.Content)
			}
		}
	}
	metrics.SetPendingSaves(len(w.store.Pending()))
}

// Pending lists local entries not yet acknowledged by the workspace service.
func (w *Workspace) Pending() []string {
	return w.store.Pending()
}

// Flush retries the remote save of every pending entry. Unlike Save it
// reports failures, since it is an explicit user action.
func (w *Workspace) Flush(ctx context.Context) (int, error) {
	if w.remote == nil {
		return 0, apperr.New(apperr.KindUnavailable, "no workspace service configured")
	}

	synced := 0
	var errs []error
	for _, p := range w.store.Pending() {
		content, ok := w.store.Get(p)
		if !ok {
			continue
		}
		if err := w.remote.Save(ctx, p, content); err != nil {
			metrics.RecordRemoteFailure("save")
			errs = append(errs, fmt.Errorf("%s: %w", p, err))
			continue
		}
		w.store.MarkSynced(p, content)
		synced++
	}

	metrics.SetPendingSaves(len(w.store.Pending()))
	return synced, errors.Join(errs...)
}

// Diff returns a unified diff from the remote copy of p to the local one.
// It is empty when p has no local entry or both sides match.
func (w *Workspace) Diff(ctx context.Context, p string) (string, error) {
	p = CleanPath(p)
	local, ok := w.store.Get(p)
	if !ok {
		return "", nil
	}
	if w.remote == nil {
		return "", apperr.New(apperr.KindUnavailable, "no workspace service configured")
	}

	remote, err := w.remote.Open(ctx, p)
	if err != nil && !apperr.IsKind(err, apperr.KindNotFound) {
		return "", err
	}
	if remote == local {
		return "", nil
	}

	return difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(remote),
		B:        difflib.SplitLines(local),
		FromFile: path.Join("remote", p),
		ToFile:   path.Join("local", p),
		Context:  3,
	})
}
