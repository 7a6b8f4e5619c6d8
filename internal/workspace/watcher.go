package workspace

import (
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/codefionn/runpad/internal/logger"
	"github.com/fsnotify/fsnotify"
)

// Watcher keeps the local store in step with a directory on disk that was
// previously imported with ImportDir. Writes and creates re-read the file;
// removes and renames delete the local entry.
type Watcher struct {
	ws      *Workspace
	root    string
	prefix  string
	maxSize int64
	ignore  *ignoreRules
	fsw     *fsnotify.Watcher
	log     *logger.Logger

	stop chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

// Watch starts watching root recursively. Paths are mapped into the store
// with the same options ImportDir uses.
func (w *Workspace) Watch(root string, opts ImportOptions) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	maxSize := opts.MaxFileSize
	if maxSize <= 0 {
		maxSize = DefaultMaxImportSize
	}
	ignore := &ignoreRules{}
	if !opts.NoGitignore {
		if rules, err := loadIgnoreFile(filepath.Join(root, ".gitignore")); err == nil {
			ignore = rules
		}
	}

	wt := &Watcher{
		ws:      w,
		root:    root,
		prefix:  CleanPath(opts.Prefix),
		maxSize: maxSize,
		ignore:  ignore,
		fsw:     fsw,
		log:     logger.Global().WithPrefix("watcher"),
		stop:    make(chan struct{}),
	}

	if err := wt.addTree(root); err != nil {
		fsw.Close()
		return nil, err
	}

	wt.wg.Add(1)
	go wt.loop()
	return wt, nil
}

// Close stops the watcher and waits for the event loop to exit.
func (wt *Watcher) Close() error {
	var err error
	wt.once.Do(func() {
		close(wt.stop)
		err = wt.fsw.Close()
		wt.wg.Wait()
	})
	return err
}

func (wt *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if rel, ok := wt.rel(p); ok && rel != "" {
			if d.Name() == ".git" || wt.ignore.Ignored(rel, true) {
				return fs.SkipDir
			}
		}
		return wt.fsw.Add(p)
	})
}

// rel maps a disk path to its '/'-separated path below root.
func (wt *Watcher) rel(p string) (string, bool) {
	rel, err := filepath.Rel(wt.root, p)
	if err != nil {
		return "", false
	}
	if rel == "." {
		return "", true
	}
	return filepath.ToSlash(rel), true
}

func (wt *Watcher) loop() {
	defer wt.wg.Done()
	for {
		select {
		case <-wt.stop:
			return
		case event, ok := <-wt.fsw.Events:
			if !ok {
				return
			}
			wt.handle(event)
		case err, ok := <-wt.fsw.Errors:
			if !ok {
				return
			}
			wt.log.Error("filesystem watcher error: %v", err)
		}
	}
}

func (wt *Watcher) handle(event fsnotify.Event) {
	rel, ok := wt.rel(event.Name)
	if !ok || rel == "" {
		return
	}
	name := JoinPath(wt.prefix, rel)

	switch {
	case event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename):
		wt.ws.Delete(name)

	case event.Has(fsnotify.Create) || event.Has(fsnotify.Write):
		info, err := os.Stat(event.Name)
		if err != nil {
			return
		}
		if info.IsDir() {
			if event.Has(fsnotify.Create) && !wt.ignore.Ignored(rel, true) {
				if err := wt.addTree(event.Name); err != nil {
					wt.log.Warn("Failed to watch %s: %v", event.Name, err)
				}
			}
			return
		}
		if wt.ignore.Ignored(rel, false) {
			return
		}
		content, ok, err := readTextFile(event.Name, wt.maxSize)
		if err != nil || !ok {
			return
		}
		if current, exists := wt.ws.store.Get(name); exists && current == content {
			return
		}
		wt.log.Debug("Reloading %s from disk", rel)
		wt.ws.store.Put(name, content)
	}
}
