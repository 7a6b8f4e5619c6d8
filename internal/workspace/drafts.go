package workspace

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/codefionn/runpad/internal/logger"
	_ "github.com/mattn/go-sqlite3"
)

// Drafts persists the local store to a SQLite file so unsaved local work
// survives a restart. It mirrors every store change as it happens.
type Drafts struct {
	db  *sql.DB
	log *logger.Logger

	mu     sync.Mutex
	detach func()
}

// OpenDrafts opens (and creates if needed) the drafts database at dbPath.
func OpenDrafts(dbPath string) (*Drafts, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create drafts directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open drafts database: %w", err)
	}
	db.SetMaxOpenConns(1)

	schema := `
	CREATE TABLE IF NOT EXISTS drafts (
		path TEXT PRIMARY KEY,
		content TEXT NOT NULL,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize drafts schema: %w", err)
	}

	return &Drafts{db: db, log: logger.Global().WithPrefix("drafts")}, nil
}

// Load returns every stored draft ordered by path.
func (d *Drafts) Load() ([]Entry, error) {
	rows, err := d.db.Query(`SELECT path, content FROM drafts ORDER BY path`)
	if err != nil {
		return nil, fmt.Errorf("failed to query drafts: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Path, &e.Content); err != nil {
			return nil, fmt.Errorf("failed to scan draft: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Replace overwrites the stored drafts with entries.
func (d *Drafts) Replace(entries []Entry) error {
	tx, err := d.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM drafts`); err != nil {
		return err
	}
	for _, e := range entries {
		if _, err := tx.Exec(`INSERT INTO drafts (path, content) VALUES (?, ?)`, e.Path, e.Content); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Attach restores stored drafts into store (one AddMany) and then mirrors
// every subsequent change into the database.
func (d *Drafts) Attach(store *Store) error {
	entries, err := d.Load()
	if err != nil {
		return err
	}
	store.AddMany(entries)

	unsubscribe := store.Subscribe(func(c Change) {
		if err := d.apply(store, c); err != nil {
			d.log.Error("Failed to persist %s of %v: %v", c.Op, c.Paths, err)
		}
	})

	d.mu.Lock()
	if d.detach != nil {
		d.detach()
	}
	d.detach = unsubscribe
	d.mu.Unlock()
	return nil
}

func (d *Drafts) apply(store *Store, c Change) error {
	tx, err := d.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	upsert := func(p string) error {
		content, ok := store.Get(p)
		if !ok {
			_, err := tx.Exec(`DELETE FROM drafts WHERE path = ?`, p)
			return err
		}
		_, err := tx.Exec(`
			INSERT INTO drafts (path, content, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
			ON CONFLICT(path) DO UPDATE SET content = excluded.content, updated_at = excluded.updated_at`,
			p, content)
		return err
	}

	switch c.Op {
	case OpDelete:
		for _, p := range c.Paths {
			if _, err := tx.Exec(`DELETE FROM drafts WHERE path = ?`, p); err != nil {
				return err
			}
		}
	default:
		// Put, AddMany and Rename ([old, new]) all resolve against the
		// store's current state.
		for _, p := range c.Paths {
			if err := upsert(p); err != nil {
				return err
			}
		}
	}
	return tx.Commit()
}

// Close detaches from the store and closes the database.
func (d *Drafts) Close() error {
	d.mu.Lock()
	if d.detach != nil {
		d.detach()
		d.detach = nil
	}
	d.mu.Unlock()
	return d.db.Close()
}
