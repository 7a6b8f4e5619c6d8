// Package workspaced serves a directory on disk as a workspace service:
// GET /files, POST /files/open, POST /files/save, POST /files/upload and a
// GET / health check.
package workspaced

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/codefionn/runpad/internal/logger"
	"github.com/codefionn/runpad/internal/metrics"
	"github.com/codefionn/runpad/internal/workspace"
	"github.com/julienschmidt/httprouter"
)

const maxUploadMemory = 32 << 20

// Server exposes one directory over the workspace service contract.
type Server struct {
	root   string
	router *httprouter.Router
	server *http.Server
	log    *logger.Logger
}

// New creates a server for root. The directory is created when missing.
func New(root string) (*Server, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, err
	}

	s := &Server{
		root:   abs,
		router: httprouter.New(),
		log:    logger.Global().WithPrefix("workspaced"),
	}
	s.setupRoutes()
	return s, nil
}

// Handler returns the HTTP handler, for use with httptest or a custom server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Root returns the absolute served directory.
func (s *Server) Root() string {
	return s.root
}

// Start listens on addr and blocks until the server stops.
func (s *Server) Start(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          logger.StdLogger(s.log, slog.LevelWarn),
	}

	s.log.Info("Serving %s on %s", s.root, addr)
	err := s.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop gracefully shuts the server down.
func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return s.server.Shutdown(ctx)
}

func (s *Server) setupRoutes() {
	s.router.Handler(http.MethodGet, "/", metrics.Middleware("/", http.HandlerFunc(s.handleHealth)))
	s.router.Handler(http.MethodGet, "/files", metrics.Middleware("/files", http.HandlerFunc(s.handleTree)))
	s.router.Handler(http.MethodPost, "/files/open", metrics.Middleware("/files/open", http.HandlerFunc(s.handleOpen)))
	s.router.Handler(http.MethodPost, "/files/save", metrics.Middleware("/files/save", http.HandlerFunc(s.handleSave)))
	s.router.Handler(http.MethodPost, "/files/upload", metrics.Middleware("/files/upload", http.HandlerFunc(s.handleUpload)))
	s.router.Handler(http.MethodGet, "/metrics", metrics.Handler())
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

// resolve maps a workspace path to disk. It fails for any path that would
// land outside the root.
func (s *Server) resolve(rel string) (string, bool) {
	if filepath.IsAbs(rel) || strings.HasPrefix(rel, "/") {
		return "", false
	}
	target := filepath.Join(s.root, filepath.FromSlash(rel))
	back, err := filepath.Rel(s.root, target)
	if err != nil {
		return "", false
	}
	if back == ".." || strings.HasPrefix(back, ".."+string(filepath.Separator)) {
		return "", false
	}
	return target, true
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleTree(w http.ResponseWriter, _ *http.Request) {
	root := workspace.NewRoot()
	children, err := s.listDir(s.root)
	if err != nil {
		s.log.Error("Failed to list %s: %v", s.root, err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	root.Children = children
	writeJSON(w, http.StatusOK, root)
}

func (s *Server) listDir(dir string) ([]*workspace.FileNode, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	nodes := make([]*workspace.FileNode, 0, len(entries))
	for _, e := range entries {
		full := filepath.Join(dir, e.Name())
		rel, err := filepath.Rel(s.root, full)
		if err != nil {
			return nil, err
		}
		node := &workspace.FileNode{
			Name: e.Name(),
			Path: filepath.ToSlash(rel),
			Kind: workspace.KindFile,
		}
		if e.IsDir() {
			node.Kind = workspace.KindFolder
			if node.Children, err = s.listDir(full); err != nil {
				return nil, err
			}
		}
		nodes = append(nodes, node)
	}

	sort.SliceStable(nodes, func(i, j int) bool {
		a, b := nodes[i], nodes[j]
		if a.IsFolder() != b.IsFolder() {
			return a.IsFolder()
		}
		return strings.ToLower(a.Name) < strings.ToLower(b.Name)
	})
	return nodes, nil
}

func (s *Server) handleOpen(w http.ResponseWriter, r *http.Request) {
	var req workspace.Entry
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	target, ok := s.resolve(req.Path)
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid path")
		return
	}

	info, err := os.Stat(target)
	if err != nil || !info.Mode().IsRegular() {
		writeError(w, http.StatusNotFound, "File not found")
		return
	}
	data, err := os.ReadFile(target)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, workspace.Entry{Path: req.Path, Content: string(data)})
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	var req workspace.Entry
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	target, ok := s.resolve(req.Path)
	if !ok || target == s.root {
		writeError(w, http.StatusBadRequest, "Invalid path")
		return
	}

	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := os.WriteFile(target, []byte(req.Content), 0644); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.log.Debug("Saved %s (%d bytes)", req.Path, len(req.Content))
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart body")
		return
	}
	destDir, ok := s.resolve(r.FormValue("dest"))
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid path")
		return
	}
	if err := os.MkdirAll(destDir, 0755); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	stored := []string{}
	for _, fh := range r.MultipartForm.File["files"] {
		name := filepath.Base(fh.Filename)
		if name == "." || name == ".." || name == string(filepath.Separator) {
			continue
		}
		target := filepath.Join(destDir, name)
		if err := copyUpload(fh, target); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		rel, _ := filepath.Rel(s.root, target)
		stored = append(stored, filepath.ToSlash(rel))
	}

	s.log.Info("Stored %d uploaded files", len(stored))
	writeJSON(w, http.StatusOK, map[string][]string{"stored": stored})
}

func copyUpload(fh *multipart.FileHeader, target string) error {
	src, err := fh.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, fs.FileMode(0644))
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return err
	}
	return dst.Close()
}
