package workspace

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/codefionn/runpad/internal/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(url string) *RemoteClient {
	return NewRemoteClient(RemoteConfig{
		BaseURL:              url,
		Timeout:              2 * time.Second,
		MaxRetries:           3,
		RetryInitialInterval: time.Millisecond,
	})
}

func TestRemoteTreeRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(&FileNode{
			Name: "workspace", Kind: KindFolder,
			Children: []*FileNode{{Name: "a.py", Path: "a.py", Kind: KindFile}},
		})
	}))
	defer srv.Close()

	root, err := newTestClient(srv.URL).Tree(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	require.Len(t, root.Children, 1)
	assert.Equal(t, "a.py", root.Children[0].Path)
}

func TestRemoteTreeRetryDefaults(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(&FileNode{Name: "workspace", Kind: KindFolder})
	}))
	defer srv.Close()

	client := NewRemoteClient(RemoteConfig{BaseURL: srv.URL, RetryInitialInterval: time.Millisecond})
	_, err := client.Tree(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))

	atomic.StoreInt32(&calls, 0)
	noRetry := NewRemoteClient(RemoteConfig{BaseURL: srv.URL, MaxRetries: -1})
	_, err = noRetry.Tree(context.Background())
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestRemoteTreeDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Tree(context.Background())
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.True(t, apperr.IsKind(err, apperr.KindUnavailable))
}

func TestRemoteOfflineTransitions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"status":"ok"}`)
	}))
	client := newTestClient(srv.URL)

	require.NoError(t, client.Ping(context.Background()))
	assert.True(t, client.IsOnline())

	srv.Close()
	err := client.Ping(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrUnavailable)
	assert.False(t, client.IsOnline())
}

func TestRemoteOpenNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/files/open", r.URL.Path)
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"detail":"File not found"}`)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Open(context.Background(), "missing.py")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestRemoteUploadGroupsByDirectory(t *testing.T) {
	type upload struct {
		dest  string
		names []string
	}
	var got []upload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		u := upload{dest: r.FormValue("dest")}
		for _, fh := range r.MultipartForm.File["files"] {
			u.names = append(u.names, fh.Filename)
		}
		got = append(got, u)
		_, _ = io.WriteString(w, `{"stored":[]}`)
	}))
	defer srv.Close()

	err := newTestClient(srv.URL).Upload(context.Background(), []Entry{
		{Path: "top.txt", Content: "t"},
		{Path: "data/a.csv", Content: "a"},
		{Path: "data/b.csv", Content: "b"},
	})
	require.NoError(t, err)
	assert.Equal(t, []upload{
		{dest: "", names: []string{"top.txt"}},
		{dest: "data", names: []string{"a.csv", "b.csv"}},
	}, got)
}
