package workspace

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcherFollowsDisk(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "main.py", "v1")

	ws := New(NewStore(), nil)
	_, err := ws.ImportDir(context.Background(), root, ImportOptions{})
	require.NoError(t, err)

	w, err := ws.Watch(root, ImportOptions{})
	require.NoError(t, err)
	defer w.Close()

	writeFile(t, root, "main.py", "v2")
	assert.Eventually(t, func() bool {
		content, _ := ws.Store().Get("main.py")
		return content == "v2"
	}, 2*time.Second, 10*time.Millisecond)

	writeFile(t, root, "added.py", "new")
	assert.Eventually(t, func() bool {
		return ws.Store().Has("added.py")
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, os.Remove(filepath.Join(root, "main.py")))
	assert.Eventually(t, func() bool {
		return !ws.Store().Has("main.py")
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWatcherCloseIsIdempotent(t *testing.T) {
	ws := New(NewStore(), nil)
	w, err := ws.Watch(t.TempDir(), ImportOptions{})
	require.NoError(t, err)

	require.NoError(t, w.Close())
	assert.NoError(t, w.Close())
}
