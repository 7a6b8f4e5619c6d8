package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/codefionn/runpad/internal/apperr"
	"github.com/codefionn/runpad/internal/config"
	"github.com/codefionn/runpad/internal/workspace"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func useConfig(t *testing.T, mutate func(c *config.Config)) {
	t.Helper()
	prev := cfg
	c := config.DefaultConfig()
	c.DraftsPath = ""
	mutate(c)
	cfg = c
	t.Cleanup(func() { cfg = prev })
}

func TestPrintTree(t *testing.T) {
	root := workspace.NewRoot()
	root.Children = []*workspace.FileNode{
		{Name: "src", Path: "src", Kind: workspace.KindFolder, Children: []*workspace.FileNode{
			{Name: "main.py", Path: "src/main.py", Kind: workspace.KindFile, Local: true},
		}},
		{Name: "README.md", Path: "README.md", Kind: workspace.KindFile},
	}

	var buf bytes.Buffer
	printTree(&buf, root, 0)
	assert.Equal(t, "src/\n  main.py *\nREADME.md\n", buf.String())
}

func TestImportedEntries(t *testing.T) {
	all := []workspace.Entry{
		{Path: "lib/a.py"}, {Path: "lib2/b.py"}, {Path: "c.py"},
	}
	assert.Equal(t, all, importedEntries(all, ""))
	assert.Equal(t, []workspace.Entry{{Path: "lib/a.py"}}, importedEntries(all, "/lib/"))
}

func batchServer(t *testing.T, resp map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/run", r.URL.Path)
		json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRunBatchWritesStreams(t *testing.T) {
	srv := batchServer(t, map[string]any{"stdout": "2\n", "stderr": "warn\n", "success": true})
	useConfig(t, func(c *config.Config) { c.ExecutionURL = srv.URL })

	var stdout, stderr bytes.Buffer
	err := runBatch(context.Background(), &stdout, &stderr, "python", "print(1+1)")
	require.NoError(t, err)
	assert.Equal(t, "2\n", stdout.String())
	assert.Equal(t, "warn\n", stderr.String())
}

func TestRunBatchFailure(t *testing.T) {
	srv := batchServer(t, map[string]any{"stdout": "", "stderr": "boom\n", "success": false})
	useConfig(t, func(c *config.Config) { c.ExecutionURL = srv.URL })

	var stdout, stderr bytes.Buffer
	err := runBatch(context.Background(), &stdout, &stderr, "python", "raise")
	assert.ErrorIs(t, err, errRunFailed)
	assert.Equal(t, "boom\n", stderr.String())
}

func TestRunInteractiveForwardsStdin(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ws/python", r.URL.Path)
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		_, first, err := conn.ReadMessage()
		if err != nil || !strings.Contains(string(first), `"code"`) {
			return
		}
		conn.WriteJSON(map[string]string{"stdout": "name? "})
		_, line, err := conn.ReadMessage()
		if err != nil {
			return
		}
		conn.WriteJSON(map[string]string{"stdout": string(line) + "\n"})
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	}))
	defer srv.Close()
	useConfig(t, func(c *config.Config) {
		c.InteractiveURL = "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	})

	var stdout, stderr bytes.Buffer
	err := runInteractive(context.Background(), strings.NewReader("abc\n"), &stdout, &stderr, "python", "print(input('name? '))")
	require.NoError(t, err)
	assert.Equal(t, "name? abc\n", stdout.String())
	assert.Empty(t, stderr.String())
}

func TestConsoleSink(t *testing.T) {
	var out, errOut bytes.Buffer
	sink := &consoleSink{out: &out, errOut: &errOut, errStyle: func(s ...string) string { return strings.Join(s, "") }}

	sink.WriteStdout("a")
	sink.WriteStderr("b")
	sink.WriteError("c")
	sink.ShowPrompt()

	assert.Equal(t, "a", out.String())
	assert.Equal(t, "bc\n", errOut.String())
}

func TestOpenAppDraftsSingleOwner(t *testing.T) {
	c := config.DefaultConfig()
	c.DraftsPath = filepath.Join(t.TempDir(), "drafts.db")

	first := openApp(c)
	defer first.close()
	require.NotNil(t, first.drafts)

	second := openApp(c)
	defer second.close()
	assert.Nil(t, second.drafts)
	assert.NotNil(t, second.ws)
}

func TestMoveAndRemoveLocalFiles(t *testing.T) {
	ctx := context.Background()
	ws := workspace.New(nil, nil)
	require.NoError(t, ws.Save(ctx, "a.py", "print(1)"))

	require.NoError(t, moveFile(ws, "a.py", "lib/b.py"))
	content, err := ws.Open(ctx, "lib/b.py")
	require.NoError(t, err)
	assert.Equal(t, "print(1)", content)

	assert.True(t, apperr.IsKind(moveFile(ws, "a.py", "c.py"), apperr.KindNotFound))
	assert.True(t, apperr.IsKind(moveFile(ws, "lib/b.py", "/"), apperr.KindValidation))

	require.NoError(t, removeFile(ws, "lib/b.py"))
	assert.True(t, apperr.IsKind(removeFile(ws, "lib/b.py"), apperr.KindNotFound))
}

func TestRemoveSurvivesDrafts(t *testing.T) {
	ctx := context.Background()
	c := config.DefaultConfig()
	c.WorkspaceURL = ""
	c.DraftsPath = filepath.Join(t.TempDir(), "drafts.db")

	a := openApp(c)
	require.NoError(t, a.ws.Save(ctx, "keep.py", "1"))
	require.NoError(t, a.ws.Save(ctx, "drop.py", "2"))
	a.close()

	a = openApp(c)
	require.NoError(t, removeFile(a.ws, "drop.py"))
	a.close()

	a = openApp(c)
	defer a.close()
	_, err := a.ws.Open(ctx, "drop.py")
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
	content, err := a.ws.Open(ctx, "keep.py")
	require.NoError(t, err)
	assert.Equal(t, "1", content)
}
