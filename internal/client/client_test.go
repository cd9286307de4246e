package client

import (
	"bytes"
	"context"
	"errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qrelay/internal/config"
	"qrelay/internal/server"
	"qrelay/internal/session"
	"qrelay/internal/types"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\n client test")

func newTestServer(t *testing.T) *Client {
	t.Helper()
	cfg := &config.Config{
		Server: config.ServerConfig{Host: "127.0.0.1", Port: "0"},
		Session: config.SessionConfig{
			Timeout:       time.Minute,
			Liveness:      10 * time.Second,
			SweepInterval: time.Minute,
		},
		Storage: config.StorageConfig{UploadDir: t.TempDir(), MaxUploadSize: 1 << 20},
		Limits:  config.LimitsConfig{UploadsPerIP: 4},
	}
	srv, err := server.NewServer(cfg)
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		srv.Cleanup()
	})
	return NewWithHTTPClient(ts.URL, ts.Client())
}

func TestClientFlow(t *testing.T) {
	c := newTestServer(t)
	ctx := context.Background()

	health, err := c.Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ok", health.Status)

	sess, err := c.CreateSession(ctx)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(sess.URL, "/join/"+sess.ID))

	require.NoError(t, c.Connect(ctx, sess.ID))

	up, err := c.Upload(ctx, sess.ID, "photo.png", pngBytes)
	require.NoError(t, err)

	st, err := c.Status(ctx, sess.ID, session.RoleReceiver)
	require.NoError(t, err)
	assert.Equal(t, "connected", st.Status)
	require.Equal(t, []string{up.ImageID}, st.NewImageIDs)

	img, err := c.Fetch(ctx, sess.ID, up.ImageID)
	require.NoError(t, err)
	assert.Equal(t, "photo.png", img.Name)
	assert.Equal(t, "image/png", img.ContentType)
	assert.Equal(t, pngBytes, img.Data)

	_, err = c.Fetch(ctx, sess.ID, up.ImageID)
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestClientErrors(t *testing.T) {
	c := newTestServer(t)
	ctx := context.Background()

	sess, err := c.CreateSession(ctx)
	require.NoError(t, err)

	_, err = c.Upload(ctx, sess.ID, "early.png", pngBytes)
	assert.ErrorIs(t, err, session.ErrInvalidState)

	require.NoError(t, c.Connect(ctx, sess.ID))
	err = c.Connect(ctx, sess.ID)
	assert.ErrorIs(t, err, session.ErrConflict)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 409, apiErr.StatusCode)
	assert.Equal(t, types.ErrKindConflict, apiErr.Kind)

	_, err = c.Status(ctx, "6f1c2a9e-2b7d-4c3e-9a51-0d2f4b6c8e10", session.RoleSender)
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestReceiveAndSend(t *testing.T) {
	c := newTestServer(t)
	outDir := t.TempDir()

	file := filepath.Join(t.TempDir(), "note.png")
	require.NoError(t, os.WriteFile(file, pngBytes, 0644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sessions := make(chan *types.CreateSessionResponse, 1)
	var mu sync.Mutex
	var saved []string
	var recvOut bytes.Buffer

	done := make(chan error, 1)
	go func() {
		done <- Receive(ctx, c, ReceiveOptions{
			OutDir:    outDir,
			Interval:  20 * time.Millisecond,
			Out:       &recvOut,
			OnSession: func(s *types.CreateSessionResponse) { sessions <- s },
			OnImage: func(path string) {
				mu.Lock()
				saved = append(saved, path)
				mu.Unlock()
			},
		})
	}()

	var sess *types.CreateSessionResponse
	select {
	case sess = <-sessions:
	case <-time.After(5 * time.Second):
		t.Fatal("receiver did not create a session")
	}

	var sendOut bytes.Buffer
	err := Send(ctx, c, SendOptions{
		SessionID:  sess.ID,
		Files:      []string{file, file},
		Screenshot: true,
		Interval:   20 * time.Millisecond,
		Out:        &sendOut,
		Capture:    func(int) ([]byte, error) { return pngBytes, nil },
	})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(saved) == 3
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	assert.Contains(t, recvOut.String(), "expires in")

	entries, err := os.ReadDir(outDir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.Contains(t, names, "note.png")
	assert.Contains(t, names, "note-1.png")
}

func TestSend_NothingToSend(t *testing.T) {
	c := New("http://127.0.0.1:1")
	err := Send(context.Background(), c, SendOptions{SessionID: "x"})
	assert.EqualError(t, err, "nothing to send")
}

func TestParseSessionRef(t *testing.T) {
	id := "6f1c2a9e-2b7d-4c3e-9a51-0d2f4b6c8e10"

	base, got, err := ParseSessionRef("https://relay.example.com/join/" + id)
	require.NoError(t, err)
	assert.Equal(t, "https://relay.example.com", base)
	assert.Equal(t, id, got)

	base, got, err = ParseSessionRef(strings.ToUpper(id))
	require.NoError(t, err)
	assert.Empty(t, base)
	assert.Equal(t, id, got)

	_, _, err = ParseSessionRef("")
	assert.Error(t, err)
	_, _, err = ParseSessionRef("https://relay.example.com/join/nope")
	assert.Error(t, err)

	var out bytes.Buffer
	_, got, err = PromptSession(strings.NewReader(id+"\n"), &out)
	require.NoError(t, err)
	assert.Equal(t, id, got)
	assert.Contains(t, out.String(), "Link:")
}

func TestUniquePath(t *testing.T) {
	dir := t.TempDir()
	assert.Equal(t, filepath.Join(dir, "a.png"), uniquePath(dir, "a.png"))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.png"), nil, 0644))
	assert.Equal(t, filepath.Join(dir, "a-1.png"), uniquePath(dir, "../a.png"))
}
