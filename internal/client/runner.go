package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"qrelay/internal/qr"
	"qrelay/internal/session"
	"qrelay/internal/types"
	"qrelay/internal/utils"
)

type ReceiveOptions struct {
	OutDir   string
	Interval time.Duration
	ShowQR   bool
	Out      io.Writer

	// OnSession and OnImage are optional hooks.
	OnSession func(*types.CreateSessionResponse)
	OnImage   func(path string)
}

// Receive opens a session, shows its link and saves every delivered image to
// OutDir until ctx is cancelled or the session ends.
func Receive(ctx context.Context, c *Client, opts ReceiveOptions) error {
	out := opts.Out
	if out == nil {
		out = io.Discard
	}
	if err := os.MkdirAll(opts.OutDir, 0755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	sess, err := c.CreateSession(ctx)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	if opts.OnSession != nil {
		opts.OnSession(sess)
	}

	PrintBanner(out, "Waiting for a sender")
	if opts.ShowQR {
		if code, err := qr.Terminal(sess.URL); err == nil {
			PrintQR(out, code)
		}
	}
	PrintField(out, "link", sess.URL, ColorCyan)
	PrintField(out, "session", sess.ID, ColorReset)
	PrintField(out, "saving to", opts.OutDir, ColorReset)
	PrintField(out, "expires in", utils.FormatDuration(time.Duration(sess.DeadlineMs)*time.Millisecond), ColorDim)
	PrintSep(out)

	ticker := time.NewTicker(pollInterval(opts.Interval))
	defer ticker.Stop()

	lastStatus := ""
	for {
		st, err := c.Status(ctx, sess.ID, session.RoleReceiver)
		switch {
		case ctx.Err() != nil:
			return nil
		case errors.Is(err, session.ErrNotFound):
			PrintHint(out, ColorRed+"Session ended"+ColorReset)
			return nil
		case err != nil:
			PrintHint(out, ColorYellow+"Status check failed: "+err.Error()+ColorReset)
		default:
			if st.Status != lastStatus {
				PrintField(out, "status", st.Status, statusColor(st.Status))
				PrintField(out, "expires in", utils.FormatDuration(time.Duration(st.RemainingMs)*time.Millisecond), ColorDim)
				lastStatus = st.Status
			}
			for _, id := range st.NewImageIDs {
				path, err := saveImage(ctx, c, sess.ID, id, opts.OutDir)
				if err != nil {
					fmt.Fprint(out, utils.FormatLog("", "fetch", errorStatus(err), id))
					continue
				}
				fmt.Fprint(out, utils.FormatLog("", "saved", http.StatusOK, path))
				if opts.OnImage != nil {
					opts.OnImage(path)
				}
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func saveImage(ctx context.Context, c *Client, sessionID, imageID, dir string) (string, error) {
	img, err := c.Fetch(ctx, sessionID, imageID)
	if err != nil {
		return "", err
	}
	path := uniquePath(dir, img.Name)
	if err := os.WriteFile(path, img.Data, 0644); err != nil {
		return "", err
	}
	return path, nil
}

// uniquePath never overwrites an existing file.
func uniquePath(dir, name string) string {
	name = filepath.Base(name)
	path := filepath.Join(dir, name)
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for i := 1; ; i++ {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return path
		}
		path = filepath.Join(dir, fmt.Sprintf("%s-%d%s", stem, i, ext))
	}
}

type SendOptions struct {
	SessionID  string
	Files      []string
	Screenshot bool
	Display    int
	Interval   time.Duration
	Out        io.Writer

	// Capture defaults to CaptureScreen.
	Capture func(display int) ([]byte, error)
}

// Send attaches to a session as the sender, keeps it alive with heartbeats
// and uploads the requested images one by one.
func Send(ctx context.Context, c *Client, opts SendOptions) error {
	out := opts.Out
	if out == nil {
		out = io.Discard
	}
	capture := opts.Capture
	if capture == nil {
		capture = CaptureScreen
	}
	if len(opts.Files) == 0 && !opts.Screenshot {
		return errors.New("nothing to send")
	}
	out = &lockedWriter{w: out}

	if err := c.Connect(ctx, opts.SessionID); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	PrintBanner(out, "Connected as sender")

	hbCtx, stop := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		heartbeat(hbCtx, c, opts.SessionID, pollInterval(opts.Interval), out)
	}()
	defer func() {
		stop()
		wg.Wait()
	}()

	for _, file := range opts.Files {
		data, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("read %s: %w", file, err)
		}
		if err := upload(ctx, c, opts.SessionID, filepath.Base(file), data, out); err != nil {
			return err
		}
	}

	if opts.Screenshot {
		data, err := capture(opts.Display)
		if err != nil {
			return err
		}
		name := fmt.Sprintf("screenshot-%s.png", time.Now().Format("20060102-150405"))
		if err := upload(ctx, c, opts.SessionID, name, data, out); err != nil {
			return err
		}
	}
	return nil
}

func upload(ctx context.Context, c *Client, sessionID, name string, data []byte, out io.Writer) error {
	res, err := c.Upload(ctx, sessionID, name, data)
	if err != nil {
		fmt.Fprint(out, utils.FormatLog("", "upload", errorStatus(err), name))
		return fmt.Errorf("upload %s: %w", name, err)
	}
	fmt.Fprint(out, utils.FormatLog("", "upload", http.StatusCreated,
		fmt.Sprintf("%s (%s)", res.Name, utils.FormatBytes(res.Size))))
	return nil
}

func heartbeat(ctx context.Context, c *Client, sessionID string, every time.Duration, out io.Writer) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		st, err := c.Status(ctx, sessionID, session.RoleSender)
		if err != nil {
			if ctx.Err() == nil {
				PrintHint(out, ColorYellow+"Heartbeat failed: "+err.Error()+ColorReset)
			}
			if errors.Is(err, session.ErrNotFound) {
				return
			}
			continue
		}
		if !st.PartnerConnected {
			PrintHint(out, ColorYellow+"Receiver is not responding"+ColorReset)
		}
	}
}

func errorStatus(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return http.StatusInternalServerError
}

// lockedWriter serializes output from the heartbeat and the upload loop.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (lw *lockedWriter) Write(p []byte) (int, error) {
	lw.mu.Lock()
	defer lw.mu.Unlock()
	return lw.w.Write(p)
}
