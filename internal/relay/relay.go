package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"unicode"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog/log"

	"qrelay/internal/session"
)

const (
	defaultImageName = "image"
	maxNameLength    = 128
)

// ErrBadUpload means the upload body could not be read.
var ErrBadUpload = errors.New("unreadable upload")

// Blobs is the backing storage for uploaded images.
type Blobs interface {
	Write(sessionID, imageID string, key, data []byte) (string, error)
	Read(path string, key []byte) ([]byte, error)
	Remove(path string) error
	Reclaim(sessionID string, paths []string)
	RemoveEmptyDir(sessionID string)
}

// Delivery is an image handed to the receiver. Its backing file is already
// scheduled for removal.
type Delivery struct {
	Image *session.Image
	Data  []byte
}

type Relay struct {
	sessions *session.Manager
	blobs    Blobs
	janitor  *Janitor
	maxSize  int64
}

func New(sessions *session.Manager, blobs Blobs, maxSize int64) *Relay {
	return &Relay{
		sessions: sessions,
		blobs:    blobs,
		janitor:  NewJanitor(),
		maxSize:  maxSize,
	}
}

func (r *Relay) Janitor() *Janitor {
	return r.janitor
}

func (r *Relay) MaxSize() int64 {
	return r.maxSize
}

// Store binds an uploaded image to a connected session and queues it for the
// receiver's next poll. The session must be connected with a live receiver.
func (r *Relay) Store(ctx context.Context, sessionID, name, contentType string, body io.Reader) (*session.Image, error) {
	sess, err := r.sessions.BeginUpload(sessionID)
	if err != nil {
		return nil, err
	}

	data, err := io.ReadAll(io.LimitReader(body, r.maxSize+1))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, session.ErrPayloadTooLarge
		}
		return nil, fmt.Errorf("%w: %v", ErrBadUpload, err)
	}
	if int64(len(data)) > r.maxSize {
		return nil, session.ErrPayloadTooLarge
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	imageID, err := gonanoid.New()
	if err != nil {
		return nil, fmt.Errorf("generate image id: %w", err)
	}

	path, err := r.blobs.Write(sessionID, imageID, sess.Key(), data)
	if err != nil {
		log.Error().Err(err).Str("session_id", sessionID).Msg("Failed to write upload")
		return nil, fmt.Errorf("%w: %v", session.ErrStorage, err)
	}

	img := &session.Image{
		ID:          imageID,
		Name:        DisplayName(name),
		ContentType: detectContentType(contentType, name, data),
		Path:        path,
		Size:        int64(len(data)),
		UploadedAt:  r.sessions.Now(),
	}

	if err := r.sessions.Commit(sessionID, img); err != nil {
		// session went away while the file was being written
		r.blobs.Reclaim(sessionID, []string{path})
		return nil, err
	}

	log.Info().
		Str("session_id", sessionID).
		Str("image_id", imageID).
		Int64("size", img.Size).
		Msg("📥 Image stored")

	return img, nil
}

// Deliver returns an image exactly once. The backing file is removed by the
// janitor after the bytes are read; a second call reports ErrNotFound.
func (r *Relay) Deliver(ctx context.Context, sessionID, imageID string) (*Delivery, error) {
	img, key, err := r.sessions.Claim(sessionID, imageID)
	if err != nil {
		return nil, err
	}

	data, err := r.blobs.Read(img.Path, key)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, session.ErrNotFound
		}
		if !r.sessions.Restore(sessionID, img) {
			r.scheduleRemove(sessionID, img)
		}
		log.Error().Err(err).Str("session_id", sessionID).Str("image_id", imageID).Msg("Failed to read image")
		return nil, fmt.Errorf("%w: %v", session.ErrStorage, err)
	}

	r.scheduleRemove(sessionID, img)

	log.Info().
		Str("session_id", sessionID).
		Str("image_id", imageID).
		Msg("📤 Image delivered")

	return &Delivery{Image: img, Data: data}, nil
}

// Close waits for pending cleanup tasks.
func (r *Relay) Close() {
	r.janitor.Close()
}

func (r *Relay) scheduleRemove(sessionID string, img *session.Image) {
	path := img.Path
	r.janitor.Schedule("remove "+sessionID+"/"+img.ID, func() error {
		if err := r.blobs.Remove(path); err != nil {
			return err
		}
		// a session evicted mid-read leaves its directory to the last reader
		if _, live := r.sessions.Store().Get(sessionID); !live {
			r.blobs.RemoveEmptyDir(sessionID)
		}
		return nil
	})
}

// DisplayName reduces a client supplied filename to something safe to show
// and to put in a Content-Disposition header.
func DisplayName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(strings.TrimSpace(name))
	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) || r == '"' || r == '/' {
			return -1
		}
		return r
	}, name)

	if name == "" || name == "." || name == ".." {
		return defaultImageName
	}
	if runes := []rune(name); len(runes) > maxNameLength {
		name = string(runes[len(runes)-maxNameLength:])
	}
	return name
}

func detectContentType(declared, name string, data []byte) string {
	if declared != "" && declared != "application/octet-stream" {
		if mt, _, err := mime.ParseMediaType(declared); err == nil {
			return mt
		}
	}
	if byExt := mime.TypeByExtension(strings.ToLower(filepath.Ext(name))); byExt != "" {
		return byExt
	}
	return http.DetectContentType(data)
}
