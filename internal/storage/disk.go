package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var (
	ErrNoSpace     = errors.New("not enough free disk space")
	ErrInvalidName = errors.New("invalid storage name")
)

const fileExt = ".bin"

// Disk keeps sealed image blobs under <dir>/<sessionID>/<imageID>.bin. Every
// file is encrypted with the owning session's key.
type Disk struct {
	dir     string
	minFree int64
}

func NewDisk(dir string, minFree int64) (*Disk, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}
	return &Disk{dir: dir, minFree: minFree}, nil
}

func (d *Disk) Dir() string {
	return d.dir
}

// Purge removes session directories left behind by a previous process.
// Sessions do not survive a restart, so neither do their files. Entries that
// are not session directories are left alone.
func (d *Disk) Purge() (int, error) {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, e := range entries {
		if !e.IsDir() || !isSessionDir(e.Name()) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(d.dir, e.Name())); err != nil {
			log.Warn().Err(err).Str("entry", e.Name()).Msg("Failed to purge upload entry")
			continue
		}
		removed++
	}
	return removed, nil
}

// Write seals data with key and stores it for the given session and image.
func (d *Disk) Write(sessionID, imageID string, key, data []byte) (string, error) {
	if !validName(sessionID) || !validName(imageID) {
		return "", ErrInvalidName
	}

	if free, ok := freeBytes(d.dir); ok && free-int64(len(data)) < d.minFree {
		return "", ErrNoSpace
	}

	sealed, err := seal(key, data)
	if err != nil {
		return "", fmt.Errorf("seal: %w", err)
	}

	sessionDir := filepath.Join(d.dir, sessionID)
	if err := os.MkdirAll(sessionDir, 0o700); err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp(sessionDir, imageID+".*.tmp")
	if err != nil {
		return "", err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(sealed); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", err
	}

	path := filepath.Join(sessionDir, imageID+fileExt)
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return "", err
	}
	return path, nil
}

func (d *Disk) Read(path string, key []byte) ([]byte, error) {
	sealed, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return open(key, sealed)
}

// Remove deletes a blob. A file that is already gone is not an error.
func (d *Disk) Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// Reclaim deletes the given blobs, then the session directory if it is empty.
// A blob already claimed by a reader is not listed and keeps the directory
// alive until RemoveEmptyDir runs after the read. Failures are logged and
// never returned.
func (d *Disk) Reclaim(sessionID string, paths []string) {
	for _, p := range paths {
		if err := d.Remove(p); err != nil {
			log.Error().Err(err).Str("session_id", sessionID).Str("path", p).Msg("Failed to remove image file")
		}
	}
	d.RemoveEmptyDir(sessionID)
}

// RemoveEmptyDir deletes the session directory when nothing is left in it.
func (d *Disk) RemoveEmptyDir(sessionID string) {
	if !validName(sessionID) {
		return
	}
	err := os.Remove(filepath.Join(d.dir, sessionID))
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return
	}
	if entries, rerr := os.ReadDir(filepath.Join(d.dir, sessionID)); rerr == nil && len(entries) > 0 {
		log.Debug().Str("session_id", sessionID).Int("entries", len(entries)).Msg("Session directory still in use")
		return
	}
	log.Error().Err(err).Str("session_id", sessionID).Msg("Failed to remove session directory")
}

func isSessionDir(name string) bool {
	if len(name) != 36 {
		return false
	}
	_, err := uuid.Parse(name)
	return err == nil
}

func validName(name string) bool {
	return name != "" && name != "." && name != ".." && filepath.Base(name) == name
}
