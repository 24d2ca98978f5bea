package ics

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	appLog "urconnect/internal/log"
)

// ArchiveMeta describes the archived feed.
type ArchiveMeta struct {
	// Source is the redacted URL the feed was downloaded from.
	Source    string    `json:"source"`
	SHA256    string    `json:"sha256"`
	Size      int       `json:"size"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Archive keeps the most recently downloaded feed on disk so it can be
// re-parsed without a portal session.
//
// Layout:
//
//	<dir>/body.ics
//	<dir>/meta.json
type Archive struct {
	dir string
}

// NewArchive creates an archive rooted at dir. If dir is empty a relative
// directory is used so development runs work without extra setup.
func NewArchive(dir string) *Archive {
	if dir == "" {
		dir = "./var/feed-archive"
	}
	return &Archive{dir: dir}
}

// Dir returns the archive directory.
func (a *Archive) Dir() string {
	return a.dir
}

// Save stores body as the current feed. changed reports whether it differs
// from what was archived before.
func (a *Archive) Save(sourceURL string, body []byte) (changed bool, err error) {
	if len(body) == 0 {
		return false, errors.New("archive: refusing to store empty feed")
	}
	if err := os.MkdirAll(a.dir, 0o700); err != nil {
		return false, err
	}

	sum := sha256.Sum256(body)
	meta := ArchiveMeta{
		Source:    appLog.RedactURL(sourceURL),
		SHA256:    hex.EncodeToString(sum[:]),
		Size:      len(body),
		UpdatedAt: time.Now().UTC(),
	}

	prev, prevErr := a.loadMeta()
	changed = prevErr != nil || prev.SHA256 != meta.SHA256

	// Write body first so meta never points at a missing body.
	if err := writeFileAtomic(filepath.Join(a.dir, "body.ics"), body); err != nil {
		return false, err
	}
	data, err := json.MarshalIndent(&meta, "", "  ")
	if err != nil {
		return false, err
	}
	if err := writeFileAtomic(filepath.Join(a.dir, "meta.json"), data); err != nil {
		return false, err
	}

	appLog.Info("feed archived", "dir", a.dir, "size", meta.Size, "changed", changed)
	return changed, nil
}

// Load returns the archived feed and its metadata.
func (a *Archive) Load() ([]byte, ArchiveMeta, error) {
	meta, err := a.loadMeta()
	if err != nil {
		return nil, ArchiveMeta{}, err
	}
	body, err := os.ReadFile(filepath.Join(a.dir, "body.ics"))
	if err != nil {
		return nil, ArchiveMeta{}, err
	}
	return body, meta, nil
}

func (a *Archive) loadMeta() (ArchiveMeta, error) {
	var meta ArchiveMeta
	data, err := os.ReadFile(filepath.Join(a.dir, "meta.json"))
	if err != nil {
		return meta, err
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return ArchiveMeta{}, err
	}
	return meta, nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".urconnect-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
