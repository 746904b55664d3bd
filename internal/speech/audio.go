package speech

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrInvalidName is returned for audio file names that could escape the store.
var ErrInvalidName = errors.New("invalid audio file name")

// AudioStore keeps one rendered audio file per caller in a directory.
type AudioStore struct {
	dir string
}

// NewAudioStore creates dir if needed.
func NewAudioStore(dir string) (*AudioStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating audio directory: %w", err)
	}
	return &AudioStore{dir: dir}, nil
}

// FileName returns the deterministic file name for a caller's audio.
func FileName(callerID, format string) string {
	var b strings.Builder
	for _, r := range callerID {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	name := b.String()
	if name == "" {
		name = "caller"
	}
	return name + "." + format
}

// Save writes data as the caller's audio file, replacing any previous one,
// and returns the file name.
func (a *AudioStore) Save(callerID, format string, data []byte) (string, error) {
	name := FileName(callerID, format)
	path := filepath.Join(a.dir, name)

	tmp, err := os.CreateTemp(a.dir, name+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("creating temp audio file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("writing audio: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("closing audio file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("replacing audio file: %w", err)
	}
	return name, nil
}

// Path resolves name inside the store, rejecting anything that is not a
// plain file name.
func (a *AudioStore) Path(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".tmp") {
		return "", ErrInvalidName
	}
	return filepath.Join(a.dir, name), nil
}
