package conversation

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/speakswap/speakswap/pkg/audio"
)

// FileStore persists generated audio artifacts as WAV files under a data
// directory. IDs are UUIDs, so client-supplied IDs can be validated before
// they touch the filesystem.
type FileStore struct {
	dir string
}

// NewFileStore creates the data directory if needed and returns a store
// rooted there.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("conversation: data directory must not be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("conversation: create data directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Dir returns the store's root directory.
func (f *FileStore) Dir() string {
	return f.dir
}

// Save encodes pcm as a WAV file and returns the new artifact's ID.
func (f *FileStore) Save(pcm []byte, sampleRate, channels int) (string, error) {
	id := uuid.NewString()
	path := filepath.Join(f.dir, id+".wav")
	if err := os.WriteFile(path, audio.EncodeWAV(pcm, sampleRate, channels), 0o644); err != nil {
		return "", fmt.Errorf("conversation: write audio artifact: %w", err)
	}
	return id, nil
}

// Path resolves an artifact ID to its file path. Returns an error for IDs
// that are not UUIDs or that have no file, keeping path traversal out of
// the data directory.
func (f *FileStore) Path(id string) (string, error) {
	id = strings.TrimSuffix(id, ".wav")
	if _, err := uuid.Parse(id); err != nil {
		return "", fmt.Errorf("conversation: invalid audio id %q", id)
	}
	path := filepath.Join(f.dir, id+".wav")
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("conversation: audio %s: %w", id, err)
	}
	return path, nil
}

// Read returns the WAV bytes for an artifact ID.
func (f *FileStore) Read(id string) ([]byte, error) {
	path, err := f.Path(id)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("conversation: read audio %s: %w", id, err)
	}
	return data, nil
}

// Remove deletes an artifact. Missing files are not an error.
func (f *FileStore) Remove(id string) error {
	path, err := f.Path(id)
	if err != nil {
		return nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("conversation: remove audio %s: %w", id, err)
	}
	return nil
}
