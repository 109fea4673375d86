package resume

import (
	"fmt"
	"os"
)

// Store persists and retrieves a pause token by an opaque key (typically
// the destination bucket/key of the upload being paused).
type Store interface {
	Save(key string, t Token) error
	Load(key string) (Token, error)
	Delete(key string) error
}

// FileStore persists one token per local file, the common case for the
// CLI (cmd/s3put) and for any caller that doesn't run the engine as a
// long-lived service.
type FileStore struct {
	pathFor func(key string) string
}

// NewFileStore creates a FileStore whose files are named by pathFor(key).
func NewFileStore(pathFor func(key string) string) *FileStore {
	return &FileStore{pathFor: pathFor}
}

// Save writes the token as JSON, truncating any existing checkpoint.
func (s *FileStore) Save(key string, t Token) error {
	data, err := t.Encode()
	if err != nil {
		return err
	}
	if err := os.WriteFile(s.pathFor(key), data, 0o600); err != nil {
		return fmt.Errorf("resume: save checkpoint for %s: %w", key, err)
	}
	return nil
}

// Load reads and validates a previously saved token.
func (s *FileStore) Load(key string) (Token, error) {
	data, err := os.ReadFile(s.pathFor(key))
	if err != nil {
		return Token{}, fmt.Errorf("resume: load checkpoint for %s: %w", key, err)
	}
	return Decode(data)
}

// Delete removes a checkpoint once an upload completes or is abandoned.
func (s *FileStore) Delete(key string) error {
	if err := os.Remove(s.pathFor(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("resume: delete checkpoint for %s: %w", key, err)
	}
	return nil
}
