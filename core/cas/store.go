// Package cas provides content-addressed storage for document media and
// other binary parts. Blobs are keyed by their SHA-256 hash so identical
// images embedded twice are stored once.
package cas

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"

	"github.com/FocuswithJustin/folio/core/cache"
)

// osRename is a variable to allow testing of rename errors.
var osRename = os.Rename

// tempFileWrite is a function variable for writing to temp files (for testing).
var tempFileWrite = func(f *os.File, data []byte) (int, error) {
	return f.Write(data)
}

// tempFileClose is a function variable for closing temp files (for testing).
var tempFileClose = func(f io.Closer) error {
	return f.Close()
}

// ErrBlobNotFound is returned when a blob with the given hash does not exist.
var ErrBlobNotFound = errors.New("blob not found")

// ErrInvalidHash is returned when a hash string is not a valid SHA-256 hex string.
var ErrInvalidHash = errors.New("invalid hash format")

// sha256Pattern matches a valid lowercase SHA-256 hex string (64 characters).
var sha256Pattern = regexp.MustCompile(`^[a-f0-9]{64}$`)

// Hash computes the SHA-256 hash of the given data without storing it.
func Hash(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// isValidHash checks if a hash string is a valid SHA-256 hex string.
func isValidHash(hash string) bool {
	return sha256Pattern.MatchString(hash)
}

// Blob is one stored item with the media type it was stored under.
type Blob struct {
	ContentType string `json:"content_type"`
	Data        []byte `json:"data"`
}

// MemStore is an in-memory content-addressed store owned by a single
// document. It is not safe for concurrent mutation.
type MemStore struct {
	blobs map[string]Blob
}

// NewMemStore returns an empty store.
func NewMemStore() *MemStore {
	return &MemStore{blobs: make(map[string]Blob)}
}

// Put stores data and returns its hash. Storing identical bytes again is a no-op.
func (m *MemStore) Put(contentType string, data []byte) string {
	hash := Hash(data)
	if _, ok := m.blobs[hash]; !ok {
		m.blobs[hash] = Blob{ContentType: contentType, Data: append([]byte(nil), data...)}
	}
	return hash
}

// Get returns the blob stored under hash.
func (m *MemStore) Get(hash string) (Blob, error) {
	if !isValidHash(hash) {
		return Blob{}, ErrInvalidHash
	}
	b, ok := m.blobs[hash]
	if !ok {
		return Blob{}, ErrBlobNotFound
	}
	return b, nil
}

// Has reports whether hash is stored.
func (m *MemStore) Has(hash string) bool {
	_, ok := m.blobs[hash]
	return ok
}

// Delete removes hash from the store.
func (m *MemStore) Delete(hash string) {
	delete(m.blobs, hash)
}

// Hashes returns stored hashes in sorted order so callers iterate deterministically.
func (m *MemStore) Hashes() []string {
	out := make([]string, 0, len(m.blobs))
	for h := range m.blobs {
		out = append(out, h)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of stored blobs.
func (m *MemStore) Len() int {
	return len(m.blobs)
}

// Clone returns an independent copy.
func (m *MemStore) Clone() *MemStore {
	c := NewMemStore()
	for h, b := range m.blobs {
		c.blobs[h] = Blob{ContentType: b.ContentType, Data: append([]byte(nil), b.Data...)}
	}
	return c
}

// Limits of the read cache kept by each Store.
const (
	recentEntries = 1024
	recentBytes   = 64 << 20
)

// Store provides on-disk content-addressed storage using SHA-256 hashing.
// Codecs use it to write extracted media next to exported documents.
// Recently read or written blobs are kept in memory up to recentBytes.
type Store struct {
	root   string
	recent *cache.BoundedCache[string, []byte]
}

// NewStore creates a new content-addressed store at the given root directory.
// The directory structure will be created if it doesn't exist.
func NewStore(root string) (*Store, error) {
	blobDir := filepath.Join(root, "blobs", "sha256")
	if err := os.MkdirAll(blobDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create blob directory: %w", err)
	}
	recent := cache.NewBoundedCache[string, []byte](cache.Config{MaxSize: recentEntries}, recentBytes,
		func(b []byte) int64 { return int64(len(b)) })
	return &Store{root: root, recent: recent}, nil
}

// Root returns the store directory.
func (s *Store) Root() string {
	return s.root
}

// Store stores the given data and returns its SHA-256 hash.
// If the blob already exists (same hash), this is a no-op and returns the hash.
func (s *Store) Store(data []byte) (string, error) {
	hash := Hash(data)
	blobPath := s.pathForHash(hash)
	if _, err := os.Stat(blobPath); err == nil {
		return hash, nil
	}
	if err := writeAtomic(filepath.Dir(blobPath), blobPath, ".blob-*", data); err != nil {
		return "", fmt.Errorf("failed to write blob: %w", err)
	}
	s.recent.Put(hash, bytes.Clone(data))
	return hash, nil
}

// Retrieve retrieves the blob with the given SHA-256 hash. The returned
// slice is the caller's to modify.
func (s *Store) Retrieve(hash string) ([]byte, error) {
	if !isValidHash(hash) {
		return nil, ErrInvalidHash
	}
	data, err := cache.GetOrCompute(s.recent, hash, func() ([]byte, error) {
		data, err := os.ReadFile(s.pathForHash(hash))
		if err != nil {
			if os.IsNotExist(err) {
				return nil, ErrBlobNotFound
			}
			return nil, fmt.Errorf("failed to read blob: %w", err)
		}
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return bytes.Clone(data), nil
}

// Exists checks if a blob with the given hash exists in the store.
func (s *Store) Exists(hash string) bool {
	if !isValidHash(hash) {
		return false
	}
	_, err := os.Stat(s.pathForHash(hash))
	return err == nil
}

// RelPath returns the slash-separated path of a blob relative to the store
// root, suitable for links inside exported documents.
func (s *Store) RelPath(hash string) string {
	return "blobs/sha256/" + hash[:2] + "/" + hash
}

// ExportAll writes every blob of m into the store and returns the hashes written.
func (s *Store) ExportAll(m *MemStore) ([]string, error) {
	var out []string
	for _, h := range m.Hashes() {
		b, _ := m.Get(h)
		got, err := s.Store(b.Data)
		if err != nil {
			return out, err
		}
		out = append(out, got)
	}
	return out, nil
}

// pathForHash returns the file path for a blob with the given hash.
// Blobs are stored at: <root>/blobs/sha256/<first2>/<hash>
func (s *Store) pathForHash(hash string) string {
	return filepath.Join(s.root, "blobs", "sha256", hash[:2], hash)
}

// writeAtomic writes data to a temp file in dir and renames it to dest.
func writeAtomic(dir, dest, pattern string, data []byte) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	tempFile, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tempPath := tempFile.Name()

	if _, err := tempFileWrite(tempFile, data); err != nil {
		tempFileClose(tempFile)
		os.Remove(tempPath)
		return err
	}
	if err := tempFileClose(tempFile); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := osRename(tempPath, dest); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename: %w", err)
	}
	return nil
}
