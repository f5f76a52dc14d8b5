package cas

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"hash"
	"os"
	"path/filepath"

	"github.com/zeebo/blake3"
)

// HashResult contains both SHA-256 and BLAKE3 hashes for a stored blob.
type HashResult struct {
	SHA256 string `json:"sha256"`
	BLAKE3 string `json:"blake3"`
}

// blake3Pointer is the structure stored in BLAKE3 pointer files.
type blake3Pointer struct {
	SHA256 string `json:"sha256"`
}

// Blake3Hash computes the BLAKE3 hash of the given data without storing it.
func Blake3Hash(data []byte) string {
	h := blake3.Sum256(data)
	return hex.EncodeToString(h[:])
}

// NewBlake3 returns a streaming BLAKE3-256 hasher. Subtree hashing feeds
// node records into it without building an intermediate buffer.
func NewBlake3() hash.Hash {
	return blake3.New()
}

// StoreWithBlake3 stores data under its SHA-256 hash and records a pointer
// from its BLAKE3 hash, returning both.
func (s *Store) StoreWithBlake3(data []byte) (*HashResult, error) {
	sha, err := s.Store(data)
	if err != nil {
		return nil, err
	}
	b3 := Blake3Hash(data)

	dir := filepath.Join(s.root, "blobs", "blake3", b3[:2])
	pointerPath := filepath.Join(dir, b3+".json")
	if _, err := os.Stat(pointerPath); err != nil {
		payload, err := json.Marshal(blake3Pointer{SHA256: sha})
		if err != nil {
			return nil, fmt.Errorf("failed to marshal pointer: %w", err)
		}
		if err := writeAtomic(dir, pointerPath, ".pointer-*", payload); err != nil {
			return nil, fmt.Errorf("failed to create BLAKE3 pointer: %w", err)
		}
	}
	return &HashResult{SHA256: sha, BLAKE3: b3}, nil
}

// LookupBlake3 resolves a BLAKE3 hash to the SHA-256 hash it points at.
func (s *Store) LookupBlake3(blake3Hash string) (string, error) {
	if !isValidHash(blake3Hash) {
		return "", ErrInvalidHash
	}
	data, err := os.ReadFile(filepath.Join(s.root, "blobs", "blake3", blake3Hash[:2], blake3Hash+".json"))
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrBlobNotFound
		}
		return "", fmt.Errorf("failed to read pointer: %w", err)
	}
	var pointer blake3Pointer
	if err := json.Unmarshal(data, &pointer); err != nil {
		return "", fmt.Errorf("failed to parse pointer: %w", err)
	}
	return pointer.SHA256, nil
}

// RetrieveByBlake3 retrieves a blob by its BLAKE3 hash.
func (s *Store) RetrieveByBlake3(blake3Hash string) ([]byte, error) {
	sha, err := s.LookupBlake3(blake3Hash)
	if err != nil {
		return nil, err
	}
	return s.Retrieve(sha)
}
