// Package nativez provides the codec for compressed, optionally encrypted
// native documents: a small header followed by an xz stream of the native
// JSON form.
package nativez

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/pbkdf2"
	"crypto/sha256"
	"io"

	"github.com/ulikunitz/xz"
	"github.com/zeebo/blake3"

	"github.com/FocuswithJustin/folio/core/codec"
	"github.com/FocuswithJustin/folio/core/dom"
	"github.com/FocuswithJustin/folio/core/errors"
	"github.com/FocuswithJustin/folio/internal/formats/base"
	"github.com/FocuswithJustin/folio/internal/formats/native"
)

const (
	magic   = "FOLZ"
	version = 1

	flagEncrypted = 1 << 0

	saltSize   = 16
	nonceSize  = 12
	keySize    = 32
	iterations = 100_000
	headerSize = len(magic) + 2
)

// Injectable functions for testing.
var (
	xzNewWriter = xz.NewWriter
	xzNewReader = xz.NewReader
)

// Handler implements codec.Codec for .fdocz files.
type Handler struct{}

// Descriptor returns the format descriptor for registration.
func Descriptor() codec.FormatDescriptor {
	return codec.FormatDescriptor{
		Name:        "nativez",
		Extensions:  []string{".fdocz"},
		ContentType: "application/vnd.folio+xz",
		CanLoad:     true,
		CanSave:     true,
		Capabilities: codec.Capabilities{
			Encryption:   true,
			Revisions:    true,
			Styles:       true,
			TextFidelity: true,
		},
	}
}

// Register registers this codec with the codec registry.
func Register() {
	codec.Register(&Handler{})
}

func init() {
	Register()
}

// Descriptor implements codec.Codec.
func (h *Handler) Descriptor() codec.FormatDescriptor {
	return Descriptor()
}

// Detect implements codec.Codec.
func (h *Handler) Detect(head []byte) codec.DetectResult {
	return base.Detect(head, base.DetectConfig{
		FormatName: "nativez",
		Magic:      [][]byte{[]byte(magic)},
		Confidence: 100,
		Encrypted: func(head []byte) bool {
			return len(head) >= headerSize && head[headerSize-1]&flagEncrypted != 0
		},
	})
}

// Load implements codec.Codec.
func (h *Handler) Load(r io.Reader, doc *dom.Document, opts *codec.LoadOptions) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if len(data) < headerSize || string(data[:len(magic)]) != magic {
		return errors.NewParse("nativez", "", "missing header")
	}
	if data[len(magic)] > version {
		return errors.NewUnsupported("nativez version", "document version is newer than this reader")
	}
	flags := data[headerSize-1]
	payload := data[headerSize:]

	if flags&flagEncrypted != 0 {
		password := ""
		if opts != nil {
			password = opts.Password
		}
		if password == "" {
			return errors.NewLoad(errors.WrongPassword, "nativez", nil)
		}
		payload, err = decrypt(payload, password)
		if err != nil {
			return err
		}
	}

	xr, err := xzNewReader(bytes.NewReader(payload))
	if err != nil {
		return errors.NewParse("nativez", "", err.Error())
	}
	plain, err := io.ReadAll(xr)
	if err != nil {
		return errors.NewParse("nativez", "", err.Error())
	}
	return native.Decode(plain, doc, opts)
}

// Save implements codec.Codec.
func (h *Handler) Save(w io.Writer, doc *dom.Document, opts *codec.SaveOptions) error {
	plain, err := native.Encode(doc, false)
	if err != nil {
		return err
	}
	var compressed bytes.Buffer
	xw, err := xzNewWriter(&compressed)
	if err != nil {
		return err
	}
	if _, err := xw.Write(plain); err != nil {
		return err
	}
	if err := xw.Close(); err != nil {
		return err
	}

	header := []byte{magic[0], magic[1], magic[2], magic[3], version, 0}
	payload := compressed.Bytes()
	if opts != nil && opts.Password != "" {
		header[headerSize-1] |= flagEncrypted
		payload, err = encrypt(payload, opts.Password)
		if err != nil {
			return err
		}
	}
	if _, err := w.Write(header); err != nil {
		return err
	}
	_, err = w.Write(payload)
	return err
}

// encrypt seals payload with a key derived from password. Salt and nonce
// are derived from the password and payload, so saves stay reproducible.
func encrypt(payload []byte, password string) ([]byte, error) {
	sh := blake3.New()
	_, _ = sh.Write([]byte(password))
	_, _ = sh.Write(payload)
	salt := sh.Sum(nil)[:saltSize]

	key, err := pbkdf2.Key(sha256.New, password, salt, iterations, keySize)
	if err != nil {
		return nil, err
	}
	nh, err := blake3.NewKeyed(key)
	if err != nil {
		return nil, err
	}
	_, _ = nh.Write(payload)
	nonce := nh.Sum(nil)[:nonceSize]

	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, saltSize+nonceSize+len(payload)+gcm.Overhead())
	out = append(out, salt...)
	out = append(out, nonce...)
	return gcm.Seal(out, nonce, payload, []byte(magic)), nil
}

func decrypt(sealed []byte, password string) ([]byte, error) {
	if len(sealed) < saltSize+nonceSize {
		return nil, errors.NewParse("nativez", "", "truncated encryption header")
	}
	salt, nonce := sealed[:saltSize], sealed[saltSize:saltSize+nonceSize]
	key, err := pbkdf2.Key(sha256.New, password, salt, iterations, keySize)
	if err != nil {
		return nil, err
	}
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	plain, err := gcm.Open(nil, nonce, sealed[saltSize+nonceSize:], []byte(magic))
	if err != nil {
		return nil, errors.NewLoad(errors.WrongPassword, "nativez", err)
	}
	return plain, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
