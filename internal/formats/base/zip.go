package base

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"path"
	"sort"
	"time"

	"github.com/FocuswithJustin/folio/core/errors"
)

// ZipWriter writes a zip container whose entries all carry the same
// modification time, so equal content produces equal bytes.
type ZipWriter struct {
	zw      *zip.Writer
	modTime time.Time
}

// NewZipWriter wraps w. modTime is truncated to the two-second DOS clock.
func NewZipWriter(w io.Writer, modTime time.Time) *ZipWriter {
	return &ZipWriter{zw: zip.NewWriter(w), modTime: modTime.UTC().Truncate(2 * time.Second)}
}

// Store adds an uncompressed entry. Container formats use it for the
// mimetype entry that must come first.
func (z *ZipWriter) Store(name string, data []byte) error {
	return z.add(name, data, zip.Store)
}

// Add adds a deflated entry.
func (z *ZipWriter) Add(name string, data []byte) error {
	return z.add(name, data, zip.Deflate)
}

// AddAll adds entries in name order.
func (z *ZipWriter) AddAll(entries map[string][]byte) error {
	names := make([]string, 0, len(entries))
	for n := range entries {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		if err := z.Add(n, entries[n]); err != nil {
			return err
		}
	}
	return nil
}

func (z *ZipWriter) add(name string, data []byte, method uint16) error {
	// Only the DOS time fields are set. A non-zero Modified adds an
	// extended timestamp extra field, which would move the mimetype
	// payload away from offset 38.
	date, tm := dosTime(z.modTime)
	hdr := &zip.FileHeader{Name: name, Method: method, ModifiedDate: date, ModifiedTime: tm}
	w, err := z.zw.CreateHeader(hdr)
	if err != nil {
		return errors.NewIO("create entry", name, err)
	}
	if _, err := w.Write(data); err != nil {
		return errors.NewIO("write entry", name, err)
	}
	return nil
}

func dosTime(t time.Time) (date, tm uint16) {
	if t.Year() < 1980 {
		t = time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	date = uint16(t.Day() + int(t.Month())<<5 + (t.Year()-1980)<<9)
	tm = uint16(t.Second()/2 + t.Minute()<<5 + t.Hour()<<11)
	return date, tm
}

// Close finishes the archive.
func (z *ZipWriter) Close() error {
	return z.zw.Close()
}

// ZipReader gives name-based access to a zip held in memory.
type ZipReader struct {
	files map[string]*zip.File
	names []string
}

// OpenZip reads the central directory of data.
func OpenZip(data []byte) (*ZipReader, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, errors.NewParse("zip", "", err.Error())
	}
	r := &ZipReader{files: make(map[string]*zip.File, len(zr.File))}
	for _, f := range zr.File {
		name := path.Clean(f.Name)
		r.files[name] = f
		r.names = append(r.names, name)
	}
	return r, nil
}

// Has reports whether the archive holds name.
func (r *ZipReader) Has(name string) bool {
	_, ok := r.files[path.Clean(name)]
	return ok
}

// Names returns entry names in archive order.
func (r *ZipReader) Names() []string {
	return append([]string(nil), r.names...)
}

// maxEntrySize bounds the decompressed size of one entry.
const maxEntrySize = 256 << 20

// Read returns the decompressed content of name.
func (r *ZipReader) Read(name string) ([]byte, error) {
	f, ok := r.files[path.Clean(name)]
	if !ok {
		return nil, errors.NewNotFound("zip entry", name)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, errors.NewIO("open entry", name, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(io.LimitReader(rc, maxEntrySize+1))
	if err != nil {
		return nil, errors.NewIO("read entry", name, err)
	}
	if len(data) > maxEntrySize {
		return nil, errors.NewValidation(name, fmt.Sprintf("entry larger than %d bytes", maxEntrySize))
	}
	return data, nil
}
