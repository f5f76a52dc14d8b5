package nativez

import (
	"bytes"
	"fmt"
	"io"
	"testing"

	"github.com/ulikunitz/xz"

	"github.com/FocuswithJustin/folio/core/codec"
	"github.com/FocuswithJustin/folio/core/dom"
	"github.com/FocuswithJustin/folio/core/errors"
)

func sample() *dom.Document {
	doc := dom.New()
	b := dom.NewBuilder(doc)
	_ = b.Writeln("Confidential")
	_, _ = b.Write("second paragraph")
	return doc
}

func TestRoundTrip(t *testing.T) {
	tests := []struct {
		name     string
		password string
	}{
		{"plain", ""},
		{"encrypted", "s3cret"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := sample()
			var buf bytes.Buffer
			if err := (&Handler{}).Save(&buf, doc, &codec.SaveOptions{Password: tt.password}); err != nil {
				t.Fatal(err)
			}
			res := (&Handler{}).Detect(buf.Bytes())
			if !res.Detected || res.Encrypted != (tt.password != "") {
				t.Errorf("Detect() = %+v", res)
			}
			if tt.password != "" && bytes.Contains(buf.Bytes(), []byte("Confidential")) {
				t.Error("plaintext visible in encrypted output")
			}

			got := dom.NewEmpty()
			if err := (&Handler{}).Load(bytes.NewReader(buf.Bytes()), got, &codec.LoadOptions{Password: tt.password}); err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if got.GetText(got.Root()) != doc.GetText(doc.Root()) {
				t.Errorf("GetText() = %q", got.GetText(got.Root()))
			}

			var again bytes.Buffer
			_ = (&Handler{}).Save(&again, doc, &codec.SaveOptions{Password: tt.password})
			if !bytes.Equal(buf.Bytes(), again.Bytes()) {
				t.Error("saves are not reproducible")
			}
		})
	}
}

func TestWrongPassword(t *testing.T) {
	var buf bytes.Buffer
	if err := (&Handler{}).Save(&buf, sample(), &codec.SaveOptions{Password: "right"}); err != nil {
		t.Fatal(err)
	}
	for _, pw := range []string{"", "wrong"} {
		t.Run("password="+pw, func(t *testing.T) {
			err := (&Handler{}).Load(bytes.NewReader(buf.Bytes()), dom.NewEmpty(), &codec.LoadOptions{Password: pw})
			if !errors.IsLoadKind(err, errors.WrongPassword) {
				t.Errorf("Load() error = %v, want wrong password", err)
			}
		})
	}

	// Through the registry the error keeps its kind.
	_, err := codec.Load(bytes.NewReader(buf.Bytes()), &codec.LoadOptions{Password: "wrong"})
	if !errors.IsLoadKind(err, errors.WrongPassword) {
		t.Errorf("codec.Load() error = %v", err)
	}
}

func TestCorruptInput(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
	}{
		{"short", []byte("FOL")},
		{"bad magic", []byte("NOPE\x01\x00")},
		{"bad stream", []byte("FOLZ\x01\x00garbage")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := (&Handler{}).Load(bytes.NewReader(tt.input), dom.NewEmpty(), nil)
			if !errors.Is(err, errors.ErrInvalidInput) {
				t.Errorf("Load() error = %v, want parse error", err)
			}
		})
	}
}

func TestWriterFailure(t *testing.T) {
	old := xzNewWriter
	xzNewWriter = func(w io.Writer) (*xz.Writer, error) { return nil, fmt.Errorf("no memory") }
	defer func() { xzNewWriter = old }()

	_, err := codec.Save(sample(), io.Discard, "nativez", nil)
	if !errors.IsSaveKind(err, errors.IOFailure) {
		t.Errorf("Save() error = %v", err)
	}
}
