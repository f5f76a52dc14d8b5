package codec

import (
	"bufio"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/FocuswithJustin/folio/core/dom"
	"github.com/FocuswithJustin/folio/core/errors"
	"github.com/FocuswithJustin/folio/internal/logging"
)

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// Save writes doc to w in the named format. Saving the same unmodified
// document twice with the same options produces identical bytes.
func Save(doc *dom.Document, w io.Writer, format string, opts *SaveOptions) (OutputMetadata, error) {
	start := time.Now()
	o := SaveOptions{}
	if opts != nil {
		o = *opts
	}
	o.parts = nil
	if format == "" {
		format = o.Format
	}
	o.Format = format

	c, ok := Get(format)
	if !ok {
		return OutputMetadata{}, errors.NewSave(errors.UnsupportedTargetFormat, format, nil)
	}
	d := c.Descriptor()
	if !d.CanSave {
		return OutputMetadata{}, errors.NewSave(errors.UnsupportedTargetFormat, d.Name,
			errors.NewUnsupported("save", d.ContentType+" output is not supported"))
	}
	if err := o.Err(); err != nil {
		return OutputMetadata{}, err
	}

	cw := &countingWriter{w: w}
	if err := c.Save(cw, doc, &o); err != nil {
		logging.CodecError(d.Name, "save", err)
		var se *errors.SaveError
		if errors.As(err, &se) {
			return OutputMetadata{}, err
		}
		if errors.Is(err, errors.ErrUnsupported) {
			return OutputMetadata{}, errors.NewSave(errors.UnsupportedTargetFormat, d.Name, err)
		}
		return OutputMetadata{}, errors.NewSave(errors.IOFailure, d.Name, err)
	}
	meta := OutputMetadata{ContentType: d.ContentType, BytesWritten: cw.n, Parts: o.parts}
	logging.CodecSave(d.Name, d.ContentType, cw.n, time.Since(start), "document_id", doc.ID)
	return meta, nil
}

// SaveFile writes doc to path. An empty format is taken from the extension.
func SaveFile(doc *dom.Document, path, format string, opts *SaveOptions) (OutputMetadata, error) {
	if format == "" && opts != nil {
		format = opts.Format
	}
	if format == "" {
		c, ok := ByExtension(path)
		if !ok {
			return OutputMetadata{}, errors.NewSave(errors.UnsupportedTargetFormat, strings.TrimPrefix(filepath.Ext(path), "."), nil)
		}
		format = c.Descriptor().Name
	}
	f, err := os.Create(path)
	if err != nil {
		return OutputMetadata{}, errors.NewSave(errors.IOFailure, format, errors.NewIO("create", path, err))
	}
	bw := bufio.NewWriter(f)
	meta, err := Save(doc, bw, format, opts)
	if err == nil {
		err = bw.Flush()
		if err != nil {
			err = errors.NewSave(errors.IOFailure, format, errors.NewIO("write", path, err))
		}
	}
	if cerr := f.Close(); err == nil && cerr != nil {
		err = errors.NewSave(errors.IOFailure, format, errors.NewIO("close", path, cerr))
	}
	if err != nil {
		_ = os.Remove(path)
		return OutputMetadata{}, err
	}
	return meta, nil
}

// ToString renders node as the named format would. "txt" renders field
// results only; other formats save a document holding a copy of node.
func ToString(doc *dom.Document, node dom.NodeID, format string) (string, error) {
	if err := doc.Check(node); err != nil {
		return "", err
	}
	if format == "txt" || format == "text" {
		return doc.ToText(node), nil
	}
	src := doc
	if node != doc.Root() {
		var err error
		if src, err = fragment(doc, node); err != nil {
			return "", err
		}
	}
	var buf bytes.Buffer
	if _, err := Save(src, &buf, format, nil); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// fragment builds a minimal document holding a copy of node.
func fragment(doc *dom.Document, node dom.NodeID) (*dom.Document, error) {
	out := dom.NewEmpty()
	out.Props = doc.Props
	if doc.Type(node) == dom.NodeSection {
		n, err := out.Import(doc, node)
		if err != nil {
			return nil, err
		}
		return out, out.AppendChild(out.Root(), n)
	}
	sec := out.NewSection()
	if err := out.AppendChild(out.Root(), sec); err != nil {
		return nil, err
	}
	body := out.Body(sec)

	var blocks []dom.NodeID
	switch t := doc.Type(node); {
	case t == dom.NodeParagraph || t == dom.NodeTable:
		blocks = []dom.NodeID{node}
	case t.IsStory() || t == dom.NodeCell:
		blocks = doc.Children(node)
	case t.IsInline():
		n, err := out.Import(doc, node)
		if err != nil {
			return nil, err
		}
		p := out.NewParagraph("")
		if err := out.AppendChild(p, n); err != nil {
			return nil, err
		}
		return out, out.AppendChild(body, p)
	case t == dom.NodeRow:
		n, err := out.Import(doc, node)
		if err != nil {
			return nil, err
		}
		tbl, _ := out.NewNode(dom.NodeTable)
		if err := out.AppendChild(tbl, n); err != nil {
			return nil, err
		}
		return out, out.AppendChild(body, tbl)
	default:
		return nil, errors.NewUnsupported("render", "cannot render a "+t.String()+" node alone")
	}
	for _, b := range blocks {
		n, err := out.Import(doc, b)
		if err != nil {
			return nil, err
		}
		if err := out.AppendChild(body, n); err != nil {
			return nil, err
		}
	}
	return out, nil
}
