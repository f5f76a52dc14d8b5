// Package base provides common functionality and utilities for format codecs.
// It reduces code duplication by abstracting common patterns found across
// different codecs: head-based detection, deterministic zip containers and
// the tree plumbing shared by loaders and savers.
package base

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/FocuswithJustin/folio/core/codec"
	"github.com/FocuswithJustin/folio/core/dom"
	"github.com/FocuswithJustin/folio/core/errors"
)

// DetectConfig contains configuration for format detection.
type DetectConfig struct {
	// FormatName is used in the detection reason
	FormatName string
	// Magic lists byte prefixes; any one found at Offset is a match
	Magic [][]byte
	// Offset is where Magic is expected
	Offset int
	// ContentMarkers are strings that must all be present in the head
	ContentMarkers []string
	// Confidence is reported on a match
	Confidence int
	// CustomValidator is an optional function for additional validation.
	// It runs when neither Magic nor ContentMarkers matched.
	CustomValidator func(head []byte) (bool, string)
	// Encrypted reports whether a matched head is encrypted
	Encrypted func(head []byte) bool
}

// Detect performs common detection logic on the head of an input.
func Detect(head []byte, config DetectConfig) codec.DetectResult {
	match := func(reason string) codec.DetectResult {
		res := codec.DetectResult{Detected: true, Confidence: config.Confidence, Reason: reason}
		if config.Encrypted != nil {
			res.Encrypted = config.Encrypted(head)
		}
		return res
	}

	if len(config.Magic) > 0 && len(head) > config.Offset {
		for _, m := range config.Magic {
			if bytes.HasPrefix(head[config.Offset:], m) {
				return match(fmt.Sprintf("%s magic bytes detected", config.FormatName))
			}
		}
	}

	if len(config.ContentMarkers) > 0 {
		allMarkersFound := true
		for _, marker := range config.ContentMarkers {
			if !bytes.Contains(head, []byte(marker)) {
				allMarkersFound = false
				break
			}
		}
		if allMarkersFound {
			return match(fmt.Sprintf("%s markers detected", config.FormatName))
		}
	}

	if config.CustomValidator != nil {
		if ok, reason := config.CustomValidator(head); ok {
			return match(reason)
		}
	}

	return codec.DetectResult{Reason: fmt.Sprintf("not a %s file", config.FormatName)}
}

// HasPrefixFold reports whether head starts with prefix, ignoring ASCII case
// and leading whitespace or a UTF-8 byte order mark.
func HasPrefixFold(head []byte, prefix string) bool {
	head = bytes.TrimPrefix(head, []byte{0xEF, 0xBB, 0xBF})
	head = bytes.TrimLeft(head, " \t\r\n")
	if len(head) < len(prefix) {
		return false
	}
	return strings.EqualFold(string(head[:len(prefix)]), prefix)
}

// UnsupportedOperationError returns a standard error for unsupported operations.
func UnsupportedOperationError(operation, format string) error {
	return errors.NewUnsupported(operation, fmt.Sprintf("%s format does not support %s", format, operation))
}

// AppendText adds text to paragraph p as runs with formatting f. Vertical
// tabs become line breaks and form feeds become page breaks.
func AppendText(doc *dom.Document, p dom.NodeID, text string, f dom.Formatting) error {
	var run strings.Builder
	flush := func() error {
		if run.Len() == 0 {
			return nil
		}
		err := doc.AppendChild(p, doc.NewRun(run.String(), f))
		run.Reset()
		return err
	}
	for _, r := range text {
		var kind dom.BreakType
		switch r {
		case dom.CharLineBreak:
			kind = dom.BreakLine
		case dom.CharPageBreak:
			kind = dom.BreakPage
		case dom.CharColumnBreak:
			kind = dom.BreakColumn
		default:
			run.WriteRune(r)
			continue
		}
		if err := flush(); err != nil {
			return err
		}
		if err := doc.AppendChild(p, doc.NewBreak(kind)); err != nil {
			return err
		}
	}
	return flush()
}

// NewSection appends a section to doc and returns it with its body.
func NewSection(doc *dom.Document) (section, body dom.NodeID, err error) {
	section = doc.NewSection()
	if err := doc.AppendChild(doc.Root(), section); err != nil {
		return dom.NoNode, dom.NoNode, err
	}
	return section, doc.Body(section), nil
}

// EffectiveFormat merges direct formatting of node with its style chain.
func EffectiveFormat(doc *dom.Document, node dom.NodeID) dom.Formatting {
	f := doc.Format(node)
	if f.Style == "" {
		return f
	}
	style := f.Style
	merged := f.Merge(doc.Styles().Resolve(style))
	merged.Style = style
	return merged
}
