package codec

import (
	"fmt"

	"github.com/FocuswithJustin/folio/core/fonts"
	"github.com/FocuswithJustin/folio/internal/logging"
)

// WarningKind classifies a recoverable load or save anomaly.
type WarningKind int

const (
	DataLoss WarningKind = iota + 1
	FontSubstitution
	AmbiguousEncoding
	MissingStyle
	UnresolvedResource
	MinorFormattingLoss
)

func (k WarningKind) String() string {
	switch k {
	case DataLoss:
		return "DataLoss"
	case FontSubstitution:
		return "FontSubstitution"
	case AmbiguousEncoding:
		return "AmbiguousEncoding"
	case MissingStyle:
		return "MissingStyle"
	case UnresolvedResource:
		return "UnresolvedResource"
	case MinorFormattingLoss:
		return "MinorFormattingLoss"
	default:
		return "Unknown"
	}
}

// Warning describes one anomaly. Source is the codec name or "font".
type Warning struct {
	Source      string
	Kind        WarningKind
	Description string
}

func (w Warning) String() string {
	return fmt.Sprintf("%s: %s: %s", w.Source, w.Kind, w.Description)
}

// WarningSink receives warnings while a document is loaded or saved.
type WarningSink interface {
	Warning(w Warning)
}

// WarningCollector is a WarningSink that keeps every warning in order.
type WarningCollector struct {
	items []Warning
}

// Warning implements WarningSink.
func (c *WarningCollector) Warning(w Warning) {
	c.items = append(c.items, w)
}

// All returns the collected warnings.
func (c *WarningCollector) All() []Warning {
	return append([]Warning(nil), c.items...)
}

// Len returns the number of warnings.
func (c *WarningCollector) Len() int {
	return len(c.items)
}

// Has reports whether a warning of kind k was collected.
func (c *WarningCollector) Has(k WarningKind) bool {
	for _, w := range c.items {
		if w.Kind == k {
			return true
		}
	}
	return false
}

// Clear drops all warnings.
func (c *WarningCollector) Clear() {
	c.items = nil
}

func emit(sink WarningSink, w Warning) {
	logging.LoadWarning(w.Source, w.Kind.String(), w.Description)
	if sink != nil {
		sink.Warning(w)
	}
}

// fontWarner forwards font substitutions to a warning sink.
type fontWarner struct {
	sink WarningSink
}

func (f fontWarner) FontSubstituted(r fonts.Resolution) {
	emit(f.sink, Warning{
		Source:      "font",
		Kind:        FontSubstitution,
		Description: fmt.Sprintf("font %q is not available, using %q", r.Requested, r.Resolved),
	})
}
