package dom

import (
	"errors"
	"testing"

	ferrors "github.com/FocuswithJustin/folio/core/errors"
)

func TestStyleSheet(t *testing.T) {
	d := New()
	s := d.Styles()
	if _, ok := s.Get("Normal"); !ok {
		t.Fatal("Normal style missing")
	}
	if err := s.Add(Style{Name: "Heading", Format: Formatting{Size: 16, Bold: true}}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if err := s.Add(Style{Name: "Heading"}); !errors.Is(err, ferrors.ErrInvalidInput) {
		t.Errorf("Add(duplicate) error = %v, want ErrInvalidInput", err)
	}
	if err := s.Add(Style{Name: "Sub", BasedOn: "Heading", Format: Formatting{Size: 12, Italic: true}}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	got := s.Resolve("Sub")
	want := Formatting{Size: 12, Bold: true, Italic: true}
	if got != want {
		t.Errorf("Resolve(Sub) = %+v, want %+v", got, want)
	}
	if err := s.Update(Style{Name: "Missing"}); !errors.Is(err, ferrors.ErrNotFound) {
		t.Errorf("Update(missing) error = %v, want ErrNotFound", err)
	}
	if err := s.Remove("Normal"); err == nil {
		t.Error("Remove(Normal) succeeded")
	}
	if err := s.Remove("Sub"); err != nil || s.Len() != 2 {
		t.Errorf("Remove(Sub) err=%v Len=%d", err, s.Len())
	}
}

func TestFormattingMerge(t *testing.T) {
	base := Formatting{Font: "Arial", Size: 10, Color: "000000"}
	f := Formatting{Size: 14, Bold: true}
	got := f.Merge(base)
	want := Formatting{Font: "Arial", Size: 14, Bold: true, Color: "000000"}
	if got != want {
		t.Errorf("Merge() = %+v, want %+v", got, want)
	}
	if !(Formatting{}).IsZero() || f.IsZero() {
		t.Error("IsZero() wrong")
	}
}

func TestLists(t *testing.T) {
	d := New()
	l := d.Lists()
	a := l.AddBullet()
	l.Put(ListDef{ID: 10, Levels: []ListLevel{{Style: NumberUpperRoman, Text: "%1)"}}})
	b := l.AddNumbered()
	if a != 1 || b != 11 {
		t.Errorf("IDs = %d, %d, want 1, 11", a, b)
	}
	if ids := l.IDs(); len(ids) != 3 || ids[1] != 10 {
		t.Errorf("IDs() = %v", ids)
	}
	l.Remove(10)
	if _, ok := l.Get(10); ok || l.Len() != 2 {
		t.Error("Remove(10) failed")
	}
}

func TestNodeTypeText(t *testing.T) {
	for _, tt := range []NodeType{NodeParagraph, NodeCell, NodeTypeAny} {
		b, _ := tt.MarshalText()
		var back NodeType
		if err := back.UnmarshalText(b); err != nil || back != tt {
			t.Errorf("round trip of %v = %v, %v", tt, back, err)
		}
	}
	if _, err := ParseNodeType("Widget"); err == nil {
		t.Error("ParseNodeType(Widget) succeeded")
	}
	if !NodeRow.CanContain(NodeCell) || NodeBody.CanContain(NodeCell) {
		t.Error("CanContain() grammar wrong")
	}
	if !NodeRun.IsInline() || NodeTable.IsInline() {
		t.Error("IsInline() wrong")
	}
}
