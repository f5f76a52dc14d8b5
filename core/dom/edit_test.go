package dom

import (
	"errors"
	"testing"

	ferrors "github.com/FocuswithJustin/folio/core/errors"
)

func TestEnsureMinimum(t *testing.T) {
	d := NewEmpty()
	if len(d.Sections()) != 0 {
		t.Fatal("NewEmpty() has sections")
	}
	d.EnsureMinimum()
	d.EnsureMinimum()
	if got := len(d.Sections()); got != 1 {
		t.Errorf("len(Sections()) = %d, want 1", got)
	}
	if got := len(d.ChildNodes(d.Root(), NodeParagraph, true)); got != 1 {
		t.Errorf("paragraphs = %d, want 1", got)
	}
}

func TestJoinRunsWithSameFormatting(t *testing.T) {
	d := New()
	p := d.FirstChild(d.Body(d.FirstSection()))
	bold := Formatting{Bold: true}
	for _, r := range []struct {
		text string
		f    Formatting
	}{{"a", bold}, {"b", bold}, {"c", Formatting{}}, {"d", Formatting{}}, {"e", Formatting{}}} {
		_ = d.AppendChild(p, d.NewRun(r.text, r.f))
	}
	_ = d.AppendChild(p, d.NewBreak(BreakLine))
	_ = d.AppendChild(p, d.NewRun("f", Formatting{}))

	if got := d.JoinRunsWithSameFormatting(); got != 3 {
		t.Errorf("JoinRunsWithSameFormatting() = %d, want 3", got)
	}
	runs := d.ChildNodes(p, NodeRun, false)
	if len(runs) != 3 {
		t.Fatalf("runs = %d, want 3", len(runs))
	}
	if d.Text(runs[0]) != "ab" || d.Text(runs[1]) != "cde" || d.Text(runs[2]) != "f" {
		t.Errorf("run texts = %q %q %q", d.Text(runs[0]), d.Text(runs[1]), d.Text(runs[2]))
	}
}

func TestCleanup(t *testing.T) {
	d := New()
	styles := d.Styles()
	_ = styles.Add(Style{Name: "Used", Format: Formatting{Bold: true}, BasedOn: "Base"})
	_ = styles.Add(Style{Name: "Base", Format: Formatting{Size: 10}})
	_ = styles.Add(Style{Name: "Unused"})
	_ = styles.Add(Style{Name: "UsedCopy", Format: Formatting{Bold: true}, BasedOn: "Base"})
	used := d.Lists().AddBullet()
	d.Lists().AddNumbered()

	p := d.FirstChild(d.Body(d.FirstSection()))
	_ = d.SetFormat(p, Formatting{Style: "UsedCopy", ListID: used})

	res := d.Cleanup(CleanupOptions{UnusedStyles: true, UnusedLists: true, DuplicateStyles: true})
	if res.Styles != 2 || res.Lists != 1 {
		t.Errorf("Cleanup() = %+v, want 2 styles, 1 list", res)
	}
	if got := d.Format(p).Style; got != "Used" {
		t.Errorf("paragraph style = %q, want %q", got, "Used")
	}
	for _, name := range []string{"Normal", "Used", "Base"} {
		if _, ok := styles.Get(name); !ok {
			t.Errorf("style %q was removed", name)
		}
	}
	if _, ok := d.Lists().Get(used); !ok {
		t.Error("used list was removed")
	}
}

func TestJoinTables(t *testing.T) {
	d := New()
	b := NewBuilder(d)
	var tables []NodeID
	for _, s := range []string{"first", "second"} {
		tbl, _ := b.StartTable()
		_, _ = b.InsertCell()
		_, _ = b.Write(s)
		_, _ = b.EndRow()
		_, _ = b.EndTable()
		_ = b.Writeln("between")
		tables = append(tables, tbl)
	}

	if err := d.JoinTables(tables[0], tables[1]); err != nil {
		t.Fatalf("JoinTables() error = %v", err)
	}
	if got := d.ChildCount(tables[0]); got != 2 {
		t.Errorf("rows = %d, want 2", got)
	}
	if d.IsAttached(tables[1]) {
		t.Error("second table still attached")
	}
	if err := d.JoinTables(tables[0], d.FirstSection()); !errors.Is(err, ferrors.ErrInvalidInput) {
		t.Errorf("JoinTables(non-table) error = %v, want ErrInvalidInput", err)
	}
}

func TestUpdateWordCount(t *testing.T) {
	d := New()
	b := NewBuilder(d)
	_ = b.Writeln("Hello big world")
	_, _ = b.Write("Bye")

	d.UpdateWordCount()
	p := d.Props
	if p.Words != 4 || p.Characters != 16 || p.CharactersWithSpaces != 18 || p.Paragraphs != 2 {
		t.Errorf("counts = %+v", p)
	}
}

func TestRemoveMacros(t *testing.T) {
	d := New()
	d.VBA = &VBAProject{Name: "Project", Modules: []VBAModule{{Name: "Module1", Type: VBAProcedural, Source: "Sub A()\nEnd Sub"}}}
	if _, ok := d.VBA.Module("Module1"); !ok {
		t.Fatal("Module() did not find Module1")
	}
	d.RemoveMacros()
	if d.VBA != nil {
		t.Error("RemoveMacros() kept the project")
	}
}

func TestVariablesAndParts(t *testing.T) {
	d := New()
	v := d.Variables()
	v.Set("b", "2")
	v.Set("a", "1")
	v.Set("b", "3")
	if got := v.Keys(); len(got) != 2 || got[0] != "b" || got[1] != "a" {
		t.Errorf("Keys() = %v, want [b a]", got)
	}
	if s, _ := v.Get("b"); s != "3" {
		t.Errorf("Get(b) = %q, want %q", s, "3")
	}
	if _, _, err := v.At(2); !errors.Is(err, ferrors.ErrRange) {
		t.Errorf("At(2) error = %v, want ErrRange", err)
	}
	v.Remove("b")
	if v.Contains("b") || v.IndexOf("a") != 0 {
		t.Error("Remove(b) left the table inconsistent")
	}

	parts := d.CustomParts()
	parts.Add(CustomPart{Name: "/custom/one.xml", ContentType: "application/xml", Data: []byte("<a/>")})
	parts.Add(CustomPart{Name: "https://example.com/x", External: true})
	if err := parts.RemoveAt(3); !errors.Is(err, ferrors.ErrRange) {
		t.Errorf("RemoveAt(3) error = %v, want ErrRange", err)
	}
	c := d.Clone()
	parts.Clear()
	if c.CustomParts().Len() != 2 {
		t.Error("clone shares custom parts with the source")
	}
}
