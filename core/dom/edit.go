package dom

import (
	"strings"
	"unicode"

	"github.com/FocuswithJustin/folio/core/errors"
)

// EnsureMinimum makes sure the document has a section with a body holding
// at least one paragraph.
func (d *Document) EnsureMinimum() {
	sec := d.LastSection()
	if sec == NoNode {
		sec = d.NewSection()
		_ = d.AppendChild(d.root, sec)
	}
	body := d.Body(sec)
	if body == NoNode {
		body = d.mustNew(NodeBody)
		_ = d.InsertBefore(sec, body, d.FirstChild(sec))
	}
	if len(d.ChildNodes(body, NodeParagraph, false)) == 0 {
		_ = d.AppendChild(body, d.NewParagraph(""))
	}
}

// JoinRunsWithSameFormatting merges adjacent runs with equal formatting
// and no pending revision. It returns the number of joins.
func (d *Document) JoinRunsWithSameFormatting() int {
	resume := d.SuspendHook()
	defer resume()

	joins := 0
	for _, p := range d.ChildNodes(d.root, NodeTypeAny, true) {
		if t := d.Type(p); t != NodeParagraph && t != NodeSmartTag {
			continue
		}
		prev := NoNode
		for _, c := range d.Children(p) {
			if d.Type(c) != NodeRun || d.nodes[c].content != nil || d.nodes[c].fmtMark != nil {
				prev = NoNode
				continue
			}
			if prev != NoNode && d.nodes[prev].format == d.nodes[c].format {
				d.nodes[prev].text += d.nodes[c].text
				_ = d.Delete(c)
				joins++
				continue
			}
			prev = c
		}
	}
	return joins
}

// CleanupOptions selects what Cleanup removes.
type CleanupOptions struct {
	UnusedStyles    bool
	UnusedLists     bool
	DuplicateStyles bool
}

// CleanupResult counts what Cleanup removed.
type CleanupResult struct {
	Styles int
	Lists  int
}

// Cleanup removes unreferenced or duplicate styles and lists.
func (d *Document) Cleanup(opts CleanupOptions) CleanupResult {
	var res CleanupResult
	all := d.ChildNodes(d.root, NodeTypeAny, true)

	if opts.DuplicateStyles {
		seen := map[Style]string{}
		rename := map[string]string{}
		for _, name := range d.styles.Names() {
			st, _ := d.styles.Get(name)
			if st.BuiltIn {
				continue
			}
			key := st
			key.Name = ""
			if first, ok := seen[key]; ok {
				rename[name] = first
				continue
			}
			seen[key] = name
		}
		for _, n := range all {
			if to, ok := rename[d.nodes[n].format.Style]; ok {
				d.nodes[n].format.Style = to
			}
		}
		for _, name := range d.styles.Names() {
			st, _ := d.styles.Get(name)
			if to, ok := rename[st.BasedOn]; ok {
				st.BasedOn = to
				d.styles.Restore(st)
			}
		}
		for from := range rename {
			if d.styles.Remove(from) == nil {
				res.Styles++
			}
		}
	}

	if opts.UnusedStyles {
		used := map[string]bool{}
		for _, n := range all {
			for name := d.nodes[n].format.Style; name != "" && !used[name]; {
				used[name] = true
				st, ok := d.styles.Get(name)
				if !ok {
					break
				}
				name = st.BasedOn
			}
		}
		for _, name := range d.styles.Names() {
			st, _ := d.styles.Get(name)
			if !st.BuiltIn && !used[name] && d.styles.Remove(name) == nil {
				res.Styles++
			}
		}
	}

	if opts.UnusedLists {
		used := map[int]bool{}
		for _, n := range all {
			if id := d.nodes[n].format.ListID; id != 0 {
				used[id] = true
			}
		}
		for _, id := range d.lists.IDs() {
			if !used[id] {
				d.lists.Remove(id)
				res.Lists++
			}
		}
	}
	return res
}

// JoinTables moves every row of second to the end of first and removes
// second. While revisions are tracked the rows are recorded as moves and
// second as a deletion.
func (d *Document) JoinTables(first, second NodeID) error {
	if d.Type(first) != NodeTable || d.Type(second) != NodeTable {
		return errors.NewValidation("tables", "both nodes must be tables")
	}
	if first == second {
		return errors.NewValidation("tables", "cannot join a table with itself")
	}
	for _, row := range d.Children(second) {
		if err := d.AppendChild(first, row); err != nil {
			return err
		}
	}
	return d.Remove(second)
}

// UpdateWordCount refreshes the word, character and paragraph counts of
// the built-in properties from the section bodies. Line and page counts
// need a layout pass and are left unchanged.
func (d *Document) UpdateWordCount() {
	var words, chars, withSpaces, paras int
	for _, sec := range d.Sections() {
		for _, p := range d.ChildNodes(d.Body(sec), NodeParagraph, true) {
			text := d.ParagraphText(p)
			if strings.TrimSpace(text) != "" {
				paras++
			}
			words += len(strings.Fields(text))
			for _, r := range text {
				if r == '\r' || r == '\n' {
					continue
				}
				withSpaces++
				if !unicode.IsSpace(r) {
					chars++
				}
			}
		}
	}
	d.Props.Words = words
	d.Props.Characters = chars
	d.Props.CharactersWithSpaces = withSpaces
	d.Props.Paragraphs = paras
}

// RemoveMacros drops the macro project.
func (d *Document) RemoveMacros() {
	if d.VBA != nil {
		d.VBA = nil
		d.bump()
	}
}
