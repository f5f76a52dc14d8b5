package dom

import (
	"sort"

	"github.com/FocuswithJustin/folio/core/errors"
)

// Formatting holds the direct formatting of a run or paragraph. The zero
// value means "inherit everything". The struct is comparable with ==.
type Formatting struct {
	// Style is the name of the applied paragraph or character style.
	Style string `json:"style,omitempty"`
	// Font is the font family name.
	Font string `json:"font,omitempty"`
	// Size is the font size in points.
	Size float64 `json:"size,omitempty"`
	// Bold, Italic, Underline and Strike are character toggles.
	Bold      bool `json:"bold,omitempty"`
	Italic    bool `json:"italic,omitempty"`
	Underline bool `json:"underline,omitempty"`
	Strike    bool `json:"strike,omitempty"`
	// Color is a hex RRGGBB string.
	Color string `json:"color,omitempty"`
	// Highlight is a hex RRGGBB string.
	Highlight string `json:"highlight,omitempty"`
	// Align is paragraph alignment.
	Align Alignment `json:"align,omitempty"`
	// ListID references a ListDef; zero means not a list item.
	ListID int `json:"list_id,omitempty"`
	// ListLevel is the 0-based list level.
	ListLevel int `json:"list_level,omitempty"`
	// SpaceAfter is paragraph spacing after, in points.
	SpaceAfter float64 `json:"space_after,omitempty"`
}

// IsZero reports whether f carries no direct formatting.
func (f Formatting) IsZero() bool {
	return f == Formatting{}
}

// Merge returns f with every unset field taken from base.
func (f Formatting) Merge(base Formatting) Formatting {
	out := base
	if f.Style != "" {
		out.Style = f.Style
	}
	if f.Font != "" {
		out.Font = f.Font
	}
	if f.Size != 0 {
		out.Size = f.Size
	}
	out.Bold = out.Bold || f.Bold
	out.Italic = out.Italic || f.Italic
	out.Underline = out.Underline || f.Underline
	out.Strike = out.Strike || f.Strike
	if f.Color != "" {
		out.Color = f.Color
	}
	if f.Highlight != "" {
		out.Highlight = f.Highlight
	}
	if f.Align != "" {
		out.Align = f.Align
	}
	if f.ListID != 0 {
		out.ListID = f.ListID
		out.ListLevel = f.ListLevel
	}
	if f.SpaceAfter != 0 {
		out.SpaceAfter = f.SpaceAfter
	}
	return out
}

// StyleType classifies a style definition.
type StyleType string

const (
	StyleParagraph StyleType = "paragraph"
	StyleCharacter StyleType = "character"
	StyleTable     StyleType = "table"
	StyleList      StyleType = "list"
)

// Style is a named formatting definition.
type Style struct {
	Name    string     `json:"name"`
	Type    StyleType  `json:"type"`
	BasedOn string     `json:"based_on,omitempty"`
	Format  Formatting `json:"format"`
	BuiltIn bool       `json:"built_in,omitempty"`
}

// StyleSheet is the ordered collection of a document's styles.
type StyleSheet struct {
	doc   *Document
	names []string
	byKey map[string]Style
}

func newStyleSheet(doc *Document) *StyleSheet {
	s := &StyleSheet{doc: doc, byKey: make(map[string]Style)}
	s.names = append(s.names, "Normal")
	s.byKey["Normal"] = Style{Name: "Normal", Type: StyleParagraph, BuiltIn: true}
	return s
}

// Get returns the style named name.
func (s *StyleSheet) Get(name string) (Style, bool) {
	st, ok := s.byKey[name]
	return st, ok
}

// Names returns style names in definition order.
func (s *StyleSheet) Names() []string {
	return append([]string(nil), s.names...)
}

// Len returns the number of styles.
func (s *StyleSheet) Len() int {
	return len(s.names)
}

// Add defines a new style. Redefining an existing name fails; use Update.
func (s *StyleSheet) Add(st Style) error {
	if st.Name == "" {
		return errors.NewValidation("style.name", "must not be empty")
	}
	if _, ok := s.byKey[st.Name]; ok {
		return errors.NewValidation("style.name", "duplicate style "+st.Name)
	}
	if st.Type == "" {
		st.Type = StyleParagraph
	}
	s.names = append(s.names, st.Name)
	s.byKey[st.Name] = st
	s.doc.bump()
	return nil
}

// Update replaces the definition of an existing style. While revisions are
// tracked the previous definition is kept by the mutation hook.
func (s *StyleSheet) Update(st Style) error {
	old, ok := s.byKey[st.Name]
	if !ok {
		return errors.NewNotFound("style", st.Name)
	}
	if st.Type == "" {
		st.Type = old.Type
	}
	if h := s.doc.activeHook(); h != nil {
		h.StyleChanging(s.doc, old)
	}
	s.byKey[st.Name] = st
	s.doc.bump()
	return nil
}

// Restore puts a definition back without consulting the mutation hook.
func (s *StyleSheet) Restore(st Style) {
	if _, ok := s.byKey[st.Name]; !ok {
		s.names = append(s.names, st.Name)
	}
	s.byKey[st.Name] = st
	s.doc.bump()
}

// Remove deletes a style. Built-in styles cannot be removed.
func (s *StyleSheet) Remove(name string) error {
	st, ok := s.byKey[name]
	if !ok {
		return errors.NewNotFound("style", name)
	}
	if st.BuiltIn {
		return errors.NewValidation("style", "cannot remove built-in style "+name)
	}
	delete(s.byKey, name)
	for i, n := range s.names {
		if n == name {
			s.names = append(s.names[:i], s.names[i+1:]...)
			break
		}
	}
	s.doc.bump()
	return nil
}

// Resolve returns the effective formatting of style name, following BasedOn.
func (s *StyleSheet) Resolve(name string) Formatting {
	seen := map[string]bool{}
	var chain []Formatting
	for name != "" && !seen[name] {
		seen[name] = true
		st, ok := s.byKey[name]
		if !ok {
			break
		}
		chain = append(chain, st.Format)
		name = st.BasedOn
	}
	var out Formatting
	for i := len(chain) - 1; i >= 0; i-- {
		out = chain[i].Merge(out)
	}
	out.Style = ""
	return out
}

func (s *StyleSheet) clone(doc *Document) *StyleSheet {
	c := &StyleSheet{doc: doc, names: append([]string(nil), s.names...), byKey: make(map[string]Style, len(s.byKey))}
	for k, v := range s.byKey {
		c.byKey[k] = v
	}
	return c
}

// NumberStyle is the numbering scheme of a list level.
type NumberStyle string

const (
	NumberBullet     NumberStyle = "bullet"
	NumberArabic     NumberStyle = "arabic"
	NumberLowerLatin NumberStyle = "lower_letter"
	NumberUpperRoman NumberStyle = "upper_roman"
)

// ListLevel describes one nesting level of a list.
type ListLevel struct {
	Style NumberStyle `json:"style"`
	// Text is the label template, e.g. "%1." or "•".
	Text string `json:"text"`
	// Indent is the left indent in points.
	Indent float64 `json:"indent,omitempty"`
}

// ListDef is a list definition referenced by paragraphs via Formatting.ListID.
type ListDef struct {
	ID     int         `json:"id"`
	Levels []ListLevel `json:"levels"`
}

// Lists is the collection of list definitions.
type Lists struct {
	doc  *Document
	defs map[int]ListDef
	next int
}

func newLists(doc *Document) *Lists {
	return &Lists{doc: doc, defs: make(map[int]ListDef), next: 1}
}

// Add registers a list built from the given levels and returns its ID.
func (l *Lists) Add(levels ...ListLevel) int {
	id := l.next
	l.next++
	l.defs[id] = ListDef{ID: id, Levels: append([]ListLevel(nil), levels...)}
	l.doc.bump()
	return id
}

// AddBullet registers a single-level bullet list.
func (l *Lists) AddBullet() int {
	return l.Add(ListLevel{Style: NumberBullet, Text: "•", Indent: 36})
}

// AddNumbered registers a single-level "1." list.
func (l *Lists) AddNumbered() int {
	return l.Add(ListLevel{Style: NumberArabic, Text: "%1.", Indent: 36})
}

// Put installs def under its own ID, used by loaders.
func (l *Lists) Put(def ListDef) {
	l.defs[def.ID] = def
	if def.ID >= l.next {
		l.next = def.ID + 1
	}
	l.doc.bump()
}

// Get returns the list with the given ID.
func (l *Lists) Get(id int) (ListDef, bool) {
	d, ok := l.defs[id]
	return d, ok
}

// Remove deletes a list definition.
func (l *Lists) Remove(id int) {
	delete(l.defs, id)
	l.doc.bump()
}

// IDs returns list IDs in ascending order.
func (l *Lists) IDs() []int {
	ids := make([]int, 0, len(l.defs))
	for id := range l.defs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Len returns the number of list definitions.
func (l *Lists) Len() int {
	return len(l.defs)
}

func (l *Lists) clone(doc *Document) *Lists {
	c := &Lists{doc: doc, defs: make(map[int]ListDef, len(l.defs)), next: l.next}
	for id, d := range l.defs {
		d.Levels = append([]ListLevel(nil), d.Levels...)
		c.defs[id] = d
	}
	return c
}
