package dom

import (
	"time"

	"github.com/FocuswithJustin/folio/core/errors"
)

// Variables is the document's string-keyed variable table, read by
// DOCVARIABLE fields. Iteration follows insertion order.
type Variables struct {
	keys []string
	vals map[string]string
}

func newVariables() *Variables {
	return &Variables{vals: make(map[string]string)}
}

// Set adds or replaces a variable.
func (v *Variables) Set(name, value string) {
	if _, ok := v.vals[name]; !ok {
		v.keys = append(v.keys, name)
	}
	v.vals[name] = value
}

// Get returns the value of a variable.
func (v *Variables) Get(name string) (string, bool) {
	s, ok := v.vals[name]
	return s, ok
}

// Contains reports whether name is defined.
func (v *Variables) Contains(name string) bool {
	_, ok := v.vals[name]
	return ok
}

// IndexOf returns the position of name, or -1.
func (v *Variables) IndexOf(name string) int {
	for i, k := range v.keys {
		if k == name {
			return i
		}
	}
	return -1
}

// At returns the variable at position i.
func (v *Variables) At(i int) (name, value string, err error) {
	if i < 0 || i >= len(v.keys) {
		return "", "", errors.NewRange("variables", i, len(v.keys))
	}
	return v.keys[i], v.vals[v.keys[i]], nil
}

// Remove deletes a variable; removing an unknown name is a no-op.
func (v *Variables) Remove(name string) {
	if i := v.IndexOf(name); i >= 0 {
		v.keys = append(v.keys[:i], v.keys[i+1:]...)
		delete(v.vals, name)
	}
}

// Clear removes all variables.
func (v *Variables) Clear() {
	v.keys = nil
	v.vals = make(map[string]string)
}

// Keys returns names in insertion order.
func (v *Variables) Keys() []string {
	return append([]string(nil), v.keys...)
}

// Len returns the number of variables.
func (v *Variables) Len() int {
	return len(v.keys)
}

func (v *Variables) clone() *Variables {
	c := newVariables()
	for _, k := range v.keys {
		c.Set(k, v.vals[k])
	}
	return c
}

// CustomPart is an arbitrary package part preserved across load and save.
type CustomPart struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	// External parts reference a URI instead of carrying data.
	External bool   `json:"external,omitempty"`
	Data     []byte `json:"data,omitempty"`
}

// CustomParts is the ordered set of custom parts.
type CustomParts struct {
	parts []CustomPart
}

// Add appends a part.
func (c *CustomParts) Add(p CustomPart) {
	p.Data = append([]byte(nil), p.Data...)
	c.parts = append(c.parts, p)
}

// At returns the part at i.
func (c *CustomParts) At(i int) (CustomPart, error) {
	if i < 0 || i >= len(c.parts) {
		return CustomPart{}, errors.NewRange("custom parts", i, len(c.parts))
	}
	return c.parts[i], nil
}

// RemoveAt deletes the part at i.
func (c *CustomParts) RemoveAt(i int) error {
	if i < 0 || i >= len(c.parts) {
		return errors.NewRange("custom parts", i, len(c.parts))
	}
	c.parts = append(c.parts[:i], c.parts[i+1:]...)
	return nil
}

// Clear removes all parts.
func (c *CustomParts) Clear() {
	c.parts = nil
}

// All returns a copy of the parts.
func (c *CustomParts) All() []CustomPart {
	return append([]CustomPart(nil), c.parts...)
}

// Len returns the number of parts.
func (c *CustomParts) Len() int {
	return len(c.parts)
}

func (c *CustomParts) clone() *CustomParts {
	out := &CustomParts{}
	for _, p := range c.parts {
		out.Add(p)
	}
	return out
}

// VBAModuleType classifies a macro module.
type VBAModuleType string

const (
	VBAProcedural VBAModuleType = "procedural"
	VBAClass      VBAModuleType = "class"
	VBADocument   VBAModuleType = "document"
)

// VBAModule is one macro module.
type VBAModule struct {
	Name   string        `json:"name"`
	Type   VBAModuleType `json:"type"`
	Source string        `json:"source"`
}

// VBAProject is the macro project embedded in a document.
type VBAProject struct {
	Name     string      `json:"name"`
	CodePage int         `json:"code_page,omitempty"`
	Signed   bool        `json:"signed,omitempty"`
	Modules  []VBAModule `json:"modules"`
}

// Clone returns a deep copy.
func (p *VBAProject) Clone() *VBAProject {
	if p == nil {
		return nil
	}
	c := *p
	c.Modules = append([]VBAModule(nil), p.Modules...)
	return &c
}

// Module returns the module named name.
func (p *VBAProject) Module(name string) (VBAModule, bool) {
	for _, m := range p.Modules {
		if m.Name == name {
			return m, true
		}
	}
	return VBAModule{}, false
}

// Properties are the built-in document properties.
type Properties struct {
	Title       string    `json:"title,omitempty"`
	Subject     string    `json:"subject,omitempty"`
	Author      string    `json:"author,omitempty"`
	LastSavedBy string    `json:"last_saved_by,omitempty"`
	Created     time.Time `json:"created,omitempty"`
	LastSaved   time.Time `json:"last_saved,omitempty"`
	// Counts are refreshed by UpdateWordCount.
	Words                int `json:"words,omitempty"`
	Characters           int `json:"characters,omitempty"`
	CharactersWithSpaces int `json:"characters_with_spaces,omitempty"`
	Paragraphs           int `json:"paragraphs,omitempty"`
	Lines                int `json:"lines,omitempty"`
	Pages                int `json:"pages,omitempty"`
	// RevisionNumber counts saves.
	RevisionNumber int `json:"revision_number,omitempty"`
	// Versions is the number of legacy stored versions.
	Versions int `json:"versions,omitempty"`
}

// PageSetup is section page geometry in points.
type PageSetup struct {
	Width        float64 `json:"width"`
	Height       float64 `json:"height"`
	MarginTop    float64 `json:"margin_top"`
	MarginBottom float64 `json:"margin_bottom"`
	MarginLeft   float64 `json:"margin_left"`
	MarginRight  float64 `json:"margin_right"`
	Columns      int     `json:"columns,omitempty"`
	ColumnGap    float64 `json:"column_gap,omitempty"`
}

// DefaultPageSetup is US Letter with one-inch margins.
func DefaultPageSetup() PageSetup {
	return PageSetup{
		Width: 612, Height: 792,
		MarginTop: 72, MarginBottom: 72, MarginLeft: 72, MarginRight: 72,
		Columns: 1, ColumnGap: 36,
	}
}
