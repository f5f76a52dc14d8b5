package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/FocuswithJustin/folio/core/codec"
	"github.com/FocuswithJustin/folio/core/compare"
	"github.com/FocuswithJustin/folio/core/dom"
	"github.com/FocuswithJustin/folio/core/field"
	"github.com/FocuswithJustin/folio/core/fonts"
	"github.com/FocuswithJustin/folio/core/layout"
	"github.com/FocuswithJustin/folio/core/revision"
	"github.com/FocuswithJustin/folio/internal/config"
)

// InputFlags are shared by commands that load a document.
type InputFlags struct {
	Path     string `arg:"" help:"Input document" type:"existingfile"`
	From     string `name:"from" help:"Force the input format instead of detecting it"`
	Password string `name:"password" help:"Password for encrypted input"`
	Encoding string `name:"encoding" help:"Text encoding of the input, e.g. windows-1251"`
}

// load reads the input, reporting warnings on stderr.
func (f InputFlags) load(cfg *config.Config) (*dom.Document, error) {
	warnings := &codec.WarningCollector{}
	opts := &codec.LoadOptions{
		Format:   f.From,
		Password: f.Password,
		Encoding: f.Encoding,
		BaseURI:  filepath.Dir(f.Path),
		Warnings: warnings,
	}
	// without font folders every font would count as missing
	if len(cfg.Fonts.Folders) > 0 {
		opts.Fonts = cfg.FontSettings()
	}
	doc, err := codec.LoadFile(f.Path, opts)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", f.Path, err)
	}
	for _, w := range warnings.All() {
		fmt.Fprintf(os.Stderr, "warning: %s\n", w)
	}
	return doc, nil
}

// OutputFlags are shared by commands that write a document.
type OutputFlags struct {
	Output string `arg:"" help:"Output document; the extension picks the format unless --to is set" type:"path"`
	To     string `name:"to" help:"Output format name"`
}

func (f OutputFlags) save(cfg *config.Config, doc *dom.Document) error {
	opts := cfg.SaveOptions()
	meta, err := codec.SaveFile(doc, f.Output, f.To, &opts)
	if err != nil {
		return fmt.Errorf("save %s: %w", f.Output, err)
	}
	fmt.Fprintf(stdout, "Wrote %s (%s, %d bytes)\n", f.Output, meta.ContentType, meta.BytesWritten)
	return nil
}

// TextCmd prints the plain text of a document.
type TextCmd struct {
	InputFlags
	Raw bool `name:"raw" help:"Print control characters as stored instead of plain text"`
}

func (c *TextCmd) Run(cfg *config.Config) error {
	doc, err := c.load(cfg)
	if err != nil {
		return err
	}
	if c.Raw {
		fmt.Fprint(stdout, doc.GetText(doc.Root()))
		return nil
	}
	fmt.Fprint(stdout, doc.ToText(doc.Root()))
	return nil
}

// ConvertCmd converts between formats.
type ConvertCmd struct {
	InputFlags
	OutputFlags
}

func (c *ConvertCmd) Run(cfg *config.Config) error {
	doc, err := c.load(cfg)
	if err != nil {
		return err
	}
	return c.save(cfg, doc)
}

// DetectCmd reports the format of a file without loading it.
type DetectCmd struct {
	Path string `arg:"" help:"File to inspect" type:"existingfile"`
}

func (c *DetectCmd) Run() error {
	f, err := os.Open(c.Path)
	if err != nil {
		return err
	}
	defer f.Close()
	info, err := codec.DetectFormat(f)
	if err != nil {
		return err
	}
	if info.Format == "" {
		fmt.Fprintf(stdout, "%s: unknown format\n", c.Path)
		return nil
	}
	fmt.Fprintf(stdout, "%s: %s (%s)\n", c.Path, info.Format, info.Descriptor.ContentType)
	if info.IsEncrypted {
		fmt.Fprintln(stdout, "  encrypted")
	}
	if info.Encoding.Name != "" {
		fmt.Fprintf(stdout, "  encoding: %s\n", info.Encoding.Name)
	}
	return nil
}

// InfoCmd prints document statistics.
type InfoCmd struct {
	InputFlags
}

func (c *InfoCmd) Run(cfg *config.Config) error {
	doc, err := c.load(cfg)
	if err != nil {
		return err
	}
	doc.UpdateWordCount()
	root := doc.Root()
	p := doc.Props
	fmt.Fprintf(stdout, "Format:      %s\n", doc.OriginalLoadFormat)
	if p.Title != "" {
		fmt.Fprintf(stdout, "Title:       %s\n", p.Title)
	}
	if p.Author != "" {
		fmt.Fprintf(stdout, "Author:      %s\n", p.Author)
	}
	fmt.Fprintf(stdout, "Sections:    %d\n", len(doc.Sections()))
	fmt.Fprintf(stdout, "Paragraphs:  %d\n", len(doc.ChildNodes(root, dom.NodeParagraph, true)))
	fmt.Fprintf(stdout, "Tables:      %d\n", len(doc.ChildNodes(root, dom.NodeTable, true)))
	fmt.Fprintf(stdout, "Words:       %d\n", p.Words)
	fmt.Fprintf(stdout, "Characters:  %d\n", p.Characters)
	fmt.Fprintf(stdout, "Styles:      %d\n", doc.Styles().Len())
	fmt.Fprintf(stdout, "Revisions:   %d\n", revision.Revisions(doc).Count())
	return nil
}

// CleanCmd removes unused styles and lists and merges equal runs.
type CleanCmd struct {
	InputFlags
	OutputFlags
}

func (c *CleanCmd) Run(cfg *config.Config) error {
	doc, err := c.load(cfg)
	if err != nil {
		return err
	}
	res := doc.Cleanup(dom.CleanupOptions{UnusedStyles: true, UnusedLists: true, DuplicateStyles: true})
	joins := doc.JoinRunsWithSameFormatting()
	fmt.Fprintf(stdout, "Removed %d styles and %d lists, joined %d runs\n", res.Styles, res.Lists, joins)
	return c.save(cfg, doc)
}

// JoinTablesCmd appends the rows of the second table to the first.
type JoinTablesCmd struct {
	InputFlags
	OutputFlags
	First  int `name:"first" default:"0" help:"Index of the table that keeps the rows"`
	Second int `name:"second" default:"1" help:"Index of the table that is emptied and removed"`
}

func (c *JoinTablesCmd) Run(cfg *config.Config) error {
	doc, err := c.load(cfg)
	if err != nil {
		return err
	}
	tables := doc.ChildNodes(doc.Root(), dom.NodeTable, true)
	for _, i := range []int{c.First, c.Second} {
		if i < 0 || i >= len(tables) {
			return fmt.Errorf("table index %d out of range, document has %d tables", i, len(tables))
		}
	}
	if err := doc.JoinTables(tables[c.First], tables[c.Second]); err != nil {
		return err
	}
	return c.save(cfg, doc)
}

// DefaultFontCmd resolves every run font and fills in missing ones.
type DefaultFontCmd struct {
	InputFlags
	OutputFlags
	Font string `name:"font" help:"Default font name; overrides fonts.default"`
}

func (c *DefaultFontCmd) Run(cfg *config.Config) error {
	doc, err := c.load(cfg)
	if err != nil {
		return err
	}
	settings := cfg.FontSettings()
	if c.Font != "" {
		settings.DefaultFontName = c.Font
	}
	n := fonts.SetDefaultFont(doc, settings.DefaultFontName)
	subs := fonts.ApplySubstitution(doc, settings, nil)
	fmt.Fprintf(stdout, "Set the default font on %d items\n", n)
	for _, s := range subs {
		fmt.Fprintf(stdout, "  %s -> %s\n", s.Requested, s.Resolved)
	}
	return c.save(cfg, doc)
}

// RevisionsListCmd lists pending revisions.
type RevisionsListCmd struct {
	InputFlags
	Groups bool `name:"groups" help:"Merge adjacent revisions by the same author"`
}

func (c *RevisionsListCmd) Run(cfg *config.Config) error {
	doc, err := c.load(cfg)
	if err != nil {
		return err
	}
	revs := revision.Revisions(doc)
	if c.Groups {
		for _, g := range revs.Groups() {
			fmt.Fprintf(stdout, "%-22s %-12s %q\n", g.Type, g.Author, g.Text)
		}
		return nil
	}
	for i, r := range revs.All() {
		target := r.ParentStyle()
		if target == "" {
			target = strings.TrimRight(doc.GetText(r.ParentNode()), "\r\a\f")
		}
		fmt.Fprintf(stdout, "%3d %-22s %-12s %s %q\n", i, r.Type, r.Author, r.Date.Format(time.DateTime), target)
	}
	return nil
}

// AcceptAllCmd accepts every revision.
type AcceptAllCmd struct {
	InputFlags
	OutputFlags
}

func (c *AcceptAllCmd) Run(cfg *config.Config) error {
	return resolveAll(cfg, c.InputFlags, c.OutputFlags, true)
}

// RejectAllCmd rejects every revision.
type RejectAllCmd struct {
	InputFlags
	OutputFlags
}

func (c *RejectAllCmd) Run(cfg *config.Config) error {
	return resolveAll(cfg, c.InputFlags, c.OutputFlags, false)
}

func resolveAll(cfg *config.Config, in InputFlags, out OutputFlags, accept bool) error {
	doc, err := in.load(cfg)
	if err != nil {
		return err
	}
	revs := revision.Revisions(doc)
	var n int
	if accept {
		n, err = revs.AcceptAll()
	} else {
		n, err = revs.RejectAll()
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Resolved %d revisions\n", n)
	return out.save(cfg, doc)
}

// CompareCmd compares two documents.
type CompareCmd struct {
	Base        string   `arg:"" help:"Original document; receives the revisions" type:"existingfile"`
	Other       string   `arg:"" help:"Edited document" type:"existingfile"`
	Output      string   `arg:"" help:"Output document" type:"path"`
	To          string   `name:"to" help:"Output format name"`
	Author      string   `name:"author" help:"Author of the generated revisions; overrides compare.author"`
	Granularity string   `name:"granularity" help:"word or char; overrides compare.granularity"`
	Ignore      []string `name:"ignore" help:"Differences to ignore (formatting, case, comments, tables, fields, footnotes, textboxes, headers_and_footers)"`
}

func (c *CompareCmd) Run(cfg *config.Config) error {
	base, err := InputFlags{Path: c.Base}.load(cfg)
	if err != nil {
		return err
	}
	other, err := InputFlags{Path: c.Other}.load(cfg)
	if err != nil {
		return err
	}
	if c.Author != "" {
		cfg.Compare.Author = c.Author
	}
	if c.Granularity != "" {
		cfg.Compare.Granularity = c.Granularity
	}
	cfg.Compare.Ignore = append(cfg.Compare.Ignore, c.Ignore...)
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := compare.Compare(base, other, cfg.Compare.Author, time.Now(), cfg.CompareOptions()); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "%d revisions\n", revision.Revisions(base).Count())
	return OutputFlags{Output: c.Output, To: c.To}.save(cfg, base)
}

// PagesCmd lays out a document and prints its page counts.
type PagesCmd struct {
	InputFlags
}

func (c *PagesCmd) Run(cfg *config.Config) error {
	doc, err := c.load(cfg)
	if err != nil {
		return err
	}
	lc := layout.NewCollector(doc, cfg.LayoutOptions())
	if err := lc.Update(); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Pages: %d\n", lc.PageCount())
	for i, sec := range doc.Sections() {
		fmt.Fprintf(stdout, "  section %d: pages %d-%d\n", i+1, lc.StartPageIndex(sec), lc.EndPageIndex(sec))
	}
	return nil
}

// FieldsUpdateCmd recomputes field results, using a layout pass for page
// numbers.
type FieldsUpdateCmd struct {
	InputFlags
	OutputFlags
}

func (c *FieldsUpdateCmd) Run(cfg *config.Config) error {
	doc, err := c.load(cfg)
	if err != nil {
		return err
	}
	lc := layout.NewCollector(doc, cfg.LayoutOptions())
	if err := lc.Update(); err != nil {
		return err
	}
	n, err := field.Update(doc, field.UpdateContext{PageCount: lc.PageCount(), PageOf: lc.StartPageIndex})
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}
	fmt.Fprintf(stdout, "Updated %d fields\n", n)
	return c.save(cfg, doc)
}

// VersionCmd prints version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Fprintf(stdout, "folio version %s\n", version)
	return nil
}
