// Package fonts resolves font names against the fonts available on disk and
// a substitution table.
package fonts

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/FocuswithJustin/folio/core/dom"
	"github.com/FocuswithJustin/folio/internal/cache"
	"github.com/FocuswithJustin/folio/internal/logging"
)

// fontExtensions are the file types counted as installed fonts.
var fontExtensions = map[string]bool{".ttf": true, ".otf": true, ".ttc": true}

// scanCache memoises folder scans keyed by the joined folder list.
var scanCache = cache.New[string, map[string]bool](5 * time.Minute)

// readDir is swapped in tests.
var readDir = os.ReadDir

// Settings configure font resolution.
type Settings struct {
	// DefaultFontName replaces any font that cannot be resolved.
	DefaultFontName string
	// Substitutions maps a requested font to ordered alternatives.
	Substitutions map[string][]string
	// Folders are scanned for font files. Subdirectories are included.
	Folders []string
	// Available, when set, is used instead of scanning Folders.
	Available []string
}

// Resolution reports how a requested font was resolved.
type Resolution struct {
	Requested   string
	Resolved    string
	Substituted bool
}

// Installed returns the font names available under the configured folders.
func (s *Settings) Installed() map[string]bool {
	if s.Available != nil {
		out := make(map[string]bool, len(s.Available))
		for _, n := range s.Available {
			out[strings.ToLower(n)] = true
		}
		return out
	}
	key := strings.Join(s.Folders, string(os.PathListSeparator))
	found, _ := scanCache.GetOrLoad(key, func() (map[string]bool, error) {
		return scanFolders(s.Folders), nil
	})
	return found
}

func scanFolders(folders []string) map[string]bool {
	out := make(map[string]bool)
	var walk func(dir string, depth int)
	walk = func(dir string, depth int) {
		entries, err := readDir(dir)
		if err != nil {
			logging.Debug("font folder unreadable", "dir", dir, "error", err)
			return
		}
		for _, e := range entries {
			if e.IsDir() {
				if depth < 4 {
					walk(filepath.Join(dir, e.Name()), depth+1)
				}
				continue
			}
			ext := strings.ToLower(filepath.Ext(e.Name()))
			if fontExtensions[ext] {
				out[strings.ToLower(strings.TrimSuffix(e.Name(), filepath.Ext(e.Name())))] = true
			}
		}
	}
	for _, f := range folders {
		walk(f, 0)
	}
	return out
}

// Resolve maps name to an available font. An empty name resolves to the
// default font without counting as a substitution.
func (s *Settings) Resolve(name string) Resolution {
	res := Resolution{Requested: name, Resolved: name}
	if name == "" {
		res.Resolved = s.DefaultFontName
		return res
	}
	installed := s.Installed()
	if installed[strings.ToLower(name)] {
		return res
	}
	for _, alt := range s.Substitutions[name] {
		if installed[strings.ToLower(alt)] {
			res.Resolved = alt
			res.Substituted = true
			return res
		}
	}
	if s.DefaultFontName != "" && !strings.EqualFold(s.DefaultFontName, name) {
		res.Resolved = s.DefaultFontName
		res.Substituted = true
	}
	return res
}

// Warner receives substitution notices.
type Warner interface {
	FontSubstituted(r Resolution)
}

// ApplySubstitution rewrites run fonts that cannot be resolved and styles
// that name such fonts. Each distinct substitution is reported once. It
// returns the substitutions made, sorted by requested name.
func ApplySubstitution(doc *dom.Document, s *Settings, w Warner) []Resolution {
	if s == nil {
		return nil
	}
	seen := map[string]Resolution{}
	resolve := func(name string) (string, bool) {
		if name == "" {
			return "", false
		}
		r, ok := seen[name]
		if !ok {
			r = s.Resolve(name)
			seen[name] = r
			if r.Substituted && w != nil {
				w.FontSubstituted(r)
			}
		}
		return r.Resolved, r.Substituted
	}

	resume := doc.SuspendHook()
	defer resume()
	for _, n := range doc.ChildNodes(doc.Root(), dom.NodeTypeAny, true) {
		f := doc.Format(n)
		if to, ok := resolve(f.Font); ok {
			f.Font = to
			_ = doc.SetFormat(n, f)
		}
	}
	for _, name := range doc.Styles().Names() {
		st, _ := doc.Styles().Get(name)
		if to, ok := resolve(st.Format.Font); ok {
			st.Format.Font = to
			doc.Styles().Restore(st)
		}
	}

	var out []Resolution
	for _, r := range seen {
		if r.Substituted {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Requested < out[j].Requested })
	return out
}

// SetDefaultFont assigns font to every run and style that has no font.
func SetDefaultFont(doc *dom.Document, font string) int {
	n := 0
	for _, id := range doc.ChildNodes(doc.Root(), dom.NodeRun, true) {
		f := doc.Format(id)
		if f.Font == "" {
			f.Font = font
			_ = doc.SetFormat(id, f)
			n++
		}
	}
	if st, ok := doc.Styles().Get("Normal"); ok && st.Format.Font == "" {
		st.Format.Font = font
		doc.Styles().Restore(st)
	}
	return n
}

// InvalidateCache forgets scanned folders.
func InvalidateCache() {
	scanCache.InvalidateAll()
}
