package dom

import (
	"regexp"

	"github.com/FocuswithJustin/folio/core/errors"
)

// ReplaceAction tells Replace what to do with one match.
type ReplaceAction int

const (
	// ReplaceApply substitutes Match.Replacement.
	ReplaceApply ReplaceAction = iota
	// ReplaceSkip leaves the match untouched.
	ReplaceSkip
	// ReplaceStop leaves the match untouched and ends the operation.
	ReplaceStop
)

// Match is one occurrence found by Replace. The callback may rewrite
// Replacement.
type Match struct {
	Paragraph   NodeID
	Text        string
	Groups      []string
	Replacement string
}

// ReplaceOptions configure Replace.
type ReplaceOptions struct {
	MatchCase bool
	WholeWord bool
	// Regex treats the pattern as a regular expression; $1 style group
	// references expand in the replacement.
	Regex bool
	// UseLegacyOrder visits text boxes inline at their anchor paragraph.
	// By default the main story is processed first and text boxes after.
	UseLegacyOrder bool
	// Callback is consulted for every match in traversal order.
	Callback func(m *Match) ReplaceAction
}

type span struct {
	run   NodeID
	start int
	end   int
}

type hit struct {
	start, end int
	repl       string
}

// Replace finds pattern in run text and substitutes replacement. Matches
// never cross fields, breaks or other non-run nodes. It returns the number
// of replacements made.
func (d *Document) Replace(pattern, replacement string, opts ReplaceOptions) (int, error) {
	if pattern == "" {
		return 0, errors.NewValidation("pattern", "must not be empty")
	}
	expr := pattern
	if !opts.Regex {
		expr = regexp.QuoteMeta(pattern)
	}
	if opts.WholeWord {
		expr = `\b(?:` + expr + `)\b`
	}
	if !opts.MatchCase {
		expr = `(?i)` + expr
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return 0, errors.NewValidation("pattern", err.Error())
	}

	count := 0
	for _, p := range d.replaceOrder(opts.UseLegacyOrder) {
		n, stop, err := d.replaceIn(p, re, replacement, opts)
		count += n
		if err != nil || stop {
			return count, err
		}
	}
	return count, nil
}

// replaceOrder lists attached paragraphs in the traversal order of the policy.
func (d *Document) replaceOrder(legacy bool) []NodeID {
	all := d.ChildNodes(d.root, NodeParagraph, true)
	if legacy {
		return all
	}
	var main, boxes []NodeID
	for _, p := range all {
		if d.Ancestor(p, NodeShape) != NoNode {
			boxes = append(boxes, p)
		} else {
			main = append(main, p)
		}
	}
	return append(main, boxes...)
}

// segments splits the inline content of p into maximal runs of Run nodes.
func (d *Document) segments(p NodeID) [][]NodeID {
	var out [][]NodeID
	var cur []NodeID
	flush := func() {
		if len(cur) > 0 {
			out = append(out, cur)
			cur = nil
		}
	}
	var visit func(NodeID)
	visit = func(n NodeID) {
		for _, c := range d.Children(n) {
			switch d.Type(c) {
			case NodeRun:
				if _, deleted := d.InRevision(c, RevisionDeletion); deleted {
					flush()
					continue
				}
				cur = append(cur, c)
			case NodeSmartTag:
				visit(c)
			default:
				flush()
			}
		}
	}
	visit(p)
	flush()
	return out
}

func (d *Document) replaceIn(p NodeID, re *regexp.Regexp, replacement string, opts ReplaceOptions) (int, bool, error) {
	count := 0
	for _, seg := range d.segments(p) {
		var text []byte
		spans := make([]span, 0, len(seg))
		for _, r := range seg {
			t := d.Text(r)
			spans = append(spans, span{run: r, start: len(text), end: len(text) + len(t)})
			text = append(text, t...)
		}

		var hits []hit
		stop := false
		for _, loc := range re.FindAllSubmatchIndex(text, -1) {
			if loc[0] == loc[1] {
				continue
			}
			m := &Match{Paragraph: p, Text: string(text[loc[0]:loc[1]])}
			for g := 2; g+1 < len(loc); g += 2 {
				if loc[g] >= 0 {
					m.Groups = append(m.Groups, string(text[loc[g]:loc[g+1]]))
				} else {
					m.Groups = append(m.Groups, "")
				}
			}
			if opts.Regex {
				m.Replacement = string(re.Expand(nil, []byte(replacement), text, loc))
			} else {
				m.Replacement = replacement
			}
			action := ReplaceApply
			if opts.Callback != nil {
				action = opts.Callback(m)
			}
			if action == ReplaceStop {
				stop = true
				break
			}
			if action == ReplaceApply {
				hits = append(hits, hit{start: loc[0], end: loc[1], repl: m.Replacement})
			}
		}

		for i := len(hits) - 1; i >= 0; i-- {
			if err := d.applyHit(spans, hits[i]); err != nil {
				return count, true, err
			}
			count++
		}
		if stop {
			return count, true, nil
		}
	}
	return count, false, nil
}

// applyHit rewrites the runs covering h. The replacement goes into the
// first covered run; runs emptied by the edit are removed.
func (d *Document) applyHit(spans []span, h hit) error {
	first := true
	for _, s := range spans {
		if s.end <= h.start || s.start >= h.end {
			continue
		}
		cur := d.Text(s.run)
		lo := max(h.start-s.start, 0)
		hi := min(h.end-s.start, len(cur))
		var next string
		if first {
			next = cur[:lo] + h.repl + cur[hi:]
			first = false
		} else {
			next = cur[:lo] + cur[hi:]
		}
		if next == "" {
			if err := d.Remove(s.run); err != nil {
				return err
			}
			continue
		}
		if err := d.SetText(s.run, next); err != nil {
			return err
		}
	}
	return nil
}
