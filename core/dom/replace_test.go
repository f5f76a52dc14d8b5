package dom

import (
	"testing"
)

// textBoxDoc builds: "Hello 1" [text box "Hello 2"] then "Hello 3".
func textBoxDoc(t *testing.T) *Document {
	t.Helper()
	d := New()
	body := d.Body(d.FirstSection())
	p := d.FirstChild(body)
	_ = d.AppendChild(p, d.NewRun("Hello 1", Formatting{}))
	box, _ := d.NewNode(NodeShape)
	_ = d.AppendChild(p, box)
	_, _ = d.AppendParagraph(box, "Hello 2")
	_, _ = d.AppendParagraph(body, "Hello 3")
	return d
}

func TestReplaceOrderPolicy(t *testing.T) {
	tests := []struct {
		name   string
		legacy bool
		want   []string
	}{
		{"main story first", false, []string{"Hello 1", "Hello 3", "Hello 2"}},
		{"legacy inline order", true, []string{"Hello 1", "Hello 2", "Hello 3"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := textBoxDoc(t)
			var seen []string
			n, err := d.Replace(`Hello \d`, "", ReplaceOptions{
				Regex:          true,
				UseLegacyOrder: tt.legacy,
				Callback: func(m *Match) ReplaceAction {
					seen = append(seen, m.Text)
					return ReplaceSkip
				},
			})
			if err != nil || n != 0 {
				t.Fatalf("Replace() = %d, %v", n, err)
			}
			if len(seen) != len(tt.want) {
				t.Fatalf("seen = %v, want %v", seen, tt.want)
			}
			for i := range tt.want {
				if seen[i] != tt.want[i] {
					t.Errorf("seen = %v, want %v", seen, tt.want)
					break
				}
			}
		})
	}
}

func TestReplaceAcrossRuns(t *testing.T) {
	d := New()
	p := d.FirstChild(d.Body(d.FirstSection()))
	for _, s := range []string{"The qu", "ick br", "own fox"} {
		_ = d.AppendChild(p, d.NewRun(s, Formatting{}))
	}

	n, err := d.Replace("quick brown", "slow", ReplaceOptions{})
	if err != nil || n != 1 {
		t.Fatalf("Replace() = %d, %v", n, err)
	}
	if got := d.ParagraphText(p); got != "The slow fox" {
		t.Errorf("ParagraphText() = %q, want %q", got, "The slow fox")
	}
	if got := d.ChildCount(p); got != 2 {
		t.Errorf("runs = %d, want 2 (emptied run removed)", got)
	}
}

func TestReplaceOptions(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		pattern string
		repl    string
		opts    ReplaceOptions
		want    string
		count   int
	}{
		{"case insensitive", "Cat cat CAT", "cat", "dog", ReplaceOptions{}, "dog dog dog", 3},
		{"match case", "Cat cat CAT", "cat", "dog", ReplaceOptions{MatchCase: true}, "Cat dog CAT", 1},
		{"whole word", "cat concat cat.", "cat", "dog", ReplaceOptions{WholeWord: true}, "dog concat dog.", 2},
		{"regex groups", "2026-01-02", `(\d+)-(\d+)-(\d+)`, "$3/$2/$1", ReplaceOptions{Regex: true}, "02/01/2026", 1},
		{"literal metacharacters", "a.b a+b", "a.b", "x", ReplaceOptions{}, "x a+b", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := New()
			p := d.FirstChild(d.Body(d.FirstSection()))
			_ = d.AppendChild(p, d.NewRun(tt.text, Formatting{}))
			n, err := d.Replace(tt.pattern, tt.repl, tt.opts)
			if err != nil {
				t.Fatalf("Replace() error = %v", err)
			}
			if n != tt.count {
				t.Errorf("Replace() = %d, want %d", n, tt.count)
			}
			if got := d.ParagraphText(p); got != tt.want {
				t.Errorf("text = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestReplaceStopAndRewrite(t *testing.T) {
	d := New()
	p := d.FirstChild(d.Body(d.FirstSection()))
	_ = d.AppendChild(p, d.NewRun("x x x", Formatting{}))
	calls := 0
	n, _ := d.Replace("x", "y", ReplaceOptions{Callback: func(m *Match) ReplaceAction {
		calls++
		if calls == 3 {
			return ReplaceStop
		}
		m.Replacement = "z"
		return ReplaceApply
	}})
	if n != 2 {
		t.Errorf("Replace() = %d, want 2", n)
	}
	if got := d.ParagraphText(p); got != "z z x" {
		t.Errorf("text = %q, want %q", got, "z z x")
	}
}

func TestReplaceRejectsBadPattern(t *testing.T) {
	d := New()
	if _, err := d.Replace("", "x", ReplaceOptions{}); err == nil {
		t.Error("Replace(empty) succeeded")
	}
	if _, err := d.Replace("(", "x", ReplaceOptions{Regex: true}); err == nil {
		t.Error("Replace(bad regex) succeeded")
	}
}
