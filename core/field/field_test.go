package field

import (
	"testing"
	"time"

	"github.com/FocuswithJustin/folio/core/dom"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name      string
		code      string
		wantType  string
		wantArgs  []string
		wantSw    []Switch
		canonical string
	}{
		{
			name:      "bare",
			code:      " page ",
			wantType:  "PAGE",
			canonical: "PAGE",
		},
		{
			name:      "argument",
			code:      "DOCVARIABLE Client",
			wantType:  "DOCVARIABLE",
			wantArgs:  []string{"Client"},
			canonical: "DOCVARIABLE Client",
		},
		{
			name:     "picture and format",
			code:     `DATE \@ "dddd, d MMMM yyyy" \* MERGEFORMAT`,
			wantType: "DATE",
			wantSw: []Switch{
				{Name: "@", Value: "dddd, d MMMM yyyy", HasValue: true},
				{Name: "*", Value: "MERGEFORMAT", HasValue: true},
			},
			canonical: `DATE \@ "dddd, d MMMM yyyy" \* MERGEFORMAT`,
		},
		{
			name:      "flag then argument",
			code:      `HYPERLINK \h "http://example.com/a b"`,
			wantType:  "HYPERLINK",
			wantArgs:  []string{"http://example.com/a b"},
			wantSw:    []Switch{{Name: "h"}},
			canonical: `HYPERLINK "http://example.com/a b" \h`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := Parse(tt.code)
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if c.Type != tt.wantType {
				t.Errorf("Type = %q, want %q", c.Type, tt.wantType)
			}
			if len(c.Args) != len(tt.wantArgs) {
				t.Fatalf("Args = %q, want %q", c.Args, tt.wantArgs)
			}
			for i := range tt.wantArgs {
				if c.Args[i] != tt.wantArgs[i] {
					t.Errorf("Args[%d] = %q, want %q", i, c.Args[i], tt.wantArgs[i])
				}
			}
			if len(c.Switches) != len(tt.wantSw) {
				t.Fatalf("Switches = %+v, want %+v", c.Switches, tt.wantSw)
			}
			for i := range tt.wantSw {
				if c.Switches[i] != tt.wantSw[i] {
					t.Errorf("Switches[%d] = %+v, want %+v", i, c.Switches[i], tt.wantSw[i])
				}
			}
			if got := c.String(); got != tt.canonical {
				t.Errorf("String() = %q, want %q", got, tt.canonical)
			}
		})
	}

	if _, err := Parse(""); err == nil {
		t.Error("Parse(\"\") succeeded")
	}
}

func TestFormatDate(t *testing.T) {
	ts := time.Date(2026, time.March, 5, 14, 7, 9, 0, time.UTC)
	tests := []struct {
		picture string
		want    string
	}{
		{"dddd, d MMMM yyyy", "Thursday, 5 March 2026"},
		{"yyyy-MM-dd", "2026-03-05"},
		{"M/d/yy", "3/5/26"},
		{"ddd MMM dd", "Thu Mar 05"},
		{"HH:mm:ss", "14:07:09"},
		{"h:mm am/pm", "2:07 pm"},
		{"hh 'o''clock' AM/PM", "02 oclock PM"},
	}
	for _, tt := range tests {
		t.Run(tt.picture, func(t *testing.T) {
			if got := FormatDate(ts, tt.picture); got != tt.want {
				t.Errorf("FormatDate(%q) = %q, want %q", tt.picture, got, tt.want)
			}
		})
	}
}

func TestFormatNumberAndCase(t *testing.T) {
	if got := FormatNumber(1234567.891, "#,##0.00"); got != "1,234,567.89" {
		t.Errorf("FormatNumber() = %q", got)
	}
	if got := FormatNumber(7, "0"); got != "7" {
		t.Errorf("FormatNumber() = %q", got)
	}
	if got := FormatNumber(-1234, "#,##0"); got != "-1,234" {
		t.Errorf("FormatNumber() = %q", got)
	}
	cases := map[string]string{"Upper": "HELLO WORLD", "lower": "hello world", "FirstCap": "Hello world", "Caps": "Hello World", "MERGEFORMAT": "hELLO world"}
	for f, want := range cases {
		if got := ApplyCase("hELLO world", f); got != want {
			t.Errorf("ApplyCase(%q) = %q, want %q", f, got, want)
		}
	}
}

func TestUpdate(t *testing.T) {
	doc := dom.New()
	doc.Props.Author = "Ann"
	doc.Variables().Set("Client", "Acme")
	b := dom.NewBuilder(doc)
	date, _ := b.InsertField(`DATE \@ "yyyy-MM-dd"`, "old")
	v, _ := b.InsertField("DOCVARIABLE Client", "")
	author, _ := b.InsertField(`AUTHOR \* Upper`, "")
	pages, _ := b.InsertField("NUMPAGES", "?")
	page, _ := b.InsertField("PAGE", "?")
	merge, _ := b.InsertField("MERGEFIELD Name", "")
	missing, _ := b.InsertField("DOCVARIABLE Nope", "keep")
	_, _ = b.InsertField(`"broken`, "x")

	n, err := Update(doc, UpdateContext{
		Now:       time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC),
		PageCount: 3,
		PageOf:    func(dom.NodeID) int { return 2 },
	})
	if err == nil {
		t.Error("Update() error = nil, want parse error for broken field")
	}
	if n != 6 {
		t.Errorf("Update() = %d, want 6", n)
	}
	want := map[dom.NodeID]string{
		date: "2026-01-02", v: "Acme", author: "ANN", pages: "3", page: "2",
		merge: "«Name»", missing: "keep",
	}
	for id, w := range want {
		if got := doc.Attrs(id).FieldResult; got != w {
			t.Errorf("field %q result = %q, want %q", doc.Attrs(id).FieldCode, got, w)
		}
	}
}
