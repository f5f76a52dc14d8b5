package xml

import (
	"errors"
	"strings"
	"testing"
)

const wordDoc = `<?xml version="1.0"?>
<w:document xmlns:w="urn:w">
  <w:body>
    <w:p><w:r><w:t xml:space="preserve">Hello </w:t></w:r><w:r><w:rPr><w:b w:val="1"/></w:rPr><w:t>world</w:t></w:r></w:p>
    <w:p/>
  </w:body>
</w:document>`

func TestParseInvalidXML(t *testing.T) {
	tests := []struct {
		name string
		xml  string
	}{
		{"unclosed tag", "<root><element></root>"},
		{"mismatched tags", "<root></other>"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.xml)); err == nil {
				t.Error("Parse() succeeded on malformed input")
			}
		})
	}
}

func TestValidate(t *testing.T) {
	if err := Validate([]byte(wordDoc)); err != nil {
		t.Errorf("Validate(wordDoc) = %v", err)
	}
	err := Validate([]byte("<root>\n<a>\n</root>"))
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("Validate() = %v, want *ValidationError", err)
	}
	if ve.Line != 3 {
		t.Errorf("Line = %d, want 3", ve.Line)
	}
	if err := Validate([]byte(`<!DOCTYPE r [<!ENTITY x "boom">]><r>&x;</r>`)); err == nil {
		t.Error("Validate() expanded an internal entity")
	}
}

func TestXPathLocalNames(t *testing.T) {
	doc, err := Parse([]byte(wordDoc))
	if err != nil {
		t.Fatal(err)
	}
	body, err := doc.XPathFirst("//" + Local("body"))
	if err != nil || body == nil {
		t.Fatalf("XPathFirst(body) = %v, %v", body, err)
	}
	paras := body.Children()
	if len(paras) != 2 || paras[0].Name() != "p" {
		t.Fatalf("Children() = %d nodes", len(paras))
	}
	if got := paras[0].Text(); got != "Hello world" {
		t.Errorf("Text() = %q, want %q", got, "Hello world")
	}
	bold, err := paras[0].XPathFirst(".//" + Local("b"))
	if err != nil || bold == nil {
		t.Fatalf("XPathFirst(b) = %v, %v", bold, err)
	}
	if got := bold.Attr("w:val"); got != "1" {
		t.Errorf("Attr(w:val) = %q, want 1", got)
	}
	if _, ok := bold.LookupAttr("missing"); ok {
		t.Error("LookupAttr(missing) found an attribute")
	}
	runs, err := paras[0].XPath(Local("r"))
	if err != nil || len(runs) != 2 {
		t.Errorf("XPath(r) = %d nodes, %v", len(runs), err)
	}
	if c := runs[1].Child("rPr"); c == nil || c.Child("b") == nil {
		t.Error("Child(rPr).Child(b) = nil")
	}

	if _, err := doc.XPath("//["); err == nil {
		t.Error("XPath() accepted an invalid expression")
	}
	if n, err := doc.XPathFirst("//nothing"); err != nil || n != nil {
		t.Errorf("XPathFirst(nothing) = %v, %v", n, err)
	}
}

func TestNodesMixedContent(t *testing.T) {
	doc, err := Parse([]byte(`<p>one<s/>two<b>three</b></p>`))
	if err != nil {
		t.Fatal(err)
	}
	var kinds []string
	for _, n := range doc.Root().Nodes() {
		if n.IsText() {
			kinds = append(kinds, "text:"+n.Text())
		} else {
			kinds = append(kinds, n.Name())
		}
	}
	if got, want := strings.Join(kinds, ","), "text:one,s,text:two,b"; got != want {
		t.Errorf("Nodes() = %q, want %q", got, want)
	}
	if got := doc.Root().InnerXML(); got != "one<s></s>two<b>three</b>" && got != "one<s/>two<b>three</b>" {
		t.Errorf("InnerXML() = %q", got)
	}
}

func TestFormat(t *testing.T) {
	in := `<?xml version="1.0"?><root><a x="&quot;q&quot;">t &amp; u</a><b/><!--note--></root>`
	got, err := Format([]byte(in), FormatOptions{})
	if err != nil {
		t.Fatalf("Format() error = %v", err)
	}
	want := `<?xml version="1.0"?>
<root>
  <a x="&quot;q&quot;">t &amp; u</a>
  <b/>
  <!--note-->
</root>
`
	if string(got) != want {
		t.Errorf("Format() = %q, want %q", got, want)
	}
	if _, err := Format([]byte("<root>"), FormatOptions{}); err == nil {
		t.Error("Format() succeeded on malformed input")
	}
}

func TestNilNodes(t *testing.T) {
	var n Node
	if n.Name() != "" || n.Text() != "" || n.InnerXML() != "" || n.Children() != nil || n.Attributes() != nil || n.Attr("a") != "" {
		t.Error("zero Node returned content")
	}
	var d Document
	if d.Root() != nil || d.Serialize() != nil {
		t.Error("zero Document returned content")
	}
}

func TestWriter(t *testing.T) {
	w := NewWriter()
	w.Start("doc", "xmlns", "urn:x", "skip", "")
	w.Element("p", `a < b & "c"`, "style", `q"t`)
	w.Empty("br")
	w.Start("open")
	got := string(w.Bytes())
	want := `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` + "\n" +
		`<doc xmlns="urn:x"><p style="q&quot;t">a &lt; b &amp; "c"</p><br/><open/></doc>`
	if got != want {
		t.Errorf("Bytes() = %q, want %q", got, want)
	}

	doc, err := Parse([]byte(got))
	if err != nil {
		t.Fatalf("Parse(Writer output) error = %v", err)
	}
	if p := doc.Root().Child("p"); p == nil || p.Text() != `a < b & "c"` {
		t.Errorf("round trip lost the paragraph text")
	}
}

func TestChainedLookups(t *testing.T) {
	doc, err := Parse([]byte(`<a><b c="1"/></a>`))
	if err != nil {
		t.Fatal(err)
	}
	if got := doc.Root().Child("b").Attr("c"); got != "1" {
		t.Errorf("Child(b).Attr(c) = %q, want %q", got, "1")
	}
	if got := doc.Root().Child("x").Child("y").Attr("c"); got != "" {
		t.Errorf("missing chain Attr = %q, want empty", got)
	}
}

func TestFragmentRaw(t *testing.T) {
	inner := NewFragment()
	inner.Element("b", "x")
	outer := NewWriter()
	outer.Start("a")
	outer.Raw(inner.Bytes())
	outer.EmptyAll("c", "v", "")
	got := string(outer.Bytes())
	want := `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` + "\n" + `<a><b>x</b><c v=""/></a>`
	if got != want {
		t.Errorf("Bytes() = %q, want %q", got, want)
	}
}
