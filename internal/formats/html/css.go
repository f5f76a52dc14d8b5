package html

import (
	"sort"
	"strconv"
	"strings"

	"github.com/FocuswithJustin/folio/core/dom"
)

// parseStyle reads an inline style attribute into lower-cased properties.
func parseStyle(s string) map[string]string {
	out := map[string]string{}
	for _, decl := range strings.Split(s, ";") {
		k, v, ok := strings.Cut(decl, ":")
		if !ok {
			continue
		}
		k = strings.ToLower(strings.TrimSpace(k))
		v = strings.TrimSpace(v)
		if k != "" && v != "" {
			out[k] = v
		}
	}
	return out
}

// writeStyle renders properties in name order.
func writeStyle(props map[string]string) string {
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(';')
		}
		b.WriteString(k)
		b.WriteByte(':')
		b.WriteString(props[k])
	}
	return b.String()
}

// points parses a CSS length in pt or px.
func points(v string) (float64, bool) {
	v = strings.TrimSpace(strings.ToLower(v))
	scale := 1.0
	switch {
	case strings.HasSuffix(v, "pt"):
		v = strings.TrimSuffix(v, "pt")
	case strings.HasSuffix(v, "px"):
		v = strings.TrimSuffix(v, "px")
		scale = 0.75
	default:
		scale = 0.75
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return f * scale, true
}

func pt(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64) + "pt"
}

func color(v string) string {
	v = strings.TrimPrefix(strings.TrimSpace(v), "#")
	if len(v) == 3 {
		v = string([]byte{v[0], v[0], v[1], v[1], v[2], v[2]})
	}
	if len(v) != 6 {
		return ""
	}
	if _, err := strconv.ParseUint(v, 16, 32); err != nil {
		return ""
	}
	return strings.ToUpper(v)
}

// runProps returns the span properties of f. Toggles are written as tags.
func runProps(f dom.Formatting) map[string]string {
	props := map[string]string{}
	if f.Font != "" {
		props["font-family"] = f.Font
	}
	if f.Size != 0 {
		props["font-size"] = pt(f.Size)
	}
	if f.Color != "" {
		props["color"] = "#" + f.Color
	}
	if f.Highlight != "" {
		props["background-color"] = "#" + f.Highlight
	}
	return props
}

func applyRunProps(f *dom.Formatting, props map[string]string) {
	for k, v := range props {
		switch k {
		case "font-family":
			f.Font = strings.Trim(strings.Split(v, ",")[0], `"' `)
		case "font-size":
			if s, ok := points(v); ok {
				f.Size = s
			}
		case "color":
			f.Color = color(v)
		case "background-color", "background":
			f.Highlight = color(v)
		case "font-weight":
			n, err := strconv.Atoi(v)
			f.Bold = v == "bold" || v == "bolder" || (err == nil && n >= 600)
		case "font-style":
			f.Italic = v == "italic" || v == "oblique"
		case "text-decoration", "text-decoration-line":
			f.Underline = f.Underline || strings.Contains(v, "underline")
			f.Strike = f.Strike || strings.Contains(v, "line-through")
		}
	}
}

func paraProps(f dom.Formatting) map[string]string {
	props := map[string]string{}
	if f.Align != "" {
		props["text-align"] = string(f.Align)
	}
	if f.SpaceAfter != 0 {
		props["margin-bottom"] = pt(f.SpaceAfter)
	}
	return props
}

func applyParaProps(f *dom.Formatting, props map[string]string) {
	if v, ok := props["text-align"]; ok {
		switch dom.Alignment(strings.ToLower(v)) {
		case dom.AlignCenter, dom.AlignRight, dom.AlignJustify, dom.AlignLeft:
			f.Align = dom.Alignment(strings.ToLower(v))
		}
	}
	if v, ok := props["margin-bottom"]; ok {
		if s, ok := points(v); ok {
			f.SpaceAfter = s
		}
	}
}
