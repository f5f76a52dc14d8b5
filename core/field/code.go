// Package field parses field codes and refreshes field results.
package field

import (
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"

	"github.com/FocuswithJustin/folio/core/errors"
)

// Code is a parsed field code such as `DATE \@ "d MMMM yyyy"`.
type Code struct {
	// Type is the upper-cased field type.
	Type string
	// Args are positional arguments, unquoted.
	Args []string
	// Switches appear in source order.
	Switches []Switch
}

// Switch is one backslash switch with its optional value.
type Switch struct {
	Name     string
	Value    string
	HasValue bool
}

// codeGrammar is the participle grammar for field codes.
// Examples: `PAGE`, `DOCVARIABLE Client`, `DATE \@ "yyyy-MM-dd" \* MERGEFORMAT`
//
//nolint:govet // participle grammar tags are not standard struct tags
type codeGrammar struct {
	Type  string      `@Word`
	Items []*codeItem `@@*`
}

//nolint:govet // participle grammar tags are not standard struct tags
type codeItem struct {
	Flag   *string     `  @Flag`
	Switch *switchPart `| @@`
	Arg    *argument   `| @@`
}

//nolint:govet // participle grammar tags are not standard struct tags
type switchPart struct {
	Name  string    `@Switch`
	Value *argument `@@?`
}

//nolint:govet // participle grammar tags are not standard struct tags
type argument struct {
	Quoted *string `  @String`
	Bare   *string `| @Word`
}

func (a *argument) value() string {
	if a.Quoted != nil {
		return *a.Quoted
	}
	return *a.Bare
}

// codeLexer tokenises field codes. Flag switches never take a value.
var codeLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "String", Pattern: `"(\\.|[^"\\])*"`},
	{Name: "Flag", Pattern: `\\[h!]`},
	{Name: "Switch", Pattern: `\\[@#*a-zA-Z]`},
	{Name: "Word", Pattern: `[^\s"\\]+`},
	{Name: "Whitespace", Pattern: `\s+`},
})

var codeParser = participle.MustBuild[codeGrammar](
	participle.Lexer(codeLexer),
	participle.Elide("Whitespace"),
	participle.Unquote("String"),
)

// Parse parses a field code.
func Parse(code string) (*Code, error) {
	parsed, err := codeParser.ParseString("", code)
	if err != nil {
		return nil, errors.NewParse("field code", "", err.Error())
	}
	c := &Code{Type: strings.ToUpper(parsed.Type)}
	for _, it := range parsed.Items {
		switch {
		case it.Flag != nil:
			c.Switches = append(c.Switches, Switch{Name: (*it.Flag)[1:]})
		case it.Switch != nil:
			s := Switch{Name: it.Switch.Name[1:]}
			if it.Switch.Value != nil {
				s.Value = it.Switch.Value.value()
				s.HasValue = true
			}
			c.Switches = append(c.Switches, s)
		case it.Arg != nil:
			c.Args = append(c.Args, it.Arg.value())
		}
	}
	return c, nil
}

// Switch returns the value of the first switch named name.
func (c *Code) Switch(name string) (string, bool) {
	for _, s := range c.Switches {
		if s.Name == name {
			return s.Value, true
		}
	}
	return "", false
}

// Arg returns positional argument i or "".
func (c *Code) Arg(i int) string {
	if i < len(c.Args) {
		return c.Args[i]
	}
	return ""
}

// String renders the code in canonical form.
func (c *Code) String() string {
	var sb strings.Builder
	sb.WriteString(c.Type)
	for _, a := range c.Args {
		sb.WriteByte(' ')
		sb.WriteString(quoteIfNeeded(a))
	}
	for _, s := range c.Switches {
		sb.WriteString(` \`)
		sb.WriteString(s.Name)
		if s.HasValue {
			sb.WriteByte(' ')
			sb.WriteString(quoteIfNeeded(s.Value))
		}
	}
	return sb.String()
}

func quoteIfNeeded(s string) string {
	if s == "" || strings.ContainsAny(s, " \t\"\\") {
		return strconv.Quote(s)
	}
	return s
}
