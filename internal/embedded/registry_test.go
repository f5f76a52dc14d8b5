package embedded_test

import (
	"testing"

	"github.com/FocuswithJustin/folio/core/codec"
	_ "github.com/FocuswithJustin/folio/internal/embedded"
)

// TestCodecRegistrations verifies that importing the package registers
// every built-in format under its name and extensions.
func TestCodecRegistrations(t *testing.T) {
	expected := []struct {
		name    string
		ext     string
		canLoad bool
		canSave bool
	}{
		{"doc", ".doc", false, false},
		{"docx", ".docx", true, true},
		{"epub", ".epub", false, true},
		{"flatxml", ".xml", true, true},
		{"html", ".html", true, true},
		{"markdown", ".md", true, true},
		{"native", ".fdoc", true, true},
		{"nativez", ".fdocz", true, true},
		{"odt", ".odt", true, true},
		{"pdf", ".pdf", false, false},
		{"rtf", ".rtf", true, true},
		{"sqlite", ".fdb", true, true},
		{"txt", ".txt", true, true},
	}
	for _, tt := range expected {
		t.Run(tt.name, func(t *testing.T) {
			c, ok := codec.Get(tt.name)
			if !ok {
				t.Fatalf("codec %q not registered", tt.name)
			}
			d := c.Descriptor()
			if d.CanLoad != tt.canLoad || d.CanSave != tt.canSave {
				t.Errorf("%s load/save = %v/%v, want %v/%v", tt.name, d.CanLoad, d.CanSave, tt.canLoad, tt.canSave)
			}
			if d.ContentType == "" {
				t.Errorf("%s has no content type", tt.name)
			}
			byExt, ok := codec.ByExtension("file" + tt.ext)
			if !ok || byExt.Descriptor().Name != tt.name {
				t.Errorf("ByExtension(%q) = %v, %v", tt.ext, byExt, ok)
			}
		})
	}
	if got := len(codec.List()); got != len(expected) {
		t.Errorf("len(List()) = %d, want %d", got, len(expected))
	}
}
