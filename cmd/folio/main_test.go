package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/FocuswithJustin/folio/internal/config"
)

func createTestFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}
	return path
}

// captureStdout swaps stdout for the duration of the test.
func captureStdout(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	orig := stdout
	stdout = &buf
	t.Cleanup(func() { stdout = orig })
	return &buf
}

func TestVersionCmd_Run(t *testing.T) {
	out := captureStdout(t)
	if err := (&VersionCmd{}).Run(); err != nil {
		t.Fatal(err)
	}
	if got, want := out.String(), "folio version "+version+"\n"; got != want {
		t.Errorf("VersionCmd.Run() = %q, want %q", got, want)
	}
}

func TestConvertAndText(t *testing.T) {
	dir := t.TempDir()
	src := createTestFile(t, dir, "in.txt", "Hello world\nSecond line\n")
	dst := filepath.Join(dir, "out.fdoc")

	out := captureStdout(t)
	cfg := config.Default()
	conv := &ConvertCmd{InputFlags: InputFlags{Path: src}, OutputFlags: OutputFlags{Output: dst}}
	if err := conv.Run(cfg); err != nil {
		t.Fatalf("ConvertCmd.Run() error = %v", err)
	}
	if !strings.HasPrefix(out.String(), "Wrote "+dst+" (application/vnd.folio+json,") {
		t.Errorf("ConvertCmd.Run() output = %q", out.String())
	}

	out.Reset()
	if err := (&TextCmd{InputFlags: InputFlags{Path: dst}}).Run(cfg); err != nil {
		t.Fatalf("TextCmd.Run() error = %v", err)
	}
	if got, want := out.String(), "Hello world\r\nSecond line\r\n"; got != want {
		t.Errorf("TextCmd.Run() = %q, want %q", got, want)
	}
}

func TestDetectCmd_Run(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		file    string
		content string
		want    string
	}{
		{"text", "a.txt", "plain words\n", ": txt (text/plain"},
		{"markdown", "a.md", "---\ntitle: T\n---\n# Heading\n", ": markdown ("},
		{"native", "a.fdoc", `{"folio": 1, "sections": []}`, ": native (application/vnd.folio+json)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := captureStdout(t)
			path := createTestFile(t, dir, tt.file, tt.content)
			if err := (&DetectCmd{Path: path}).Run(); err != nil {
				t.Fatalf("DetectCmd.Run() error = %v", err)
			}
			if !strings.Contains(out.String(), tt.want) {
				t.Errorf("DetectCmd.Run() = %q, want it to contain %q", out.String(), tt.want)
			}
		})
	}
}

func TestInfoCmd_Run(t *testing.T) {
	dir := t.TempDir()
	src := createTestFile(t, dir, "in.txt", "Hello world\nSecond line here\n")
	out := captureStdout(t)
	if err := (&InfoCmd{InputFlags: InputFlags{Path: src}}).Run(config.Default()); err != nil {
		t.Fatalf("InfoCmd.Run() error = %v", err)
	}
	for _, want := range []string{"Format:      txt", "Sections:    1", "Paragraphs:  2", "Words:       5", "Revisions:   0"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("InfoCmd.Run() output missing %q:\n%s", want, out.String())
		}
	}
}

func TestCompareThenResolve(t *testing.T) {
	dir := t.TempDir()
	base := createTestFile(t, dir, "base.txt", "one two three\n")
	other := createTestFile(t, dir, "other.txt", "one four three\n")
	marked := filepath.Join(dir, "marked.fdoc")
	cfg := config.Default()

	out := captureStdout(t)
	cmp := &CompareCmd{Base: base, Other: other, Output: marked, Author: "ann"}
	if err := cmp.Run(cfg); err != nil {
		t.Fatalf("CompareCmd.Run() error = %v", err)
	}
	if strings.HasPrefix(out.String(), "0 revisions") {
		t.Fatalf("CompareCmd.Run() found no differences: %q", out.String())
	}

	out.Reset()
	if err := (&RevisionsListCmd{InputFlags: InputFlags{Path: marked}}).Run(cfg); err != nil {
		t.Fatalf("RevisionsListCmd.Run() error = %v", err)
	}
	if !strings.Contains(out.String(), "ann") {
		t.Errorf("RevisionsListCmd.Run() = %q, want author ann", out.String())
	}

	tests := []struct {
		name   string
		accept bool
		want   string
	}{
		{"accept", true, "one four three\r\n"},
		{"reject", false, "one two three\r\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dst := filepath.Join(dir, tt.name+".txt")
			in, outFlags := InputFlags{Path: marked}, OutputFlags{Output: dst}
			var err error
			if tt.accept {
				err = (&AcceptAllCmd{InputFlags: in, OutputFlags: outFlags}).Run(cfg)
			} else {
				err = (&RejectAllCmd{InputFlags: in, OutputFlags: outFlags}).Run(cfg)
			}
			if err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			data, err := os.ReadFile(dst)
			if err != nil {
				t.Fatal(err)
			}
			if string(data) != tt.want {
				t.Errorf("%s output = %q, want %q", tt.name, data, tt.want)
			}
		})
	}
}

func TestCompareCmd_Run_InvalidGranularity(t *testing.T) {
	dir := t.TempDir()
	base := createTestFile(t, dir, "base.txt", "a\n")
	cmp := &CompareCmd{Base: base, Other: base, Output: filepath.Join(dir, "o.txt"), Granularity: "sentence"}
	if err := cmp.Run(config.Default()); err == nil {
		t.Error("CompareCmd.Run() accepted granularity sentence")
	}
}

func TestPagesCmd_Run(t *testing.T) {
	dir := t.TempDir()
	src := createTestFile(t, dir, "long.txt", strings.Repeat("line\n", 200))
	out := captureStdout(t)
	if err := (&PagesCmd{InputFlags: InputFlags{Path: src}}).Run(config.Default()); err != nil {
		t.Fatalf("PagesCmd.Run() error = %v", err)
	}
	var pages int
	if _, err := fmt.Sscanf(out.String(), "Pages: %d", &pages); err != nil {
		t.Fatalf("PagesCmd.Run() output = %q: %v", out.String(), err)
	}
	if pages < 2 {
		t.Errorf("Pages = %d, want more than one page for 200 lines", pages)
	}
	if want := fmt.Sprintf("section 1: pages 1-%d", pages); !strings.Contains(out.String(), want) {
		t.Errorf("PagesCmd.Run() output missing %q:\n%s", want, out.String())
	}
}

func TestJoinTablesCmd_Run_OutOfRange(t *testing.T) {
	dir := t.TempDir()
	src := createTestFile(t, dir, "in.txt", "no tables\n")
	cmd := &JoinTablesCmd{InputFlags: InputFlags{Path: src}, OutputFlags: OutputFlags{Output: filepath.Join(dir, "o.txt")}, Second: 1}
	if err := cmd.Run(config.Default()); err == nil {
		t.Error("JoinTablesCmd.Run() succeeded on a document without tables")
	}
}

func TestFieldsUpdateCmd_Run(t *testing.T) {
	dir := t.TempDir()
	src := createTestFile(t, dir, "in.txt", "no fields\n")
	captureStdout(t)
	cmd := &FieldsUpdateCmd{InputFlags: InputFlags{Path: src}, OutputFlags: OutputFlags{Output: filepath.Join(dir, "o.txt")}}
	if err := cmd.Run(config.Default()); err != nil {
		t.Fatalf("FieldsUpdateCmd.Run() error = %v", err)
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	good := createTestFile(t, dir, "good.yaml", "compare:\n  author: bob\n")
	bad := createTestFile(t, dir, "bad.yaml", "logging:\n  level: loud\n")

	cfg, err := loadConfig(good, "debug")
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}
	if cfg.Compare.Author != "bob" || cfg.Logging.Level != "debug" {
		t.Errorf("loadConfig() = %+v", cfg)
	}
	if _, err := loadConfig(bad, ""); err == nil {
		t.Error("loadConfig(bad level) succeeded")
	}
	if _, err := loadConfig("", "verbose"); err == nil {
		t.Error("loadConfig(\"\", verbose) succeeded")
	}
}
