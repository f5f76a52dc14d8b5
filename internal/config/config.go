// Package config loads engine settings from a YAML file and FOLIO_*
// environment variables.
package config

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/FocuswithJustin/folio/core/codec"
	"github.com/FocuswithJustin/folio/core/compare"
	"github.com/FocuswithJustin/folio/core/errors"
	"github.com/FocuswithJustin/folio/core/fonts"
	"github.com/FocuswithJustin/folio/core/layout"
	"github.com/FocuswithJustin/folio/internal/logging"
)

// Environment variables read by ApplyEnv.
const (
	EnvLogLevel    = "FOLIO_LOG_LEVEL"
	EnvLogFormat   = "FOLIO_LOG_FORMAT"
	EnvDefaultFont = "FOLIO_DEFAULT_FONT"
	EnvFontDirs    = "FOLIO_FONT_DIRS"
)

// lookupEnv is swapped in tests.
var lookupEnv = os.LookupEnv

// Config is the full settings file.
type Config struct {
	Logging LoggingConfig `yaml:"logging"`
	Fonts   FontsConfig   `yaml:"fonts"`
	Layout  LayoutConfig  `yaml:"layout"`
	Compare CompareConfig `yaml:"compare"`
	Save    SaveConfig    `yaml:"save"`
}

// LoggingConfig selects the slog level and handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// FontsConfig feeds fonts.Settings.
type FontsConfig struct {
	Default       string              `yaml:"default"`
	Folders       []string            `yaml:"folders"`
	Substitutions map[string][]string `yaml:"substitutions"`
}

// LayoutConfig is the page geometry used when a section sets none.
type LayoutConfig struct {
	PageWidth      float64 `yaml:"page_width"`
	PageHeight     float64 `yaml:"page_height"`
	MarginTop      float64 `yaml:"margin_top"`
	MarginBottom   float64 `yaml:"margin_bottom"`
	MarginLeft     float64 `yaml:"margin_left"`
	MarginRight    float64 `yaml:"margin_right"`
	LineSpacing    float64 `yaml:"line_spacing"`
	CharWidthRatio float64 `yaml:"char_width_ratio"`
	FontSize       float64 `yaml:"font_size"`
}

// CompareConfig holds the default comparison options.
type CompareConfig struct {
	Author      string   `yaml:"author"`
	Granularity string   `yaml:"granularity"` // word, char
	Target      string   `yaml:"target"`      // new, original
	Ignore      []string `yaml:"ignore"`
}

// SaveConfig holds the default save options.
type SaveConfig struct {
	PrettyPrint  bool   `yaml:"pretty_print"`
	ImagesFolder string `yaml:"images_folder"`
}

var ignoreFlags = map[string]func(*compare.Options){
	"formatting":          func(o *compare.Options) { o.IgnoreFormatting = true },
	"case":                func(o *compare.Options) { o.IgnoreCaseChanges = true },
	"comments":            func(o *compare.Options) { o.IgnoreComments = true },
	"tables":              func(o *compare.Options) { o.IgnoreTables = true },
	"fields":              func(o *compare.Options) { o.IgnoreFields = true },
	"footnotes":           func(o *compare.Options) { o.IgnoreFootnotes = true },
	"textboxes":           func(o *compare.Options) { o.IgnoreTextboxes = true },
	"headers_and_footers": func(o *compare.Options) { o.IgnoreHeadersAndFooters = true },
}

// Default returns the built-in settings.
func Default() *Config {
	lo := layout.DefaultOptions()
	return &Config{
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Fonts:   FontsConfig{Default: "Times New Roman"},
		Layout: LayoutConfig{
			PageWidth:      lo.PageWidth,
			PageHeight:     lo.PageHeight,
			MarginTop:      lo.Margins.Top,
			MarginBottom:   lo.Margins.Bottom,
			MarginLeft:     lo.Margins.Left,
			MarginRight:    lo.Margins.Right,
			LineSpacing:    lo.LineSpacing,
			CharWidthRatio: lo.CharWidthRatio,
			FontSize:       lo.FontSize,
		},
		Compare: CompareConfig{Author: "folio", Granularity: "word", Target: "new"},
	}
}

// Load reads path over the defaults. Unknown keys are an error.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewIO("read config", path, err)
	}
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, errors.NewParse("yaml", path, err.Error())
	}
	return cfg, nil
}

// ApplyEnv overrides settings from FOLIO_* variables. FOLIO_FONT_DIRS is
// a list separated by the OS path list separator.
func (c *Config) ApplyEnv() {
	if v, ok := lookupEnv(EnvLogLevel); ok && v != "" {
		c.Logging.Level = v
	}
	if v, ok := lookupEnv(EnvLogFormat); ok && v != "" {
		c.Logging.Format = v
	}
	if v, ok := lookupEnv(EnvDefaultFont); ok && v != "" {
		c.Fonts.Default = v
	}
	if v, ok := lookupEnv(EnvFontDirs); ok && v != "" {
		c.Fonts.Folders = filepath.SplitList(v)
	}
}

// Validate checks every section and returns the first problem.
func (c *Config) Validate() error {
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return errors.NewValidation("logging.level", err.Error())
	}
	if _, err := logging.ParseFormat(c.Logging.Format); err != nil {
		return errors.NewValidation("logging.format", err.Error())
	}
	l := c.Layout
	if l.PageWidth <= l.MarginLeft+l.MarginRight || l.PageHeight <= l.MarginTop+l.MarginBottom {
		return errors.NewValidation("layout", "margins leave no room for text")
	}
	for name, v := range map[string]float64{
		"layout.line_spacing":     l.LineSpacing,
		"layout.char_width_ratio": l.CharWidthRatio,
		"layout.font_size":        l.FontSize,
	} {
		if v <= 0 {
			return errors.NewValidation(name, "must be positive")
		}
	}
	switch c.Compare.Granularity {
	case "", "word", "char":
	default:
		return errors.NewValidation("compare.granularity", "want word or char, got "+c.Compare.Granularity)
	}
	switch c.Compare.Target {
	case "", "new", "original":
	default:
		return errors.NewValidation("compare.target", "want new or original, got "+c.Compare.Target)
	}
	for _, ig := range c.Compare.Ignore {
		if _, ok := ignoreFlags[strings.ToLower(ig)]; !ok {
			return errors.NewValidation("compare.ignore", "unknown option "+ig)
		}
	}
	return nil
}

// InitLogging configures the global logger. Validate first.
func (c *Config) InitLogging() {
	level, _ := logging.ParseLevel(c.Logging.Level)
	format, _ := logging.ParseFormat(c.Logging.Format)
	logging.InitLogger(level, format)
}

// LayoutOptions converts the layout section.
func (c *Config) LayoutOptions() layout.Options {
	l := c.Layout
	return layout.Options{
		PageWidth:      l.PageWidth,
		PageHeight:     l.PageHeight,
		Margins:        layout.Margins{Top: l.MarginTop, Bottom: l.MarginBottom, Left: l.MarginLeft, Right: l.MarginRight},
		LineSpacing:    l.LineSpacing,
		CharWidthRatio: l.CharWidthRatio,
		FontSize:       l.FontSize,
	}
}

// CompareOptions converts the compare section.
func (c *Config) CompareOptions() compare.Options {
	var o compare.Options
	if c.Compare.Granularity == "char" {
		o.Granularity = compare.CharLevel
	}
	if c.Compare.Target == "original" {
		o.Target = compare.TargetOriginal
	}
	for _, ig := range c.Compare.Ignore {
		if set, ok := ignoreFlags[strings.ToLower(ig)]; ok {
			set(&o)
		}
	}
	return o
}

// FontSettings converts the fonts section.
func (c *Config) FontSettings() *fonts.Settings {
	return &fonts.Settings{
		DefaultFontName: c.Fonts.Default,
		Folders:         c.Fonts.Folders,
		Substitutions:   c.Fonts.Substitutions,
	}
}

// SaveOptions converts the save section.
func (c *Config) SaveOptions() codec.SaveOptions {
	return codec.SaveOptions{PrettyPrint: c.Save.PrettyPrint, ImagesFolder: c.Save.ImagesFolder}
}
