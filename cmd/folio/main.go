// Command folio loads, converts, compares and paginates documents.
package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"

	"github.com/FocuswithJustin/folio/internal/config"

	// Register every codec.
	_ "github.com/FocuswithJustin/folio/internal/embedded"
)

const version = "0.4.0"

// stdout is swapped in tests.
var stdout io.Writer = os.Stdout

// CLI defines the command-line interface for folio.
var CLI struct {
	Config   string `name:"config" short:"c" help:"YAML settings file" type:"path" env:"FOLIO_CONFIG"`
	LogLevel string `name:"log-level" help:"Override logging.level (debug, info, warn, error)"`

	Doc       DocGroup       `cmd:"" help:"Document operations (text, convert, detect, info, clean)"`
	Tables    TablesGroup    `cmd:"" help:"Table operations"`
	Fonts     FontsGroup     `cmd:"" help:"Font operations"`
	Revisions RevisionsGroup `cmd:"" help:"Tracked change operations"`
	Compare   CompareCmd     `cmd:"" help:"Compare two documents and write the differences as revisions"`
	Layout    LayoutGroup    `cmd:"" help:"Pagination"`
	Fields    FieldsGroup    `cmd:"" help:"Field operations"`
	Version   VersionCmd     `cmd:"" help:"Print version information"`
}

// DocGroup contains whole-document operations.
type DocGroup struct {
	Text    TextCmd    `cmd:"" help:"Print the plain text of a document"`
	Convert ConvertCmd `cmd:"" help:"Convert a document to another format"`
	Detect  DetectCmd  `cmd:"" help:"Detect the format of a file"`
	Info    InfoCmd    `cmd:"" help:"Print document statistics"`
	Clean   CleanCmd   `cmd:"" help:"Remove unused styles and lists and join runs"`
}

// TablesGroup contains table operations.
type TablesGroup struct {
	Join JoinTablesCmd `cmd:"" help:"Append the rows of one table to another"`
}

// FontsGroup contains font operations.
type FontsGroup struct {
	Default DefaultFontCmd `cmd:"" help:"Apply the default font and substitutions"`
}

// RevisionsGroup contains tracked change operations.
type RevisionsGroup struct {
	List      RevisionsListCmd `cmd:"" help:"List pending revisions, most recent first"`
	AcceptAll AcceptAllCmd     `cmd:"" name:"accept-all" help:"Accept every revision"`
	RejectAll RejectAllCmd     `cmd:"" name:"reject-all" help:"Reject every revision"`
}

// LayoutGroup contains pagination operations.
type LayoutGroup struct {
	Pages PagesCmd `cmd:"" help:"Print page counts and per-section page ranges"`
}

// FieldsGroup contains field operations.
type FieldsGroup struct {
	Update FieldsUpdateCmd `cmd:"" help:"Recompute field results"`
}

// loadConfig reads the settings file, applies the environment and checks
// the result.
func loadConfig(path, logLevel string) (*config.Config, error) {
	cfg := config.Default()
	if path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return nil, err
		}
	}
	cfg.ApplyEnv()
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "warning: .env: %v\n", err)
	}
	ctx := kong.Parse(&CLI,
		kong.Name("folio"),
		kong.Description("Folio - structured document engine"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
	)
	cfg, err := loadConfig(CLI.Config, CLI.LogLevel)
	ctx.FatalIfErrorf(err)
	cfg.InitLogging()
	err = ctx.Run(cfg)
	ctx.FatalIfErrorf(err)
}
