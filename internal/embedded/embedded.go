// Package embedded registers every built-in codec. Import it for its side
// effects.
package embedded

import (
	_ "github.com/FocuswithJustin/folio/internal/formats/doc"
	_ "github.com/FocuswithJustin/folio/internal/formats/docx"
	_ "github.com/FocuswithJustin/folio/internal/formats/epub"
	_ "github.com/FocuswithJustin/folio/internal/formats/flatxml"
	_ "github.com/FocuswithJustin/folio/internal/formats/html"
	_ "github.com/FocuswithJustin/folio/internal/formats/markdown"
	_ "github.com/FocuswithJustin/folio/internal/formats/native"
	_ "github.com/FocuswithJustin/folio/internal/formats/nativez"
	_ "github.com/FocuswithJustin/folio/internal/formats/odt"
	_ "github.com/FocuswithJustin/folio/internal/formats/pdf"
	_ "github.com/FocuswithJustin/folio/internal/formats/rtf"
	_ "github.com/FocuswithJustin/folio/internal/formats/sqlite"
	_ "github.com/FocuswithJustin/folio/internal/formats/txt"
)
