package field

import (
	stderrors "errors"
	"path/filepath"
	"strconv"
	"time"

	"github.com/FocuswithJustin/folio/core/dom"
	"github.com/FocuswithJustin/folio/internal/logging"
)

// UpdateContext supplies values that live outside the document.
type UpdateContext struct {
	// Now is used by DATE and TIME; zero means time.Now.
	Now time.Time
	// PageCount feeds NUMPAGES; zero leaves those fields unchanged.
	PageCount int
	// PageOf returns the 1-based page of a node for PAGE fields. Nil
	// leaves PAGE results unchanged.
	PageOf func(dom.NodeID) int
}

// Update refreshes the results of every field it knows how to compute.
// Fields whose code does not parse are skipped and reported in the joined
// error. It returns the number of fields whose result changed.
func Update(doc *dom.Document, ctx UpdateContext) (int, error) {
	if ctx.Now.IsZero() {
		ctx.Now = time.Now()
	}
	var errs []error
	changed := 0
	for _, f := range doc.ChildNodes(doc.Root(), dom.NodeField, true) {
		attrs := doc.Attrs(f)
		code, err := Parse(attrs.FieldCode)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		result, ok := Evaluate(doc, f, code, ctx)
		if !ok || result == attrs.FieldResult {
			continue
		}
		attrs.FieldResult = result
		if err := doc.SetAttrs(f, attrs); err != nil {
			errs = append(errs, err)
			continue
		}
		changed++
	}
	logging.Debug("fields updated", "changed", changed, "errors", len(errs))
	return changed, stderrors.Join(errs...)
}

// Evaluate computes the result of one field. It reports false for field
// types whose result cannot be computed here.
func Evaluate(doc *dom.Document, node dom.NodeID, code *Code, ctx UpdateContext) (string, bool) {
	var out string
	switch code.Type {
	case "DATE":
		out = formatDateField(ctx.Now, code, DefaultDatePicture)
	case "TIME":
		out = formatDateField(ctx.Now, code, DefaultTimePicture)
	case "CREATEDATE":
		out = formatDateField(doc.Props.Created, code, DefaultDatePicture)
	case "SAVEDATE":
		out = formatDateField(doc.Props.LastSaved, code, DefaultDatePicture)
	case "DOCVARIABLE":
		v, ok := doc.Variables().Get(code.Arg(0))
		if !ok {
			return "", false
		}
		out = v
	case "NUMPAGES":
		if ctx.PageCount <= 0 {
			return "", false
		}
		out = formatNumberField(float64(ctx.PageCount), code)
	case "PAGE":
		if ctx.PageOf == nil {
			return "", false
		}
		page := ctx.PageOf(node)
		if page <= 0 {
			return "", false
		}
		out = formatNumberField(float64(page), code)
	case "NUMWORDS":
		out = formatNumberField(float64(doc.Props.Words), code)
	case "NUMCHARS":
		out = formatNumberField(float64(doc.Props.Characters), code)
	case "AUTHOR":
		out = doc.Props.Author
	case "TITLE":
		out = doc.Props.Title
	case "SUBJECT":
		out = doc.Props.Subject
	case "LASTSAVEDBY":
		out = doc.Props.LastSavedBy
	case "FILENAME":
		if doc.OriginalFileName == "" {
			return "", false
		}
		out = filepath.Base(doc.OriginalFileName)
	case "MERGEFIELD":
		out = "«" + code.Arg(0) + "»"
	default:
		return "", false
	}
	if f, ok := code.Switch("*"); ok {
		out = ApplyCase(out, f)
	}
	return out, true
}

func formatDateField(t time.Time, code *Code, def string) string {
	if t.IsZero() {
		return ""
	}
	if pic, ok := code.Switch("@"); ok && pic != "" {
		return FormatDate(t, pic)
	}
	return FormatDate(t, def)
}

func formatNumberField(n float64, code *Code) string {
	if pic, ok := code.Switch("#"); ok && pic != "" {
		return FormatNumber(n, pic)
	}
	return strconv.FormatFloat(n, 'f', -1, 64)
}
