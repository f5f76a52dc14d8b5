package field

import (
	"strconv"
	"strings"
	"time"
	"unicode"
)

// Default pictures used when a date field has no \@ switch.
const (
	DefaultDatePicture = "M/d/yyyy"
	DefaultTimePicture = "h:mm am/pm"
)

// datePictureTokens are tried longest first at each position.
var datePictureTokens = []string{
	"yyyy", "yy", "MMMM", "MMM", "MM", "M", "dddd", "ddd", "dd", "d",
	"HH", "H", "hh", "h", "mm", "m", "ss", "s", "AM/PM", "am/pm",
}

// FormatDate renders t with a date picture such as "dddd, d MMMM yyyy".
// Text in single quotes is copied literally.
func FormatDate(t time.Time, picture string) string {
	var sb strings.Builder
	for i := 0; i < len(picture); {
		if picture[i] == '\'' {
			end := strings.IndexByte(picture[i+1:], '\'')
			if end < 0 {
				sb.WriteString(picture[i+1:])
				break
			}
			sb.WriteString(picture[i+1 : i+1+end])
			i += end + 2
			continue
		}
		tok := ""
		for _, cand := range datePictureTokens {
			if strings.HasPrefix(picture[i:], cand) {
				tok = cand
				break
			}
		}
		if tok == "" {
			sb.WriteByte(picture[i])
			i++
			continue
		}
		sb.WriteString(dateToken(t, tok))
		i += len(tok)
	}
	return sb.String()
}

func dateToken(t time.Time, tok string) string {
	hour12 := t.Hour() % 12
	if hour12 == 0 {
		hour12 = 12
	}
	switch tok {
	case "yyyy":
		return strconv.Itoa(t.Year())
	case "yy":
		return t.Format("06")
	case "MMMM":
		return t.Month().String()
	case "MMM":
		return t.Month().String()[:3]
	case "MM":
		return t.Format("01")
	case "M":
		return strconv.Itoa(int(t.Month()))
	case "dddd":
		return t.Weekday().String()
	case "ddd":
		return t.Weekday().String()[:3]
	case "dd":
		return t.Format("02")
	case "d":
		return strconv.Itoa(t.Day())
	case "HH":
		return t.Format("15")
	case "H":
		return strconv.Itoa(t.Hour())
	case "hh":
		return pad2(hour12)
	case "h":
		return strconv.Itoa(hour12)
	case "mm":
		return t.Format("04")
	case "m":
		return strconv.Itoa(t.Minute())
	case "ss":
		return t.Format("05")
	case "s":
		return strconv.Itoa(t.Second())
	case "AM/PM":
		return t.Format("PM")
	case "am/pm":
		return strings.ToLower(t.Format("PM"))
	}
	return tok
}

func pad2(n int) string {
	if n < 10 {
		return "0" + strconv.Itoa(n)
	}
	return strconv.Itoa(n)
}

// FormatNumber renders n with a numeric picture such as "0.00" or "#,##0".
func FormatNumber(n float64, picture string) string {
	decimals := 0
	if i := strings.IndexByte(picture, '.'); i >= 0 {
		for _, r := range picture[i+1:] {
			if r == '0' || r == '#' {
				decimals++
			}
		}
	}
	s := strconv.FormatFloat(n, 'f', decimals, 64)
	if !strings.Contains(picture, ",") {
		return s
	}
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	intPart, frac, _ := strings.Cut(s, ".")
	var sb strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			sb.WriteByte(',')
		}
		sb.WriteRune(r)
	}
	out := sb.String()
	if frac != "" {
		out += "." + frac
	}
	if neg {
		out = "-" + out
	}
	return out
}

// ApplyCase applies a \* general format switch value. MERGEFORMAT and
// unknown values leave s unchanged.
func ApplyCase(s, format string) string {
	switch strings.ToLower(format) {
	case "upper":
		return strings.ToUpper(s)
	case "lower":
		return strings.ToLower(s)
	case "firstcap":
		r := []rune(strings.ToLower(s))
		if len(r) > 0 {
			r[0] = unicode.ToUpper(r[0])
		}
		return string(r)
	case "caps":
		words := strings.Fields(s)
		for i, w := range words {
			r := []rune(strings.ToLower(w))
			r[0] = unicode.ToUpper(r[0])
			words[i] = string(r)
		}
		return strings.Join(words, " ")
	}
	return s
}
