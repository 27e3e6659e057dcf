package engine

import (
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Localization of the display/export tokens the formatter emits. Tokens are
// registered in a process-local catalog; unsupported locales match to the
// nearest supported tag, falling back to English.

var supportedLocales = []language.Tag{
	language.AmericanEnglish, // first entry is the fallback
	language.German,
}

var localeMatcher = language.NewMatcher(supportedLocales)

func init() {
	for _, pair := range []struct {
		tag     language.Tag
		yes, no string
		date    string
	}{
		{tag: language.AmericanEnglish, yes: "Yes", no: "No", date: "Jan 2, 2006"},
		{tag: language.German, yes: "Ja", no: "Nein", date: "02.01.2006"},
	} {
		if err := message.SetString(pair.tag, "token.yes", pair.yes); err != nil {
			panic(err)
		}
		if err := message.SetString(pair.tag, "token.no", pair.no); err != nil {
			panic(err)
		}
		if err := message.SetString(pair.tag, "layout.date", pair.date); err != nil {
			panic(err)
		}
	}
}

// Localizer renders locale-dependent tokens for the formatter.
type Localizer struct {
	tag     language.Tag
	printer *message.Printer
}

// NewLocalizer matches locale (a BCP 47 tag such as "en-US" or "de") against
// the supported catalog, falling back to American English.
func NewLocalizer(locale string) *Localizer {
	tag, _ := language.MatchStrings(localeMatcher, locale)
	return &Localizer{tag: tag, printer: message.NewPrinter(tag)}
}

// Tag returns the matched language tag.
func (l *Localizer) Tag() language.Tag { return l.tag }

// YesNo localizes a raw choice_bool value ("yes"/"no").
func (l *Localizer) YesNo(raw string) string {
	if raw == ChoiceYes {
		return l.printer.Sprintf("token.yes")
	}
	return l.printer.Sprintf("token.no")
}

// FormatDate renders a timestamp with the locale's date layout.
func (l *Localizer) FormatDate(t time.Time) string {
	return t.Format(l.printer.Sprintf("layout.date"))
}
