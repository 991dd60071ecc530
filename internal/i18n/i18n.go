package i18n

import "strings"

// Language enumerates the locales the service can answer in.
type Language int

const (
	English Language = iota
	Spanish
	SpanishMexico
	SpanishSpain
	Polish
	Romanian
	Swedish

	languageCount
)

// Default is used for unrecognized input codes only, never as a silent
// catch-all for missing table entries.
const Default = English

var languageCodes = [languageCount]string{
	English:       "en",
	Spanish:       "es",
	SpanishMexico: "es-mx",
	SpanishSpain:  "es-es",
	Polish:        "pl",
	Romanian:      "ro",
	Swedish:       "se",
}

func (l Language) Code() string {
	if l < 0 || l >= languageCount {
		return languageCodes[Default]
	}
	return languageCodes[l]
}

// ParseLanguage maps a wire language code to a Language. The second
// return reports whether the code was recognized; callers that want the
// fallback behavior should use ResolveLanguage instead.
func ParseLanguage(code string) (Language, bool) {
	normalized := strings.ToLower(strings.TrimSpace(code))
	for l, c := range languageCodes {
		if c == normalized {
			return Language(l), true
		}
	}
	return Default, false
}

// ResolveLanguage is ParseLanguage with the designated default applied.
func ResolveLanguage(code string) Language {
	l, _ := ParseLanguage(code)
	return l
}

// SupportedLanguageCodes returns the wire codes of every supported language.
func SupportedLanguageCodes() []string {
	out := make([]string, languageCount)
	copy(out, languageCodes[:])
	return out
}

// Country pairs a catalog country with its provider and default locale.
type Country struct {
	Code     string
	ID       int
	Provider int
	Lang     Language
}

// Countries is the fixed set of supported markets.
var Countries = []Country{
	{Code: "mx", ID: 2, Provider: 373, Lang: SpanishMexico},
	{Code: "es", ID: 1, Provider: 374, Lang: SpanishSpain},
	{Code: "pl", ID: 14, Provider: 375, Lang: Polish},
	{Code: "ro", ID: 12, Provider: 376, Lang: Romanian},
	{Code: "se", ID: 22, Provider: 377, Lang: Swedish},
}

// CountryByID resolves a supported country by its numeric identifier.
func CountryByID(id int) (Country, bool) {
	for _, c := range Countries {
		if c.ID == id {
			return c, true
		}
	}
	return Country{}, false
}
