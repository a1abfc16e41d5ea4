// Package lang defines the set of languages the relay can translate between
// and the vendor-specific identifiers derived from them.
//
// Languages are addressed everywhere by their short ISO 639-1 code ("it",
// "en", ...). The full locale tag ("it-IT") and the synthesis voice name are
// lookup details that only provider adapters should care about.
package lang

import (
	"errors"
	"fmt"
	"sort"
)

// ErrUnsupported is returned when a language code is not in the supported set.
var ErrUnsupported = errors.New("lang: unsupported language")

// locales maps short codes to the locale tags used for speech recognition
// and translation.
var locales = map[string]string{
	"it": "it-IT",
	"en": "en-US",
	"fr": "fr-FR",
	"es": "es-ES",
	"de": "de-DE",
	"zh": "zh-CN",
	"ja": "ja-JP",
	"ru": "ru-RU",
	"ar": "ar-SA",
	"pt": "pt-BR",
}

// voices maps short codes to the neural voice used for synthesis.
var voices = map[string]string{
	"it": "it-IT-ElsaNeural",
	"en": "en-US-JennyNeural",
	"fr": "fr-FR-DeniseNeural",
	"es": "es-ES-ElviraNeural",
	"de": "de-DE-KatjaNeural",
	"zh": "zh-CN-XiaoxiaoNeural",
	"ja": "ja-JP-NanamiNeural",
	"ru": "ru-RU-SvetlanaNeural",
	"ar": "ar-SA-ZariyahNeural",
	"pt": "pt-BR-FranciscaNeural",
}

// Supported reports whether code is a known short language code.
func Supported(code string) bool {
	_, ok := locales[code]
	return ok
}

// Validate returns ErrUnsupported (wrapped with the offending code) if code is
// not in the supported set.
func Validate(code string) error {
	if !Supported(code) {
		return fmt.Errorf("%w: %q", ErrUnsupported, code)
	}
	return nil
}

// Locale returns the full locale tag for a short code, e.g. "it" -> "it-IT".
// Unknown codes fall back to "it-IT", matching the recognizer default.
func Locale(code string) string {
	if l, ok := locales[code]; ok {
		return l
	}
	return "it-IT"
}

// Voice returns the synthesis voice for a short code. Unknown codes fall back
// to the English voice.
func Voice(code string) string {
	if v, ok := voices[code]; ok {
		return v
	}
	return voices["en"]
}

// Codes returns all supported short codes in sorted order.
func Codes() []string {
	out := make([]string, 0, len(locales))
	for c := range locales {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}
