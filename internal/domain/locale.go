package domain

// Locales the corpus and locale detection distinguish.
const (
	LocaleKorean  = "ko"
	LocaleEnglish = "en"
)

// Hangul syllable block (U+AC00..U+D7A3).
const (
	hangulLo = 0xAC00
	hangulHi = 0xD7A3
)

// DetectLocale returns "ko" when the message contains at least one Hangul
// syllable, "en" otherwise. Empty input defaults to Korean, matching the
// corpus default.
func DetectLocale(message string) string {
	if message == "" {
		return LocaleKorean
	}
	for _, r := range message {
		if r >= hangulLo && r <= hangulHi {
			return LocaleKorean
		}
	}
	return LocaleEnglish
}

// IsHangul reports whether r falls in the Hangul syllable block.
func IsHangul(r rune) bool {
	return r >= hangulLo && r <= hangulHi
}
