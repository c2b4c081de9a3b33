package language

import "clinicvoice/internal/domain"

// Locale maps a dialogue language to the voice/locale tag used for replies.
// Unknown speaks English.
func Locale(lang domain.Language) string {
	if lang == domain.LangRU {
		return "ru-RU"
	}
	return "en-US"
}
