package shared

import (
	"strings"

	"github.com/mymmrac/telego"

	"github.com/codex-k8s/telegram-poller/internal/i18n"
)

// MessagesFor resolves localized messages with fallback to configured default and then English.
func MessagesFor(messages map[string]i18n.Messages, lang, fallbackLang string) i18n.Messages {
	lang = normalizeLang(lang)
	if msg, ok := messages[lang]; ok {
		return msg
	}
	if msg, ok := messages[normalizeLang(fallbackLang)]; ok {
		return msg
	}
	if msg, ok := messages["en"]; ok {
		return msg
	}
	return i18n.Messages{}
}

// UserLang returns the base language of a Telegram user ("en-US" becomes "en").
func UserLang(user *telego.User) string {
	if user == nil {
		return ""
	}
	return normalizeLang(user.LanguageCode)
}

func normalizeLang(lang string) string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if base, _, ok := strings.Cut(lang, "-"); ok {
		return base
	}
	return lang
}
