// Package i18n localizes user-facing error messages using Accept-Language.
package i18n

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

var (
	supported = []language.Tag{language.English, language.Spanish}
	matcher   = language.NewMatcher(supported)
	messages  = catalog.NewBuilder(catalog.Fallback(language.English))
)

func init() {
	for key, text := range english {
		_ = messages.SetString(language.English, key, text)
	}
	for key, text := range spanish {
		_ = messages.SetString(language.Spanish, key, text)
	}
}

// Match picks the best supported language for an Accept-Language header.
func Match(acceptLanguage string) language.Tag {
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return language.English
	}
	_, idx, conf := matcher.Match(tags...)
	if conf == language.No {
		return language.English
	}
	return supported[idx]
}

// T returns the message for key in lang. Unknown keys are returned as-is.
func T(lang language.Tag, key string) string {
	return message.NewPrinter(lang, message.Catalog(messages)).Sprintf(key)
}
