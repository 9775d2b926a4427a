// Package translation wraps gotext lookups for the user-facing strings
// of outbound alert messages. The locale is configured once at startup;
// an unconfigured locale falls through to the message id itself.
package translation

import (
	"github.com/leonelquinteros/gotext"
)

func GetLanguage() string {
	lang := gotext.GetLanguage()

	if lang == "und" || lang == "" {
		return "en"
	}

	return lang
}

func Translate(msgID string, vars ...interface{}) string {
	return gotext.Get(msgID, vars...)
}
