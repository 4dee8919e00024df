// Package i18nhttp resolves the response language of an HTTP request.
package i18nhttp

import (
	"net/http"
	"strings"

	errori18n "github.com/louisbranch/pinmap/internal/platform/errors/i18n"
	"golang.org/x/text/language"
)

const (
	// LangParam is the query parameter used to select a language.
	LangParam = "lang"
	// LangHeader echoes the resolved language on responses.
	LangHeader = "Content-Language"
)

// Supported returns the list of supported language tags.
func Supported() []language.Tag {
	return errori18n.SupportedTags()
}

// Default returns the default language tag.
func Default() language.Tag {
	return errori18n.DefaultTag()
}

// ResolveTag determines the best language tag for the request.
// An explicit lang query parameter wins over Accept-Language.
func ResolveTag(r *http.Request) language.Tag {
	if r == nil {
		return Default()
	}

	if langValue := strings.TrimSpace(r.URL.Query().Get(LangParam)); langValue != "" {
		if tag, ok := errori18n.ParseTag(langValue); ok {
			return tag
		}
	}

	if accept := strings.TrimSpace(r.Header.Get("Accept-Language")); accept != "" {
		if tags, _, err := language.ParseAcceptLanguage(accept); err == nil {
			return errori18n.MatchTags(tags)
		}
	}

	return Default()
}

// Catalog returns the error message catalog for the request language.
func Catalog(r *http.Request) *errori18n.Catalog {
	return errori18n.GetCatalog(errori18n.LocaleForTag(ResolveTag(r)))
}
