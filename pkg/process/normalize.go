package process

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/purell"
)

func Normalize(url string) (string, error) {
	flags := purell.FlagLowercaseScheme |
		purell.FlagLowercaseHost |
		purell.FlagRemoveDefaultPort |
		purell.FlagRemoveFragment |
		purell.FlagDecodeUnnecessaryEscapes |
		purell.FlagSortQuery |
		purell.FlagRemoveDuplicateSlashes |
		purell.FlagRemoveDotSegments

	return purell.NormalizeURLString(url, flags)
}

// Host returns the lowercased hostname of a URL after normalization, or ""
// when it cannot be parsed.
func Host(raw string) string {
	normalized, err := Normalize(raw)
	if err != nil {
		return ""
	}
	u, err := url.Parse(normalized)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
