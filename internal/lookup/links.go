package lookup

import (
	"net/url"
	"strings"
)

const (
	// SiteKeywordsTail widens every site search beyond the KC's own words.
	SiteKeywordsTail = "learning material OR educational resource OR topic"
	// FallbackKeywords is the second search when the KC keywords find nothing.
	FallbackKeywords = "library OR school OR learning center OR educational resource"

	searchBaseURL = "https://en.wikipedia.org/w/index.php"
	genericTopic  = "educational topic"
)

// BuildSiteKeywords assembles the nearby-search query from a KC's title and
// description. The description is skipped when the title already contains it.
func BuildSiteKeywords(title, description string) string {
	var parts []string
	if title != "" {
		parts = append(parts, title)
	}
	if description != "" && !strings.Contains(strings.ToLower(title), strings.ToLower(description)) {
		parts = append(parts, description)
	}
	parts = append(parts, SiteKeywordsTail)

	kw := strings.TrimSpace(strings.Join(parts, " "))
	if kw == "" {
		return "learning material"
	}
	return kw
}

// ResolveBestLink picks the link a virtual task points at: the site's own
// website, else a search for the site near the student's last location, else
// a search for the site, else a search for the KC title.
func ResolveBestLink(resourceName string, details PlaceDetails, kcTitle, lastLocationLabel string) string {
	if details.Website != "" {
		return details.Website
	}
	if resourceName != "" && lastLocationLabel != "" {
		return searchURL(resourceName + " " + lastLocationLabel)
	}
	if resourceName != "" {
		return searchURL(resourceName)
	}
	if kcTitle != "" {
		return searchURL(kcTitle)
	}
	return searchURL(genericTopic)
}

func searchURL(q string) string {
	return searchBaseURL + "?" + url.Values{"search": {q}}.Encode()
}
