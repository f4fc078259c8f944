package classifier

import (
	"strings"

	"github.com/JakeFAU/data-hunter/internal/hunter"
)

// Descriptions used when no analysis text is available.
const (
	heuristicDescription   = "Resource detected by deep crawl."
	remoteEmptyDescription = "Verified dataset."
	placeholderDescription = "Data link identified."
)

// TopicFor assigns a topic from markers in the URL.
func TopicFor(url string) string {
	lower := strings.ToLower(url)
	switch {
	case strings.Contains(lower, "gov"):
		return hunter.TopicGovernment
	case strings.Contains(lower, "edu"):
		return hunter.TopicAcademia
	default:
		return hunter.TopicOpenData
	}
}

// Heuristic classifies url without any external call.
func Heuristic(url string) hunter.Source {
	if strings.TrimSpace(url) == "" {
		return Placeholder(url)
	}
	return hunter.Source{URL: url, Topic: TopicFor(url), Description: heuristicDescription}
}

// Placeholder is the generic result used when nothing better is known.
func Placeholder(url string) hunter.Source {
	return hunter.Source{URL: url, Topic: hunter.TopicWeb, Description: placeholderDescription}
}

// sanitizeDescription trims analysis text and drops double quotes.
func sanitizeDescription(text string) string {
	desc := strings.TrimSpace(strings.ReplaceAll(text, `"`, ""))
	if desc == "" {
		return remoteEmptyDescription
	}
	return desc
}
