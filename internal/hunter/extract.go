package hunter

import "regexp"

// linkPattern matches http(s) URLs up to the first whitespace, bracket, double
// quote or angle bracket. Apostrophes are legal inside URLs and are kept; a
// closing single quote is trimmed later by the noise filter.
var linkPattern = regexp.MustCompile(`https?://[^\s<>"()\[\]{}]+`)

// ExtractLinks returns every URL-looking substring of text in the order found.
// Duplicates are kept; deduplication belongs to the caller.
func ExtractLinks(text string) []string {
	if text == "" {
		return nil
	}
	return linkPattern.FindAllString(text, -1)
}
