package hunter

import (
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// DefaultBlockedDomains are hosts that only ever show up as navigation noise:
// the search provider itself and the platform hosting the index documents.
var DefaultBlockedDomains = []string{
	"*.duckduckgo.com",
	"*.github.com",
	"*.githubusercontent.com",
}

// SearchProviderPattern returns a "*.domain" pattern covering the registrable
// domain of a search endpoint, so a provider's own navigation links are noise
// whichever provider is configured. It returns "" when no host can be derived.
func SearchProviderPattern(endpoint string) string {
	u, err := url.Parse(strings.TrimSpace(endpoint))
	if err != nil {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return ""
	}
	domain, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		// IPs and bare public suffixes have no registrable domain.
		domain = host
	}
	return "*." + domain
}

// DefaultMinCandidateLength rejects candidates too short to be a real dataset link.
const DefaultMinCandidateLength = 20

// trailingNoise is punctuation that prose and markdown leave glued to a URL.
const trailingNoise = ".,;:!?*'\"`"

// NoiseFilter decides which extracted candidates are worth classifying.
type NoiseFilter struct {
	blocked   *domainPatternBlocklist
	minLength int
}

// NewNoiseFilter builds a filter from domain patterns ("host", "*.suffix" or
// ".suffix") and a minimum candidate length.
func NewNoiseFilter(blockedDomains []string, minLength int) *NoiseFilter {
	if minLength <= 0 {
		minLength = DefaultMinCandidateLength
	}
	return &NoiseFilter{
		blocked:   newDomainPatternBlocklist(blockedDomains),
		minLength: minLength,
	}
}

// Accept trims trailing punctuation from raw and reports whether the result
// should enter the pipeline.
func (f *NoiseFilter) Accept(raw string) (string, bool) {
	candidate := strings.TrimRight(strings.TrimSpace(raw), trailingNoise)
	if len(candidate) < f.minLength {
		return "", false
	}
	u, err := url.Parse(candidate)
	if err != nil || u.Hostname() == "" {
		return "", false
	}
	if f.blocked.IsBlocked(u.Hostname()) {
		return "", false
	}
	return candidate, true
}

// domainPatternBlocklist stores exact hosts and suffix wildcards derived from configuration.
type domainPatternBlocklist struct {
	exact    map[string]struct{}
	suffixes []string
}

func newDomainPatternBlocklist(patterns []string) *domainPatternBlocklist {
	matcher := &domainPatternBlocklist{
		exact: make(map[string]struct{}),
	}
	for _, raw := range patterns {
		value := strings.TrimSpace(strings.ToLower(raw))
		if value == "" {
			continue
		}
		switch {
		case strings.HasPrefix(value, "*."):
			matcher.addSuffix(strings.TrimPrefix(value, "*."))
		case strings.HasPrefix(value, "."):
			matcher.addSuffix(strings.TrimPrefix(value, "."))
		default:
			matcher.exact[value] = struct{}{}
		}
	}
	if len(matcher.exact) == 0 && len(matcher.suffixes) == 0 {
		return nil
	}
	return matcher
}

func (b *domainPatternBlocklist) addSuffix(suffix string) {
	if suffix == "" {
		return
	}
	for _, existing := range b.suffixes {
		if existing == suffix {
			return
		}
	}
	b.suffixes = append(b.suffixes, suffix)
}

func (b *domainPatternBlocklist) IsBlocked(host string) bool {
	if b == nil {
		return false
	}
	host = strings.TrimSpace(strings.ToLower(host))
	if host == "" {
		return false
	}
	if _, exact := b.exact[host]; exact {
		return true
	}
	for _, suffix := range b.suffixes {
		if host == suffix || strings.HasSuffix(host, "."+suffix) {
			return true
		}
	}
	return false
}
