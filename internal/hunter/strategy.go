package hunter

import (
	"fmt"
	"net/url"
	"strings"
)

// Seed is a built-in item published at the start of every session.
type Seed struct {
	URL         string
	Topic       string
	Description string
}

// Source converts the seed into a discovered item.
func (s Seed) Source() Source {
	return Source{URL: s.URL, Topic: s.Topic, Description: s.Description}
}

// DefaultSeeds are well-known dataset portals.
var DefaultSeeds = []Seed{
	{URL: "https://www.kaggle.com/datasets", Topic: "DATA SCIENCE", Description: "Massive repository for machine learning datasets."},
	{URL: "https://data.worldbank.org/", Topic: "ECONOMICS", Description: "World Bank open data."},
	{URL: "https://archive.ics.uci.edu/", Topic: TopicAcademia, Description: "UCI Machine Learning Repository."},
	{URL: "https://github.com/awesomedata/awesome-public-datasets", Topic: "GENERAL", Description: "Master index of public datasets."},
}

// DefaultMasterRepositories are curated index documents scanned once each, in order.
var DefaultMasterRepositories = []string{
	"https://raw.githubusercontent.com/awesomedata/awesome-public-datasets/master/README.md",
	"https://raw.githubusercontent.com/datasets/awesome-data/master/README.md",
	"https://raw.githubusercontent.com/onurakpolat/awesome-bigdata/master/README.md",
}

// Search defaults.
const (
	DefaultSearchEndpoint = "https://html.duckduckgo.com/html/"
	DefaultGenericQuery   = "open data portal directory csv"
)

// Strategy names the source of a round's raw text.
type Strategy string

// Discovery strategies in priority order.
const (
	StrategyTopicSearch      Strategy = "topic_search"
	StrategyMasterRepository Strategy = "master_repository"
	StrategyGenericSearch    Strategy = "generic_search"
)

// Plan is the fetch chosen for one round.
type Plan struct {
	Strategy Strategy
	URL      string
	Level    Level
	Announce string
}

// planner keeps one cursor per strategy. The topic cursor wraps around the
// current topic list; the repository cursor never wraps, so once the index
// documents are exhausted every round without topics falls through to the
// generic search.
type planner struct {
	endpoint     string
	genericQuery string
	repositories []string

	topicCursor int
	repoCursor  int
}

func newPlanner(endpoint, genericQuery string, repositories []string) *planner {
	if endpoint == "" {
		endpoint = DefaultSearchEndpoint
	}
	if genericQuery == "" {
		genericQuery = DefaultGenericQuery
	}
	return &planner{
		endpoint:     endpoint,
		genericQuery: genericQuery,
		repositories: repositories,
	}
}

// next picks the strategy for a round given a snapshot of the custom topics.
func (p *planner) next(topics []string) Plan {
	if len(topics) > 0 {
		topic := strings.TrimSpace(topics[p.topicCursor%len(topics)])
		p.topicCursor++
		return Plan{
			Strategy: StrategyTopicSearch,
			URL:      SearchURL(p.endpoint, TopicQuery(topic)),
			Level:    LevelInfo,
			Announce: fmt.Sprintf("Searching CSV topic: %s", topic),
		}
	}
	if p.repoCursor < len(p.repositories) {
		target := p.repositories[p.repoCursor]
		p.repoCursor++
		return Plan{
			Strategy: StrategyMasterRepository,
			URL:      target,
			Level:    LevelWarn,
			Announce: fmt.Sprintf("Scanning master repository #%d...", p.repoCursor),
		}
	}
	return Plan{
		Strategy: StrategyGenericSearch,
		URL:      SearchURL(p.endpoint, p.genericQuery),
		Level:    LevelInfo,
		Announce: "Running generic web search...",
	}
}

// TopicQuery builds the search phrase for a custom topic.
func TopicQuery(topic string) string {
	return fmt.Sprintf("datasets %s csv open data", topic)
}

// SearchURL appends q to the search endpoint.
func SearchURL(endpoint, query string) string {
	sep := "?"
	if strings.Contains(endpoint, "?") {
		sep = "&"
	}
	return endpoint + sep + "q=" + url.QueryEscape(query)
}
