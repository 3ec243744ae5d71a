package conversation

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/irihojaphet/kozi-chatbot/internal/kozijobs"
)

type keywordMapping struct {
	keyword   string
	canonical string
}

// Coarse keyword lists used to pull job preferences out of free text, in
// fixed match priority order. The first word a message contains wins.
var categoryKeywords = []keywordMapping{
	{"cleaning", "cleaning"},
	{"cleaner", "cleaning"},
	{"housekeeping", "cleaning"},
	{"cooking", "cooking"},
	{"cook", "cooking"},
	{"chef", "cooking"},
	{"childcare", "childcare"},
	{"nanny", "childcare"},
	{"babysitting", "childcare"},
	{"security", "security"},
	{"guard", "security"},
	{"driving", "driving"},
	{"driver", "driving"},
	{"gardening", "gardening"},
	{"gardener", "gardening"},
	{"construction", "construction"},
	{"builder", "construction"},
	{"teaching", "teaching"},
	{"teacher", "teaching"},
	{"tutor", "teaching"},
	{"waiter", "hospitality"},
	{"waitress", "hospitality"},
	{"hospitality", "hospitality"},
	{"plumbing", "plumbing"},
	{"plumber", "plumbing"},
}

var locationKeywords = []string{
	"kigali", "musanze", "huye", "rubavu", "nyagatare", "muhanga",
	"rusizi", "gisenyi", "rwamagana", "karongi",
}

var workTypeKeywords = []keywordMapping{
	{"full time", "full_time"},
	{"full-time", "full_time"},
	{"fulltime", "full_time"},
	{"full_time", "full_time"},
	{"part time", "part_time"},
	{"part-time", "part_time"},
	{"parttime", "part_time"},
	{"part_time", "part_time"},
}

// ExtractPreferences pulls coarse category/location/work-type preferences out
// of a raw message via the fixed keyword lists. Unmatched fields stay empty.
func ExtractPreferences(message string) kozijobs.Filters {
	lowered := strings.ToLower(message)
	var filters kozijobs.Filters

	for _, mapping := range categoryKeywords {
		if containsWord(lowered, mapping.keyword) {
			filters.Category = mapping.canonical
			break
		}
	}

	for _, location := range locationKeywords {
		if containsWord(lowered, location) {
			filters.Location = location
			break
		}
	}

	for _, mapping := range workTypeKeywords {
		if strings.Contains(lowered, mapping.keyword) {
			filters.WorkType = mapping.canonical
			break
		}
	}

	return filters
}

var topicKeywords = []string{
	"salary", "salaries", "interview", "contract", "training",
	"profile", "registration", "payment",
}

// ExtractTopics returns the coarse discussion topics mentioned in a message.
func ExtractTopics(message string) []string {
	lowered := strings.ToLower(message)

	var topics []string
	for _, topic := range topicKeywords {
		if containsWord(lowered, topic) {
			topics = append(topics, topic)
		}
	}

	return topics
}

var (
	digitPattern = regexp.MustCompile(`\b(\d{1,3})\b`)

	ordinals = map[string]int{
		"first": 1, "second": 2, "third": 3, "fourth": 4, "fifth": 5,
		"sixth": 6, "seventh": 7, "eighth": 8, "ninth": 9, "tenth": 10,
	}
)

// parseJobIndex extracts the 1-based position a message refers to, either as a
// digit ("job number 2") or an ordinal word ("the second job").
func parseJobIndex(message string) (int, bool) {
	if match := digitPattern.FindString(message); match != "" {
		n, err := strconv.Atoi(match)
		if err == nil {
			return n, true
		}
	}

	lowered := strings.ToLower(message)
	for word, n := range ordinals {
		if containsWord(lowered, word) {
			return n, true
		}
	}

	return 0, false
}

func containsWord(haystack, word string) bool {
	idx := strings.Index(haystack, word)
	for idx != -1 {
		before := idx == 0 || !isLetter(haystack[idx-1])
		afterIdx := idx + len(word)
		after := afterIdx >= len(haystack) || !isLetter(haystack[afterIdx])
		if before && after {
			return true
		}
		next := strings.Index(haystack[idx+1:], word)
		if next == -1 {
			return false
		}
		idx += 1 + next
	}
	return false
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
