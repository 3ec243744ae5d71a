package intent

import "regexp"

// Intent is the classified purpose of a user message. The set is closed;
// dispatch over it is a compile-time-checked switch.
type Intent int

const (
	General Intent = iota
	CVGeneration
	Jobs
	JobApplication
)

func (i Intent) String() string {
	switch i {
	case CVGeneration:
		return "cv_generation"
	case Jobs:
		return "jobs"
	case JobApplication:
		return "job_application"
	default:
		return "general"
	}
}

// Patterns are evaluated in fixed priority order; the first match wins.
var (
	cvPattern = regexp.MustCompile(`(?i)(` +
		`\b(create|write|make|generate|build|prepare|need)\b.*\b(cv|resume|curriculum vitae)\b` +
		`|\bhelp\b.*\b(cv|resume)\b` +
		`)`)

	jobsPattern = regexp.MustCompile(`(?i)(` +
		`\b(find|search|show|list|available|any)\b.*\bjobs?\b` +
		`|\bwhat jobs\b` +
		`|\bjob (openings?|opportunit(y|ies)|search)\b` +
		`|\bhiring\b` +
		`|\bvacanc(y|ies)\b` +
		`)`)

	applicationPattern = regexp.MustCompile(`(?i)(` +
		`\bapply\b.*\b(to|for)\b.*\bjobs?\b` +
		`|\bhow (do i|to|can i) apply\b` +
		`|\bapply\b.*\bjob\b.*\d+` +
		`|\bjob (number|#)\s*\d+\b` +
		`)`)
)

// Classify inspects a message and emits exactly one intent. Matching is
// case-insensitive; anything unmatched is General.
func Classify(message string) Intent {
	switch {
	case cvPattern.MatchString(message):
		return CVGeneration
	case jobsPattern.MatchString(message):
		return Jobs
	case applicationPattern.MatchString(message):
		return JobApplication
	default:
		return General
	}
}
