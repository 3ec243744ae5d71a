package kozijobs

import (
	"strconv"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// Job is the canonical job record after reconciling the upstream's
// heterogeneous field names.
type Job struct {
	ID                  string `mapstructure:"id" json:"id"`
	Title               string `mapstructure:"title" json:"title,omitempty"`
	Category            string `mapstructure:"category" json:"category,omitempty"`
	Description         string `mapstructure:"description" json:"description,omitempty"`
	Requirements        string `mapstructure:"requirements" json:"requirements,omitempty"`
	SalaryMin           *int   `mapstructure:"salary_min" json:"salary_min,omitempty"`
	SalaryMax           *int   `mapstructure:"salary_max" json:"salary_max,omitempty"`
	SalaryCurrency      string `mapstructure:"salary_currency" json:"salary_currency,omitempty"`
	Location            string `mapstructure:"location" json:"location,omitempty"`
	WorkType            string `mapstructure:"work_type" json:"work_type,omitempty"`
	ExperienceLevel     string `mapstructure:"experience_level" json:"experience_level,omitempty"`
	Status              string `mapstructure:"status" json:"status"`
	PositionsAvailable  *int   `mapstructure:"positions_available" json:"positions_available,omitempty"`
	PositionsFilled     int    `mapstructure:"positions_filled" json:"positions_filled"`
	PostedDate          string `mapstructure:"posted_date" json:"posted_date,omitempty"`
	ApplicationDeadline string `mapstructure:"application_deadline" json:"application_deadline,omitempty"`
	Views               int    `mapstructure:"views" json:"views"`
	ApplicationsCount   int    `mapstructure:"applications_count" json:"applications_count"`
}

const defaultStatus = "active"

// fieldAliases maps each canonical field to the upstream spellings observed
// for it, in lookup priority order.
var fieldAliases = map[string][]string{
	"id":                   {"id", "job_id", "jobId", "_id"},
	"title":                {"title", "job_title", "jobTitle", "name", "position"},
	"category":             {"category", "job_category", "category_name"},
	"description":          {"description", "job_description", "details"},
	"requirements":         {"requirements", "job_requirements", "qualifications"},
	"salary_min":           {"salary_min", "min_salary", "salaryMin", "salary_from"},
	"salary_max":           {"salary_max", "max_salary", "salaryMax", "salary_to"},
	"salary_currency":      {"salary_currency", "currency"},
	"location":             {"location", "job_location", "district", "address"},
	"work_type":            {"work_type", "employment_type", "job_type", "workType"},
	"experience_level":     {"experience_level", "experience", "seniority"},
	"status":               {"status", "job_status", "state"},
	"positions_available":  {"positions_available", "slots", "openings", "vacancies"},
	"positions_filled":     {"positions_filled", "filled_positions", "hired"},
	"posted_date":          {"posted_date", "posted_at", "date_posted", "created_at"},
	"application_deadline": {"application_deadline", "deadline", "closing_date"},
	"views":                {"views", "view_count"},
	"applications_count":   {"applications_count", "applicants_count", "applications"},
}

var stringFields = []string{
	"title", "category", "description", "requirements", "salary_currency",
	"location", "work_type", "experience_level", "status", "posted_date",
	"application_deadline",
}

var intFields = []string{
	"salary_min", "salary_max", "positions_available", "positions_filled",
	"views", "applications_count",
}

// NormalizeJob reconciles one raw upstream record into a Job. Records without
// a resolvable id yield nil and must be dropped by the caller. Numeric fields
// that do not parse to a non-negative number stay unset.
func NormalizeJob(record map[string]any) *Job {
	if len(record) == 0 {
		return nil
	}

	id, ok := coerceString(lookupAlias(record, "id"))
	if !ok || id == "" {
		return nil
	}

	canonical := map[string]any{"id": id}

	for _, field := range stringFields {
		if value, ok := coerceString(lookupAlias(record, field)); ok && value != "" {
			canonical[field] = value
		}
	}

	for _, field := range intFields {
		if value, ok := coerceInt(lookupAlias(record, field)); ok {
			canonical[field] = value
		}
	}

	if _, ok := canonical["status"]; !ok {
		canonical["status"] = defaultStatus
	}

	var job Job
	if err := mapstructure.Decode(canonical, &job); err != nil {
		return nil
	}

	return &job
}

func lookupAlias(record map[string]any, field string) any {
	for _, alias := range fieldAliases[field] {
		if value, ok := record[alias]; ok && value != nil {
			return value
		}
	}
	return nil
}

func coerceString(v any) (string, bool) {
	switch value := v.(type) {
	case string:
		return strings.TrimSpace(value), true
	case float64:
		return strconv.FormatFloat(value, 'f', -1, 64), true
	case int:
		return strconv.Itoa(value), true
	case bool:
		return strconv.FormatBool(value), true
	default:
		return "", false
	}
}

func coerceInt(v any) (int, bool) {
	var n int
	switch value := v.(type) {
	case float64:
		n = int(value)
	case int:
		n = value
	case string:
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return 0, false
		}
		n = int(f)
	default:
		return 0, false
	}

	if n < 0 {
		return 0, false
	}

	return n, true
}
