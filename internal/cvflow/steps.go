package cvflow

// Step is one unit of the CV-authoring sequence.
type Step string

const (
	StepContactInfo         Step = "contact_info"
	StepProfessionalSummary Step = "professional_summary"
	StepWorkExperience      Step = "work_experience"
	StepEducation           Step = "education"
	StepSkills              Step = "skills"
	StepCertifications      Step = "certifications"
	StepLanguages           Step = "languages"
)

// StepOrder is the canonical sequence. The flow is linear: no branches, no
// skipping.
var StepOrder = []Step{
	StepContactInfo,
	StepProfessionalSummary,
	StepWorkExperience,
	StepEducation,
	StepSkills,
	StepCertifications,
	StepLanguages,
}

// stepSpec declares, per step, the user-facing prompt and the JSON shape the
// generator is instructed to emit when parsing the user's answer.
type stepSpec struct {
	Title  string
	Prompt string
	Schema string
}

var stepSpecs = map[Step]stepSpec{
	StepContactInfo: {
		Title:  "Contact information",
		Prompt: "Let's start with your contact information. Please share your full name, phone number, email and where you live.",
		Schema: `{"full_name": string, "phone": string, "email": string, "location": string}`,
	},
	StepProfessionalSummary: {
		Title:  "Professional summary",
		Prompt: "Great! Now tell me a little about yourself professionally: what kind of work you do and what you are good at.",
		Schema: `{"summary": string}`,
	},
	StepWorkExperience: {
		Title:  "Work experience",
		Prompt: "Tell me about your work experience: the jobs you have held, where, and for how long.",
		Schema: `{"experiences": [{"title": string, "employer": string, "start": string, "end": string, "description": string}]}`,
	},
	StepEducation: {
		Title:  "Education",
		Prompt: "What is your education background? Schools attended, qualifications and years.",
		Schema: `{"entries": [{"institution": string, "qualification": string, "year": string}]}`,
	},
	StepSkills: {
		Title:  "Skills",
		Prompt: "List the skills you want on your CV.",
		Schema: `{"skills": [string]}`,
	},
	StepCertifications: {
		Title:  "Certifications",
		Prompt: "Do you have any certifications or training certificates? If none, just say so.",
		Schema: `{"certifications": [{"name": string, "issuer": string, "year": string}]}`,
	},
	StepLanguages: {
		Title:  "Languages",
		Prompt: "Finally, which languages do you speak and how well?",
		Schema: `{"languages": [{"name": string, "level": string}]}`,
	},
}

// NextStep returns the step following s in the canonical order. ok is false
// when s is the last step.
func NextStep(s Step) (next Step, ok bool) {
	for i, step := range StepOrder {
		if step == s && i+1 < len(StepOrder) {
			return StepOrder[i+1], true
		}
	}
	return "", false
}

// PromptFor returns the user-facing prompt for a step.
func PromptFor(s Step) string {
	return stepSpecs[s].Prompt
}

func progressPercent(completed int) int {
	return completed * 100 / len(StepOrder)
}
