package cvflow

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/irihojaphet/kozi-chatbot/internal/ai"
	"github.com/irihojaphet/kozi-chatbot/internal/logger"
	"go.uber.org/zap"
)

const cvTemplateName = "kozi-cv-v1"

var cancelPhrase = regexp.MustCompile(`(?i)\b(cancel|stop|quit|exit|nevermind|never mind)\b`)

// State is the per-session progress through CV authoring. It lives inside the
// session context and is serialized between turns.
type State struct {
	CurrentStep    Step                    `json:"current_step"`
	CompletedSteps []Step                  `json:"completed_steps"`
	Data           map[Step]map[string]any `json:"cv_data"`
	Completed      bool                    `json:"completed"`
}

func NewState() *State {
	return &State{
		CurrentStep: StepOrder[0],
		Data:        make(map[Step]map[string]any),
	}
}

// ArtifactStore persists a finished CV document under the owning user.
type ArtifactStore interface {
	SaveGeneratedDocument(ctx context.Context, userID string, data map[string]any, templateName string) (string, error)
}

// Machine drives the fixed ordered sequence of CV data-collection steps. Step
// input is parsed into structured data by the text-generation collaborator;
// a step only advances after parsing succeeds.
type Machine struct {
	generator ai.Generator
	artifacts ArtifactStore
	logger    *zap.Logger
}

func NewMachine(generator ai.Generator, artifacts ArtifactStore, log *zap.Logger) *Machine {
	if log == nil {
		log = zap.NewNop()
	}

	return &Machine{
		generator: generator,
		artifacts: artifacts,
		logger:    log,
	}
}

// StartResult describes the state of the flow after Start.
type StartResult struct {
	Prompt      string
	CurrentStep Step
	HasProgress bool
}

// Start returns the opening prompt for a session. A non-completed state is
// resumed rather than recreated; the caller supplies whatever state the
// session context holds (nil for a fresh session).
func (m *Machine) Start(state *State) (*State, StartResult) {
	if state != nil && !state.Completed {
		return state, StartResult{
			Prompt: fmt.Sprintf(
				"You already have a CV in progress (%d of %d steps done). Let's continue: %s Or say \"cancel\" to stop and start over later.",
				len(state.CompletedSteps), len(StepOrder), PromptFor(state.CurrentStep),
			),
			CurrentStep: state.CurrentStep,
			HasProgress: true,
		}
	}

	fresh := NewState()
	return fresh, StartResult{
		Prompt:      "Great, let's build your CV step by step. " + PromptFor(fresh.CurrentStep),
		CurrentStep: fresh.CurrentStep,
	}
}

// StepResult describes the outcome of processing one step input.
type StepResult struct {
	Prompt          string
	NextStep        Step
	ProgressPercent int

	Completed  bool
	Cancelled  bool
	Summary    string
	ArtifactID string
}

// IsCancelPhrase reports whether the input asks to abandon the flow.
func IsCancelPhrase(input string) bool {
	return cancelPhrase.MatchString(input)
}

// ProcessStep parses the user's free-text answer for the current step. On
// success the payload is recorded, the step advances, and the flow finalizes
// once the last step completes. A *GenerationFormatError leaves the state
// untouched so the user can rephrase.
func (m *Machine) ProcessStep(ctx context.Context, userID string, state *State, input string) (*StepResult, error) {
	if state == nil || state.Completed {
		return nil, fmt.Errorf("no CV generation in progress")
	}

	if IsCancelPhrase(input) {
		// Collected data stays in place for a later resume decision.
		state.Completed = true
		return &StepResult{
			Prompt:    "No problem, I've stopped the CV builder. Your progress is saved; say \"create my CV\" whenever you want to start again.",
			Completed: true,
			Cancelled: true,
		}, nil
	}

	payload, err := m.parseInput(ctx, state.CurrentStep, input)
	if err != nil {
		return nil, err
	}

	step := state.CurrentStep
	if state.Data == nil {
		state.Data = make(map[Step]map[string]any)
	}
	state.Data[step] = payload
	state.CompletedSteps = append(state.CompletedSteps, step)

	m.logger.Debug("cv step completed",
		zap.String("user_id", userID),
		zap.String("step", string(step)),
		zap.Int("progress", progressPercent(len(state.CompletedSteps))),
	)

	next, ok := NextStep(step)
	if !ok {
		return m.finalize(ctx, userID, state)
	}

	state.CurrentStep = next
	return &StepResult{
		Prompt:          fmt.Sprintf("%s recorded. %s", stepSpecs[step].Title, PromptFor(next)),
		NextStep:        next,
		ProgressPercent: progressPercent(len(state.CompletedSteps)),
	}, nil
}

func (m *Machine) parseInput(ctx context.Context, step Step, input string) (map[string]any, error) {
	spec := stepSpecs[step]

	systemPrompt := fmt.Sprintf(
		"Extract the %s for a CV from the user's message.\n"+
			"Respond with exactly one JSON object of shape %s and nothing else.\n"+
			"Use null for anything the user did not mention.",
		strings.ToLower(spec.Title), spec.Schema,
	)

	raw, err := m.generator.Generate(ctx, []ai.Turn{{Sender: ai.SenderUser, Text: input}}, systemPrompt)
	if err != nil {
		return nil, &GenerationFormatError{Step: step, Err: err}
	}

	payload, err := parseStepPayload(step, raw)
	if err != nil {
		m.logger.Warn("cv step output unparseable",
			zap.String("step", string(step)),
			zap.String("response_preview", logger.TruncateForLog(raw, 200)),
		)
		return nil, err
	}

	return payload, nil
}

// finalize assembles the per-step payloads into one document, persists it as a
// generated artifact and synthesizes a short completion summary. A failed
// summary generation degrades to a fixed template; finalization itself only
// fails when the artifact cannot be stored.
func (m *Machine) finalize(ctx context.Context, userID string, state *State) (*StepResult, error) {
	document := make(map[string]any, len(StepOrder))
	for _, step := range StepOrder {
		if payload, ok := state.Data[step]; ok {
			document[string(step)] = payload
		}
	}

	artifactID, err := m.artifacts.SaveGeneratedDocument(ctx, userID, document, cvTemplateName)
	if err != nil {
		return nil, fmt.Errorf("save generated cv: %w", err)
	}

	state.Completed = true
	state.CurrentStep = ""

	summary := m.summarize(ctx, document)

	m.logger.Info("cv generation finished",
		zap.String("user_id", userID),
		zap.String("artifact_id", artifactID),
	)

	return &StepResult{
		Prompt:          summary,
		ProgressPercent: 100,
		Completed:       true,
		Summary:         summary,
		ArtifactID:      artifactID,
	}, nil
}

const fallbackSummary = "Your CV is complete! All sections have been filled in and the document has been saved to your profile."

func (m *Machine) summarize(ctx context.Context, document map[string]any) string {
	turns := []ai.Turn{{
		Sender: ai.SenderUser,
		Text:   fmt.Sprintf("Here is my finished CV data: %v", document),
	}}

	summary, err := m.generator.Generate(ctx, turns,
		"Write a short, friendly two-sentence summary congratulating the user on completing their CV, mentioning one or two highlights from the data.")
	if err != nil {
		m.logger.Warn("cv summary generation failed, using fallback", zap.Error(err))
		return fallbackSummary
	}

	return summary
}
