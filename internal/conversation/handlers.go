package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/irihojaphet/kozi-chatbot/internal/ai"
	"github.com/irihojaphet/kozi-chatbot/internal/cvflow"
	"github.com/irihojaphet/kozi-chatbot/internal/retrieval"
	"github.com/irihojaphet/kozi-chatbot/internal/session"
	"go.uber.org/zap"
)

func (e *Engine) handleCVStart(ctx context.Context, sess *session.Session, message string) (string, error) {
	state, result := e.cv.Start(sess.Context.CVGeneration)

	if err := e.sessions.UpdateContext(ctx, sess.ID, session.Context{CVGeneration: state}); err != nil {
		return "", fmt.Errorf("persist cv state: %w", err)
	}

	e.logger.Info("cv flow started",
		zap.String("session_id", sess.ID),
		zap.Bool("has_progress", result.HasProgress),
	)

	return result.Prompt, nil
}

func (e *Engine) handleCVStep(ctx context.Context, sess *session.Session, userID string, state *cvflow.State, message string) (string, error) {
	result, err := e.cv.ProcessStep(ctx, userID, state, message)

	var formatErr *cvflow.GenerationFormatError
	if errors.As(err, &formatErr) {
		// The step has not advanced; the user must change their input.
		return "Sorry, I couldn't quite capture that. Could you rephrase your answer? " +
			cvflow.PromptFor(formatErr.Step), nil
	}
	if err != nil {
		return "", err
	}

	if err := e.sessions.UpdateContext(ctx, sess.ID, session.Context{CVGeneration: state}); err != nil {
		return "", fmt.Errorf("persist cv state: %w", err)
	}

	return result.Prompt, nil
}

func (e *Engine) handleJobs(ctx context.Context, sess *session.Session, message string) (string, error) {
	filters := ExtractPreferences(message)

	jobs := e.jobs.FetchJobs(ctx, filters)
	if len(jobs) == 0 {
		return "I couldn't find any open jobs matching that right now. Please try again later or broaden your search.", nil
	}

	if err := e.sessions.UpdateContext(ctx, sess.ID, session.Context{
		JobsList: &session.JobsListContext{Jobs: jobs, ShownAt: time.Now().UTC()},
	}); err != nil {
		return "", fmt.Errorf("persist job list: %w", err)
	}

	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("Here are %d jobs I found:\n", len(jobs)))
	for i, job := range jobs {
		builder.WriteString(fmt.Sprintf("%d. %s", i+1, job.Title))
		if job.Location != "" {
			builder.WriteString(" - " + job.Location)
		}
		if job.SalaryMin != nil {
			builder.WriteString(fmt.Sprintf(" (from %d %s)", *job.SalaryMin, job.SalaryCurrency))
		}
		builder.WriteString("\n")
	}
	builder.WriteString("Say \"apply for job number N\" to apply to one of them.")

	return builder.String(), nil
}

func (e *Engine) handleGeneral(ctx context.Context, sess *session.Session, userID, message string) (string, error) {
	var status *retrieval.ProfileStatus
	if e.profiles != nil {
		s, err := e.profiles.ProfileStatus(ctx, userID)
		if err != nil {
			e.logger.Warn("profile status unavailable", zap.Error(err),
				zap.String("user_id", userID))
		} else {
			status = s
		}
	}

	reply, err := e.responder.ContextualResponse(ctx, message, recentTurns(sess), status)
	if err != nil {
		return "", fmt.Errorf("general response: %w", err)
	}

	if topics := ExtractTopics(message); len(topics) > 0 {
		merged := appendTopics(sess.Context.GeneralTopics, topics)
		if err := e.sessions.UpdateContext(ctx, sess.ID, session.Context{GeneralTopics: merged}); err != nil {
			e.logger.Warn("persisting discussed topics", zap.Error(err))
		}
	}

	return reply, nil
}

func (e *Engine) handleApplication(ctx context.Context, sess *session.Session, userID, message string) (string, error) {
	index, ok := parseJobIndex(message)
	if !ok {
		return "Please tell me which job you'd like to apply for by its number, for example \"apply for job number 2\".", nil
	}

	list := sess.Context.JobsList
	if list == nil || len(list.Jobs) == 0 {
		return "I haven't shown you any jobs in this conversation yet. Ask me to find jobs first, then pick one by number.", nil
	}

	if index < 1 || index > len(list.Jobs) {
		return fmt.Sprintf("Job number %d isn't on the list; I showed you %d jobs. Please pick a number between 1 and %d.",
			index, len(list.Jobs), len(list.Jobs)), nil
	}
	job := list.Jobs[index-1]

	status, err := e.profiles.ProfileStatus(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("profile status: %w", err)
	}
	if status.CompletionPercentage < MinProfileCompletion {
		reply := fmt.Sprintf("Your profile is only %.0f%% complete; it needs to be at least %.0f%% before you can apply.",
			status.CompletionPercentage, MinProfileCompletion)
		if len(status.MissingFields) > 0 {
			reply += " Please add: " + strings.Join(status.MissingFields, ", ") + "."
		}
		return reply, nil
	}

	if err := e.applications.RecordApplication(ctx, userID, job.ID); err != nil {
		if errors.Is(err, session.ErrDuplicateApplication) {
			return fmt.Sprintf("You've already applied to %q, no need to apply twice.", job.Title), nil
		}
		return "", fmt.Errorf("record application: %w", err)
	}

	e.logger.Info("application recorded",
		zap.String("user_id", userID),
		zap.String("job_id", job.ID),
	)

	return fmt.Sprintf("Done! Your application for %q has been submitted. Good luck!", job.Title), nil
}

// recentTurns converts the tail of the transcript, excluding the just-appended
// inbound message, into generator input.
func recentTurns(sess *session.Session) []ai.Turn {
	turns := sess.Turns
	if len(turns) > 0 {
		turns = turns[:len(turns)-1]
	}
	if len(turns) > recentTurnLimit {
		turns = turns[len(turns)-recentTurnLimit:]
	}

	converted := make([]ai.Turn, 0, len(turns))
	for _, turn := range turns {
		sender := ai.SenderUser
		if turn.Sender == session.SenderAssistant {
			sender = ai.SenderAssistant
		}
		converted = append(converted, ai.Turn{Sender: sender, Text: turn.Text})
	}

	return converted
}

func appendTopics(existing *session.GeneralTopicsContext, topics []string) *session.GeneralTopicsContext {
	merged := &session.GeneralTopicsContext{}
	seen := make(map[string]bool)

	if existing != nil {
		for _, topic := range existing.Topics {
			if !seen[topic] {
				seen[topic] = true
				merged.Topics = append(merged.Topics, topic)
			}
		}
	}
	for _, topic := range topics {
		if !seen[topic] {
			seen[topic] = true
			merged.Topics = append(merged.Topics, topic)
		}
	}

	return merged
}
