package conversation

import (
	"context"
	"fmt"
	"sync"

	"github.com/irihojaphet/kozi-chatbot/internal/ai"
	"github.com/irihojaphet/kozi-chatbot/internal/cvflow"
	"github.com/irihojaphet/kozi-chatbot/internal/intent"
	"github.com/irihojaphet/kozi-chatbot/internal/kozijobs"
	"github.com/irihojaphet/kozi-chatbot/internal/logger"
	"github.com/irihojaphet/kozi-chatbot/internal/retrieval"
	"github.com/irihojaphet/kozi-chatbot/internal/session"
	"go.uber.org/zap"
)

const apologyMessage = "I'm sorry, something went wrong on my end. Please try again."

// How many transcript turns of history accompany a general response.
const recentTurnLimit = 6

// MinProfileCompletion is the profile-completion percentage required before a
// job application is accepted.
const MinProfileCompletion = 60.0

// SessionStore persists sessions, transcripts and context.
type SessionStore interface {
	Create(ctx context.Context, userID string) (string, error)
	AppendTurn(ctx context.Context, sessionID, text, sender string) error
	Get(ctx context.Context, sessionID string) (*session.Session, error)
	UpdateContext(ctx context.Context, sessionID string, partial session.Context) error
	Deactivate(ctx context.Context, sessionID string) error
}

// JobsClient fetches normalized jobs from the upstream API.
type JobsClient interface {
	FetchJobs(ctx context.Context, filters kozijobs.Filters) []kozijobs.Job
}

// Responder produces retrieval-grounded general responses.
type Responder interface {
	ContextualResponse(ctx context.Context, message string, recent []ai.Turn, status *retrieval.ProfileStatus) (string, error)
}

// CVMachine drives the CV-generation step sequence.
type CVMachine interface {
	Start(state *cvflow.State) (*cvflow.State, cvflow.StartResult)
	ProcessStep(ctx context.Context, userID string, state *cvflow.State, input string) (*cvflow.StepResult, error)
}

// ProfileStatusProvider reports how complete a user's profile is.
type ProfileStatusProvider interface {
	ProfileStatus(ctx context.Context, userID string) (*retrieval.ProfileStatus, error)
}

// ApplicationRecorder records one application per (job, user) pair, returning
// session.ErrDuplicateApplication on a repeat.
type ApplicationRecorder interface {
	RecordApplication(ctx context.Context, userID, jobID string) error
}

// Engine is the per-message entry point. It serializes turns within a session,
// dispatches to the matching handler and keeps the transcript lossless even
// when a handler fails.
type Engine struct {
	sessions     SessionStore
	jobs         JobsClient
	responder    Responder
	cv           CVMachine
	profiles     ProfileStatusProvider
	applications ApplicationRecorder
	logger       *zap.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Deps aggregates the engine's collaborators.
type Deps struct {
	Sessions     SessionStore
	Jobs         JobsClient
	Responder    Responder
	CV           CVMachine
	Profiles     ProfileStatusProvider
	Applications ApplicationRecorder
	Logger       *zap.Logger
}

func NewEngine(deps Deps) *Engine {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}

	return &Engine{
		sessions:     deps.Sessions,
		jobs:         deps.Jobs,
		responder:    deps.Responder,
		cv:           deps.CV,
		profiles:     deps.Profiles,
		applications: deps.Applications,
		logger:       log,
		locks:        make(map[string]*sync.Mutex),
	}
}

// StartSession creates a new conversation for the user.
func (e *Engine) StartSession(ctx context.Context, userID string) (string, error) {
	return e.sessions.Create(ctx, userID)
}

// EndSession deactivates a conversation.
func (e *Engine) EndSession(ctx context.Context, sessionID string) error {
	return e.sessions.Deactivate(ctx, sessionID)
}

// Handle processes one inbound message and returns the assistant's reply.
// Turns within a session are strictly serialized; distinct sessions proceed in
// parallel. The inbound turn is persisted before any handling so the
// transcript is never lossy, and a handler failure becomes a fixed apology
// turn rather than an error to the user.
func (e *Engine) Handle(ctx context.Context, sessionID, userID, message string) (string, error) {
	lock := e.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	if err := e.sessions.AppendTurn(ctx, sessionID, message, session.SenderUser); err != nil {
		return "", fmt.Errorf("append inbound turn: %w", err)
	}

	sess, err := e.sessions.Get(ctx, sessionID)
	if err != nil {
		return "", fmt.Errorf("load session: %w", err)
	}

	reply := e.dispatch(ctx, sess, userID, message)

	if err := e.sessions.AppendTurn(ctx, sessionID, reply, session.SenderAssistant); err != nil {
		e.logger.Error("appending outbound turn", zap.Error(err),
			zap.String("session_id", sessionID))
	}

	return reply, nil
}

// dispatch routes the message and converts any handler failure, including a
// panic, into the apology turn. The session stays usable on the next turn.
func (e *Engine) dispatch(ctx context.Context, sess *session.Session, userID, message string) (reply string) {
	log := logger.WithFields(e.logger, logger.TurnFields(sess.ID, userID)...)

	defer func() {
		if r := recover(); r != nil {
			log.Error("handler panicked", zap.Any("panic", r))
			reply = apologyMessage
		}
	}()

	// An in-progress CV flow captures every turn until it finishes or is
	// cancelled; intent classification is skipped entirely.
	if state := sess.Context.CVGeneration; state != nil && !state.Completed {
		reply, err := e.handleCVStep(ctx, sess, userID, state, message)
		if err != nil {
			log.Error("cv step handler failed", zap.Error(err))
			return apologyMessage
		}
		return reply
	}

	classified := intent.Classify(message)
	log.Debug("classified intent", zap.String(logger.FieldIntent, classified.String()))

	var err error
	switch classified {
	case intent.CVGeneration:
		reply, err = e.handleCVStart(ctx, sess, message)
	case intent.Jobs:
		reply, err = e.handleJobs(ctx, sess, message)
	case intent.JobApplication:
		reply, err = e.handleApplication(ctx, sess, userID, message)
	case intent.General:
		reply, err = e.handleGeneral(ctx, sess, userID, message)
	}

	if err != nil {
		log.Error("handler failed", zap.Error(err),
			zap.String(logger.FieldIntent, classified.String()))
		return apologyMessage
	}

	return reply
}

func (e *Engine) sessionLock(sessionID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()

	lock, ok := e.locks[sessionID]
	if !ok {
		lock = &sync.Mutex{}
		e.locks[sessionID] = lock
	}

	return lock
}
