package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/irihojaphet/kozi-chatbot/internal/ai/gemini"
	"github.com/irihojaphet/kozi-chatbot/internal/conversation"
	"github.com/irihojaphet/kozi-chatbot/internal/cvflow"
	"github.com/irihojaphet/kozi-chatbot/internal/knowledge"
	"github.com/irihojaphet/kozi-chatbot/internal/kozijobs"
	"github.com/irihojaphet/kozi-chatbot/internal/logger"
	"github.com/irihojaphet/kozi-chatbot/internal/retrieval"
	"github.com/irihojaphet/kozi-chatbot/internal/secrets"
	"github.com/irihojaphet/kozi-chatbot/internal/session"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive conversation with the assistant",
	Run: func(cmd *cobra.Command, _ []string) {
		chat(cmd)
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)

	chatCmd.Flags().StringP("user", "u", "local", "user id to converse as")
}

func chat(cmd *cobra.Command) {
	ctx := context.Background()

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	logger.Info("starting the kozi-chatbot", zap.String("version", version))

	if config == nil {
		logger.Fatal("config is required")
	}

	apiKey, err := resolveGeminiKey(config)
	if err != nil {
		logger.Fatal(
			"loading gemini api key",
			zap.Error(err),
			zap.String("hint", "set GEMINI_API_KEY_FILE environment variable or the 'gemini.api-key-file' key in the configuration file"),
		)
	}

	var model, embedModel string
	if config.Gemini != nil {
		model = config.Gemini.Model
		embedModel = config.Gemini.EmbedModel
	}

	aiClient, err := gemini.New(ctx, apiKey, model, embedModel, logger)
	if err != nil {
		logger.Fatal("creating the gemini client", zap.Error(err))
	}

	store, err := session.Open(config.Database, logger)
	if err != nil {
		logger.Fatal("opening the session store", zap.Error(err))
	}
	defer store.Close()

	kb, err := knowledge.Open(config.Knowledge.Database, config.Knowledge.EmbeddingDim, logger)
	if err != nil {
		logger.Fatal("opening the knowledge store", zap.Error(err))
	}
	defer kb.Close()

	if count, err := kb.Count(ctx); err == nil && count == 0 {
		logger.Warn("knowledge base is empty, general answers will not be grounded",
			zap.String("hint", "run 'kozi-chatbot ingest <seed-file>' first"))
	}

	jobs, err := newJobsClient(config, logger)
	if err != nil {
		logger.Fatal("creating the jobs client", zap.Error(err))
	}

	engine := conversation.NewEngine(conversation.Deps{
		Sessions:     store,
		Jobs:         jobs,
		Responder:    retrieval.New(kb, aiClient, aiClient, logger),
		CV:           cvflow.NewMachine(aiClient, store, logger),
		Profiles:     store,
		Applications: store,
		Logger:       logger,
	})

	userID := cmd.Flag("user").Value.String()

	sessionID, err := engine.StartSession(ctx, userID)
	if err != nil {
		logger.Fatal("starting a session", zap.Error(err))
	}

	fmt.Println("Muraho! I'm the Kozi assistant. Ask me about jobs, your CV, or the platform. Type 'exit' to leave.")

	repl(ctx, engine, store, logger, sessionID, userID)

	if err := engine.EndSession(ctx, sessionID); err != nil {
		logger.Warn("ending the session", zap.Error(err))
	}
}

func repl(ctx context.Context, engine *conversation.Engine, store *session.Store, logger *zap.Logger, sessionID, userID string) {
	prompt := promptui.Prompt{Label: "you"}

	for {
		input, err := prompt.Run()
		if err != nil {
			if errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrEOF) {
				return
			}
			logger.Fatal("reading input", zap.Error(err))
		}

		input = strings.TrimSpace(input)
		switch {
		case input == "":
			continue
		case input == "exit" || input == "quit":
			return
		case strings.HasPrefix(input, "/profile "):
			handleProfileCommand(ctx, store, userID, strings.TrimPrefix(input, "/profile "))
			continue
		}

		reply, err := engine.Handle(ctx, sessionID, userID, input)
		if err != nil {
			logger.Fatal("handling the message", zap.Error(err))
		}

		fmt.Println(reply)
	}
}

// handleProfileCommand lets the user fill profile fields from the REPL, e.g.
// "/profile location Kigali".
func handleProfileCommand(ctx context.Context, store *session.Store, userID, args string) {
	field, value, _ := strings.Cut(strings.TrimSpace(args), " ")
	if field == "" {
		fmt.Println("Usage: /profile <field> <value>")
		return
	}

	if err := store.SetProfileField(ctx, userID, field, value); err != nil {
		fmt.Println("Could not update your profile:", err)
		return
	}

	status, err := store.ProfileStatus(ctx, userID)
	if err != nil {
		return
	}
	fmt.Printf("Profile updated, %.0f%% complete.\n", status.CompletionPercentage)
}

func resolveGeminiKey(config *Config) (string, error) {
	var keyFile string
	if config.Gemini != nil {
		keyFile = strings.TrimSpace(config.Gemini.APIKeyFile)
	}
	if keyFile == "" {
		keyFile = strings.TrimSpace(viper.GetString("gemini.api-key-file"))
	}

	return secrets.Load(secrets.Source{
		Name: "gemini api key",
		File: keyFile,
	})
}

// newJobsClient builds the upstream jobs client. Missing credentials are not
// fatal since browsing public jobs works unauthenticated.
func newJobsClient(config *Config, logger *zap.Logger) (*kozijobs.Client, error) {
	if config.Jobs == nil || strings.TrimSpace(config.Jobs.BaseURL) == "" {
		return nil, errors.New("jobs.base-url is required in the configuration file")
	}

	var creds *kozijobs.Credentials

	credsFile := strings.TrimSpace(config.Jobs.CredentialsFile)
	if credsFile == "" {
		credsFile = strings.TrimSpace(viper.GetString("jobs.credentials-file"))
	}

	if credsFile != "" {
		raw, err := secrets.Load(secrets.Source{
			Name: "kozi jobs credentials",
			File: credsFile,
		})
		if err != nil {
			return nil, err
		}

		creds = &kozijobs.Credentials{}
		if err := json.Unmarshal([]byte(raw), creds); err != nil {
			return nil, fmt.Errorf("parsing jobs credentials file %q: %w", credsFile, err)
		}
	} else {
		logger.Warn("no jobs credentials configured, fetching jobs unauthenticated",
			zap.String("hint", "set KOZI_JOBS_CREDENTIALS_FILE or the 'jobs.credentials-file' configuration key"))
	}

	return kozijobs.New(config.Jobs.BaseURL, creds, logger), nil
}
