package cmd

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/irihojaphet/kozi-chatbot/internal/ai/gemini"
	"github.com/irihojaphet/kozi-chatbot/internal/knowledge"
	"github.com/irihojaphet/kozi-chatbot/internal/logger"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// seedFile is the on-disk format of a knowledge seed: a flat list of
// documents to embed and store.
type seedFile struct {
	Documents []seedDocument `yaml:"documents"`
}

type seedDocument struct {
	ID       string            `yaml:"id"`
	Text     string            `yaml:"text"`
	Metadata map[string]string `yaml:"metadata"`
}

var ingestCmd = &cobra.Command{
	Use:   "ingest <seed-file>",
	Short: "Embed a YAML seed file and load it into the knowledge base",
	Args:  cobra.ExactArgs(1),
	Run: func(_ *cobra.Command, args []string) {
		ingest(args[0])
	},
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}

func ingest(path string) {
	ctx := context.Background()

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	if config == nil {
		logger.Fatal("config is required")
	}

	seed, err := loadSeedFile(path)
	if err != nil {
		logger.Fatal("loading the seed file", zap.Error(err))
	}

	if len(seed.Documents) == 0 {
		logger.Info("exiting", zap.String("reason", "seed file has no documents"))
		return
	}

	apiKey, err := resolveGeminiKey(config)
	if err != nil {
		logger.Fatal("loading gemini api key", zap.Error(err))
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

	kb, err := knowledge.Open(config.Knowledge.Database, config.Knowledge.EmbeddingDim, logger)
	if err != nil {
		logger.Fatal("opening the knowledge store", zap.Error(err))
	}
	defer kb.Close()

	for _, doc := range seed.Documents {
		embedding, err := aiClient.Embed(ctx, doc.Text)
		if err != nil {
			logger.Fatal("embedding a document", zap.Error(err), zap.String("document_id", doc.ID))
		}

		err = kb.Add(ctx, knowledge.Document{
			ID:        doc.ID,
			Text:      doc.Text,
			Embedding: embedding,
			Metadata:  doc.Metadata,
		})
		if err != nil {
			logger.Fatal("storing a document", zap.Error(err), zap.String("document_id", doc.ID))
		}

		logger.Debug("ingested document", zap.String("document_id", doc.ID))
	}

	count, err := kb.Count(ctx)
	if err != nil {
		logger.Fatal("counting documents", zap.Error(err))
	}

	logger.Info("ingestion finished",
		zap.Int("ingested", len(seed.Documents)),
		zap.Int("total", count),
	)
}

func loadSeedFile(path string) (*seedFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading seed file %q: %w", path, err)
	}

	var seed seedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("parsing seed file %q: %w", path, err)
	}

	for i, doc := range seed.Documents {
		if doc.ID == "" {
			return nil, fmt.Errorf("document %d in %q has no id", i, path)
		}
		if doc.Text == "" {
			return nil, fmt.Errorf("document %q has no text", doc.ID)
		}
	}

	return &seed, nil
}
