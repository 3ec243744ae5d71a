package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/irihojaphet/kozi-chatbot/internal/ai"
	"github.com/irihojaphet/kozi-chatbot/internal/logger"
	"go.uber.org/zap"
	"google.golang.org/genai"
)

const (
	defaultModel      = "gemini-2.5-flash"
	defaultEmbedModel = "gemini-embedding-001"

	// Every outbound call is bounded; a stuck generation must not stall a turn.
	callTimeout = 15 * time.Second

	maxLogPreview = 200
)

// Client wraps the Google GenAI client and implements both the text-generation
// and the embedding collaborator interfaces.
type Client struct {
	client     *genai.Client
	modelName  string
	embedModel string
	logger     *zap.Logger
}

var (
	_ ai.Generator = (*Client)(nil)
	_ ai.Embedder  = (*Client)(nil)
)

// New creates a Client configured for the Gemini API backend.
func New(ctx context.Context, apiKey, model, embedModel string, log *zap.Logger) (*Client, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}

	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	if model = strings.TrimSpace(model); model == "" {
		model = defaultModel
	}
	if embedModel = strings.TrimSpace(embedModel); embedModel == "" {
		embedModel = defaultEmbedModel
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &Client{
		client:     client,
		modelName:  model,
		embedModel: embedModel,
		logger:     log,
	}, nil
}

// Generate sends the conversation turns to Gemini and returns the textual response.
func (c *Client) Generate(ctx context.Context, turns []ai.Turn, systemPrompt string) (string, error) {
	if c == nil || c.client == nil {
		return "", errors.New("gemini client is not initialized")
	}

	contents := make([]*genai.Content, 0, len(turns))
	for _, turn := range turns {
		text := strings.TrimSpace(turn.Text)
		if text == "" {
			continue
		}

		role := genai.RoleUser
		if turn.Sender == ai.SenderAssistant {
			role = genai.RoleModel
		}

		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: text}},
		})
	}

	if len(contents) == 0 {
		return "", errors.New("conversation input must not be empty")
	}

	var config *genai.GenerateContentConfig
	if prompt := strings.TrimSpace(systemPrompt); prompt != "" {
		config = &genai.GenerateContentConfig{
			SystemInstruction: &genai.Content{
				Parts: []*genai.Part{{Text: prompt}},
			},
		}
	}

	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	resp, err := c.client.Models.GenerateContent(ctx, c.modelName, contents, config)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}

	output := collectText(resp)
	if output == "" {
		return "", errors.New("gemini api returned empty response")
	}

	c.logger.Debug("gemini generate content response",
		zap.String("model", c.modelName),
		zap.Int("turns", len(contents)),
		zap.String("response_preview", logger.TruncateForLog(output, maxLogPreview)),
	)

	return output, nil
}

// Embed returns the embedding vector for the provided text.
func (c *Client) Embed(ctx context.Context, text string) ([]float64, error) {
	if c == nil || c.client == nil {
		return nil, errors.New("gemini client is not initialized")
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.New("text to embed must not be empty")
	}

	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	resp, err := c.client.Models.EmbedContent(ctx, c.embedModel, genai.Text(text), nil)
	if err != nil {
		return nil, fmt.Errorf("embed content: %w", err)
	}

	if resp == nil || len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Values) == 0 {
		return nil, errors.New("gemini api returned empty embedding")
	}

	values := resp.Embeddings[0].Values
	vector := make([]float64, len(values))
	for i, v := range values {
		vector[i] = float64(v)
	}

	return vector, nil
}

func (c *Client) Model() string {
	if c == nil {
		return ""
	}
	return c.modelName
}

func collectText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}

	var builder strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil {
				continue
			}
			text := strings.TrimSpace(part.Text)
			if text == "" {
				continue
			}
			if builder.Len() > 0 {
				builder.WriteString("\n")
			}
			builder.WriteString(text)
		}
	}

	return strings.TrimSpace(builder.String())
}
