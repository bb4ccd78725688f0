package llmservice

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"study-assistant/internal/config"
	"study-assistant/internal/models"
)

var thinkTag = regexp.MustCompile(models.ThinkTag)

// Generator answers a question from an assembled context through a chat
// model
type Generator struct {
	llm     llms.Model
	model   string
	timeout time.Duration
}

func NewGenerator(llm llms.Model, model string, timeout time.Duration) *Generator {
	return &Generator{llm: llm, model: model, timeout: timeout}
}

// NewFromConfig builds the chat model named in cfg
func NewFromConfig(cfg *config.LLMConfig) (*Generator, error) {
	log.Debug().Str("provider", cfg.Provider).Str("base_url", cfg.BaseURL).Str("model", cfg.Model).Msg("Creating llm client")

	var (
		llm llms.Model
		err error
	)
	switch strings.ToLower(cfg.Provider) {
	case "openai", "":
		opts := []openai.Option{
			openai.WithToken(strings.TrimPrefix(cfg.Key, "Bearer ")),
			openai.WithModel(cfg.Model),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		llm, err = openai.New(opts...)
	case "ollama":
		opts := []ollama.Option{ollama.WithModel(cfg.Model)}
		if cfg.BaseURL != "" {
			opts = append(opts, ollama.WithServerURL(cfg.BaseURL))
		}
		llm, err = ollama.New(opts...)
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize %s client: %w", cfg.Provider, err)
	}
	return NewGenerator(llm, cfg.Model, cfg.Timeout), nil
}

// BuildMessages returns the system instruction and the user turn for a
// question and its context
func BuildMessages(contextText, question string) []llms.MessageContent {
	return []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, models.SystemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, fmt.Sprintf(models.UserPromptTemplate, contextText, question)),
	}
}

// Generate calls the model once. sessionID is handed to the model as
// opaque request metadata. Failures are never retried.
func (g *Generator) Generate(ctx context.Context, contextText, question, sessionID string) (string, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	opts := []llms.CallOption{
		llms.WithMetadata(map[string]interface{}{"session_id": sessionID}),
	}
	if g.model != "" {
		opts = append(opts, llms.WithModel(g.model))
	}

	resp, err := g.llm.GenerateContent(ctx, BuildMessages(contextText, question), opts...)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: generation exceeded %s: %w", models.ErrTimeout, g.timeout, err)
		}
		return "", fmt.Errorf("%w: %w", models.ErrGeneration, err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: model returned no choices", models.ErrGeneration)
	}

	answer := strings.TrimSpace(thinkTag.ReplaceAllString(resp.Choices[0].Content, ""))
	if answer == "" {
		return "", fmt.Errorf("%w: model returned an empty answer", models.ErrGeneration)
	}
	log.Debug().Str("session_id", sessionID).Int("answer_len", len(answer)).Msg("Generated answer")
	return answer, nil
}
