package classifier

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/r-salas/linguista/internal/models"
)

// Opts holds configuration options for the OpenAI classifier.
type Opts struct {
	APIKey string
	Model  string
}

// Option configures the OpenAI classifier.
type Option func(*Opts)

// WithAPIKey sets the OpenAI API key, overriding the environment.
func WithAPIKey(key string) Option {
	return func(o *Opts) {
		o.APIKey = key
	}
}

// WithModel selects the chat completion model.
func WithModel(model string) Option {
	return func(o *Opts) {
		o.Model = model
	}
}

// OpenAI classifies utterances with an OpenAI chat completion call at
// temperature zero.
type OpenAI struct {
	client openai.Client
	model  openai.ChatModel
}

// NewOpenAI creates the classifier, reading OPENAI_API_KEY when no key
// option is given.
func NewOpenAI(opts ...Option) (*OpenAI, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	key := cfg.APIKey
	if key == "" {
		key = os.Getenv("OPENAI_API_KEY")
	}
	if key == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY not set")
	}
	model := openai.ChatModel(cfg.Model)
	if model == "" {
		model = openai.ChatModelGPT4oMini
	}
	return &OpenAI{
		client: openai.NewClient(option.WithAPIKey(key)),
		model:  model,
	}, nil
}

// Classify renders the command prompt, runs the completion and parses
// the response into commands.
func (o *OpenAI) Classify(ctx context.Context, c Context) ([]models.Command, error) {
	prompt, err := RenderPrompt(c)
	if err != nil {
		return nil, err
	}
	slog.Debug("Classifier prompt rendered", "bytes", len(prompt))

	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       o.model,
		Temperature: openai.Float(0),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
	})
	if err != nil {
		slog.Error("Classifier completion failed", "error", err)
		return nil, fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("chat completion returned no choices")
	}

	commands, err := ParseCommands(resp.Choices[0].Message.Content)
	if err != nil {
		slog.Error("Classifier response unparseable", "error", err)
		return nil, err
	}
	slog.Debug("Classifier produced commands", "count", len(commands))
	return commands, nil
}
