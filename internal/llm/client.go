package llm

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/facet-labs/facet/internal/config"
	"github.com/facet-labs/facet/pkg/models"
)

// Message is one turn of user-visible conversation.
type Message struct {
	Role    string // user | assistant
	Content string
}

// ToolSpec describes a tool offered to the model. InputSchema is a JSON
// Schema object; each backend reshapes it into its own wire format.
type ToolSpec struct {
	Name        string
	Description string
	InputSchema map[string]any
}

// ToolFunc executes a named tool. The result map is serialized back to the
// model verbatim; an "error" key signals failure without aborting the
// conversation.
type ToolFunc func(ctx context.Context, name string, input map[string]any) map[string]any

// Client turns a conversation into a model envelope, running tools as the
// model requests them.
type Client interface {
	Converse(ctx context.Context, systemPrompt string, messages []Message, tools []ToolSpec, runTool ToolFunc) (*models.ModelEnvelope, error)
	Name() string
}

// New builds the client selected by cfg.Provider.
func New(ctx context.Context, cfg config.ModelConfig, logger zerolog.Logger) (Client, error) {
	switch cfg.Provider {
	case "bedrock":
		return NewBedrock(ctx, cfg.ModelID, cfg.Region, logger)
	case "ollama":
		return NewOllama(cfg.OllamaURL, cfg.OllamaModel, logger), nil
	case "mock":
		return NewMock(logger), nil
	default:
		return nil, fmt.Errorf("unknown model provider %q", cfg.Provider)
	}
}
