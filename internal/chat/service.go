// Package chat orchestrates the conversation flow: enhance the user message,
// converse with the configured model (running SQL tools as requested),
// post-process the returned SQL, then validate and execute it. Model and
// database failures degrade into readable answers instead of HTTP errors.
package chat

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/facet-labs/facet/internal/config"
	"github.com/facet-labs/facet/internal/database"
	"github.com/facet-labs/facet/internal/llm"
	"github.com/facet-labs/facet/internal/sqlguard"
	"github.com/facet-labs/facet/pkg/models"
)

type Service struct {
	store   database.Store
	client  llm.Client
	runner  *Runner
	maxRows int
	modelID string
	region  string
	logger  zerolog.Logger
}

func NewService(store database.Store, client llm.Client, cfg *config.Config, logger zerolog.Logger) *Service {
	log := logger.With().Str("component", "chat").Logger()
	return &Service{
		store:   store,
		client:  client,
		runner:  NewRunner(store, cfg.Query.MaxRows, logger),
		maxRows: cfg.Query.MaxRows,
		modelID: cfg.Model.ModelID,
		region:  cfg.Model.Region,
		logger:  log,
	}
}

// Ask answers one chat message. The returned payload always has an Answer;
// SQL, viz, and rows are attached when the conversation produced them.
func (s *Service) Ask(ctx context.Context, req models.ChatRequest) *models.ChatPayload {
	s.logger.Info().Str("role", req.Role).Int("message_len", len(req.Message)).Msg("Chat request")

	messages := []llm.Message{{Role: "user", Content: enhanceMessage(req.Message)}}
	tools := []llm.ToolSpec{queryTool()}

	env, err := s.client.Converse(ctx, systemPrompt, messages, tools, s.runner.Run)
	if err != nil {
		s.logger.Error().Err(err).Str("provider", s.client.Name()).Msg("Model conversation failed")
		return s.providerFailure(err)
	}

	if env.SQL != "" {
		env.SQL = sqlguard.Strip(env.SQL)
		if s.store.Engine() == "clickhouse" {
			translated := sqlguard.TranslateClickHouse(env.SQL)
			if cerr := sqlguard.CheckClickHouseCompat(translated); cerr != nil {
				s.logger.Warn().Err(cerr).Str("sql", translated).Msg("Translated SQL may still be incompatible")
			}
			env.SQL = translated
		}
	}

	fixDimensionMismatch(req.Message, env)

	if env.SQL == "" {
		return &models.ChatPayload{Answer: env.Answer, Viz: env.Viz}
	}

	if err := sqlguard.Validate(env.SQL); err != nil {
		reason := err.Error()
		if verr, ok := sqlguard.AsValidation(err); ok {
			reason = verr.Reason
		}
		s.logger.Warn().Str("sql", env.SQL).Str("reason", reason).Msg("Model produced unsafe SQL")
		return &models.ChatPayload{Answer: "Unsafe SQL: " + reason, SQL: env.SQL, Viz: env.Viz}
	}

	result, err := s.store.Query(ctx, env.SQL)
	if err != nil {
		s.logger.Error().Err(err).Str("sql", env.SQL).Msg("Chat query failed")
		return s.databaseFailure(env, err)
	}

	rows := result.Rows
	if s.maxRows > 0 && len(rows) > s.maxRows {
		rows = rows[:s.maxRows]
	}

	s.logger.Info().Int("rows", len(rows)).Msg("Chat request answered")
	return &models.ChatPayload{
		Answer:  env.Answer,
		SQL:     env.SQL,
		Viz:     env.Viz,
		Columns: result.Columns,
		Rows:    rows,
		Schema:  result.Schema,
	}
}

// fixDimensionMismatch rewrites the SQL and viz when the model grouped by the
// wrong dimension despite the user naming one explicitly. Models answer
// "sales by category" with region groupings often enough that this cheap
// textual swap is worth it.
func fixDimensionMismatch(message string, env *models.ModelEnvelope) {
	if env.SQL == "" {
		return
	}
	lower := strings.ToLower(message)
	askedCategory := strings.Contains(lower, "categor") && !strings.Contains(lower, "region")
	askedRegion := strings.Contains(lower, "region") && !strings.Contains(lower, "categor")

	sqlLower := strings.ToLower(env.SQL)
	switch {
	case askedCategory && strings.Contains(sqlLower, "region") && !strings.Contains(sqlLower, "category"):
		swapDimension(env, "region", "category")
	case askedRegion && strings.Contains(sqlLower, "category") && !strings.Contains(sqlLower, "region"):
		swapDimension(env, "category", "region")
	}
}

func swapDimension(env *models.ModelEnvelope, from, to string) {
	env.SQL = strings.ReplaceAll(env.SQL, from, to)
	env.SQL = strings.ReplaceAll(env.SQL, strings.ToUpper(from), to)
	if env.Viz == nil {
		return
	}
	for i, g := range env.Viz.GroupBy {
		if g == from {
			env.Viz.GroupBy[i] = to
		}
	}
	if env.Viz.X == from {
		env.Viz.X = to
	}
}

// providerFailure turns a model-provider error into guidance. The two AWS
// cases come with step-by-step fixes because they are by far the most common
// first-run failures.
func (s *Service) providerFailure(err error) *models.ChatPayload {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "AccessDeniedException") || strings.Contains(msg, "not authorized"):
		return &models.ChatPayload{Answer: "AWS IAM Permission Error: " + msg + "\n\n" +
			"Your AWS user/role needs bedrock:InvokeModel permission.\n\n" +
			"To fix:\n" +
			"1. Go to IAM → Users → [Your User] → Add permissions\n" +
			"2. Attach policy: AmazonBedrockFullAccess (or create custom policy with bedrock:InvokeModel)\n" +
			"3. Or add this to your IAM policy:\n" +
			"   {\n     \"Effect\": \"Allow\",\n     \"Action\": \"bedrock:InvokeModel\",\n     \"Resource\": \"*\"\n   }"}
	case strings.Contains(msg, "model identifier is invalid") || strings.Contains(msg, "ValidationException"):
		return &models.ChatPayload{Answer: "Model ID error: " + msg + "\n\n" +
			"To fix:\n" +
			"1. Verify the model is available in AWS Bedrock Console\n" +
			"2. Check model.model_id in facet.toml or FACET_MODEL_MODEL_ID: " + s.modelID + "\n" +
			"3. Ensure model.region matches: " + s.region}
	default:
		return &models.ChatPayload{Answer: providerLabel(s.client.Name()) + " error: " + msg}
	}
}

func (s *Service) databaseFailure(env *models.ModelEnvelope, err error) *models.ChatPayload {
	msg := err.Error()
	if strings.Contains(strings.ToUpper(env.SQL), "CURRENT_DATE") && strings.Contains(msg, "Unknown expression") {
		return &models.ChatPayload{
			Answer: "SQL Translation Error: The query still contains CURRENT_DATE after translation. This shouldn't happen. SQL: " + truncate(env.SQL, 200),
			SQL:    env.SQL,
			Viz:    env.Viz,
		}
	}
	return &models.ChatPayload{
		Answer: "Database error: " + truncate(msg, 300),
		SQL:    env.SQL,
		Viz:    env.Viz,
	}
}

func providerLabel(name string) string {
	if name == "" {
		return "Model"
	}
	return strings.ToUpper(name[:1]) + name[1:]
}
