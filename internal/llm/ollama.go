package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/facet-labs/facet/pkg/models"
)

// maxToolAttempts bounds how many times a failed tool call is sent back to
// the model with correction feedback.
const maxToolAttempts = 2

// Ollama talks to a local Ollama server over its /api/chat endpoint.
type Ollama struct {
	baseURL    string
	model      string
	httpClient *http.Client
	logger     zerolog.Logger
}

func NewOllama(baseURL, model string, logger zerolog.Logger) *Ollama {
	return &Ollama{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		httpClient: &http.Client{Timeout: 120 * time.Second},
		logger:     logger.With().Str("component", "llm.ollama").Logger(),
	}
}

func (o *Ollama) Name() string { return "ollama" }

func (o *Ollama) Converse(ctx context.Context, systemPrompt string, messages []Message, tools []ToolSpec, runTool ToolFunc) (*models.ModelEnvelope, error) {
	convo := []chatMessage{{Role: "system", Content: systemPrompt}}
	for _, m := range messages {
		role := m.Role
		if role == "" {
			role = "user"
		}
		convo = append(convo, chatMessage{Role: role, Content: m.Content})
	}
	funcs := toChatTools(tools)

	resp, err := o.chat(ctx, convo, funcs, 0.2)
	if err != nil {
		return nil, err
	}

	if len(resp.Message.ToolCalls) == 0 {
		return parseReply(resp.Message.Content), nil
	}

	convo = append(convo, resp.Message)
	calls := resp.Message.ToolCalls
	var lastResult map[string]any

	for attempt := 1; attempt <= maxToolAttempts; attempt++ {
		call := calls[0]
		result := runTool(ctx, call.Function.Name, decodeToolArgs(call.Function.Arguments))
		lastResult = result

		payload, _ := json.Marshal(result)
		convo = append(convo, chatMessage{Role: "tool", Content: string(payload), Name: call.Function.Name})

		errMsg, failed := toolError(result)
		if !failed || attempt == maxToolAttempts {
			break
		}

		// Feed the failure back and ask for a corrected query at a lower
		// temperature.
		feedback := "SQL execution failed: " + errMsg
		if hint, ok := result["hint"].(string); ok && hint != "" {
			feedback += "\nHint: " + hint
		}
		feedback += "\n\nPlease generate a corrected, complete SQL query. The query must include: SELECT columns FROM retail_sales [WHERE/GROUP BY/ORDER BY clauses]."
		convo = append(convo, chatMessage{Role: "user", Content: feedback})

		o.logger.Warn().Str("error", errMsg).Int("attempt", attempt).Msg("Tool call failed, requesting a corrected query")

		retry, err := o.chat(ctx, convo, funcs, 0.1)
		if err != nil {
			return nil, err
		}
		if len(retry.Message.ToolCalls) == 0 {
			break
		}
		convo = append(convo, retry.Message)
		calls = retry.Message.ToolCalls
	}

	if errMsg, failed := toolError(lastResult); failed {
		return &models.ModelEnvelope{Answer: "I encountered an error executing the SQL query: " + errMsg}, nil
	}

	// Final call without tools so the model must produce the envelope.
	final, err := o.chat(ctx, convo, nil, 0.2)
	if err != nil {
		return nil, err
	}
	return parseReply(final.Message.Content), nil
}

func (o *Ollama) chat(ctx context.Context, messages []chatMessage, tools []chatTool, temperature float64) (*chatResponse, error) {
	reqBody := chatRequest{
		Model:    o.model,
		Messages: messages,
		Stream:   false,
		Options:  map[string]any{"temperature": temperature},
	}
	if len(tools) > 0 {
		reqBody.Tools = tools
		reqBody.ToolChoice = "auto"
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("encode ollama request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/chat", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read ollama response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama returned %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	return parseChatResponse(body), nil
}

type chatRequest struct {
	Model      string         `json:"model"`
	Messages   []chatMessage  `json:"messages"`
	Stream     bool           `json:"stream"`
	Options    map[string]any `json:"options,omitempty"`
	Tools      []chatTool     `json:"tools,omitempty"`
	ToolChoice string         `json:"tool_choice,omitempty"`
}

type chatMessage struct {
	Role      string     `json:"role"`
	Content   string     `json:"content"`
	Name      string     `json:"name,omitempty"`
	ToolCalls []toolCall `json:"tool_calls,omitempty"`
}

type toolCall struct {
	Function toolCallFunction `json:"function"`
}

type toolCallFunction struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

type chatTool struct {
	Type     string           `json:"type"`
	Function chatToolFunction `json:"function"`
}

type chatToolFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

type chatResponse struct {
	Message chatMessage `json:"message"`
	Done    bool        `json:"done"`
}

func toChatTools(tools []ToolSpec) []chatTool {
	if len(tools) == 0 {
		return nil
	}
	out := make([]chatTool, 0, len(tools))
	for _, t := range tools {
		out = append(out, chatTool{
			Type: "function",
			Function: chatToolFunction{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.InputSchema,
			},
		})
	}
	return out
}

// parseChatResponse tolerates the stream-style NDJSON some server versions
// emit even with stream=false.
func parseChatResponse(body []byte) *chatResponse {
	var out chatResponse
	if err := json.Unmarshal(body, &out); err == nil {
		return &out
	}
	if i := bytes.IndexByte(body, '\n'); i > 0 {
		if err := json.Unmarshal(body[:i], &out); err == nil {
			return &out
		}
	}
	return &chatResponse{Message: chatMessage{Role: "assistant", Content: string(body)}}
}

// decodeToolArgs accepts arguments as a JSON object or as a double-encoded
// JSON string, which smaller models produce now and then.
func decodeToolArgs(raw json.RawMessage) map[string]any {
	args := map[string]any{}
	if len(raw) == 0 {
		return args
	}
	if err := json.Unmarshal(raw, &args); err == nil {
		return args
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		_ = json.Unmarshal([]byte(s), &args)
	}
	return args
}

func toolError(result map[string]any) (string, bool) {
	if result == nil {
		return "", false
	}
	v, ok := result["error"]
	if !ok {
		return "", false
	}
	return fmt.Sprint(v), true
}

// parseReply reads the final assistant message. Unlike ExtractEnvelope it
// keeps the full text as the answer and scavenges a SELECT statement from
// prose, since local models often skip the envelope format.
func parseReply(content string) *models.ModelEnvelope {
	if env, ok := ParseEnvelope(content); ok {
		return env
	}
	return &models.ModelEnvelope{
		Answer: strings.TrimSpace(content),
		SQL:    ExtractSQL(content),
	}
}
