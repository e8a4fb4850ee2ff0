// Package llm issues the classification tool-call request against the
// configured completion provider and normalizes the structured result.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"

	"ticketbot/internal/httpx"
)

// ClassifyToolName is the tool the model is asked to invoke. A response
// invoking any other tool, or none, counts as "no structured
// classification".
const ClassifyToolName = "classify_comment"

const defaultAnthropicModel = "claude-sonnet-4-5-20250929"
const defaultOpenAIModel = "gpt-4o"

// openAIBaseURL is a var so tests can point the provider at a local
// server.
var openAIBaseURL = "https://api.openai.com/v1/chat/completions"

// ToolCall is the provider-independent shape of a structured tool
// invocation returned by the model.
type ToolCall struct {
	Name      string
	Arguments json.RawMessage
}

type Usage struct {
	InputTokens              int64
	OutputTokens             int64
	CacheCreationInputTokens int64
	CacheReadInputTokens     int64
}

func (u Usage) TotalTokens() int64 {
	return u.InputTokens + u.OutputTokens
}

// ClassifyArguments are the required fields of a classify_comment
// invocation.
type ClassifyArguments struct {
	Category string `json:"category"`
	Summary  string `json:"summary"`
}

// ParseClassifyArguments decodes and validates tool-call arguments.
// Missing or empty category/summary are rejected here so every caller
// shares one validation gate.
func ParseClassifyArguments(raw json.RawMessage) (ClassifyArguments, error) {
	var args ClassifyArguments
	if err := json.Unmarshal(raw, &args); err != nil {
		return ClassifyArguments{}, fmt.Errorf("parsing classification arguments: %w", err)
	}
	args.Category = strings.TrimSpace(args.Category)
	args.Summary = strings.TrimSpace(args.Summary)
	if args.Category == "" || args.Summary == "" {
		return ClassifyArguments{}, fmt.Errorf("classification arguments missing category or summary")
	}
	return args, nil
}

type Client struct {
	provider     string
	model        string
	anthropicKey string
	openAIKey    string
	logger       *zap.Logger
}

func NewClient(provider, model, anthropicKey, openAIKey string, logger *zap.Logger) *Client {
	return &Client{
		provider:     provider,
		model:        model,
		anthropicKey: anthropicKey,
		openAIKey:    openAIKey,
		logger:       logger,
	}
}

// RequestClassification asks the model to classify the ticket via the
// classify_comment tool. A nil ToolCall with nil error means the model
// answered without a relevant tool invocation; the caller decides the
// fallback.
func (c *Client) RequestClassification(ctx context.Context, subject, comment string, categories []string) (*ToolCall, Usage, error) {
	systemPrompt, userPrompt := buildClassifyPrompts(subject, comment)

	switch c.provider {
	case "openai":
		model := c.model
		if model == "" {
			model = defaultOpenAIModel
		}
		c.logger.Info("llm classify request",
			zap.String("provider", "openai"),
			zap.String("model", model),
			zap.Int("categories", len(categories)))
		return c.callOpenAI(ctx, model, systemPrompt, userPrompt, categories)
	default:
		model := c.model
		if model == "" {
			model = defaultAnthropicModel
		}
		c.logger.Info("llm classify request",
			zap.String("provider", "anthropic"),
			zap.String("model", model),
			zap.Int("categories", len(categories)))
		return c.callAnthropic(ctx, model, systemPrompt, userPrompt, categories)
	}
}

func buildClassifyPrompts(subject, comment string) (string, string) {
	systemPrompt := "Your task is to classify the ticket sent in the next message into one of the " +
		"predefined categories in snake_case format. Provide the classification and a brief summary " +
		"of the reasoning. If none of the categories closely match, use 'unknown'."
	userPrompt := fmt.Sprintf("Please classify the following ticket: {subject: %q, body: %q}", subject, comment)
	return systemPrompt, userPrompt
}

// categoryEnum is the constrained value set for the category argument.
// The unknown sentinel is always permitted so the model can report a
// non-match through the tool instead of skipping it.
func categoryEnum(categories []string) []string {
	enum := make([]string, 0, len(categories)+1)
	enum = append(enum, categories...)
	enum = append(enum, "unknown")
	return enum
}

func toolProperties(categories []string) (map[string]any, []string) {
	categoryProp := map[string]any{
		"type":        "string",
		"description": "The ticket category that most closely matches the comment",
	}
	if len(categories) > 0 {
		categoryProp["enum"] = categoryEnum(categories)
	}
	properties := map[string]any{
		"summary": map[string]any{
			"type":        "string",
			"description": "A brief summary of the reasoning behind the classification. If it is unknown, provide a reason.",
		},
		"category": categoryProp,
	}
	return properties, []string{"summary", "category"}
}

const classifyToolDescription = "Takes the output of a ticket classification model and returns the category and summary of the classification reasoning."

// --- Anthropic ---

func (c *Client) callAnthropic(ctx context.Context, model, systemPrompt, userPrompt string, categories []string) (*ToolCall, Usage, error) {
	client := anthropic.NewClient(option.WithAPIKey(c.anthropicKey))

	properties, required := toolProperties(categories)
	tool := anthropic.ToolParam{
		Name:        ClassifyToolName,
		Description: anthropic.String(classifyToolDescription),
		InputSchema: anthropic.ToolInputSchemaParam{
			Properties: properties,
			Required:   required,
		},
	}

	message, err := client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: 1024,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
		Tools: []anthropic.ToolUnionParam{
			{OfTool: &tool},
		},
		ToolChoice: anthropic.ToolChoiceUnionParam{
			OfAuto: &anthropic.ToolChoiceAutoParam{},
		},
	})
	if err != nil {
		c.logger.Warn("llm anthropic error", zap.Error(err))
		return nil, Usage{}, fmt.Errorf("Anthropic API error: %w", err)
	}

	usage := Usage{
		InputTokens:              message.Usage.InputTokens,
		OutputTokens:             message.Usage.OutputTokens,
		CacheCreationInputTokens: message.Usage.CacheCreationInputTokens,
		CacheReadInputTokens:     message.Usage.CacheReadInputTokens,
	}

	for _, block := range message.Content {
		if block.Type == "tool_use" && block.Name == ClassifyToolName {
			c.logger.Info("llm anthropic tool call",
				zap.Int64("tokens_in", usage.InputTokens),
				zap.Int64("tokens_out", usage.OutputTokens))
			return &ToolCall{Name: block.Name, Arguments: json.RawMessage(block.Input)}, usage, nil
		}
	}
	return nil, usage, nil
}

// --- OpenAI ---

type openAIRequest struct {
	Model      string          `json:"model"`
	Messages   []openAIMessage `json:"messages"`
	Tools      []openAITool    `json:"tools,omitempty"`
	ToolChoice string          `json:"tool_choice,omitempty"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAITool struct {
	Type     string         `json:"type"`
	Function openAIFunction `json:"function"`
}

type openAIFunction struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Parameters  any    `json:"parameters"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content   string `json:"content"`
			ToolCalls []struct {
				Type     string `json:"type"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"message"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int64 `json:"prompt_tokens"`
		CompletionTokens int64 `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) callOpenAI(ctx context.Context, model, systemPrompt, userPrompt string, categories []string) (*ToolCall, Usage, error) {
	properties, required := toolProperties(categories)
	reqBody := openAIRequest{
		Model: model,
		Messages: []openAIMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Tools: []openAITool{{
			Type: "function",
			Function: openAIFunction{
				Name:        ClassifyToolName,
				Description: classifyToolDescription,
				Parameters: map[string]any{
					"type":       "object",
					"properties": properties,
					"required":   required,
				},
			},
		}},
		ToolChoice: "auto",
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, Usage{}, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, openAIBaseURL, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, Usage{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.openAIKey)

	resp, err := httpx.ExternalHTTPClient().Do(req)
	if err != nil {
		c.logger.Warn("llm openai error", zap.Error(err))
		return nil, Usage{}, fmt.Errorf("OpenAI API error: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, Usage{}, fmt.Errorf("reading response: %w", err)
	}

	var parsed openAIResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, Usage{}, fmt.Errorf("parsing OpenAI response: %w", err)
	}
	if parsed.Error != nil {
		c.logger.Warn("llm openai api error", zap.String("message", parsed.Error.Message))
		return nil, Usage{}, fmt.Errorf("OpenAI API error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return nil, Usage{}, fmt.Errorf("no choices in OpenAI response")
	}

	usage := Usage{}
	if parsed.Usage != nil {
		usage.InputTokens = parsed.Usage.PromptTokens
		usage.OutputTokens = parsed.Usage.CompletionTokens
	}

	for _, call := range parsed.Choices[0].Message.ToolCalls {
		if call.Function.Name == ClassifyToolName {
			c.logger.Info("llm openai tool call",
				zap.Int64("tokens_in", usage.InputTokens),
				zap.Int64("tokens_out", usage.OutputTokens))
			return &ToolCall{
				Name:      call.Function.Name,
				Arguments: json.RawMessage(call.Function.Arguments),
			}, usage, nil
		}
	}
	return nil, usage, nil
}
