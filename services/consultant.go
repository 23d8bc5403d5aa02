package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/farmlean/agkaizen/config"
	"github.com/farmlean/agkaizen/db/models"
	"github.com/farmlean/agkaizen/taxonomy"
)

const maxHistoryMessages = 8

// ChatMessage mirrors OpenAI-style chat message payloads.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatUsage contains token usage metadata returned by the API.
type ChatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ConsultantResult wraps the parsed analysis plus debug metadata.
type ConsultantResult struct {
	Analysis       *Analysis       `json:"analysis"`
	ReplyText      string          `json:"reply_text"`
	Usage          *ChatUsage      `json:"usage,omitempty"`
	Raw            json.RawMessage `json:"raw,omitempty"`
	PromptMessages []ChatMessage   `json:"prompt_messages"`
}

// Consultant is the model-backed diagnoser. It composes the kaizen system
// prompt with retrieved SOP excerpts, calls an OpenAI-compatible chat
// completions endpoint and parses the trailing JSON block into the
// analysis contract.
type Consultant struct {
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	maxTokens   int
	client      httpDoer
	tax         *taxonomy.Taxonomy
	logger      *zap.SugaredLogger
}

func NewConsultant(cfg config.LLMConfig, tax *taxonomy.Taxonomy, logger *zap.SugaredLogger) *Consultant {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = "https://api.openai.com/v1"
	}

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "gpt-4o-mini"
	}

	return &Consultant{
		baseURL:     base,
		apiKey:      strings.TrimSpace(cfg.APIKey),
		model:       model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		client:      newHTTPClientWithTimeout(cfg.Timeout),
		tax:         tax,
		logger:      logger,
	}
}

// Analyze asks the model for a diagnosis of userText grounded in the given
// SOP excerpts. Any transport, contract or parsing failure is returned as
// an error so the caller can fall back to the rules engine.
func (c *Consultant) Analyze(ctx context.Context, userText string, history []ChatMessage, chunks []models.SOPChunk) (*ConsultantResult, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("llm api key is not configured")
	}

	userInput := strings.TrimSpace(userText)
	if userInput == "" {
		return nil, fmt.Errorf("user text cannot be empty")
	}

	promptMessages := c.buildPrompt(userInput, history, chunks)

	payload := chatAPIRequest{
		Model:    c.model,
		Messages: promptMessages,
	}
	if c.temperature > 0 {
		payload.Temperature = c.temperature
	}
	if c.maxTokens > 0 {
		payload.MaxTokens = c.maxTokens
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal chat payload: %w", err)
	}

	endpoint := c.baseURL + "/chat/completions"
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create chat request: %w", err)
	}

	request.Header.Set("Authorization", "Bearer "+c.apiKey)
	request.Header.Set("Content-Type", "application/json")

	response, err := c.client.Do(request)
	if err != nil {
		return nil, fmt.Errorf("call chat api: %w", err)
	}
	defer response.Body.Close()

	respBody, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, fmt.Errorf("read chat response: %w", err)
	}

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return nil, buildLLMAPIError(response.StatusCode, respBody)
	}

	var apiResp chatAPIResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, fmt.Errorf("decode chat response: %w", err)
	}

	if apiResp.Error != nil && apiResp.Error.Message != "" {
		return nil, fmt.Errorf("chat api error: %s", apiResp.Error.Message)
	}

	if len(apiResp.Choices) == 0 {
		return nil, fmt.Errorf("chat response contained no choices")
	}

	content := apiResp.Choices[0].Message.Content
	analysis, err := DecodeAnalysis([]byte(extractJSONBlock(content)), c.tax)
	if err != nil {
		return nil, err
	}

	return &ConsultantResult{
		Analysis:       analysis,
		ReplyText:      strings.TrimSpace(content),
		Usage:          apiResp.Usage,
		Raw:            json.RawMessage(respBody),
		PromptMessages: promptMessages,
	}, nil
}

func (c *Consultant) buildPrompt(userInput string, history []ChatMessage, chunks []models.SOPChunk) []ChatMessage {
	preserved := normalizeHistory(history, maxHistoryMessages)

	messages := make([]ChatMessage, 0, 4+len(preserved))
	messages = append(messages, ChatMessage{Role: "system", Content: c.buildSystemPrompt(chunks)})
	messages = append(messages, ChatMessage{Role: "user", Content: fewShotUser})
	messages = append(messages, ChatMessage{Role: "assistant", Content: fewShotAssistant})
	messages = append(messages, preserved...)
	messages = append(messages, ChatMessage{Role: "user", Content: userInput})
	return messages
}

func (c *Consultant) buildSystemPrompt(chunks []models.SOPChunk) string {
	var builder strings.Builder
	builder.WriteString("You are an Agriculture Kaizen Consultant.\n")
	builder.WriteString("Work in five steps: clarify the problem, classify the process flow and wastes, ground your advice in the SOP excerpts below, prescribe small PDCA experiments, and close with a JSON plan.\n")
	builder.WriteString("Return a concise plan and ALWAYS end with a JSON block that matches this schema:\n")
	builder.WriteString(fmt.Sprintf("summary(str), flow(one of %s),\n", strings.Join(c.tax.Flows(), ", ")))
	builder.WriteString(fmt.Sprintf("wastes(array, subset of %s), root_causes(array),\n", strings.Join(c.tax.Wastes(), ", ")))
	builder.WriteString("recommendations(array of {action,impact,effort} with impact/effort one of low, medium, high),\n")
	builder.WriteString("quick_test(str), kpis(array), next_check_in_days(int 1-90).\n")
	builder.WriteString("Be concrete, farmer-friendly, no chemical dosages.\n")

	if len(chunks) == 0 {
		builder.WriteString("No SOP excerpts matched this problem: offer a safe next step, do not invent specifics.")
		return builder.String()
	}

	builder.WriteString("SOP excerpts (cite by number when you use one):")
	for i, chunk := range chunks {
		builder.WriteString(fmt.Sprintf("\n%d. %s — %s", i+1, chunk.Title, strings.TrimSpace(chunk.Body)))
	}
	return builder.String()
}

func normalizeHistory(history []ChatMessage, keep int) []ChatMessage {
	cleaned := make([]ChatMessage, 0, len(history))
	for _, msg := range history {
		content := strings.TrimSpace(msg.Content)
		if content == "" {
			continue
		}
		role := strings.ToLower(strings.TrimSpace(msg.Role))
		if role != "assistant" && role != "system" {
			role = "user"
		}
		cleaned = append(cleaned, ChatMessage{Role: role, Content: content})
	}

	if keep > 0 && len(cleaned) > keep {
		cleaned = cleaned[len(cleaned)-keep:]
	}
	return cleaned
}

const fewShotUser = "Lettuce browns before delivery; trucks are every 2 days."

const fewShotAssistant = "Diagnosis: post-harvest waiting/defects; add rapid pre-cool + daily micro-dispatch.\n" +
	"```json\n" +
	"{\n" +
	"  \"summary\":\"Lettuce browning before delivery\",\n" +
	"  \"flow\":\"post_harvest\",\n" +
	"  \"wastes\":[\"waiting\",\"defects\"],\n" +
	"  \"root_causes\":[\"delayed dispatch\",\"no rapid pre-cool\"],\n" +
	"  \"recommendations\":[\n" +
	"    {\"action\":\"Pre-cool within 90 min\",\"impact\":\"high\",\"effort\":\"medium\"},\n" +
	"    {\"action\":\"Switch to smaller daily shipments\",\"impact\":\"high\",\"effort\":\"medium\"}\n" +
	"  ],\n" +
	"  \"quick_test\":\"Pilot pre-cool + daily dispatch on Lot A for 1 week\",\n" +
	"  \"kpis\":[\"time_to_cool_min\",\"storage_loss_pct\",\"claim_rate_pct\"],\n" +
	"  \"next_check_in_days\":7\n" +
	"}\n" +
	"```"

var jsonBlockPattern = regexp.MustCompile("(?s)```json\\s*(\\{.*?\\})\\s*```")

// extractJSONBlock returns the last fenced json block in content, or the
// whole trimmed content when no fence is present.
func extractJSONBlock(content string) string {
	matches := jsonBlockPattern.FindAllStringSubmatch(content, -1)
	if len(matches) == 0 {
		return strings.TrimSpace(content)
	}
	return matches[len(matches)-1][1]
}

type chatAPIRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatAPIChoice struct {
	Index        int         `json:"index"`
	Message      ChatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type chatAPIResponse struct {
	ID      string          `json:"id"`
	Object  string          `json:"object"`
	Created int64           `json:"created"`
	Choices []chatAPIChoice `json:"choices"`
	Usage   *ChatUsage      `json:"usage"`
	Error   *llmAPIError    `json:"error,omitempty"`
}
