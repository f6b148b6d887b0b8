package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/cmtonkinson/brain-scheduler/internal/domain"
)

// MessagesClient captures the subset of the Anthropic SDK client the
// invoker needs, so tests can substitute a fake in place of *sdk.Client's
// embedded Messages service.
type MessagesClient interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
}

// AnthropicInvoker is a reference Invoker backed by the Anthropic Messages
// API. The task intent's summary/details go into a system prompt that also
// instructs the model to report a structured outcome; the user turn names
// the attempt number and execution id.
type AnthropicInvoker struct {
	msg         MessagesClient
	model       string
	maxTokens   int
	temperature float64
}

// Options configures the invoker's call defaults.
type Options struct {
	Model       string
	MaxTokens   int
	Temperature float64
}

// NewAnthropicInvoker builds an invoker from an already-constructed Messages
// client (real or fake).
func NewAnthropicInvoker(msg MessagesClient, opts Options) (*AnthropicInvoker, error) {
	if msg == nil {
		return nil, errors.New("anthropic client is required")
	}
	if opts.Model == "" {
		return nil, errors.New("model identifier is required")
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &AnthropicInvoker{msg: msg, model: opts.Model, maxTokens: maxTokens, temperature: opts.Temperature}, nil
}

// NewAnthropicInvokerFromAPIKey constructs an invoker using the SDK's
// default HTTP client.
func NewAnthropicInvokerFromAPIKey(apiKey, model string) (*AnthropicInvoker, error) {
	if apiKey == "" {
		return nil, errors.New("api key is required")
	}
	client := sdk.NewClient(option.WithAPIKey(apiKey))
	return NewAnthropicInvoker(&client.Messages, Options{Model: model})
}

// invocationOutcomeJSON is the structured report the system prompt asks the
// model to emit as the final content block; it mirrors InvocationResult
// field-for-field so the mapping back is a straight unmarshal.
type invocationOutcomeJSON struct {
	Status             string `json:"status"`
	ResultCode         string `json:"result_code"`
	AttentionRequired  bool   `json:"attention_required"`
	Message            string `json:"message,omitempty"`
	SideEffectsSummary string `json:"side_effects_summary,omitempty"`
	ErrorCode          string `json:"error_code,omitempty"`
	ErrorMessage       string `json:"error_message,omitempty"`
}

const systemPromptTemplate = `You are executing a scheduled task on behalf of its owner. Carry out the
task described below, then reply with exactly one JSON object (no prose
around it) matching this shape:
{"status":"success|failure|deferred","result_code":"<short code>","attention_required":bool,"message":"<optional human summary>","side_effects_summary":"<optional>","error_code":"<set on failure>","error_message":"<set on failure>"}

Task: %s
%s`

// Invoke issues one Messages.New call and translates the response into an
// InvocationResult. Any SDK-level error is returned as a Go error for the
// dispatcher to map to error_code=invoker_exception; a successful call that
// fails to parse a structured outcome is reported as a deferred result
// with attention_required=true rather than silently assumed successful.
func (a *AnthropicInvoker) Invoke(ctx context.Context, req InvocationRequest) (InvocationResult, error) {
	detail := ""
	if req.TaskIntent.Details != nil {
		detail = *req.TaskIntent.Details
	}
	system := fmt.Sprintf(systemPromptTemplate, req.TaskIntent.Summary, detail)

	params := sdk.MessageNewParams{
		Model:     sdk.Model(a.model),
		MaxTokens: int64(a.maxTokens),
		System:    []sdk.TextBlockParam{{Text: system}},
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(fmt.Sprintf("Attempt %d of %d for execution %s.",
				req.Execution.AttemptNumber, req.Execution.MaxAttempts, req.Execution.ID))),
		},
	}
	if a.temperature > 0 {
		params.Temperature = sdk.Float(a.temperature)
	}

	msg, err := a.msg.New(ctx, params)
	if err != nil {
		return InvocationResult{}, fmt.Errorf("anthropic messages.new: %w", err)
	}
	return translateMessage(msg), nil
}

func translateMessage(msg *sdk.Message) InvocationResult {
	text := extractText(msg)
	var parsed invocationOutcomeJSON
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &parsed); err != nil {
		return InvocationResult{
			Status:            domain.OutcomeDeferred,
			ResultCode:        "unstructured_response",
			AttentionRequired: true,
			Message:           &text,
		}
	}

	result := InvocationResult{
		Status:            domain.InvocationOutcome(parsed.Status),
		ResultCode:         parsed.ResultCode,
		AttentionRequired: parsed.AttentionRequired,
	}
	if parsed.Message != "" {
		m := parsed.Message
		result.Message = &m
	}
	if parsed.SideEffectsSummary != "" {
		s := parsed.SideEffectsSummary
		result.SideEffectsSummary = &s
	}
	if parsed.ErrorCode != "" || parsed.ErrorMessage != "" {
		result.Error = &InvocationError{ErrorCode: parsed.ErrorCode, ErrorMessage: parsed.ErrorMessage}
	}
	return result
}

func extractText(msg *sdk.Message) string {
	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	return b.String()
}
