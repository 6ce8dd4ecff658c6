// Package anthropic implements llm.Provider over the Anthropic Messages
// API.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"

	"github.com/youssefsiam38/immagent/llm"
	"github.com/youssefsiam38/immagent/retry"
)

// DefaultMaxTokens is sent when the request config sets no max_tokens; the
// Messages API requires the field.
const DefaultMaxTokens = 8192

// Provider calls the Anthropic Messages API with per-attempt timeouts and
// retry on transient failures.
type Provider struct {
	client        anthropic.Client
	retryBaseWait time.Duration
}

// Option configures a Provider.
type Option func(*options)

type options struct {
	clientOpts    []option.RequestOption
	retryBaseWait time.Duration
}

// WithAPIKey sets the API key. Without it the SDK reads ANTHROPIC_API_KEY.
func WithAPIKey(key string) Option {
	return func(o *options) {
		o.clientOpts = append(o.clientOpts, option.WithAPIKey(key))
	}
}

// WithBaseURL points the client at a different endpoint (proxies, tests).
func WithBaseURL(url string) Option {
	return func(o *options) {
		o.clientOpts = append(o.clientOpts, option.WithBaseURL(url))
	}
}

// WithClientOptions appends raw SDK request options.
func WithClientOptions(opts ...option.RequestOption) Option {
	return func(o *options) {
		o.clientOpts = append(o.clientOpts, opts...)
	}
}

// WithRetryBaseWait sets the wait before the first retry.
func WithRetryBaseWait(d time.Duration) Option {
	return func(o *options) { o.retryBaseWait = d }
}

// New creates a Provider.
func New(opts ...Option) *Provider {
	o := options{retryBaseWait: retry.DefaultBaseWait}
	for _, opt := range opts {
		opt(&o)
	}
	// The SDK retries internally as well; one layer of retry is enough.
	o.clientOpts = append(o.clientOpts, option.WithMaxRetries(0))
	return &Provider{
		client:        anthropic.NewClient(o.clientOpts...),
		retryBaseWait: o.retryBaseWait,
	}
}

// Complete implements llm.Provider.
func (p *Provider) Complete(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	params, err := buildParams(req)
	if err != nil {
		return nil, err
	}

	var callOpts []option.RequestOption
	for key, value := range req.Config.Extra {
		callOpts = append(callOpts, option.WithJSONSet(key, value))
	}

	maxRetries := req.MaxRetries
	if maxRetries < 1 {
		maxRetries = retry.DefaultMaxRetries
	}

	var response *anthropic.Message
	err = retry.Do(ctx, func() error {
		attemptCtx := ctx
		if req.Timeout > 0 {
			var cancel context.CancelFunc
			attemptCtx, cancel = context.WithTimeout(ctx, req.Timeout)
			defer cancel()
		}

		resp, err := p.client.Messages.New(attemptCtx, *params, callOpts...)
		if err != nil {
			return classify(err)
		}
		response = resp
		return nil
	}, retry.WithMaxRetries(maxRetries), retry.WithBaseWait(p.retryBaseWait))
	if err != nil {
		return nil, err
	}

	return parseResponse(response), nil
}

// classify marks rate limits, server errors, and timeouts as recoverable so
// retry.Do tries again; everything else (auth, invalid request) fails fast.
func classify(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == 429 || apiErr.StatusCode == 408 || apiErr.StatusCode >= 500 {
			return retry.NewRecoverableError(err)
		}
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return retry.NewRecoverableError(err)
	}
	// Transport-level failure without an API status.
	return retry.NewRecoverableError(err)
}

func buildParams(req *llm.Request) (*anthropic.MessageNewParams, error) {
	maxTokens := int64(DefaultMaxTokens)
	if req.Config.MaxTokens != nil {
		maxTokens = *req.Config.MaxTokens
	}

	messages, err := convertMessages(req.Messages)
	if err != nil {
		return nil, err
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: maxTokens,
		Messages:  messages,
	}

	if req.System != "" {
		params.System = []anthropic.TextBlockParam{
			{
				Type: "text",
				Text: req.System,
			},
		}
	}

	if req.Config.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Config.Temperature)
	}
	if req.Config.TopP != nil {
		params.TopP = anthropic.Float(*req.Config.TopP)
	}
	if req.Config.TopK != nil {
		params.TopK = anthropic.Int(*req.Config.TopK)
	}
	if len(req.Config.Stop) > 0 {
		params.StopSequences = req.Config.Stop
	}

	if len(req.Tools) > 0 {
		tools, err := convertTools(req.Tools)
		if err != nil {
			return nil, err
		}
		params.Tools = tools
	}

	return &params, nil
}

// convertMessages maps the neutral history onto Messages API turns.
// Consecutive tool results collapse into a single user turn, as the API
// requires for parallel tool calls.
func convertMessages(messages []llm.Message) ([]anthropic.MessageParam, error) {
	params := make([]anthropic.MessageParam, 0, len(messages))
	var pendingResults []anthropic.ContentBlockParamUnion

	flushResults := func() {
		if len(pendingResults) > 0 {
			params = append(params, anthropic.NewUserMessage(pendingResults...))
			pendingResults = nil
		}
	}

	for _, msg := range messages {
		switch msg.Role {
		case llm.RoleUser:
			flushResults()
			var content string
			if msg.Content != nil {
				content = *msg.Content
			}
			params = append(params, anthropic.NewUserMessage(anthropic.NewTextBlock(content)))

		case llm.RoleAssistant:
			flushResults()
			blocks := make([]anthropic.ContentBlockParamUnion, 0, 1+len(msg.ToolCalls))
			if msg.Content != nil && *msg.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(*msg.Content))
			}
			for _, call := range msg.ToolCalls {
				var input any
				if call.Arguments != "" {
					if err := json.Unmarshal([]byte(call.Arguments), &input); err != nil {
						return nil, fmt.Errorf("invalid tool call arguments for %s: %w", call.Name, err)
					}
				}
				if input == nil {
					input = map[string]any{}
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(call.ID, input, call.Name))
			}
			params = append(params, anthropic.NewAssistantMessage(blocks...))

		case llm.RoleTool:
			var content string
			if msg.Content != nil {
				content = *msg.Content
			}
			pendingResults = append(pendingResults, anthropic.NewToolResultBlock(msg.ToolCallID, content, false))

		default:
			return nil, fmt.Errorf("unsupported message role: %s", msg.Role)
		}
	}
	flushResults()

	return params, nil
}

func convertTools(tools []llm.Tool) ([]anthropic.ToolUnionParam, error) {
	unions := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, tool := range tools {
		var schema struct {
			Properties map[string]any `json:"properties"`
			Required   []string       `json:"required"`
		}
		if len(tool.InputSchema) > 0 {
			if err := json.Unmarshal(tool.InputSchema, &schema); err != nil {
				return nil, fmt.Errorf("invalid input schema for tool %s: %w", tool.Name, err)
			}
		}
		if schema.Properties == nil {
			schema.Properties = map[string]any{}
		}

		param := anthropic.ToolParam{
			Name:        tool.Name,
			Description: anthropic.String(tool.Description),
			InputSchema: anthropic.ToolInputSchemaParam{
				Type:       constant.Object("object"),
				Properties: schema.Properties,
				Required:   schema.Required,
			},
		}
		unions = append(unions, anthropic.ToolUnionParam{OfTool: &param})
	}
	return unions, nil
}

func parseResponse(response *anthropic.Message) *llm.Response {
	resp := &llm.Response{
		Usage: llm.Usage{
			InputTokens:  int(response.Usage.InputTokens),
			OutputTokens: int(response.Usage.OutputTokens),
		},
	}

	var text string
	var hasText bool
	for _, block := range response.Content {
		switch block := block.AsAny().(type) {
		case anthropic.TextBlock:
			text += block.Text
			hasText = true
		case anthropic.ToolUseBlock:
			resp.ToolCalls = append(resp.ToolCalls, llm.ToolCall{
				ID:        block.ID,
				Name:      block.Name,
				Arguments: string(block.Input),
			})
		}
	}
	if hasText {
		resp.Content = &text
	}
	return resp
}
