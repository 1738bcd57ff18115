package chat

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/bububa/ljson"
	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolgate/config"
	"github.com/effective-security/toolgate/gateway"
	"github.com/effective-security/toolgate/pkg/httpclient"
	"github.com/effective-security/toolgate/schema"
	"github.com/effective-security/toolgate/tools"
	"github.com/effective-security/toolgate/utils"
	"github.com/effective-security/x/values"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/toolgate", "chat")

const ToolName = "chat"

const (
	DefaultMaxMessageLen = 2000
	DefaultMaxTokens     = 1000
	DefaultTemperature   = 0.7

	// maxResponseBytes bounds how much of the upstream reply is read.
	maxResponseBytes = 1 << 20
)

// Turn represents the tool input: one message with an optional
// conversation context string. The length limit is configurable, so
// it is enforced in Run rather than in the struct tags.
type Turn struct {
	Message string `json:"message" yaml:"message" validate:"required" jsonschema:"title=Message,description=The message to send to the assistant."`
	Context string `json:"context,omitempty" yaml:"context,omitempty" jsonschema:"title=Context,description=Optional conversation context."`
}

// Reply is the payload returned on success.
type Reply struct {
	Response string           `json:"response"`
	Usage    map[string]int64 `json:"usage,omitempty"`
}

// Tool assembles a prompt, calls the conversational upstream, and shapes
// the generated text into the uniform contract.
type Tool struct {
	name        string
	description string
	funcParams  any

	apiKey        string
	baseURL       string
	model         string
	maxTokens     int64
	temperature   float64
	maxMessageLen int
	client        *httpclient.Client
}

var _ tools.Tool[Turn, Reply] = (*Tool)(nil)

// New returns the chat tool.
func New(cfg *config.Chat, client *httpclient.Client) (*Tool, error) {
	if cfg == nil || cfg.APIKey == "" {
		return nil, errors.New("chat API key is not set")
	}
	if cfg.BaseURL == "" {
		return nil, errors.New("chat base URL is not set")
	}
	sc, err := schema.New(reflect.TypeOf(Turn{}))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create schema")
	}
	// nil means unset; an explicit 0 is a valid generation parameter
	temperature := float64(DefaultTemperature)
	if cfg.Temperature != nil {
		temperature = *cfg.Temperature
	}
	t := &Tool{
		name:          ToolName,
		description:   "Sends a message to the AI assistant and returns its reply.",
		funcParams:    sc.Parameters,
		apiKey:        cfg.APIKey,
		baseURL:       cfg.BaseURL,
		model:         cfg.Model,
		maxTokens:     values.NumbersCoalesce(cfg.MaxTokens, DefaultMaxTokens),
		temperature:   temperature,
		maxMessageLen: values.NumbersCoalesce(cfg.MaxMessageLen, DefaultMaxMessageLen),
		client:        client,
	}
	return t, nil
}

func (t *Tool) Name() string {
	return t.name
}

func (t *Tool) Description() string {
	return t.description
}

func (t *Tool) Parameters() any {
	return t.funcParams
}

type generateRequest struct {
	Model       string  `json:"model,omitempty"`
	Prompt      string  `json:"prompt"`
	MaxTokens   int64   `json:"max_tokens,omitempty"`
	Temperature float64 `json:"temperature"`
}

// generateResponse is the upstream reply schema. The schema is not
// contractually stable; required fields are checked explicitly.
type generateResponse struct {
	Text   string `json:"text"`
	Tokens int64  `json:"tokens"`
}

// Run sends one turn to the upstream model.
func (t *Tool) Run(ctx context.Context, req *Turn) (*Reply, error) {
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return nil, gateway.NewError(gateway.KindValidation, "message cannot be empty")
	}
	if len(message) > t.maxMessageLen {
		return nil, gateway.Errorf(gateway.KindValidation, "message too long (max %d chars)", t.maxMessageLen)
	}

	prompt := assemblePrompt(message, req.Context)

	payload := &generateRequest{
		Model:       t.model,
		Prompt:      prompt,
		MaxTokens:   t.maxTokens,
		Temperature: t.temperature,
	}
	bs := utils.ToJSON(payload)

	hreq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL, bytes.NewReader([]byte(bs)))
	if err != nil {
		return nil, errors.Wrap(err, "create request")
	}
	hreq.Header.Set("Content-Type", "application/json")
	hreq.Header.Set("Authorization", "Bearer "+t.apiKey)

	resp, err := t.client.Do(ctx, hreq)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		logger.ContextKV(ctx, xlog.WARNING,
			"status", "upstream_error",
			"code", resp.StatusCode,
		)
		return nil, gateway.Errorf(gateway.KindUpstream, "chat upstream returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, gateway.NewError(gateway.KindUpstream, "failed to read chat upstream response")
	}

	var out generateResponse
	if err := ljson.Unmarshal(utils.CleanJSON(body), &out); err != nil {
		return nil, gateway.NewError(gateway.KindUpstream, "chat upstream returned a malformed response")
	}
	if out.Text == "" {
		return nil, gateway.NewError(gateway.KindUpstream, "chat upstream response is missing generated text")
	}

	reply := &Reply{
		Response: out.Text,
	}
	if out.Tokens > 0 {
		reply.Usage = map[string]int64{"tokens": out.Tokens}
	}
	return reply, nil
}

// Invoke implements tools.ITool.
func (t *Tool) Invoke(ctx context.Context, input string) *gateway.Result {
	var req Turn
	if err := tools.DecodeInput(input, &req); err != nil {
		return gateway.ResultFromError(err)
	}
	reply, err := t.Run(ctx, &req)
	if err != nil {
		return gateway.ResultFromError(err)
	}
	return gateway.Success(reply)
}

func assemblePrompt(message, context string) string {
	message = utils.SanitizeText(message)
	context = utils.SanitizeText(context)
	if context == "" {
		return message
	}
	return fmt.Sprintf("Context: %s\n\nUser: %s", context, message)
}
