package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/xeipuuv/gojsonschema"
)

// Oracle answers a rendered prompt with a single JSON object. It does not
// interpret the object; callers validate it against their own schema.
type Oracle interface {
	Complete(ctx context.Context, prompt PromptSpec, vars map[string]string) (json.RawMessage, error)
}

// OpenAIOracle talks to any OpenAI compatible chat completions endpoint.
type OpenAIOracle struct {
	client      *openai.Client
	model       string
	temperature float32
	timeout     time.Duration
}

// NewOpenAIOracle builds an oracle. baseURL may point at a local
// OpenAI compatible server such as Ollama; empty keeps the OpenAI default.
func NewOpenAIOracle(apiKey, baseURL, model string, temperature float32, timeout time.Duration) *OpenAIOracle {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	return &OpenAIOracle{
		client:      openai.NewClientWithConfig(cfg),
		model:       model,
		temperature: temperature,
		timeout:     timeout,
	}
}

func (o *OpenAIOracle) Complete(ctx context.Context, prompt PromptSpec, vars map[string]string) (json.RawMessage, error) {
	system, user := prompt.Render(vars)

	// go-openai drops a zero temperature from the request body.
	temp := o.temperature
	if temp <= 0 {
		temp = math.SmallestNonzeroFloat32
	}

	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       o.model,
		Temperature: temp,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrOracle, prompt.Name, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: %s: no choices", ErrOracle, prompt.Name)
	}
	return json.RawMessage(resp.Choices[0].Message.Content), nil
}

var errMalformedOutput = errors.New("malformed oracle output")

// jsonObject returns the JSON object held in raw. Models sometimes wrap the
// object in prose or code fences; in that case the text between the first
// '{' and the last '}' is tried.
func jsonObject(raw []byte) ([]byte, error) {
	s := strings.TrimSpace(string(raw))
	if strings.HasPrefix(s, "{") && json.Valid([]byte(s)) {
		return []byte(s), nil
	}
	first := strings.Index(s, "{")
	last := strings.LastIndex(s, "}")
	if first >= 0 && last > first && json.Valid([]byte(s[first:last+1])) {
		return []byte(s[first : last+1]), nil
	}
	return nil, fmt.Errorf("%w: %q", errMalformedOutput, truncate(s, 200))
}

// decodeOutput validates raw against schema and decodes it into out.
func decodeOutput(raw []byte, schema map[string]any, out any) error {
	obj, err := jsonObject(raw)
	if err != nil {
		return err
	}
	res, err := gojsonschema.Validate(gojsonschema.NewGoLoader(schema), gojsonschema.NewBytesLoader(obj))
	if err != nil {
		return fmt.Errorf("%w: %v", errMalformedOutput, err)
	}
	if !res.Valid() {
		msgs := make([]string, 0, len(res.Errors()))
		for _, e := range res.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("%w: %s", errMalformedOutput, strings.Join(msgs, "; "))
	}
	if err := json.Unmarshal(obj, out); err != nil {
		return fmt.Errorf("%w: %v", errMalformedOutput, err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
