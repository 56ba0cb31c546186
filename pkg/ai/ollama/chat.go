package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/OFFIS-RIT/kiwi/characters/pkg/ai"

	"github.com/ollama/ollama/api"
	"github.com/pkoukk/tiktoken-go"
)

const (
	defaultContext   = 4096
	contextHeadroom  = 1024
	tokenEncodingKey = "o200k_base"
)

var (
	encOnce sync.Once
	enc     *tiktoken.Tiktoken
	encErr  error
)

// estimateContext returns the num_ctx needed for prompt plus room for the
// answer, or 0 when the server default is enough.
func estimateContext(prompt string) (int, error) {
	encOnce.Do(func() {
		enc, encErr = tiktoken.GetEncoding(tokenEncodingKey)
	})
	if encErr != nil {
		return 0, encErr
	}
	tokens := len(enc.Encode(prompt, nil, nil)) + contextHeadroom
	if tokens <= defaultContext {
		return 0, nil
	}
	return tokens, nil
}

// GenerateCompletionWithFormat enforces a JSON schema and unmarshals into out.
func (c *OllamaClient) GenerateCompletionWithFormat(
	ctx context.Context,
	name string,
	description string,
	prompt string,
	out any,
	opts ...ai.GenerateOption,
) error {
	if out == nil {
		return ai.NewError(name, ai.KindFatal, errors.New("out must be a non-nil pointer"))
	}
	rv := reflect.ValueOf(out)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return ai.NewError(name, ai.KindFatal, errors.New("out must be a non-nil pointer"))
	}

	formatBytes, err := json.Marshal(ai.GenerateSchema(out))
	if err != nil {
		return ai.NewError(name, ai.KindFatal, err)
	}

	options := ai.ApplyOptions(ai.GenerateOptions{
		Model:       c.chatModel,
		Temperature: 0.1,
	}, opts...)

	msgs := make([]api.Message, 0, len(options.SystemPrompts)+1)
	for _, sp := range options.SystemPrompts {
		msgs = append(msgs, api.Message{Role: "system", Content: sp})
	}
	msgs = append(msgs, api.Message{Role: "user", Content: prompt})

	stream := false
	req := &api.ChatRequest{
		Model:    options.Model,
		Messages: msgs,
		Stream:   &stream,
		Format:   json.RawMessage(formatBytes),
		Options:  map[string]any{"temperature": options.Temperature},
	}

	if options.Thinking != "" {
		req.Think = &api.ThinkValue{
			Value: options.Thinking,
		}
	}

	numCtx, err := estimateContext(strings.Join(options.SystemPrompts, "\n") + prompt)
	if err != nil {
		return ai.NewError(name, ai.KindFatal, err)
	}
	if numCtx > 0 {
		req.Options["num_ctx"] = numCtx
	}

	rCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.reqLock.Acquire(rCtx, 1); err != nil {
		return classify(name, err)
	}
	defer c.reqLock.Release(1)

	var final api.ChatResponse
	if err := c.Client.Chat(rCtx, req, func(cr api.ChatResponse) error {
		final.Message.Content += cr.Message.Content
		if cr.Done {
			final.Done = true
			final.DoneReason = cr.DoneReason
			final.Metrics = cr.Metrics
		}
		return nil
	}); err != nil {
		return classify(name, err)
	}

	c.modifyMetrics(ai.ModelMetrics{
		InputTokens:  final.Metrics.PromptEvalCount,
		OutputTokens: final.Metrics.EvalCount,
		TotalTokens:  final.Metrics.PromptEvalCount + final.Metrics.EvalCount,
		DurationMs:   final.Metrics.TotalDuration.Milliseconds(),
	})

	if strings.TrimSpace(final.Message.Content) == "" {
		return ai.NewError(name, ai.KindMalformed, errors.New("empty response from model (done_reason: "+final.DoneReason+")"))
	}
	return ai.DecodeResponse(name, final.Message.Content, out)
}

func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var statusErr api.StatusError
	if errors.As(err, &statusErr) {
		return ai.NewError(op, ai.KindForStatus(statusErr.StatusCode), err)
	}
	return ai.Classify(op, err)
}
