package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/OFFIS-RIT/kiwi/characters/pkg/ai"

	"golang.org/x/sync/semaphore"
	"google.golang.org/genai"
)

const (
	opEmbed          = "embedding"
	defaultTaskType  = "SEMANTIC_SIMILARITY"
	jsonResponseMIME = "application/json"
)

// GeminiClient implements ai.Client on the Gemini API.
type GeminiClient struct {
	chatModel      string
	embeddingModel string
	embedDim       int
	taskType       string

	timeout time.Duration
	reqLock *semaphore.Weighted

	metricsLock sync.Mutex
	metrics     ai.ModelMetrics

	Client *genai.Client
}

type NewGeminiClientParams struct {
	APIKey         string
	ChatModel      string
	EmbeddingModel string
	Dimensions     int
	TaskType       string

	Timeout               time.Duration
	MaxConcurrentRequests int64
}

func NewGeminiClient(ctx context.Context, params NewGeminiClientParams) (*GeminiClient, error) {
	if strings.TrimSpace(params.APIKey) == "" {
		return nil, errors.New("gemini api key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  strings.TrimSpace(params.APIKey),
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	maxReq := params.MaxConcurrentRequests
	if maxReq <= 0 {
		maxReq = 4
	}
	timeout := params.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	taskType := params.TaskType
	if taskType == "" {
		taskType = defaultTaskType
	}

	return &GeminiClient{
		chatModel:      params.ChatModel,
		embeddingModel: params.EmbeddingModel,
		embedDim:       params.Dimensions,
		taskType:       taskType,
		timeout:        timeout,
		reqLock:        semaphore.NewWeighted(maxReq),
		Client:         client,
	}, nil
}

// safetySettings turns every adjustable filter off. Hard blocks are still
// reported through the response.
func safetySettings() []*genai.SafetySetting {
	categories := []genai.HarmCategory{
		genai.HarmCategoryHarassment,
		genai.HarmCategoryHateSpeech,
		genai.HarmCategorySexuallyExplicit,
		genai.HarmCategoryDangerousContent,
		genai.HarmCategoryCivicIntegrity,
	}
	out := make([]*genai.SafetySetting, 0, len(categories))
	for _, c := range categories {
		out = append(out, &genai.SafetySetting{
			Category:  c,
			Threshold: genai.HarmBlockThresholdOff,
		})
	}
	return out
}

// GenerateCompletionWithFormat asks for a JSON answer matching the schema of
// out. The schema is sent as part of the system instruction.
func (c *GeminiClient) GenerateCompletionWithFormat(
	ctx context.Context,
	name string,
	description string,
	prompt string,
	out any,
	opts ...ai.GenerateOption,
) error {
	schema, err := json.Marshal(ai.GenerateSchema(out))
	if err != nil {
		return ai.NewError(name, ai.KindFatal, err)
	}

	options := ai.ApplyOptions(ai.GenerateOptions{
		Model:       c.chatModel,
		Temperature: 0.1,
	}, opts...)

	system := append([]string{}, options.SystemPrompts...)
	system = append(system, fmt.Sprintf("Respond with JSON for %q (%s) matching this JSON schema:\n%s", name, description, schema))

	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(strings.Join(system, "\n\n"), genai.RoleUser),
		Temperature:       genai.Ptr(float32(options.Temperature)),
		ResponseMIMEType:  jsonResponseMIME,
		SafetySettings:    safetySettings(),
	}

	rCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.reqLock.Acquire(rCtx, 1); err != nil {
		return classify(name, err)
	}
	defer c.reqLock.Release(1)

	start := time.Now()
	resp, err := c.Client.Models.GenerateContent(
		rCtx,
		options.Model,
		[]*genai.Content{{Parts: []*genai.Part{{Text: prompt}}, Role: genai.RoleUser}},
		cfg,
	)
	if err != nil {
		return classify(name, err)
	}

	m := ai.ModelMetrics{DurationMs: time.Since(start).Milliseconds()}
	if resp.UsageMetadata != nil {
		m.InputTokens = int(resp.UsageMetadata.PromptTokenCount)
		m.OutputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
		m.TotalTokens = int(resp.UsageMetadata.TotalTokenCount)
	}
	c.modifyMetrics(m)

	if reason, blocked := blockReason(resp); blocked {
		return ai.NewError(name, ai.KindBlocked, fmt.Errorf("gemini blocked the request: %s", reason))
	}

	content := strings.TrimSpace(resp.Text())
	if content == "" {
		return ai.NewError(name, ai.KindMalformed, errors.New("empty response from model"))
	}
	return ai.DecodeResponse(name, content, out)
}

// blockReason reports a prompt level block or a candidate stopped by a
// safety related finish reason.
func blockReason(resp *genai.GenerateContentResponse) (string, bool) {
	if resp == nil {
		return "", false
	}
	if pf := resp.PromptFeedback; pf != nil && pf.BlockReason != "" && pf.BlockReason != genai.BlockedReasonUnspecified {
		return string(pf.BlockReason), true
	}
	if len(resp.Candidates) == 0 {
		return "", false
	}
	switch fr := resp.Candidates[0].FinishReason; fr {
	case genai.FinishReasonSafety,
		genai.FinishReasonProhibitedContent,
		genai.FinishReasonBlocklist,
		genai.FinishReasonSPII:
		return string(fr), true
	}
	return "", false
}

// GenerateEmbedding embeds input through EmbedContent.
func (c *GeminiClient) GenerateEmbedding(ctx context.Context, input []byte) ([]float32, error) {
	if len(strings.TrimSpace(string(input))) == 0 {
		return make([]float32, c.embedDim), nil
	}

	cfg := &genai.EmbedContentConfig{TaskType: c.taskType}
	if c.embedDim > 0 {
		cfg.OutputDimensionality = genai.Ptr(int32(c.embedDim))
	}

	rCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.reqLock.Acquire(rCtx, 1); err != nil {
		return nil, classify(opEmbed, err)
	}
	defer c.reqLock.Release(1)

	start := time.Now()
	resp, err := c.Client.Models.EmbedContent(
		rCtx,
		c.embeddingModel,
		[]*genai.Content{{Parts: []*genai.Part{{Text: string(input)}}}},
		cfg,
	)
	if err != nil {
		return nil, classify(opEmbed, err)
	}
	c.modifyMetrics(ai.ModelMetrics{DurationMs: time.Since(start).Milliseconds()})

	if resp == nil || len(resp.Embeddings) == 0 || resp.Embeddings[0] == nil {
		return nil, ai.NewError(opEmbed, ai.KindMalformed, errors.New("no embedding values returned"))
	}
	values := resp.Embeddings[0].Values
	out := make([]float32, len(values))
	copy(out, values)
	return out, nil
}

func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return ai.NewError(op, ai.KindForStatus(apiErr.Code), err)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return ai.NewError(op, ai.KindForStatus(apiErrPtr.Code), err)
	}
	return ai.Classify(op, err)
}

func (c *GeminiClient) ResetMetrics() {
	c.metricsLock.Lock()
	c.metrics = ai.ModelMetrics{}
	c.metricsLock.Unlock()
}

func (c *GeminiClient) GetMetrics() ai.ModelMetrics {
	c.metricsLock.Lock()
	defer c.metricsLock.Unlock()
	return c.metrics
}

func (c *GeminiClient) modifyMetrics(m ai.ModelMetrics) {
	c.metricsLock.Lock()
	defer c.metricsLock.Unlock()

	c.metrics.InputTokens += m.InputTokens
	c.metrics.OutputTokens += m.OutputTokens
	c.metrics.TotalTokens += m.TotalTokens
	c.metrics.DurationMs += m.DurationMs
	if c.metrics.DurationMs > 0 {
		tps := (float64(c.metrics.TotalTokens) * 1000.0) / float64(c.metrics.DurationMs)
		c.metrics.TokenPerSecond = float32(math.Round(tps*100) / 100)
	}
}
