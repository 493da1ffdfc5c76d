package engine

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	openai "github.com/openai/openai-go"
	openaiopt "github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/raspverry/ai-ocr/internal/config"
	"github.com/raspverry/ai-ocr/internal/errors"
	"github.com/raspverry/ai-ocr/internal/logging"
)

const visionPrompt = `Transcribe all text on this document page exactly as printed, keeping line breaks and reading order. Do not translate or correct anything. Ignore stamps and seals except for text they contain.
Reply with JSON: {"text": string, "language": ISO 639-1 code of the main language, "confidence": number between 0 and 1 for how legible the page was}.`

var visionSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"text":       map[string]any{"type": "string"},
		"language":   map[string]any{"type": "string"},
		"confidence": map[string]any{"type": "number"},
	},
	"required":             []string{"text", "language", "confidence"},
	"additionalProperties": false,
}

// VisionLLMConfig configures an OpenAI-compatible multimodal model
type VisionLLMConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	// HTTPClient overrides the transport, mainly for tests
	HTTPClient *http.Client
	MaxRetries int
}

// VisionLLM transcribes pages with a vision-capable chat model
type VisionLLM struct {
	client openai.Client
	model  string
	logger *logging.Logger
}

type visionReply struct {
	Text       string  `json:"text"`
	Language   string  `json:"language"`
	Confidence float64 `json:"confidence"`
}

// NewVisionLLM creates the engine
func NewVisionLLM(cfg VisionLLMConfig) *VisionLLM {
	var opts []openaiopt.RequestOption
	if cfg.APIKey != "" {
		opts = append(opts, openaiopt.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openaiopt.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, openaiopt.WithHTTPClient(cfg.HTTPClient))
	}
	opts = append(opts, openaiopt.WithMaxRetries(cfg.MaxRetries))
	return &VisionLLM{
		client: openai.NewClient(opts...),
		model:  cfg.Model,
		logger: logging.NewLogger("VisionLLM"),
	}
}

// NewVisionLLMFromConfig builds the engine from the OPENAI_* settings
func NewVisionLLMFromConfig(cfg *config.Config) (Engine, error) {
	if cfg.OpenAIAPIKey == "" && cfg.OpenAIBaseURL == "" {
		return nil, errors.NewInvalidConfigError("OPENAI_API_KEY", "vision_llm needs OPENAI_API_KEY or OPENAI_BASE_URL")
	}
	return NewVisionLLM(VisionLLMConfig{
		APIKey:     cfg.OpenAIAPIKey,
		BaseURL:    cfg.OpenAIBaseURL,
		Model:      cfg.OpenAIModel,
		MaxRetries: 2,
	}), nil
}

// Name implements Engine
func (v *VisionLLM) Name() string { return NameVisionLLM }

// Recognize implements Engine
func (v *VisionLLM) Recognize(ctx context.Context, image []byte, languageHint string) (*Result, error) {
	prompt := visionPrompt
	if tag := bcp47(languageHint); tag != "" {
		prompt += fmt.Sprintf("\nThe page is expected to be in language %q.", tag)
	}
	dataURL := "data:image/png;base64," + base64.StdEncoding.EncodeToString(image)

	req := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(v.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			{
				OfUser: &openai.ChatCompletionUserMessageParam{
					Content: openai.ChatCompletionUserMessageParamContentUnion{
						OfArrayOfContentParts: []openai.ChatCompletionContentPartUnionParam{
							{OfText: &openai.ChatCompletionContentPartTextParam{Text: prompt}},
							{OfImageURL: &openai.ChatCompletionContentPartImageParam{
								ImageURL: openai.ChatCompletionContentPartImageImageURLParam{
									URL:    dataURL,
									Detail: "high",
								},
							}},
						},
					},
				},
			},
		},
		Temperature: openai.Float(0),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &shared.ResponseFormatJSONSchemaParam{
				JSONSchema: shared.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   "page_transcription",
					Schema: visionSchema,
					Strict: openai.Bool(true),
				},
			},
		},
	}

	completion, err := v.client.Chat.Completions.New(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("vision model request failed: %w", err)
	}
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("vision model returned no choices")
	}

	reply, err := parseVisionReply(completion.Choices[0].Message.Content)
	if err != nil {
		return nil, err
	}
	lang := reply.Language
	if lang == "" {
		lang = languageHint
	}
	result := newResult(NameVisionLLM, reply.Text, lang, reply.Confidence, nil)
	v.logger.Debug("Vision model recognition complete",
		"model", completion.Model,
		"language", result.Language,
		"confidence", result.Confidence,
		"textLength", len(result.Text))
	return result, nil
}

// parseVisionReply reads the JSON reply, tolerating a surrounding code fence
func parseVisionReply(content string) (*visionReply, error) {
	s := strings.TrimSpace(content)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	var reply visionReply
	if err := json.Unmarshal([]byte(strings.TrimSpace(s)), &reply); err != nil {
		return nil, fmt.Errorf("failed to parse vision model reply: %w", err)
	}
	return &reply, nil
}
