package illustrative

import (
	"context"
	"encoding/json"
	"fmt"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
	"github.com/google/generative-ai-go/genai"
	openaisdk "github.com/openai/openai-go"
	openaioption "github.com/openai/openai-go/option"
	googleoption "google.golang.org/api/option"

	"github.com/flowcanvas/canvasengine/canvas"
	"github.com/flowcanvas/canvasengine/canvas/processor"
	"github.com/flowcanvas/canvasengine/canvas/resolver"
)

// chatModel is the narrow per-provider seam LLMProcessor depends on:
// a single Chat(ctx, systemPrompt, userPrompt) shape abstracting
// Anthropic/OpenAI/Google behind one prompts-in/text-out call, since this illustrative
// processor has no tool-calling contract to satisfy.
type chatModel interface {
	Chat(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// llmConfig is the shape an LLM node's opaque Config carries its
// provider selection in.
type llmConfig struct {
	Provider     string `json:"provider"` // "anthropic", "openai", or "google"
	Model        string `json:"model"`
	SystemPrompt string `json:"systemPrompt"`
}

// LLMProcessor sends the node's single resolved text input to a
// configured LLM provider and emits the reply as a text output. It
// exists to exercise the Node-Processor Contract against the three
// real provider SDKs the domain stack wires in (spec.md §1 Non-goals
// still puts production LLM processors out of this core's scope; this
// is the one concrete example the supplemented domain stack calls
// for, not a production integration).
type LLMProcessor struct {
	// APIKeys overrides the per-provider API key instead of using
	// processor.Input.APIKey for every provider; nil means every
	// provider uses Input.APIKey.
	APIKeys map[string]string
}

func (p LLMProcessor) Process(ctx context.Context, in processor.Input) (processor.Output, error) {
	var cfg llmConfig
	if len(in.Node.Config) > 0 {
		if err := json.Unmarshal(in.Node.Config, &cfg); err != nil {
			return processor.Output{Success: false, Error: "invalid llm node config: " + err.Error()}, nil
		}
	}

	prompt, err := in.Resolver.GetInputValue(in.Node.ID, true, resolver.InputQuery{DataType: canvas.DataTypeText})
	if err != nil {
		return processor.Output{Success: false, Error: err.Error()}, nil
	}

	var userPrompt string
	if err := json.Unmarshal(prompt.Data, &userPrompt); err != nil {
		return processor.Output{Success: false, Error: "resolved llm input is not text: " + err.Error()}, nil
	}

	apiKey := in.APIKey
	if override, ok := p.APIKeys[cfg.Provider]; ok {
		apiKey = override
	}

	model, err := p.model(cfg.Provider, cfg.Model, apiKey)
	if err != nil {
		return processor.Output{Success: false, Error: err.Error()}, nil
	}

	reply, err := model.Chat(ctx, cfg.SystemPrompt, userPrompt)
	if err != nil {
		return processor.Output{Success: false, Error: fmt.Sprintf("%s chat: %v", cfg.Provider, err)}, nil
	}

	outputHandleID := ""
	for _, h := range in.Snapshot.HandlesForNode(in.Node.ID) {
		if h.Type == canvas.HandleOutput {
			outputHandleID = h.ID
			break
		}
	}

	data, err := json.Marshal(reply)
	if err != nil {
		return processor.Output{Success: false, Error: err.Error()}, nil
	}

	return processor.Output{
		Success: true,
		NewResult: &canvas.ResultEnvelope{
			Outputs: []canvas.Output{
				{Items: []canvas.Item{{Type: canvas.DataTypeText, Data: data, OutputHandleID: outputHandleID}}},
			},
			SelectedOutputIndex: 0,
		},
	}, nil
}

func (p LLMProcessor) model(provider, modelName, apiKey string) (chatModel, error) {
	switch provider {
	case "anthropic":
		return anthropicChatModel{apiKey: apiKey, model: defaultString(modelName, "claude-sonnet-4-5-20250929")}, nil
	case "openai":
		return openaiChatModel{apiKey: apiKey, model: defaultString(modelName, "gpt-4o")}, nil
	case "google":
		return googleChatModel{apiKey: apiKey, model: defaultString(modelName, "gemini-2.5-flash")}, nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", provider)
	}
}

func defaultString(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

// anthropicChatModel sends a single-turn request through the
// Anthropic Messages API.
type anthropicChatModel struct {
	apiKey string
	model  string
}

func (m anthropicChatModel) Chat(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	client := anthropicsdk.NewClient(anthropicoption.WithAPIKey(m.apiKey))
	params := anthropicsdk.MessageNewParams{
		Model:     anthropicsdk.Model(m.model),
		Messages:  []anthropicsdk.MessageParam{anthropicsdk.NewUserMessage(anthropicsdk.NewTextBlock(userPrompt))},
		MaxTokens: 4096,
	}
	if systemPrompt != "" {
		params.System = []anthropicsdk.TextBlockParam{{Text: systemPrompt}}
	}
	resp, err := client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anthropic: %w", err)
	}
	var text string
	for _, block := range resp.Content {
		if b, ok := block.AsAny().(anthropicsdk.TextBlock); ok {
			text += b.Text
		}
	}
	return text, nil
}

// openaiChatModel sends a single-turn request through the OpenAI Chat
// Completions API.
type openaiChatModel struct {
	apiKey string
	model  string
}

func (m openaiChatModel) Chat(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	client := openaisdk.NewClient(openaioption.WithAPIKey(m.apiKey))
	messages := make([]openaisdk.ChatCompletionMessageParamUnion, 0, 2)
	if systemPrompt != "" {
		messages = append(messages, openaisdk.SystemMessage(systemPrompt))
	}
	messages = append(messages, openaisdk.UserMessage(userPrompt))

	resp, err := client.Chat.Completions.New(ctx, openaisdk.ChatCompletionNewParams{
		Model:    openaisdk.ChatModel(m.model),
		Messages: messages,
	})
	if err != nil {
		return "", fmt.Errorf("openai: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}

// googleChatModel sends a single-turn request through the Gemini API.
type googleChatModel struct {
	apiKey string
	model  string
}

func (m googleChatModel) Chat(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	client, err := genai.NewClient(ctx, googleoption.WithAPIKey(m.apiKey))
	if err != nil {
		return "", fmt.Errorf("google: new client: %w", err)
	}
	defer func() { _ = client.Close() }()

	genModel := client.GenerativeModel(m.model)
	if systemPrompt != "" {
		genModel.SystemInstruction = genai.NewUserContent(genai.Text(systemPrompt))
	}

	resp, err := genModel.GenerateContent(ctx, genai.Text(userPrompt))
	if err != nil {
		return "", fmt.Errorf("google: generate content: %w", err)
	}

	var text string
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if t, ok := part.(genai.Text); ok {
				text += string(t)
			}
		}
	}
	return text, nil
}
