package nodes

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/lyzr/flowrunner/engine"
	"github.com/lyzr/flowrunner/engine/resolver"
)

// ChatClient is the slice of the OpenAI client the AI handler needs.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAI returns the handler for openai nodes. The prompt template supports
// the literal {{input}} and {{context}} placeholders in addition to the
// node references the assembler already resolved.
func OpenAI(client ChatClient) engine.HandlerFunc {
	return func(ctx context.Context, nc *engine.NodeContext) (interface{}, error) {
		model, _ := nc.Params["model"].(string)
		if model == "" {
			model = openai.GPT3Dot5Turbo
		}
		maxTokens := intParam(nc.Params["maxTokens"])
		if maxTokens <= 0 {
			maxTokens = 1000
		}
		temperature := floatParam(nc.Params["temperature"], 0.7)
		systemPrompt, _ := nc.Params["systemPrompt"].(string)
		prompt, _ := nc.Params["promptTemplate"].(string)
		if prompt == "" {
			prompt, _ = nc.Params["prompt"].(string)
		}

		input := resolver.Stringify(nc.Inputs["input"])
		if prompt == "" {
			prompt = input
		} else {
			prompt = strings.ReplaceAll(prompt, "{{input}}", input)
			if contextValue, ok := nc.Inputs["context"]; ok {
				prompt = strings.ReplaceAll(prompt, "{{context}}", resolver.Stringify(contextValue))
			}
		}
		if prompt == "" {
			return nil, engine.Errorf(engine.KindMissingInput, "node %s: no prompt and no input", nc.NodeID)
		}

		var messages []openai.ChatCompletionMessage
		if systemPrompt != "" {
			messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: systemPrompt})
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: prompt})

		resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:       model,
			Messages:    messages,
			MaxTokens:   maxTokens,
			Temperature: float32(temperature),
		})
		if err != nil {
			return nil, engine.WrapError(engine.KindHandlerError, err, "node %s: chat completion failed", nc.NodeID)
		}
		if len(resp.Choices) == 0 {
			return nil, engine.Errorf(engine.KindHandlerError, "node %s: completion returned no choices", nc.NodeID)
		}

		content := resp.Choices[0].Message.Content
		return map[string]interface{}{
			"output":   content,
			"response": content,
			"model":    resp.Model,
			"usage": map[string]interface{}{
				"prompt_tokens":     resp.Usage.PromptTokens,
				"completion_tokens": resp.Usage.CompletionTokens,
				"total_tokens":      resp.Usage.TotalTokens,
			},
			"finish_reason": string(resp.Choices[0].FinishReason),
		}, nil
	}
}

func floatParam(v interface{}, fallback float64) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case int:
		return float64(t)
	case string:
		var n float64
		if _, err := fmt.Sscanf(t, "%g", &n); err == nil {
			return n
		}
	}
	return fallback
}
