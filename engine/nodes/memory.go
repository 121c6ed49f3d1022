package nodes

import (
	"context"
	"strings"

	"github.com/lyzr/flowrunner/engine"
)

// ChatMemory accumulates conversation history in the run's variable store.
// memoryType selects the eviction policy: token_buffer (approximate token
// budget) or message_buffer (message count).
func ChatMemory(ctx context.Context, nc *engine.NodeContext) (interface{}, error) {
	memoryType, _ := nc.Params["memoryType"].(string)
	if memoryType == "" {
		memoryType = "token_buffer"
	}
	memorySize := intParam(nc.Params["memorySize"])
	if memorySize <= 0 {
		memorySize = 50
	}
	variableName, _ := nc.Params["variableName"].(string)
	if variableName == "" {
		variableName = "chat_memory_" + shortID(nc.NodeID)
	}

	memory := map[string]interface{}{
		"history": []interface{}{},
		"recent":  []interface{}{},
		"context": "",
	}
	if existing, ok := nc.Memory.Get(variableName); ok {
		if m, ok := existing.(map[string]interface{}); ok {
			memory = m
		}
	}

	newMessages := extractMessages(nc.Inputs["input"])
	if len(newMessages) > 0 {
		history, _ := memory["history"].([]interface{})
		history = append(history, newMessages...)

		switch memoryType {
		case "message_buffer":
			if len(history) > memorySize {
				history = history[len(history)-memorySize:]
			}
		default:
			history = limitTokenBuffer(history, memorySize)
		}

		recent := history
		if len(recent) > 10 {
			recent = recent[len(recent)-10:]
		}

		memory = map[string]interface{}{
			"history": history,
			"recent":  recent,
			"context": formatHistory(history),
		}
		nc.Memory.Set(variableName, memory)
	}

	return memory, nil
}

// extractMessages coerces the input into {role, content} messages.
func extractMessages(input interface{}) []interface{} {
	switch v := input.(type) {
	case string:
		if v == "" {
			return nil
		}
		return []interface{}{map[string]interface{}{"role": "user", "content": v}}
	case map[string]interface{}:
		if _, hasRole := v["role"]; hasRole {
			if _, hasContent := v["content"]; hasContent {
				return []interface{}{v}
			}
		}
		if msg, ok := v["message"].(string); ok {
			role, _ := v["role"].(string)
			if role == "" {
				role = "user"
			}
			return []interface{}{map[string]interface{}{"role": role, "content": msg}}
		}
	case []interface{}:
		var messages []interface{}
		for _, item := range v {
			switch m := item.(type) {
			case map[string]interface{}:
				if _, hasRole := m["role"]; hasRole {
					messages = append(messages, m)
				}
			case string:
				messages = append(messages, map[string]interface{}{"role": "user", "content": m})
			}
		}
		return messages
	}
	return nil
}

// limitTokenBuffer trims the oldest messages once the approximate token
// count (words * 1.3 plus per-message overhead) exceeds the budget.
func limitTokenBuffer(history []interface{}, maxTokens int) []interface{} {
	total := 0
	for i := len(history) - 1; i >= 0; i-- {
		msg, ok := history[i].(map[string]interface{})
		if !ok {
			continue
		}
		content, _ := msg["content"].(string)
		words := len(strings.Fields(content))
		total += int(float64(words)*1.3) + 5
		if total > maxTokens && i > 0 {
			return history[i:]
		}
	}
	return history
}

func formatHistory(history []interface{}) string {
	var parts []string
	for _, item := range history {
		msg, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		content, _ := msg["content"].(string)
		if content == "" {
			continue
		}
		role, _ := msg["role"].(string)
		prefix := "Assistant: "
		if role == "user" || role == "" {
			prefix = "User: "
		}
		parts = append(parts, prefix+content)
	}
	return strings.Join(parts, "\n")
}

func shortID(id string) string {
	if len(id) > 4 {
		return id[:4]
	}
	return id
}
