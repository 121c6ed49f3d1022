package nodes

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"mime"
	"path/filepath"
	"strings"

	"github.com/lyzr/flowrunner/engine"
)

// FileTransformer converts file payloads between encodings and extracts
// their metadata. A payload is either {"content": ..., "metadata": {...}}
// from an upstream file node or a bare string.
func FileTransformer(ctx context.Context, nc *engine.NodeContext) (interface{}, error) {
	operation, _ := nc.Params["operation"].(string)
	if operation == "" {
		operation = "convert"
	}
	outputFormat, _ := nc.Params["outputFormat"].(string)
	if outputFormat == "" {
		outputFormat = "text"
	}

	content, metadata := filePayload(nc.Inputs["input"])
	if content == "" {
		return nil, engine.Errorf(engine.KindMissingInput, "node %s: no file content in input", nc.NodeID)
	}

	switch operation {
	case "convert":
		return convertFile(content, metadata, outputFormat)
	case "extract":
		filename, _ := metadata["filename"].(string)
		fileType, _ := metadata["type"].(string)
		if fileType == "" || fileType == "unknown" {
			fileType = mime.TypeByExtension(filepath.Ext(filename))
		}
		return map[string]interface{}{
			"metadata": map[string]interface{}{
				"filename":  filename,
				"extension": filepath.Ext(filename),
				"basename":  strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename)),
				"type":      fileType,
				"size":      len(content),
			},
		}, nil
	default:
		return nil, engine.Errorf(engine.KindInvalidWorkflow, "node %s: unknown file operation %q", nc.NodeID, operation)
	}
}

func filePayload(input interface{}) (string, map[string]interface{}) {
	switch v := input.(type) {
	case map[string]interface{}:
		content, _ := v["content"].(string)
		metadata, _ := v["metadata"].(map[string]interface{})
		if metadata == nil {
			metadata = map[string]interface{}{}
		}
		return content, metadata
	case string:
		return v, map[string]interface{}{
			"filename": "unknown.txt",
			"type":     "text/plain",
			"size":     len(v),
		}
	}
	return "", map[string]interface{}{}
}

func convertFile(content string, metadata map[string]interface{}, format string) (interface{}, error) {
	filename, _ := metadata["filename"].(string)
	if filename == "" {
		filename = "unknown.txt"
	}

	switch format {
	case "base64":
		encoded := base64.StdEncoding.EncodeToString([]byte(content))
		return map[string]interface{}{
			"content": encoded,
			"metadata": map[string]interface{}{
				"filename":      filename,
				"type":          "text/plain;base64",
				"size":          len(encoded),
				"original_size": len(content),
				"encoding":      "base64",
			},
		}, nil

	case "text":
		return map[string]interface{}{
			"content": content,
			"metadata": map[string]interface{}{
				"filename": filename,
				"type":     "text/plain",
				"size":     len(content),
			},
		}, nil

	case "json":
		var data interface{}
		trimmed := strings.TrimSpace(content)
		if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
			if err := json.Unmarshal([]byte(trimmed), &data); err != nil {
				data = map[string]interface{}{"text": content}
			}
		} else {
			data = map[string]interface{}{"text": content}
		}
		pretty, err := json.MarshalIndent(data, "", "  ")
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{
			"content": string(pretty),
			"data":    data,
			"metadata": map[string]interface{}{
				"filename": strings.TrimSuffix(filename, filepath.Ext(filename)) + ".json",
				"type":     "application/json",
				"size":     len(pretty),
			},
		}, nil

	default:
		return nil, engine.Errorf(engine.KindInvalidWorkflow, "unknown file output format %q", format)
	}
}
