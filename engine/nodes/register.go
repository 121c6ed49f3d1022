package nodes

import (
	"net/http"

	openai "github.com/sashabaranov/go-openai"

	"github.com/lyzr/flowrunner/engine"
	"github.com/lyzr/flowrunner/engine/condition"
)

// RegisterOpts carries the external collaborators the integration handlers
// need. Nil fields leave the corresponding handlers unregistered, which is
// how tests run the engine without network dependencies.
type RegisterOpts struct {
	OpenAI     ChatClient
	HTTPClient *http.Client
}

// Register wires every built-in handler into the engine, plus the AI and
// HTTP integrations when their collaborators are provided.
func Register(e *engine.Engine, opts *RegisterOpts) {
	if opts == nil {
		opts = &RegisterOpts{}
	}

	evaluator := condition.NewEvaluator()

	e.Register("input", engine.KindBuiltin, Input)
	e.Register("output", engine.KindBuiltin, Output)
	e.Register("condition", engine.KindBuiltin, Condition(evaluator))
	e.Register("merge", engine.KindBuiltin, Merge)
	e.Register("time", engine.KindBuiltin, Time)
	e.Register("text_processor", engine.KindBuiltin, TextProcessor)
	e.Register("json_handler", engine.KindBuiltin, JSONHandler)
	e.Register("file_transformer", engine.KindBuiltin, FileTransformer)
	e.Register("chat_memory", engine.KindBuiltin, ChatMemory)

	if opts.OpenAI != nil {
		e.Register("openai", engine.KindAI, OpenAI(opts.OpenAI))
	}
	if opts.HTTPClient != nil {
		e.Register("http_request", engine.KindIntegration, HTTPRequest(opts.HTTPClient))
	}
}

// NewOpenAIClient builds the default OpenAI collaborator from an API key.
func NewOpenAIClient(apiKey string) ChatClient {
	return openai.NewClient(apiKey)
}
