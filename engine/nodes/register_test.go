package nodes

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lyzr/flowrunner/engine"
)

func TestRegisterBuiltinsOnly(t *testing.T) {
	e := engine.New(&engine.Options{})
	Register(e, nil)

	types := e.Registry().Types()
	for _, typeTag := range []string{
		"input", "output", "condition", "merge", "time",
		"text_processor", "json_handler", "file_transformer", "chat_memory",
	} {
		assert.Contains(t, types, typeTag)
	}
	assert.NotContains(t, types, "openai")
	assert.NotContains(t, types, "http_request")
}

func TestRegisterIntegrations(t *testing.T) {
	e := engine.New(&engine.Options{})
	Register(e, &RegisterOpts{
		OpenAI:     &fakeChat{},
		HTTPClient: &http.Client{},
	})

	_, kind, ok := e.Registry().Lookup("openai")
	assert.True(t, ok)
	assert.Equal(t, engine.KindAI, kind)

	_, kind, ok = e.Registry().Lookup("http_request")
	assert.True(t, ok)
	assert.Equal(t, engine.KindIntegration, kind)
}
