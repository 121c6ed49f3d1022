package nodes

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/lyzr/flowrunner/engine"
	"github.com/lyzr/flowrunner/engine/resolver"
)

// HTTPRequest returns the handler for http_request nodes. Params: url,
// method (default GET), headers (object), body (string or object; objects
// are sent as JSON). JSON responses are decoded into the output.
func HTTPRequest(client *http.Client) engine.HandlerFunc {
	if client == nil {
		client = http.DefaultClient
	}
	return func(ctx context.Context, nc *engine.NodeContext) (interface{}, error) {
		url, _ := nc.Params["url"].(string)
		if url == "" {
			url = resolver.Stringify(nc.Inputs["input"])
		}
		if url == "" {
			return nil, engine.Errorf(engine.KindMissingInput, "node %s: no url configured", nc.NodeID)
		}

		method, _ := nc.Params["method"].(string)
		if method == "" {
			method = http.MethodGet
		}
		method = strings.ToUpper(method)

		var bodyReader io.Reader
		contentType := ""
		switch body := nc.Params["body"].(type) {
		case string:
			if body != "" {
				bodyReader = strings.NewReader(body)
			}
		case map[string]interface{}, []interface{}:
			data, err := json.Marshal(body)
			if err != nil {
				return nil, engine.WrapError(engine.KindHandlerError, err, "node %s: body cannot be encoded", nc.NodeID)
			}
			bodyReader = bytes.NewReader(data)
			contentType = "application/json"
		}

		req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
		if err != nil {
			return nil, engine.WrapError(engine.KindHandlerError, err, "node %s: invalid request", nc.NodeID)
		}
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		if headers, ok := nc.Params["headers"].(map[string]interface{}); ok {
			for name, value := range headers {
				req.Header.Set(name, resolver.Stringify(value))
			}
		}

		resp, err := client.Do(req)
		if err != nil {
			return nil, engine.WrapError(engine.KindHandlerError, err, "node %s: request failed", nc.NodeID)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, engine.WrapError(engine.KindHandlerError, err, "node %s: reading response failed", nc.NodeID)
		}

		var decoded interface{} = string(data)
		if strings.Contains(resp.Header.Get("Content-Type"), "application/json") {
			var parsed interface{}
			if err := json.Unmarshal(data, &parsed); err == nil {
				decoded = parsed
			}
		}

		if resp.StatusCode >= 400 {
			return nil, engine.Errorf(engine.KindHandlerError, "node %s: upstream returned %d", nc.NodeID, resp.StatusCode)
		}

		return map[string]interface{}{
			"output":      decoded,
			"status_code": resp.StatusCode,
			"headers":     flattenHeaders(resp.Header),
		}, nil
	}
}

func flattenHeaders(h http.Header) map[string]interface{} {
	out := make(map[string]interface{}, len(h))
	for name := range h {
		out[name] = h.Get(name)
	}
	return out
}
