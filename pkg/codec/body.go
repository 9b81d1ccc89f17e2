// Package codec provides encoding and decoding functionality for different data formats.
package codec

import (
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/vmihailenco/msgpack/v5"
	"gopkg.in/yaml.v3"
)

// Content types recognised by ParseBody.
const (
	ContentTypeJSON     = "application/json"
	ContentTypeForm     = "application/x-www-form-urlencoded"
	ContentTypeMsgpack  = "application/msgpack"
	ContentTypeYAML     = "application/yaml"
	ContentTypeText     = "text/plain; charset=utf-8"
	ContentTypeProtobuf = "application/x-protobuf"
	ContentTypeOctet    = "application/octet-stream"
)

// ParseBody reads and decodes the request body according to its Content-Type.
//
// GET and HEAD bodies are never read and yield nil. JSON, msgpack and YAML
// bodies that are empty or fail to decode yield an empty object rather than an
// error. Form bodies become a flat string map (last value wins). Anything else
// is returned as text, unless the text is itself a JSON object or array, in
// which case it is decoded.
//
// The only error returned is a failure to read the body, e.g. an
// *http.MaxBytesError when the body exceeds a configured limit.
func ParseBody(r *http.Request) (any, error) {
	if r.Method == http.MethodGet || r.Method == http.MethodHead {
		return nil, nil
	}

	var data []byte
	if r.Body != nil && r.Body != http.NoBody {
		var err error
		data, err = io.ReadAll(r.Body)
		if err != nil {
			return nil, err
		}
		defer r.Body.Close()
	}

	ct := strings.ToLower(r.Header.Get("Content-Type"))
	switch {
	case strings.Contains(ct, ContentTypeJSON):
		var v any
		if err := json.Unmarshal(data, &v); err != nil {
			return map[string]any{}, nil
		}
		return v, nil

	case strings.Contains(ct, ContentTypeForm):
		return parseForm(string(data)), nil

	case isMsgpack(ct):
		var v any
		if err := msgpack.Unmarshal(data, &v); err != nil || v == nil {
			return map[string]any{}, nil
		}
		return v, nil

	case isYAML(ct):
		var v any
		if err := yaml.Unmarshal(data, &v); err != nil || v == nil {
			return map[string]any{}, nil
		}
		return v, nil
	}

	return parseText(string(data)), nil
}

// parseText returns text unchanged unless it looks like a JSON document.
func parseText(text string) any {
	trimmed := strings.TrimSpace(text)
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		if gjson.Valid(trimmed) {
			var v any
			if err := json.Unmarshal([]byte(trimmed), &v); err == nil {
				return v
			}
		}
	}
	return text
}

func parseForm(raw string) map[string]string {
	// ParseQuery returns whatever it could parse alongside an error.
	values, _ := url.ParseQuery(raw)
	out := make(map[string]string, len(values))
	for k, vs := range values {
		if len(vs) > 0 {
			out[k] = vs[len(vs)-1]
		}
	}
	return out
}

func isMsgpack(ct string) bool {
	return strings.Contains(ct, "application/msgpack") ||
		strings.Contains(ct, "application/x-msgpack") ||
		strings.Contains(ct, "application/vnd.msgpack")
}

func isYAML(ct string) bool {
	return strings.Contains(ct, "application/yaml") ||
		strings.Contains(ct, "application/x-yaml") ||
		strings.Contains(ct, "text/yaml")
}
