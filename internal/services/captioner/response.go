package captioner

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Kind identifies where in the service payload a caption was found.
type Kind string

const (
	KindKeyedByTask  Kind = "keyed-by-task"
	KindCaptionField Kind = "generic-caption-field"
	KindBareResult   Kind = "bare-result"
	KindEmpty        Kind = "empty"
)

// Response is the resolved outcome of one caption request.
type Response struct {
	Kind    Kind
	Text    string
	ModelID string
	Task    string
}

type captionPayload struct {
	ModelID string          `json:"model_id"`
	Task    string          `json:"task"`
	Result  json.RawMessage `json:"result"`
	Caption *string         `json:"caption"`
}

// ParseResponse decodes a /caption payload for task. The caption is taken
// from result[task], then result["caption"], then result as a bare string,
// then a top-level "caption" field. When none match the response is empty.
func ParseResponse(body []byte, task string) (Response, error) {
	var payload captionPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return Response{}, fmt.Errorf("decode caption response: %w", err)
	}
	resp := Response{Kind: KindEmpty, ModelID: payload.ModelID, Task: payload.Task}

	result := bytes.TrimSpace(payload.Result)
	switch {
	case len(result) > 0 && result[0] == '{':
		var keyed map[string]json.RawMessage
		if err := json.Unmarshal(result, &keyed); err != nil {
			return Response{}, fmt.Errorf("decode caption result: %w", err)
		}
		if text, ok := rawString(keyed[task]); ok {
			resp.Kind, resp.Text = KindKeyedByTask, text
			return resp, nil
		}
		if text, ok := rawString(keyed["caption"]); ok {
			resp.Kind, resp.Text = KindCaptionField, text
			return resp, nil
		}
	case len(result) > 0 && result[0] == '"':
		if text, ok := rawString(result); ok {
			resp.Kind, resp.Text = KindBareResult, text
			return resp, nil
		}
	}

	if payload.Caption != nil {
		resp.Kind, resp.Text = KindCaptionField, *payload.Caption
	}
	return resp, nil
}

// rawString decodes raw as a JSON string. null counts as absent.
func rawString(raw json.RawMessage) (string, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return "", false
	}
	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		return "", false
	}
	return text, true
}
