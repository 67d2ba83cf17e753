package ai_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/myrjola/blockplan/internal/ai"
	"github.com/myrjola/blockplan/internal/testhelpers"
	"github.com/myrjola/blockplan/internal/workout"
	"github.com/openai/openai-go/v3/option"
)

const authoredBlock = `{"Title":"Engine","Goal":null,"NumberOfWeeks":2,"Progression":"custom","Days":[` +
	`{"name":"Intervals","shortCode":"I","goal":null,"exercises":[{"name":"Bike","type":"conditioning",` +
	`"category":null,"conditioningType":"intervals","notes":null,"progression":null,"deltaWeight":null,` +
	`"sets":[{"index":0,"reps":null,"weight":null,"rpe":null,"restSeconds":60,"durationSeconds":30,` +
	`"rounds":10,"distanceMeters":null,"calories":null,"effortDescriptor":"hard"}]}]}]}`

// completionServer answers chat completion requests with a single choice carrying content and refusal. The
// request body is handed to inspect.
func completionServer(t *testing.T, content, refusal string, inspect func(body map[string]any)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		inspect(body)

		message := map[string]any{"role": "assistant", "content": content, "refusal": nil}
		if refusal != "" {
			message["refusal"] = refusal
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-test",
			"object":  "chat.completion",
			"created": 1,
			"model":   ai.DefaultModel,
			"choices": []any{
				map[string]any{"index": 0, "finish_reason": "stop", "message": message},
			},
			"usage": map[string]any{"prompt_tokens": 120, "completion_tokens": 80, "total_tokens": 200},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestAuthor(t *testing.T, srv *httptest.Server) *ai.Author {
	t.Helper()
	logger := testhelpers.NewLogger(testhelpers.NewWriter(t))
	return ai.NewAuthor("test-key", "", logger, option.WithBaseURL(srv.URL+"/v1/"), option.WithMaxRetries(0))
}

func TestAuthor_AuthorBlock(t *testing.T) {
	t.Parallel()
	var request map[string]any
	srv := completionServer(t, authoredBlock, "", func(body map[string]any) { request = body })

	got, err := newTestAuthor(t, srv).AuthorBlock(t.Context(), "two weeks of bike intervals")
	if err != nil {
		t.Fatalf("AuthorBlock: %v", err)
	}
	if string(got) != authoredBlock {
		t.Errorf("AuthorBlock returned %s", got)
	}

	if request["model"] != ai.DefaultModel {
		t.Errorf("request model = %v, want %s", request["model"], ai.DefaultModel)
	}
	format, _ := request["response_format"].(map[string]any)
	schema, _ := format["json_schema"].(map[string]any)
	if format["type"] != "json_schema" || schema["strict"] != true || schema["name"] != "training_block" {
		t.Errorf("unexpected response format %v", format)
	}

	// The produced JSON must be accepted by the authored block converter.
	block, err := workout.TemplateFromAuthored(got)
	if err != nil {
		t.Fatalf("TemplateFromAuthored: %v", err)
	}
	if err = block.Validate(); err != nil {
		t.Errorf("authored block is invalid: %v", err)
	}
}

func TestAuthor_AuthorBlock_Errors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		prompt  string
		content string
		refusal string
		wantErr error
	}{
		{name: "empty prompt", prompt: "", content: authoredBlock, refusal: "", wantErr: ai.ErrEmptyPrompt},
		{name: "refusal", prompt: "hurt me", content: "", refusal: "I can't help with that.", wantErr: ai.ErrRefused},
		{name: "no content", prompt: "anything", content: "", refusal: "", wantErr: ai.ErrNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := completionServer(t, tt.content, tt.refusal, func(map[string]any) {})
			_, err := newTestAuthor(t, srv).AuthorBlock(t.Context(), tt.prompt)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("AuthorBlock() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
