package llm

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailtriage/pkg/resilience"
)

type fakeBackend struct {
	resp     string
	err      error
	prompts  []string
	jsonMode []bool
}

func (f *fakeBackend) Name() string { return "fake" }

func (f *fakeBackend) Complete(ctx context.Context, prompt string, jsonMode bool) (string, error) {
	f.prompts = append(f.prompts, prompt)
	f.jsonMode = append(f.jsonMode, jsonMode)
	return f.resp, f.err
}

func TestParseClassification(t *testing.T) {
	tests := []struct {
		name    string
		resp    string
		want    string
		wantErr bool
	}{
		{name: "plain json", resp: `{"category":"Inquiry","priority":"High","sentiment":"Positive"}`, want: "Inquiry"},
		{name: "fenced json", resp: "```json\n{\"category\":\"Complaint\",\"priority\":\"Low\",\"sentiment\":\"Negative\"}\n```", want: "Complaint"},
		{name: "lower case labels", resp: `{"category":"opt-out","priority":"low","sentiment":"neutral"}`, want: "opt-out"},
		{name: "extra keys ignored", resp: `{"category":"General","priority":"Medium","sentiment":"Neutral","reason":"x"}`, want: "General"},
		{name: "missing key", resp: `{"category":"General","priority":"Medium"}`, wantErr: true},
		{name: "not json", resp: "Category: Inquiry", wantErr: true},
		{name: "unknown category", resp: `{"category":"Sales","priority":"High","sentiment":"Positive"}`, wantErr: true},
		{name: "non string value", resp: `{"category":"General","priority":1,"sentiment":"Neutral"}`, wantErr: true},
		{name: "array", resp: `[]`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseClassification(tt.resp)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrMalformedResponse)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Category)
		})
	}
}

func TestClientClassifyEmail(t *testing.T) {
	backend := &fakeBackend{resp: `{"category":"Feedback","priority":"Medium","sentiment":"Positive"}`}
	c := NewClient(backend, time.Second)

	got, err := c.ClassifyEmail(context.Background(), "Great app", "Love it")
	require.NoError(t, err)
	assert.Equal(t, "Feedback", got.Category)
	require.Len(t, backend.prompts, 1)
	assert.True(t, backend.jsonMode[0])
	assert.Contains(t, backend.prompts[0], "Subject: Great app")
	assert.Contains(t, backend.prompts[0], "Body: Love it")
	assert.Contains(t, backend.prompts[0], "Return ONLY valid JSON")
}

func TestClientGenerateAckReply(t *testing.T) {
	backend := &fakeBackend{resp: "Thanks for writing.\nCustomer Support Team"}
	c := NewClient(backend, time.Second)

	got, err := c.GenerateAckReply(context.Background(), "Hello", "Question")
	require.NoError(t, err)
	assert.Equal(t, "Thanks for writing.\nCustomer Support Team", got)
	assert.False(t, backend.jsonMode[0])
	assert.Contains(t, backend.prompts[0], "End with: Customer Support Team")
}

func TestClientEmptyResponse(t *testing.T) {
	c := NewClient(&fakeBackend{}, time.Second)
	_, err := c.GenerateAckReply(context.Background(), "s", "b")
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestClientBreakerOpensOnRepeatedFailures(t *testing.T) {
	backend := &fakeBackend{err: errors.New("503")}
	c := NewClient(backend, time.Second)

	for i := 0; i < 6; i++ {
		_, err := c.Complete(context.Background(), "p")
		require.Error(t, err)
	}
	_, err := c.Complete(context.Background(), "p")
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Len(t, backend.prompts, 6)
}

func TestTruncateBody(t *testing.T) {
	assert.Equal(t, "abc", truncateBody("abc", 5))
	assert.Equal(t, "ab...", truncateBody("abcdef", 2))
	assert.Equal(t, "hé...", truncateBody("héllo", 2))
}

func TestOpenAIBackendAgainstCompatibleServer(t *testing.T) {
	var requests int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, DefaultModel, req["model"])
		format, _ := req["response_format"].(map[string]any)
		assert.Equal(t, "json_object", format["type"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"{\"category\":\"Inquiry\",\"priority\":\"Low\",\"sentiment\":\"Neutral\"}"},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	backend := NewOpenAIBackend(OpenAIConfig{APIKey: "test-key", BaseURL: srv.URL, Timeout: 5 * time.Second})
	c := NewClient(backend, 5*time.Second)

	got, err := c.ClassifyEmail(context.Background(), "Pricing", "How much?")
	require.NoError(t, err)
	assert.Equal(t, "Inquiry", got.Category)
	assert.True(t, strings.EqualFold(got.Priority, "low"))
	assert.EqualValues(t, 1, atomic.LoadInt32(&requests))
}
