package vision

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProvider struct {
	name  string
	text  string
	err   error
	calls int
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) Complete(ctx context.Context, prompt string, image string) (string, error) {
	s.calls++
	return s.text, s.err
}

var criteria = []string{"Login form is visible", "Email field is filled", "No error banner"}

func verdictJSON(results []bool, overall bool, confidence float64) string {
	b, _ := json.Marshal(Verdict{
		CriteriaResults: results,
		OverallSuccess:  overall,
		WhatISee:        "a login page",
		Confidence:      confidence,
		EvidenceDetails: "form at center",
	})
	return string(b)
}

func TestVerify_EmptyCriteria_AutoPassesWithoutProviderCall(t *testing.T) {
	primary := &stubProvider{name: "primary", err: errors.New("should not be called")}
	v := NewVerifier([]Provider{primary}, nil, 2, zerolog.Nop())

	result := v.Verify(context.Background(), Request{Screenshot: "https://img/x.png"}, "")

	assert.True(t, result.Verified)
	assert.NotNil(t, result.CriteriaResults)
	assert.Empty(t, result.CriteriaResults)
	assert.Equal(t, 0, primary.calls)
}

func TestVerify_PrimarySuccess(t *testing.T) {
	primary := &stubProvider{name: "primary", text: verdictJSON([]bool{true, true, true}, true, 0.92)}
	secondary := &stubProvider{name: "secondary"}
	v := NewVerifier([]Provider{primary, secondary}, nil, 2, zerolog.Nop())

	result := v.Verify(context.Background(), Request{Screenshot: "https://img/x.png", Criteria: criteria}, "")

	assert.True(t, result.Verified)
	assert.Equal(t, OutcomeVerified, result.Outcome)
	assert.Equal(t, "primary", result.Provider)
	assert.Equal(t, criteria, result.MatchedCriteria)
	assert.Empty(t, result.FailedCriteria)
	assert.InDelta(t, 0.92, result.Confidence, 1e-9)
	assert.Equal(t, 0, secondary.calls)
}

func TestVerify_FallbackToSecondary(t *testing.T) {
	primary := &stubProvider{name: "primary", err: ErrProviderUnreachable}
	secondary := &stubProvider{name: "secondary", text: verdictJSON([]bool{true, false, true}, false, 0.8)}
	tertiary := &stubProvider{name: "tertiary"}
	v := NewVerifier([]Provider{primary, secondary, tertiary}, nil, 2, zerolog.Nop())

	result := v.Verify(context.Background(), Request{Screenshot: "https://img/x.png", Criteria: criteria}, "")

	assert.False(t, result.Verified)
	assert.Equal(t, OutcomeFailed, result.Outcome)
	assert.Equal(t, "secondary", result.Provider)
	assert.Len(t, result.CriteriaResults, len(criteria))
	assert.Equal(t, []string{"Email field is filled"}, result.FailedCriteria)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 0, tertiary.calls, "tertiary is not auto-chained with the default depth")
}

func TestVerify_CardinalityMismatchIsParseFailure(t *testing.T) {
	primary := &stubProvider{name: "primary", text: verdictJSON([]bool{true, true}, true, 0.95)}
	secondary := &stubProvider{name: "secondary", text: verdictJSON([]bool{true, true, true}, true, 0.95)}
	v := NewVerifier([]Provider{primary, secondary}, nil, 2, zerolog.Nop())

	result := v.Verify(context.Background(), Request{Screenshot: "https://img/x.png", Criteria: criteria}, "")

	assert.False(t, result.Verified)
	assert.Equal(t, 0.0, result.Confidence)
	assert.Equal(t, []bool{false, false, false}, result.CriteriaResults)
	assert.Equal(t, criteria, result.FailedCriteria)
	assert.Contains(t, result.Details, "parse error")
	assert.Equal(t, 0, secondary.calls, "a parse failure is not retried")
}

func TestVerify_AllProvidersExhausted_Degrades(t *testing.T) {
	primary := &stubProvider{name: "primary", err: ErrProviderUnreachable}
	secondary := &stubProvider{name: "secondary", err: ErrProviderUnreachable}
	v := NewVerifier([]Provider{primary, secondary}, nil, 2, zerolog.Nop())

	result := v.Verify(context.Background(), Request{Screenshot: "https://img/x.png", Criteria: criteria}, "")

	assert.True(t, result.Verified)
	assert.Equal(t, OutcomeDegraded, result.Outcome)
	assert.LessOrEqual(t, result.Confidence, DegradedConfidence)
	assert.Equal(t, []bool{true, true, true}, result.CriteriaResults)
	assert.Equal(t, criteria, result.MatchedCriteria)
	assert.Contains(t, result.Details, "unavailable")
}

func TestVerify_NoProvidersConfigured_Degrades(t *testing.T) {
	v := NewVerifier(nil, nil, 2, zerolog.Nop())

	result := v.Verify(context.Background(), Request{Screenshot: "https://img/x.png", Criteria: criteria}, "")

	assert.Equal(t, OutcomeDegraded, result.Outcome)
	assert.Contains(t, result.Details, "no providers configured")
}

func TestVerify_CancelledContextDoesNotDegrade(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	primary := &stubProvider{name: "primary", err: context.Canceled}
	v := NewVerifier([]Provider{primary}, nil, 2, zerolog.Nop())

	result := v.Verify(ctx, Request{Screenshot: "https://img/x.png", Criteria: criteria}, "")

	assert.False(t, result.Verified)
	assert.Equal(t, OutcomeFailed, result.Outcome)
}

func TestVerify_MissingScreenshot(t *testing.T) {
	primary := &stubProvider{name: "primary"}
	v := NewVerifier([]Provider{primary}, nil, 2, zerolog.Nop())

	result := v.Verify(context.Background(), Request{Criteria: criteria}, "")

	assert.False(t, result.Verified)
	assert.Equal(t, 0, primary.calls)
}

func TestVerifier_Chain(t *testing.T) {
	a, b, c := &stubProvider{name: "a"}, &stubProvider{name: "b"}, &stubProvider{name: "c"}
	v := NewVerifier([]Provider{a, b, c}, nil, 2, zerolog.Nop())

	names := func(ps []Provider) []string {
		out := []string{}
		for _, p := range ps {
			out = append(out, p.Name())
		}
		return out
	}

	assert.Equal(t, []string{"a", "b"}, names(v.chain("")))
	assert.Equal(t, []string{"b", "a"}, names(v.chain("b")))
	assert.Equal(t, []string{"c", "a"}, names(v.chain("c")))
	assert.Equal(t, []string{"a", "b"}, names(v.chain("unknown")))

	wide := NewVerifier([]Provider{a, b, c}, nil, 3, zerolog.Nop())
	assert.Equal(t, []string{"a", "b", "c"}, names(wide.chain("")))
}

// TestVerify_HTTPFallback exercises the real adapters: a failing OpenAI-style endpoint
// followed by a healthy Anthropic-style endpoint.
func TestVerify_HTTPFallback(t *testing.T) {
	t.Setenv("TEST_OPENAI_KEY", "sk-openai")
	t.Setenv("TEST_ANTHROPIC_KEY", "sk-anthropic")

	var primaryHits int32
	primaryServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&primaryHits, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer primaryServer.Close()

	secondaryServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "sk-anthropic", r.Header.Get("x-api-key"))
		body, _ := io.ReadAll(r.Body)
		var req map[string]any
		require.NoError(t, json.Unmarshal(body, &req))
		assert.InDelta(t, 0.1, req["temperature"], 1e-9)

		answer := "```json\n" + verdictJSON([]bool{true, true, true}, true, 0.9) + "\n```"
		json.NewEncoder(w).Encode(map[string]any{
			"content": []map[string]string{{"type": "text", "text": answer}},
		})
	}))
	defer secondaryServer.Close()

	client := &http.Client{Timeout: 5 * time.Second}
	primary, err := NewProvider(ProviderSettings{Name: "openai", Kind: "openai", Endpoint: primaryServer.URL, APIKeyEnv: "TEST_OPENAI_KEY", Temperature: 0.1}, client)
	require.NoError(t, err)
	secondary, err := NewProvider(ProviderSettings{Name: "anthropic", Kind: "anthropic", Endpoint: secondaryServer.URL, APIKeyEnv: "TEST_ANTHROPIC_KEY", Temperature: 0.1}, client)
	require.NoError(t, err)

	v := NewVerifier([]Provider{primary, secondary}, JSONVerdictParser{}, 2, zerolog.Nop())
	result := v.Verify(context.Background(), Request{
		Screenshot: "data:image/png;base64,iVBORw0KGgo=",
		Criteria:   criteria,
		Action:     "Log in",
	}, "")

	assert.Equal(t, int32(1), atomic.LoadInt32(&primaryHits))
	assert.True(t, result.Verified)
	assert.Equal(t, "anthropic", result.Provider)
	assert.Len(t, result.CriteriaResults, len(criteria))
}

func TestProvider_MissingAPIKey(t *testing.T) {
	t.Setenv("UNSET_VISION_KEY", "")
	provider, err := NewProvider(ProviderSettings{Kind: "openai", Endpoint: "http://127.0.0.1:1", APIKeyEnv: "UNSET_VISION_KEY"}, http.DefaultClient)
	require.NoError(t, err)

	_, err = provider.Complete(context.Background(), "prompt", "https://img/x.png")

	assert.ErrorIs(t, err, ErrProviderUnreachable)
	assert.ErrorIs(t, err, ErrMissingAPIKey)
	env, missing := MissingAPIKey(provider)
	assert.True(t, missing)
	assert.Equal(t, "UNSET_VISION_KEY", env)

	t.Setenv("UNSET_VISION_KEY", "sk-test")
	_, missing = MissingAPIKey(provider)
	assert.False(t, missing)
}

func TestNewProvider_UnknownKind(t *testing.T) {
	_, err := NewProvider(ProviderSettings{Kind: "bard"}, http.DefaultClient)
	assert.Error(t, err)
}

func TestProvider_GeminiFetchesImageURL(t *testing.T) {
	t.Setenv("TEST_GEMINI_KEY", "g-key")

	imageServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte("png"))
	}))
	defer imageServer.Close()

	var gotPath string
	var gotInline map[string]any
	apiServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		assert.Equal(t, "g-key", r.Header.Get("x-goog-api-key"))
		var req struct {
			Contents []struct {
				Parts []map[string]any `json:"parts"`
			} `json:"contents"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		gotInline, _ = req.Contents[0].Parts[1]["inline_data"].(map[string]any)
		json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{
				{"content": map[string]any{"parts": []map[string]string{{"text": "{\"criteriaResults\": []}"}}}},
			},
		})
	}))
	defer apiServer.Close()

	provider, err := NewProvider(ProviderSettings{
		Kind:      "gemini",
		Endpoint:  apiServer.URL + "/v1beta/models/{model}:generateContent",
		Model:     "gemini-test",
		APIKeyEnv: "TEST_GEMINI_KEY",
	}, imageServer.Client())
	require.NoError(t, err)

	text, err := provider.Complete(context.Background(), "prompt", imageServer.URL+"/shot.png")

	require.NoError(t, err)
	assert.Equal(t, "{\"criteriaResults\": []}", text)
	assert.Equal(t, "/v1beta/models/gemini-test:generateContent", gotPath)
	assert.Equal(t, "image/png", gotInline["mime_type"])
	assert.Equal(t, "cG5n", gotInline["data"])
}
