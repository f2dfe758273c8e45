package vision

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/benmeehan/action-verifier/pkg/httputils"
)

func openaiAdapter() providerAdapter {
	return providerAdapter{
		defaultEndpoint: "https://api.openai.com/v1/chat/completions",
		defaultModel:    "gpt-4o",
		defaultKeyEnv:   "OPENAI_API_KEY",
		buildRequest:    buildChatCompletionRequest,
		parseResponse:   parseChatCompletionResponse,
		prepare: func(req *http.Request, p *httpProvider, apiKey string) {
			req.Header.Set("authorization", "Bearer "+apiKey)
		},
	}
}

func anthropicAdapter() providerAdapter {
	return providerAdapter{
		defaultEndpoint: "https://api.anthropic.com/v1/messages",
		defaultModel:    "claude-3-5-sonnet-20240620",
		defaultKeyEnv:   "ANTHROPIC_API_KEY",
		buildRequest:    buildAnthropicRequest,
		parseResponse:   parseAnthropicResponse,
		prepare: func(req *http.Request, p *httpProvider, apiKey string) {
			req.Header.Set("x-api-key", apiKey)
			req.Header.Set("anthropic-version", "2023-06-01")
		},
	}
}

func geminiAdapter() providerAdapter {
	return providerAdapter{
		defaultEndpoint: "https://generativelanguage.googleapis.com/v1beta/models/{model}:generateContent",
		defaultModel:    "gemini-1.5-flash",
		defaultKeyEnv:   "GEMINI_API_KEY",
		buildRequest:    buildGeminiRequest,
		parseResponse:   parseGeminiResponse,
		prepare: func(req *http.Request, p *httpProvider, apiKey string) {
			req.Header.Set("x-goog-api-key", apiKey)
		},
	}
}

// OpenAI-compatible chat completion

func buildChatCompletionRequest(ctx context.Context, p *httpProvider, prompt, image string) ([]byte, error) {
	request := map[string]interface{}{
		"model":       p.settings.Model,
		"temperature": p.settings.Temperature,
		"max_tokens":  p.settings.MaxTokens,
		"messages": []map[string]interface{}{
			{
				"role": "user",
				"content": []map[string]interface{}{
					{"type": "text", "text": prompt},
					{"type": "image_url", "image_url": map[string]string{"url": image}},
				},
			},
		},
	}
	return json.Marshal(request)
}

func parseChatCompletionResponse(body []byte) (string, error) {
	var response struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}

	if err := json.Unmarshal(body, &response); err != nil {
		return "", err
	}

	if len(response.Choices) == 0 {
		return "", errors.New("response has no choices")
	}
	return strings.TrimSpace(response.Choices[0].Message.Content), nil
}

// Anthropic messages

func buildAnthropicRequest(ctx context.Context, p *httpProvider, prompt, image string) ([]byte, error) {
	var source map[string]string
	if httputils.IsDataURI(image) {
		mediaType, payload, err := httputils.SplitDataURI(image)
		if err != nil {
			return nil, err
		}
		source = map[string]string{"type": "base64", "media_type": valueOrDefault(mediaType, "image/png"), "data": payload}
	} else {
		source = map[string]string{"type": "url", "url": image}
	}

	request := map[string]interface{}{
		"model":       p.settings.Model,
		"max_tokens":  p.settings.MaxTokens,
		"temperature": p.settings.Temperature,
		"messages": []map[string]interface{}{
			{
				"role": "user",
				"content": []map[string]interface{}{
					{"type": "image", "source": source},
					{"type": "text", "text": prompt},
				},
			},
		},
	}
	return json.Marshal(request)
}

func parseAnthropicResponse(body []byte) (string, error) {
	var response struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	}

	if err := json.Unmarshal(body, &response); err != nil {
		return "", err
	}

	for _, block := range response.Content {
		if block.Text != "" {
			return strings.TrimSpace(block.Text), nil
		}
	}
	return "", errors.New("response has no text content")
}

// Gemini generateContent. The API only accepts inline image data, so URLs are fetched first.

func buildGeminiRequest(ctx context.Context, p *httpProvider, prompt, image string) ([]byte, error) {
	var mediaType, payload string
	if httputils.IsDataURI(image) {
		var err error
		mediaType, payload, err = httputils.SplitDataURI(image)
		if err != nil {
			return nil, err
		}
	} else {
		if _, err := url.ParseRequestURI(image); err != nil {
			return nil, err
		}
		data, contentType, err := httputils.FetchBytes(ctx, p.httpClient, image)
		if err != nil {
			return nil, err
		}
		mediaType = contentType
		payload = base64.StdEncoding.EncodeToString(data)
	}

	request := map[string]interface{}{
		"contents": []map[string]interface{}{
			{
				"role": "user",
				"parts": []map[string]interface{}{
					{"text": prompt},
					{"inline_data": map[string]string{"mime_type": valueOrDefault(mediaType, "image/png"), "data": payload}},
				},
			},
		},
		"generationConfig": map[string]interface{}{
			"temperature":     p.settings.Temperature,
			"maxOutputTokens": p.settings.MaxTokens,
		},
	}
	return json.Marshal(request)
}

func parseGeminiResponse(body []byte) (string, error) {
	var response struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}

	if err := json.Unmarshal(body, &response); err != nil {
		return "", err
	}

	if len(response.Candidates) == 0 {
		return "", errors.New("response has no candidates")
	}
	var builder strings.Builder
	for _, part := range response.Candidates[0].Content.Parts {
		builder.WriteString(part.Text)
	}
	return strings.TrimSpace(builder.String()), nil
}
