package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// maxSpeechBytes caps the audio body read from /audio/speech.
const maxSpeechBytes = 25 << 20

// OpenAI is a client for OpenAI-compatible APIs.
type OpenAI struct {
	client *openai.Client
}

// NewOpenAI creates a client. A nil httpClient uses the library default;
// request deadlines come from the caller's context.
func NewOpenAI(baseURL, apiKey string, httpClient *http.Client) *OpenAI {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	if httpClient != nil {
		cfg.HTTPClient = httpClient
	}
	return &OpenAI{client: openai.NewClientWithConfig(cfg)}
}

// Chat creates a chat completion and returns the first choice.
func (c *OpenAI) Chat(ctx context.Context, model string, messages []Message) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:    model,
		Messages: make([]openai.ChatCompletionMessage, 0, len(messages)),
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", translateError("chat completion", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// Image generates one 1024x1024 image and returns its URL, or a data URL
// when the backend answers with base64.
func (c *OpenAI) Image(ctx context.Context, model, prompt string) (string, error) {
	resp, err := c.client.CreateImage(ctx, openai.ImageRequest{
		Model:  model,
		Prompt: prompt,
		N:      1,
		Size:   openai.CreateImageSize1024x1024,
	})
	if err != nil {
		return "", translateError("image generation", err)
	}
	if len(resp.Data) == 0 {
		return "", errors.New("image generation returned no data")
	}
	if resp.Data[0].URL != "" {
		return resp.Data[0].URL, nil
	}
	return "data:image/png;base64," + resp.Data[0].B64JSON, nil
}

// Speech synthesizes text and returns the mp3 body.
func (c *OpenAI) Speech(ctx context.Context, model, text string) ([]byte, error) {
	resp, err := c.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(model),
		Input:          text,
		Voice:          openai.VoiceAlloy,
		ResponseFormat: openai.SpeechResponseFormatMp3,
	})
	if err != nil {
		return nil, translateError("speech", err)
	}
	defer resp.Close()

	audio, err := io.ReadAll(io.LimitReader(resp, maxSpeechBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading speech body: %w", err)
	}
	if len(audio) > maxSpeechBytes {
		return nil, fmt.Errorf("speech body exceeds %d bytes", maxSpeechBytes)
	}
	return audio, nil
}

// translateError maps the library's upstream errors to *APIError so callers
// do not depend on the client package.
func translateError(op string, err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &APIError{Status: apiErr.HTTPStatusCode, Message: apiErr.Message}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		msg := http.StatusText(reqErr.HTTPStatusCode)
		if reqErr.Err != nil {
			msg = reqErr.Err.Error()
		}
		return &APIError{Status: reqErr.HTTPStatusCode, Message: msg}
	}
	return fmt.Errorf("%s: %w", op, err)
}
