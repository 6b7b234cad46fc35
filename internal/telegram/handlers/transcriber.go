package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/packages/param"
)

// OpenAITranscriber turns voice notes into text with the OpenAI transcription API.
type OpenAITranscriber struct {
	client  openai.Client
	model   string
	timeout time.Duration
	log     *slog.Logger
}

// NewOpenAITranscriber initializes the transcription client. Extra request options
// (base URL, retries) are passed through to the OpenAI client.
func NewOpenAITranscriber(apiKey, model string, timeout time.Duration, log *slog.Logger, opts ...option.RequestOption) *OpenAITranscriber {
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &OpenAITranscriber{
		client:  openai.NewClient(opts...),
		model:   model,
		timeout: timeout,
		log:     log,
	}
}

// Transcribe uploads the audio and returns the recognized text.
func (t *OpenAITranscriber) Transcribe(ctx context.Context, reader io.Reader, filename, contentType, language string) (string, error) {
	if reader == nil {
		return "", errors.New("empty audio reader")
	}
	if filename == "" {
		filename = defaultVoiceName
	}
	if contentType == "" {
		contentType = defaultVoiceMime
	}
	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	params := openai.AudioTranscriptionNewParams{
		File:  openai.File(reader, filename, contentType),
		Model: openai.AudioModel(t.model),
	}
	if language != "" {
		params.Language = param.NewOpt(language)
	}
	resp, err := t.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		t.log.Error("OpenAI transcription failed", "error", err, "model", t.model)
		return "", err
	}
	if resp == nil || resp.Text == "" {
		return "", errors.New("empty transcription result")
	}
	return resp.Text, nil
}
