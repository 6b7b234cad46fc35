package handlers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"path/filepath"
	"strings"
)

const (
	ffmpegSampleRate = "16000"
	ffmpegChannels   = "1"
	ffmpegFormat     = "mp3"

	defaultVoiceName = "voice.mp3"
	defaultVoiceMime = "audio/mpeg"
)

// transcribableTypes are the audio types the transcription API accepts as is.
var transcribableTypes = map[string]struct{}{
	"audio/mpeg":      {},
	"audio/mp3":       {},
	"audio/mp4":       {},
	"audio/mp4a-latm": {},
	"audio/x-m4a":     {},
	"audio/m4a":       {},
	"audio/wav":       {},
	"audio/x-wav":     {},
	"audio/webm":      {},
}

var transcribableExts = []string{".mp3", ".mpeg", ".mp4", ".m4a", ".wav", ".webm"}

type audioFile struct {
	data     []byte
	mimeType string
	name     string
}

func (a audioFile) reader() io.Reader {
	return bytes.NewReader(a.data)
}

func ffmpegCommand(ctx context.Context) *exec.Cmd {
	return exec.CommandContext(ctx, "ffmpeg",
		"-nostdin",
		"-y",
		"-i", "pipe:0",
		"-ac", ffmpegChannels,
		"-ar", ffmpegSampleRate,
		"-f", ffmpegFormat,
		"pipe:1",
	)
}

// normalizeVoiceAudio transcodes Telegram voice notes (OGG/Opus) to mono MP3 unless the
// payload is already in a format the transcription API accepts.
func normalizeVoiceAudio(ctx context.Context, content []byte, mimeType, filename string) (audioFile, error) {
	if len(content) == 0 {
		return audioFile{}, errors.New("empty audio content")
	}
	if isTranscribableAudio(mimeType, filename) {
		return audioFile{data: content, mimeType: mimeType, name: filename}, nil
	}

	cmd := ffmpegCommand(ctx)
	var stdout, stderr bytes.Buffer
	cmd.Stdin = bytes.NewReader(content)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return audioFile{}, fmt.Errorf("ffmpeg failed: %w: %s", err, msg)
		}
		return audioFile{}, fmt.Errorf("ffmpeg failed: %w", err)
	}
	if stdout.Len() == 0 {
		return audioFile{}, errors.New("empty transcoded audio")
	}
	return audioFile{data: stdout.Bytes(), mimeType: defaultVoiceMime, name: mp3Filename(filename)}, nil
}

func mp3Filename(filename string) string {
	base := filepath.Base(strings.TrimSpace(filename))
	if base == "" || base == "." || base == "/" {
		return defaultVoiceName
	}
	if strings.EqualFold(filepath.Ext(base), ".mp3") {
		return base
	}
	return strings.TrimSuffix(base, filepath.Ext(base)) + ".mp3"
}

func isTranscribableAudio(mimeType, filename string) bool {
	if _, ok := transcribableTypes[strings.ToLower(strings.TrimSpace(mimeType))]; ok {
		return true
	}
	ext := strings.ToLower(filepath.Ext(strings.TrimSpace(filename)))
	for _, allowed := range transcribableExts {
		if ext == allowed {
			return true
		}
	}
	return false
}
