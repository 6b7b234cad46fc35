package i18n

import (
	"embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Messages contains localized strings for the bot.
type Messages struct {
	Welcome             string `yaml:"welcome"`
	Help                string `yaml:"help"`
	StatusTitle         string `yaml:"status_title"`
	StatusActive        string `yaml:"status_active"`
	StatusInactive      string `yaml:"status_inactive"`
	StatusWebhook       string `yaml:"status_webhook"`
	StatusOffset        string `yaml:"status_offset"`
	StatusLastUpdate    string `yaml:"status_last_update"`
	StatusNever         string `yaml:"status_never"`
	EchoPrefix          string `yaml:"echo_prefix"`
	UnknownCommand      string `yaml:"unknown_command"`
	Unsupported         string `yaml:"unsupported"`
	InvalidChat         string `yaml:"invalid_chat"`
	CallbackAck         string `yaml:"callback_ack"`
	VoiceDisabled       string `yaml:"voice_disabled"`
	TranscriptionFailed string `yaml:"transcription_failed"`
	TranscriptionPrefix string `yaml:"transcription_prefix"`
}

// Bundle combines language code and messages.
type Bundle struct {
	// Lang is the selected language.
	Lang string
	// Messages are localized strings.
	Messages Messages
}

//go:embed *.yaml
var files embed.FS

// Load loads i18n messages for the requested language, falling back to English.
func Load(lang string) (Bundle, error) {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if lang == "" {
		lang = "en"
	}

	messages, err := loadMessages(lang)
	if err != nil && lang != "en" {
		messages, err = loadMessages("en")
		if err != nil {
			return Bundle{}, err
		}
		lang = "en"
	} else if err != nil {
		return Bundle{}, err
	}

	return Bundle{Lang: lang, Messages: messages}, nil
}

// LoadAll loads every embedded language keyed by language code.
func LoadAll() (map[string]Messages, error) {
	entries, err := files.ReadDir(".")
	if err != nil {
		return nil, err
	}
	out := make(map[string]Messages, len(entries))
	for _, entry := range entries {
		lang, ok := strings.CutSuffix(entry.Name(), ".yaml")
		if !ok {
			continue
		}
		msg, err := loadMessages(lang)
		if err != nil {
			return nil, err
		}
		out[lang] = msg
	}
	return out, nil
}

func loadMessages(lang string) (Messages, error) {
	data, err := files.ReadFile(fmt.Sprintf("%s.yaml", lang))
	if err != nil {
		return Messages{}, err
	}
	var msg Messages
	if err := yaml.Unmarshal(data, &msg); err != nil {
		return Messages{}, err
	}
	return msg, nil
}
