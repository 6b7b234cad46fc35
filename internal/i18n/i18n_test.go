package i18n

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadFallsBackToEnglish(t *testing.T) {
	bundle, err := Load("de")
	require.NoError(t, err)
	require.Equal(t, "en", bundle.Lang)
	require.NotEmpty(t, bundle.Messages.Welcome)
}

func TestLoadRussian(t *testing.T) {
	bundle, err := Load(" RU ")
	require.NoError(t, err)
	require.Equal(t, "ru", bundle.Lang)
	require.Equal(t, "Состояние опроса", bundle.Messages.StatusTitle)
}

func TestLoadAllHasCompleteBundles(t *testing.T) {
	all, err := LoadAll()
	require.NoError(t, err)
	require.Contains(t, all, "en")
	require.Contains(t, all, "ru")
	for lang, msg := range all {
		require.NotEmpty(t, msg.Help, lang)
		require.NotEmpty(t, msg.StatusOffset, lang)
		require.NotEmpty(t, msg.TranscriptionFailed, lang)
	}
}
