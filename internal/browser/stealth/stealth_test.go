package stealth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestApply(t *testing.T) {
	t.Run("full persona", func(t *testing.T) {
		core, observedLogs := observer.New(zap.DebugLevel)
		tasks := Apply(DefaultPersona, zap.New(core))

		// user agent, evasions, headers, timezone, locale
		assert.Len(t, tasks, 5)

		logs := observedLogs.All()
		require.Len(t, logs, 1)
		assert.Equal(t, "Applying browser stealth persona", logs[0].Message)
		assert.Equal(t, DefaultPersona.UserAgent, logs[0].ContextMap()["userAgent"])
	})

	t.Run("timezone and locale are optional", func(t *testing.T) {
		p := DefaultPersona
		p.Timezone = ""
		p.Locale = ""
		assert.Len(t, Apply(p, zap.NewNop()), 3)
	})
}

func TestPersona_AcceptLanguage(t *testing.T) {
	assert.Equal(t, "en-US,en;q=0.9", DefaultPersona.AcceptLanguage())
	assert.Equal(t, "de-DE,de;q=0.9,en;q=0.8", Persona{Languages: []string{"de-DE", "de", "en"}}.AcceptLanguage())
	assert.Equal(t, "en-US,en;q=0.9", Persona{}.AcceptLanguage())
}

func TestEvasionsJS_MasksWebdriver(t *testing.T) {
	assert.Contains(t, EvasionsJS, "'webdriver'")
	assert.Contains(t, EvasionsJS, "chrome.runtime")
}
