package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/formsurge/internal/config"
	"github.com/xkilldash9x/formsurge/internal/formschema"
)

const sampleFormURL = "https://docs.google.com/forms/d/e/1FAIpQLSdExample/viewform"

func sampleSchema() *formschema.Schema {
	return &formschema.Schema{
		SubmissionTarget:  "https://docs.google.com/forms/d/e/1FAIpQLSdExample/formResponse",
		AntiSpamToken:     "-123456789",
		PageSequenceToken: "0",
		Questions: []formschema.Question{
			{FieldID: "entry.111", Kind: formschema.KindSingleChoice, Options: []string{"Yes", "No"}},
			{FieldID: "entry.222", Kind: formschema.KindShortText, Options: []string{}},
		},
		FormURL:     sampleFormURL,
		ExtractedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestKeyForURL(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want string
	}{
		{"published form", sampleFormURL, "1FAIpQLSdExample"},
		{"prefilled link", "https://docs.google.com/forms/d/e/abcDEF/viewform?usp=pp_url", "abcDEF"},
		{"trailing slash", "https://docs.google.com/forms/d/e/xyz/", "xyz"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KeyForURL(tt.url))
		})
	}

	t.Run("hashed fallback", func(t *testing.T) {
		key := KeyForURL("https://forms.gle/AbC123")
		assert.Len(t, key, 10)
		assert.Regexp(t, "^[0-9a-f]{10}$", key)
		assert.Equal(t, key, KeyForURL("https://forms.gle/AbC123"), "key must be stable")
		assert.NotEqual(t, key, KeyForURL("https://forms.gle/Other"))
	})
}

func TestFileStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	fs, err := NewFileStore(t.TempDir(), zap.NewNop())
	require.NoError(t, err)

	_, err = fs.Load(ctx, sampleFormURL)
	assert.ErrorIs(t, err, ErrNotFound)

	want := sampleSchema()
	require.NoError(t, fs.Save(ctx, want))
	assert.FileExists(t, fs.Path(sampleFormURL))
	assert.Equal(t, "google_form_1FAIpQLSdExample.json", filepath.Base(fs.Path(sampleFormURL)))

	got, err := fs.Load(ctx, sampleFormURL)
	require.NoError(t, err)
	assert.Equal(t, want.SubmissionTarget, got.SubmissionTarget)
	assert.Equal(t, want.AntiSpamToken, got.AntiSpamToken)
	assert.Equal(t, want.PageSequenceToken, got.PageSequenceToken)
	assert.Equal(t, want.Questions, got.Questions)
	assert.True(t, want.ExtractedAt.Equal(got.ExtractedAt))

	entries, err := os.ReadDir(filepath.Dir(fs.Path(sampleFormURL)))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestFileStore_LegacyDocument(t *testing.T) {
	dir := t.TempDir()
	fs, err := NewFileStore(dir, nil)
	require.NoError(t, err)

	legacy := `{
  "action_url": "https://docs.google.com/forms/d/e/1FAIpQLSdExample/formResponse",
  "fbzx": "42",
  "questions": [
    {"entry_id": "entry.1", "type": "radio", "options": ["a", "b"]},
    {"entry_id": "entry.2", "type": "paragraph", "options": null},
    {"entry_id": "entry.3", "type": "scale", "options": ["1", "2", "3"]}
  ]
}`
	require.NoError(t, os.WriteFile(fs.Path(sampleFormURL), []byte(legacy), 0o644))

	got, err := fs.Load(context.Background(), sampleFormURL)
	require.NoError(t, err)
	require.Len(t, got.Questions, 3)
	assert.Equal(t, formschema.KindSingleChoice, got.Questions[0].Kind)
	assert.Equal(t, formschema.KindLongText, got.Questions[1].Kind)
	assert.Equal(t, []string{}, got.Questions[1].Options)
	assert.Equal(t, formschema.KindLinearScale, got.Questions[2].Kind)
	assert.Empty(t, got.PageSequenceToken)
	assert.Equal(t, sampleFormURL, got.FormURL)
}

func TestFileStore_CorruptDocumentIsAMiss(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	fs, err := NewFileStore(t.TempDir(), zap.New(core))
	require.NoError(t, err)

	cases := map[string]string{
		"not json":      "{broken",
		"missing token": `{"action_url": "https://example.com/formResponse", "fbzx": "", "questions": []}`,
		"relative url":  `{"action_url": "formResponse", "fbzx": "1", "questions": []}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, os.WriteFile(fs.Path(sampleFormURL), []byte(body), 0o644))
			_, err := fs.Load(context.Background(), sampleFormURL)
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
	assert.Equal(t, len(cases), logs.FilterMessage("Ignoring unusable cached schema.").Len())
}

func TestFileStore_ExpandsHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	homedir.DisableCache = true
	defer func() { homedir.DisableCache = false }()

	fs, err := NewFileStore("~/forms-cache", nil)
	require.NoError(t, err)
	assert.DirExists(t, filepath.Join(home, "forms-cache"))
	assert.Equal(t, filepath.Join(home, "forms-cache"), filepath.Dir(fs.Path(sampleFormURL)))
}

func TestFileStore_SaveNil(t *testing.T) {
	fs, err := NewFileStore(t.TempDir(), nil)
	require.NoError(t, err)
	assert.Error(t, fs.Save(context.Background(), nil))
}

func TestOpen(t *testing.T) {
	t.Run("file backend", func(t *testing.T) {
		s, closeFn, err := Open(context.Background(), config.StoreConfig{Backend: "file", CacheDir: t.TempDir()}, nil)
		require.NoError(t, err)
		defer closeFn()
		assert.IsType(t, &FileStore{}, s)
	})

	t.Run("unknown backend", func(t *testing.T) {
		_, closeFn, err := Open(context.Background(), config.StoreConfig{Backend: "redis"}, nil)
		assert.ErrorContains(t, err, "unsupported store backend")
		assert.NotNil(t, closeFn)
	})

	t.Run("bad database url", func(t *testing.T) {
		_, _, err := Open(context.Background(), config.StoreConfig{Backend: "postgres", DatabaseURL: "::not a dsn::"}, nil)
		assert.Error(t, err)
	})
}
