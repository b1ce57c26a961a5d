package recorder

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeComponent(t *testing.T) {
	cases := map[string]string{
		"Alice":         "Alice",
		"a/b":           "a_b",
		`C:\evil`:       "C__evil",
		"what?*":        "what__",
		"tab\there":     "tab_here",
		"  padded  ":    "padded",
		"trailing...":   "trailing",
		"":              "_",
		"..":            "_",
		"<script>|pipe": "_script__pipe",
		"日本語の名前":        "日本語の名前",
		"quote\"d":      "quote_d",
	}
	for input, expected := range cases {
		assert.Equal(t, expected, SanitizeComponent(input), "input %q", input)
	}
}

func TestExpandTemplate(t *testing.T) {
	dir := t.TempDir()
	vars := TemplateVars{
		UserName:  "Alice",
		Host:      "voice.example.org",
		StartTime: time.Date(2023, time.December, 31, 23, 59, 1, 0, time.UTC),
	}

	cases := map[string]string{
		"%user":                         "Alice",
		"%date/%time - %user":           filepath.Join("2023-12-31", "23-59-01 - Alice"),
		"%year%month%day-%hour%min%sec": "20231231-235901",
		"%host/%user.wav":               filepath.Join("voice.example.org", "Alice.wav"),
		"100% %unknown":                 "100% %unknown",
		"a//b":                          filepath.Join("a", "b"),
		"x/../y":                        "y",
	}
	for template, expected := range cases {
		path, err := ExpandTemplate(filepath.Join(dir, template), vars)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, expected), path, "template %q", template)
	}
}

func TestExpandTemplateSanitizesValues(t *testing.T) {
	dir := t.TempDir()
	vars := TemplateVars{UserName: "../../etc/passwd"}

	path, err := ExpandTemplate(filepath.Join(dir, "%user"), vars)
	require.NoError(t, err)
	assert.Equal(t, dir, filepath.Dir(path))
	assert.Equal(t, ".._.._etc_passwd", filepath.Base(path))
}

func TestExpandTemplateIsRelativeToWorkingDirectory(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)

	path, err := ExpandTemplate("Recordings/%user", TemplateVars{UserName: "Bob"})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(wd, "Recordings", "Bob"), path)
}

func TestExpandTemplateHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}

	path, err := ExpandTemplate("~/%user", TemplateVars{UserName: "Bob"})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "Bob"), path)
}

func TestExpandTemplateIsDeterministic(t *testing.T) {
	vars := TemplateVars{UserName: "Carol", StartTime: time.Now()}
	first, err := ExpandTemplate("out/%date/%user", vars)
	require.NoError(t, err)
	second, err := ExpandTemplate("out/%date/%user", vars)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
