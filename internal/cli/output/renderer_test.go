package output

import (
	"bytes"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

func TestRenderer_EffectiveMode(t *testing.T) {
	tests := []struct {
		mode  Mode
		isTTY bool
		want  Mode
	}{
		{ModeAuto, true, ModeText},
		{ModeAuto, false, ModeMarkdown},
		{"", false, ModeMarkdown},
		{ModeText, false, ModeText},
		{ModeMarkdown, true, ModeMarkdown},
		{ModeJSON, true, ModeJSON},
	}
	for _, tt := range tests {
		t.Run(string(tt.mode)+"_"+map[bool]string{true: "tty", false: "pipe"}[tt.isTTY], func(t *testing.T) {
			r := NewRendererWithTTY(&bytes.Buffer{}, &bytes.Buffer{}, tt.isTTY, tt.mode)
			assert.Equal(t, tt.want, r.EffectiveMode())
			assert.Equal(t, tt.isTTY, r.IsTTY())
		})
	}
}

func TestRenderer_Markdown(t *testing.T) {
	var out, errOut bytes.Buffer
	r := NewRendererWithTTY(&out, &errOut, false, ModeAuto)

	r.Header(1, "Conversion")
	r.KeyValue("Files", "3")
	r.StatusLine("partial", "models/orders.sql")
	r.Success("done")
	r.Muted("state saved")
	r.Error("boom")

	got := out.String()
	assert.Contains(t, got, "# Conversion\n")
	assert.Contains(t, got, "- **Files**: 3\n")
	assert.Contains(t, got, "- **partial** models/orders.sql\n")
	assert.Contains(t, got, "done\n")
	assert.Contains(t, got, "_state saved_\n")
	assert.Equal(t, "**Error:** boom\n", errOut.String())
	assert.False(t, ansiPattern.MatchString(got))
}

func TestRenderer_TextWithoutTerminalHasNoANSI(t *testing.T) {
	var out bytes.Buffer
	r := NewRendererWithTTY(&out, &bytes.Buffer{}, false, ModeText)

	r.Header(2, "Files")
	r.StatusLine("fatal", "models/a.sql")
	r.Warning("check this")

	got := out.String()
	assert.Contains(t, got, "Files")
	assert.Contains(t, got, "fatal")
	assert.Contains(t, got, "! check this")
	assert.False(t, ansiPattern.MatchString(got))
}

func TestRenderer_JSON(t *testing.T) {
	var out bytes.Buffer
	r := NewRendererWithTTY(&out, &bytes.Buffer{}, false, ModeJSON)

	require.NoError(t, r.JSON(map[string]int{"files": 2}))
	assert.Equal(t, "{\n  \"files\": 2\n}\n", out.String())
}

func TestNewRenderer_BufferIsNotTerminal(t *testing.T) {
	r := NewRenderer(&bytes.Buffer{}, &bytes.Buffer{}, ModeAuto)
	assert.False(t, r.IsTTY())
	assert.Equal(t, ModeMarkdown, r.EffectiveMode())
}

func TestFormatHeader(t *testing.T) {
	assert.Equal(t, "# A", FormatHeader(0, "A"))
	assert.Equal(t, "### A", FormatHeader(3, "A"))
	assert.Equal(t, "###### A", FormatHeader(9, "A"))
}

func TestStyles_Status(t *testing.T) {
	r := NewRendererWithTTY(&bytes.Buffer{}, &bytes.Buffer{}, false, ModeText)
	s := r.Styles()
	for _, status := range []string{"success", "partial", "fatal", "skipped", "info"} {
		assert.Equal(t, "x", s.Status(status).Render("x"), status)
	}
}
