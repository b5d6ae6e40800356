package output

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

// A bytes.Buffer is never a *os.File, so New always resolves to plain
// styles here regardless of NO_COLOR — these tests check content, not color.

func TestWriter_Status_PrintsIconAndMessage(t *testing.T) {
	buf := &bytes.Buffer{}
	w := New(buf)

	w.Status("🔍", "Checking embedder...")

	assert.Contains(t, buf.String(), "🔍")
	assert.Contains(t, buf.String(), "Checking embedder...")
}

func TestWriter_Status_NoIconIndents(t *testing.T) {
	buf := &bytes.Buffer{}
	w := New(buf)

	w.Status("", "no icon here")

	assert.Equal(t, "   no icon here\n", buf.String())
}

func TestWriter_Success_PrintsCheckmark(t *testing.T) {
	buf := &bytes.Buffer{}
	w := New(buf)

	w.Success("Index complete!")

	assert.Contains(t, buf.String(), "✓")
	assert.Contains(t, buf.String(), "Index complete!")
}

func TestWriter_Warning_PrintsWarningIcon(t *testing.T) {
	buf := &bytes.Buffer{}
	w := New(buf)

	w.Warning("embedder not available")

	assert.Contains(t, buf.String(), "!")
	assert.Contains(t, buf.String(), "embedder not available")
}

func TestWriter_Error_PrintsErrorIcon(t *testing.T) {
	buf := &bytes.Buffer{}
	w := New(buf)

	w.Error("failed to connect")

	assert.Contains(t, buf.String(), "✗")
	assert.Contains(t, buf.String(), "failed to connect")
}

func TestWriter_Statusf_FormatsMessage(t *testing.T) {
	buf := &bytes.Buffer{}
	w := New(buf)

	w.Statusf("🔍", "found %d results for %q", 3, "foo")

	assert.Contains(t, buf.String(), "found 3 results for \"foo\"")
}

func TestWriter_Progress_RendersBarAndFinalNewline(t *testing.T) {
	buf := &bytes.Buffer{}
	w := New(buf)

	w.Progress(5, 10, "embedding")
	w.Progress(10, 10, "embedding")

	out := buf.String()
	assert.Contains(t, out, "50%")
	assert.Contains(t, out, "100%")
	assert.Contains(t, out, "embedding")
}

func TestWriter_Progress_ZeroTotalNoOps(t *testing.T) {
	buf := &bytes.Buffer{}
	w := New(buf)

	w.Progress(0, 0, "nothing")

	assert.Empty(t, buf.String())
}

func TestWriter_Newline_PrintsBlankLine(t *testing.T) {
	buf := &bytes.Buffer{}
	w := New(buf)

	w.Newline()

	assert.Equal(t, "\n", buf.String())
}
