package output

import (
	"bytes"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestUI() (*UI, *bytes.Buffer, *bytes.Buffer) {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	return &UI{Out: out, ErrOut: errOut}, out, errOut
}

func TestMessages(t *testing.T) {
	u, out, errOut := newTestUI()

	u.Info("hello %s", "world")
	u.Success("done %d", 42)
	u.Warning("careful %s", "now")
	u.Error("failed %s", "badly")

	assert.Contains(t, out.String(), "hello world")
	assert.Contains(t, out.String(), "done 42")
	assert.Contains(t, errOut.String(), "careful now")
	assert.Contains(t, errOut.String(), "failed badly")
}

func TestVerboseLog(t *testing.T) {
	u, out, _ := newTestUI()
	u.VerboseLog("detail %d", 1)
	assert.Empty(t, out.String())

	u.Verbose = true
	u.VerboseLog("detail %d", 1)
	assert.Contains(t, out.String(), "detail 1")
}

func TestField(t *testing.T) {
	u, out, _ := newTestUI()
	u.Field("Session", "abc")
	assert.Equal(t, "Session:       abc\n", out.String())
}

func TestResultColor(t *testing.T) {
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = false })

	for _, s := range []string{"passed", "blocked", "inconclusive", "?"} {
		assert.Equal(t, s, ResultColor(s))
	}
}

func TestTable(t *testing.T) {
	u, out, _ := newTestUI()
	table := u.Table([]string{"Agent", "Result"})
	require.NoError(t, table.Append([]string{"backend-engineer", "passed"}))
	require.NoError(t, table.Render())

	assert.Contains(t, out.String(), "backend-engineer")
	assert.Contains(t, out.String(), "passed")
}
