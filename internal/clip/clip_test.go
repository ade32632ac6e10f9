package clip

import (
	"bytes"
	"encoding/base64"
	"errors"
	"os"
	"testing"

	atotto "github.com/atotto/clipboard"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCopy_Native(t *testing.T) {
	var got string
	c := &Copier{native: func(s string) error { got = s; return nil }, getenv: os.Getenv}
	if atotto.Unsupported {
		t.Skip("no native clipboard on this platform")
	}

	res, err := c.Copy("# Spec")
	require.NoError(t, err)
	assert.Equal(t, MethodNative, res.Method)
	assert.Equal(t, "# Spec", got)
}

func TestCopy_FallsBackToFile(t *testing.T) {
	c := &Copier{
		native:  func(string) error { return errors.New("no clipboard") },
		getenv:  os.Getenv,
		tempDir: t.TempDir(),
	}

	res, err := c.Copy("# Spec")
	require.NoError(t, err)
	assert.Equal(t, MethodFile, res.Method)
	data, err := os.ReadFile(res.FilePath)
	require.NoError(t, err)
	assert.Equal(t, "# Spec", string(data))
}

func TestCopy_Empty(t *testing.T) {
	_, err := New().Copy("")
	assert.Error(t, err)
}

func TestWriteOSC52(t *testing.T) {
	env := map[string]string{}
	c := &Copier{getenv: func(k string) string { return env[k] }}

	var buf bytes.Buffer
	require.NoError(t, c.writeOSC52(&buf, "hello"))
	assert.Contains(t, buf.String(), base64.StdEncoding.EncodeToString([]byte("hello")))
	assert.Contains(t, buf.String(), "\x1b]52;")

	env["TMUX"] = "1"
	buf.Reset()
	require.NoError(t, c.writeOSC52(&buf, "hello"))
	assert.Contains(t, buf.String(), "\x1bPtmux;")

	big := bytes.Repeat([]byte("x"), osc52LimitBytes+1)
	assert.Error(t, c.writeOSC52(&buf, string(big)))
}
