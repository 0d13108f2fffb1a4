package linenoise

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistoryRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history")

	ln := New()
	ln.AppendHistory("hello")
	ln.AppendHistory("quit")
	require.NoError(t, ln.HistorySave(path))
	require.NoError(t, ln.Close())

	ln = New()
	defer ln.Close()
	require.NoError(t, ln.HistoryLoad(path))

	var buf bytes.Buffer
	_, err := ln.WriteHistory(&buf)
	require.NoError(t, err)
	assert.Equal(t, "hello\nquit\n", buf.String())
}

func TestHistoryLoadMissingFile(t *testing.T) {
	ln := New()
	defer ln.Close()
	assert.Error(t, ln.HistoryLoad(filepath.Join(t.TempDir(), "missing")))
}

func TestClearScreen(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, ClearScreen(&buf))
	assert.Equal(t, "\x1b[H\x1b[2J", buf.String())
}
