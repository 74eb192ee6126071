package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFileLogger(t *testing.T) {
	_, err := NewFileLogger(t.TempDir(), "")
	require.Error(t, err)
	_, err = NewFileLogger("", "run")
	require.Error(t, err)

	base := t.TempDir()
	l, err := NewFileLogger(base, "abc")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(base, "testrun-abc"), l.LogDir())
	assert.Equal(t, "abc", l.RunID())
	assert.DirExists(t, l.LogDir())
}

func TestRankOutput(t *testing.T) {
	l, err := NewFileLogger(t.TempDir(), "abc")
	require.NoError(t, err)

	for rank := 0; rank < 2; rank++ {
		w, err := l.RankOutput("TestAllReduce::test_sum", rank)
		require.NoError(t, err)
		_, err = w.Write([]byte("hello\n"))
		require.NoError(t, err)
		require.NoError(t, w.Close())
	}
	// a second launch appends
	w, err := l.RankOutput("TestAllReduce::test_sum", 0)
	require.NoError(t, err)
	_, err = w.Write([]byte("again\n"))
	require.NoError(t, err)
	require.NoError(t, l.Close())

	dir := filepath.Join(l.LogDir(), "TestAllReduce__test_sum")
	data, err := os.ReadFile(filepath.Join(dir, "rank-0.log"))
	require.NoError(t, err)
	assert.Equal(t, "hello\nagain\n", string(data))
	assert.FileExists(t, filepath.Join(dir, "rank-1.log"))
}

func TestLogSummary(t *testing.T) {
	l, err := NewFileLogger(t.TempDir(), "abc")
	require.NoError(t, err)
	require.NoError(t, l.LogSummary("RUN abc\n"))

	data, err := os.ReadFile(filepath.Join(l.LogDir(), SummaryFilename))
	require.NoError(t, err)
	assert.Equal(t, "RUN abc\n", string(data))
}

func TestSafeFilename(t *testing.T) {
	assert.Equal(t, "TestA__test_x_y_", safeFilename("TestA::test/x y?"))
}
