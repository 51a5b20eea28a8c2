package logger

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	InitWriter(&buf)
	SetLevel(WARN)
	t.Cleanup(func() { SetLevel(DEBUG) })

	Infof("hidden %d", 1)
	Debug("hidden too")
	Warnf("shown %d", 2)
	Error("also shown")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown 2")
	assert.Contains(t, out, "also shown")
	assert.Contains(t, out, `"level":"warn"`)
}

func TestInitWritesJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "imagegen.log")
	require.NoError(t, Init(path, false))
	SetLevel(INFO)

	Info("to file")
	Close()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"message":"to file"`)
	assert.Contains(t, string(data), `"caller"`)
}

func TestInitNeedsAnOutput(t *testing.T) {
	assert.Error(t, Init("", false))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, DEBUG, ParseLevel("debug"))
	assert.Equal(t, WARN, ParseLevel(" Warning "))
	assert.Equal(t, ERROR, ParseLevel("ERROR"))
	assert.Equal(t, INFO, ParseLevel(""))
	assert.Equal(t, INFO, ParseLevel("verbose"))
}

func TestSetLevelWhileLogging(t *testing.T) {
	InitWriter(io.Discard)
	t.Cleanup(func() { SetLevel(DEBUG) })

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				Infof("line %d", j)
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				SetLevel(LogLevel(j % 4))
			}
		}()
	}
	wg.Wait()
}
