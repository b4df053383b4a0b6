package logger

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInitWritesLeveledTimestampedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "run.log")
	var console bytes.Buffer

	require.NoError(t, Init(Options{Level: "info", File: path, MaxSizeMB: 1, Console: &console}))
	l := Component("scraper")
	l.Debug().Msg("hidden")
	l.Info().Str("url", "http://x").Msg("navigating")
	Close()

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var lines []map[string]any
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var m map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &m))
		lines = append(lines, m)
	}
	require.Len(t, lines, 1)
	require.Equal(t, "info", lines[0]["level"])
	require.Equal(t, "scraper", lines[0]["component"])
	require.Equal(t, "navigating", lines[0]["message"])
	require.NotEmpty(t, lines[0]["time"])
	require.Contains(t, console.String(), "navigating")
}

func TestInitUnknownLevelFallsBackToInfo(t *testing.T) {
	var console bytes.Buffer
	require.NoError(t, Init(Options{Level: "chatty", Console: &console}))
	defer Close()

	l := Component("test")
	l.Debug().Msg("hidden")
	l.Info().Msg("shown")
	require.NotContains(t, console.String(), "hidden")
	require.Contains(t, console.String(), "shown")
}
