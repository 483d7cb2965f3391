package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/auriora/timelocker/pkg/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunnerRunCapturesLinesAndCallback(t *testing.T) {
	if testing.Short() {
		t.Skip("spawns a real child process")
	}
	runner := NewRunner("/bin/sh", nil)

	var lines []string
	err := runner.Run(context.Background(), []string{"-c", "echo one; echo two"}, nil, func(line string) {
		lines = append(lines, line)
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two"}, lines)
}

func TestRunnerRunNonZeroExit(t *testing.T) {
	if testing.Short() {
		t.Skip("spawns a real child process")
	}
	runner := NewRunner("/bin/sh", nil)

	err := runner.Run(context.Background(), []string{"-c", "echo boom; exit 3"}, nil, nil)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindEngineExecution))

	var e *errs.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, 3, e.ExitCode)
	assert.Contains(t, e.Output, "boom")
}

func TestRunnerRunEnvStagedWinsOverAmbient(t *testing.T) {
	if testing.Short() {
		t.Skip("spawns a real child process")
	}
	require.NoError(t, os.Setenv("TIMELOCKER_ENGINE_TEST_VAR", "ambient"))
	defer os.Unsetenv("TIMELOCKER_ENGINE_TEST_VAR")

	runner := NewRunner("/bin/sh", nil)
	var lines []string
	err := runner.Run(context.Background(), []string{"-c", "echo $TIMELOCKER_ENGINE_TEST_VAR"},
		map[string]string{"TIMELOCKER_ENGINE_TEST_VAR": "staged"},
		func(line string) { lines = append(lines, line) })

	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, "staged", lines[0])
}

func TestRunnerRunIterYieldsLinesLazily(t *testing.T) {
	if testing.Short() {
		t.Skip("spawns a real child process")
	}
	runner := NewRunner("/bin/sh", nil)

	it, err := runner.RunIter(context.Background(), []string{"-c", "echo a; echo b; echo c"}, nil)
	require.NoError(t, err)

	var got []string
	for it.Next() {
		got = append(got, it.Line())
	}
	require.NoError(t, it.Close())
	assert.Equal(t, []string{"a", "b", "c"}, got)
}

func TestRunnerRunSendsSIGTERMOnCancelAndWaitsForExit(t *testing.T) {
	if testing.Short() {
		t.Skip("spawns a real child process")
	}
	dir := t.TempDir()
	marker := filepath.Join(dir, "trapped")
	script := "#!/bin/sh\n" +
		"trap 'touch \"" + marker + "\"; exit 0' TERM\n" +
		"sleep 5 &\n" +
		"wait\n"
	path := filepath.Join(dir, "script.sh")
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))

	runner := NewRunner(path, nil)
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	_ = runner.Run(ctx, nil, nil, nil)

	_, statErr := os.Stat(marker)
	assert.NoError(t, statErr, "cancelling the context should SIGTERM the engine process and let its trap handler run before exit")
}

func TestRunnerRunIterCloseReportsNonZeroExit(t *testing.T) {
	if testing.Short() {
		t.Skip("spawns a real child process")
	}
	runner := NewRunner("/bin/sh", nil)

	it, err := runner.RunIter(context.Background(), []string{"-c", "exit 7"}, nil)
	require.NoError(t, err)
	for it.Next() {
	}
	closeErr := it.Close()
	require.Error(t, closeErr)

	var e *errs.Error
	require.ErrorAs(t, closeErr, &e)
	assert.Equal(t, 7, e.ExitCode)
}
