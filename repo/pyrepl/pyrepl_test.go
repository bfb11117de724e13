package pyrepl

import (
	"context"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireCommand(t *testing.T, name string) {
	t.Helper()
	if _, err := exec.LookPath(name); err != nil {
		t.Skipf("%s not available", name)
	}
}

func TestRunEchoesStdin(t *testing.T) {
	requireCommand(t, "cat")
	r := &Runner{Command: "cat", Timeout: time.Second}

	out, err := r.Run(context.Background(), "print(1 + 1)")
	require.NoError(t, err)
	assert.Equal(t, "print(1 + 1)", out)
}

func TestRunReportsStderr(t *testing.T) {
	requireCommand(t, "sh")
	r := &Runner{Command: "sh", Args: []string{"-c", "echo boom >&2; exit 3"}, Timeout: time.Second}

	_, err := r.Run(context.Background(), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestRunTimeout(t *testing.T) {
	requireCommand(t, "sleep")
	r := &Runner{Command: "sleep", Args: []string{"5"}, Timeout: 50 * time.Millisecond}

	_, err := r.Run(context.Background(), "")
	assert.ErrorContains(t, err, "timed out")
}

func TestTool(t *testing.T) {
	requireCommand(t, "cat")
	ok, err := (&Runner{Command: "cat"}).Tool()
	require.NoError(t, err)

	out, err := ok.InvokableRun(context.Background(), `{"code":"x = 1"}`)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "Successfully executed:"))
	assert.True(t, strings.HasSuffix(out, "Stdout: x = 1"))

	bad, err := (&Runner{Command: "/does/not/exist"}).Tool()
	require.NoError(t, err)
	out, err = bad.InvokableRun(context.Background(), `{"code":"x = 1"}`)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "Error executing code:"))
}

func TestPython(t *testing.T) {
	requireCommand(t, "python3")
	out, err := New().Run(context.Background(), "print(6 * 7)")
	require.NoError(t, err)
	assert.Equal(t, "42\n", out)
}
