package bash

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckSyntax(t *testing.T) {
	assert.NoError(t, CheckSyntax("ls -la | grep foo"))
	assert.Error(t, CheckSyntax("if then fi ("))
}

func TestRunInteractive(t *testing.T) {
	dir := t.TempDir()
	var stdout, stderr bytes.Buffer

	code, err := RunInteractive(context.Background(), dir, "pwd; echo oops >&2; exit 3", strings.NewReader(""), &stdout, &stderr)
	require.NoError(t, err)
	assert.Equal(t, 3, code)
	assert.Contains(t, stdout.String(), dir)
	assert.Equal(t, "oops\n", stderr.String())
}

func TestRunInteractiveExternalProgram(t *testing.T) {
	var stdout bytes.Buffer
	code, err := RunInteractive(context.Background(), t.TempDir(), "sh -c 'echo external; exit 4'", strings.NewReader(""), &stdout, &stdout)
	require.NoError(t, err)
	assert.Equal(t, 4, code)
	assert.Equal(t, "external\n", stdout.String())
}

func TestRunInteractiveCancelStopsProgram(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	code, _ := RunInteractive(ctx, t.TempDir(), "sleep 10", strings.NewReader(""), io.Discard, io.Discard)
	assert.NotEqual(t, 0, code)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestRunInteractiveParseError(t *testing.T) {
	var out bytes.Buffer
	code, err := RunInteractive(context.Background(), t.TempDir(), "echo (", nil, &out, &out)
	assert.Error(t, err)
	assert.Equal(t, 1, code)
}
