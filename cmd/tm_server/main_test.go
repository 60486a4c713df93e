package main

import (
	"bytes"
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tissuemaps/tmserver/internal/version"
)

func TestCountFlag(t *testing.T) {
	var c countFlag
	for i := 1; i <= 3; i++ {
		require.NoError(t, c.Set("true"))
		assert.Equal(t, countFlag(i), c, "verbosity must grow with each occurrence")
	}
	require.NoError(t, c.Set("7"))
	assert.Equal(t, countFlag(7), c)
	assert.Error(t, c.Set("lots"))
}

func TestRunVersion(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"--version"}, &stdout, &stderr)
	assert.Zero(t, code)
	assert.Contains(t, stdout.String(), version.Version)
}

func TestRunRejectsUnknownFlag(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"--no-such-flag"}, &stdout, &stderr)
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr.String(), "no-such-flag")
}

func TestRunRejectsMalformedFlagValue(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"--port", "not-a-number"}, &stdout, &stderr)
	assert.Equal(t, 2, code)
}

func TestRunRejectsInvalidPort(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"--in-memory", "--port", "70000"}, &stdout, &stderr)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "invalid configuration")
}

func TestRunMissingConfigFile(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"--config", "/does/not/exist.yaml"}, &stdout, &stderr)
	assert.Equal(t, 1, code)
}

func TestRunReportsProfileOnServeFailure(t *testing.T) {
	// Occupy a port so serving fails after startup succeeded.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	port := ln.Addr().(*net.TCPAddr).Port

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{
		"--in-memory",
		"--profile",
		"--host", "127.0.0.1",
		"--port", strconv.Itoa(port),
	}, &stdout, &stderr)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "no requests recorded",
		"collected profile must be reported even when serving fails")
}

func TestRunServesUntilCancelled(t *testing.T) {
	// Reserve a free port, then release it for the server.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(200 * time.Millisecond)
		cancel()
	}()

	var stdout, stderr bytes.Buffer
	code := run(ctx, []string{
		"--in-memory",
		"--host", "127.0.0.1",
		"--port", strconv.Itoa(port),
		"-v", "-v",
	}, &stdout, &stderr)
	assert.Zero(t, code, "stderr: %s", stderr.String())
	assert.Contains(t, stdout.String(), "TissueMAPS development server")
	assert.Contains(t, stdout.String(), "127.0.0.1")
}
