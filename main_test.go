package main

import (
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunMain_ExitCodes(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "devpulse.yaml")

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("interval: [nope"), 0o644))

	tests := []struct {
		name string
		args []string
		want int
	}{
		{name: "unknown flag", args: []string{"--nope"}, want: 2},
		{name: "help", args: []string{"--help"}, want: 0},
		{name: "malformed config", args: []string{"--config", bad}, want: 1},
		{name: "invalid override", args: []string{"--config", missing, "--log-level", "trace"}, want: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, runMain(tt.args))
		})
	}
}

func TestRunMain_ListenFailureReturnsError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	port := ln.Addr().(*net.TCPAddr).Port

	code := runMain([]string{
		"--config", filepath.Join(t.TempDir(), "devpulse.yaml"),
		"--bind", "127.0.0.1",
		"--port", strconv.Itoa(port),
		"--log-level", "error",
	})
	assert.Equal(t, 1, code)
}
