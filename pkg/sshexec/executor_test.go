package sshexec

import (
	"context"
	"testing"
	"time"

	"github.com/homelab/warden/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func localHosts() map[string]config.HostConfig {
	return map[string]config.HostConfig{
		"core": {Name: "core", Address: "localhost", User: "root"},
	}
}

func TestExecute_LocalFallback_Success(t *testing.T) {
	e := New(localHosts(), time.Second, nil)
	res := e.Execute(context.Background(), "core", []string{"echo hello"}, 5*time.Second)
	require.True(t, res.Success)
	assert.Equal(t, []int{0}, res.ExitCodes)
	assert.Contains(t, res.Outputs[0], "hello")
}

func TestExecute_LocalFallback_StopsAtFirstNonZero(t *testing.T) {
	e := New(localHosts(), time.Second, nil)
	res := e.Execute(context.Background(), "core", []string{"exit 7", "echo never"}, 5*time.Second)
	assert.False(t, res.Success)
	assert.Equal(t, []int{7}, res.ExitCodes)
	assert.Len(t, res.Outputs, 1)
}

func TestExecute_UnknownHost(t *testing.T) {
	e := New(localHosts(), time.Second, nil)
	res := e.Execute(context.Background(), "nonexistent", []string{"echo hi"}, time.Second)
	assert.False(t, res.Success)
	assert.Equal(t, []int{-1}, res.ExitCodes)
	assert.NotEmpty(t, res.Error)
}

func TestExecute_LocalTimeout(t *testing.T) {
	e := New(localHosts(), time.Second, nil)
	res := e.Execute(context.Background(), "core", []string{"sleep 5"}, 100*time.Millisecond)
	assert.False(t, res.Success)
	assert.Equal(t, []int{-1}, res.ExitCodes)
}
