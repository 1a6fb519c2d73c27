package main

import (
	"context"
	"testing"
	"time"

	"github.com/go-email-verification/internal/config"
	"github.com/go-email-verification/internal/dispatch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_Subcommands(t *testing.T) {
	cmd := newRootCommand()
	var names []string
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"serve", "worker", "bootstrap"}, names)
	assert.True(t, cmd.SilenceUsage)
}

func TestNewDeadLetterSink_LogOnlyByDefault(t *testing.T) {
	sink, err := newDeadLetterSink(context.Background(), &config.Config{})
	require.NoError(t, err)
	multi, ok := sink.(dispatch.MultiSink)
	require.True(t, ok)
	require.Len(t, multi, 1)
	assert.IsType(t, dispatch.LogSink{}, multi[0])
}

func TestNewApp_MemoryWithoutMail(t *testing.T) {
	cfg := &config.Config{
		StoreDriver:          "memory",
		VerificationSecret:   "s",
		VerificationTokenTTL: 30 * time.Minute,
	}
	a, err := newApp(context.Background(), cfg)
	require.NoError(t, err)
	assert.Nil(t, a.queue)
	assert.NotNil(t, a.records)
	assert.NotNil(t, a.codec)
	a.close(context.Background())
}

func TestNewApp_MemoryQueue(t *testing.T) {
	cfg := &config.Config{
		StoreDriver:          "memory",
		VerificationSecret:   "s",
		VerificationTokenTTL: 30 * time.Minute,
		SMTPHost:             "localhost",
		SMTPPort:             "1025",
		Dispatch:             config.Dispatch{Backend: "memory", Workers: 1, Buffer: 4, MaxAttempts: 3},
	}
	a, err := newApp(context.Background(), cfg)
	require.NoError(t, err)
	require.NotNil(t, a.queue)
	a.close(context.Background())
}
