package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/site-discovery-crawler/internal/progress"
)

func TestLogSinkLevels(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.InfoLevel)
	sink := NewLogSink(zap.New(core))

	now := time.Now()
	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{JobID: "job", TS: now, Stage: progress.StageJobStart},
		{JobID: "job", TS: now, Stage: progress.StagePageDone, URL: "https://example.com/", StatusClass: progress.Status2xx},
		{JobID: "job", TS: now, Stage: progress.StageJobError, Note: "homepage unfetchable"},
	}))

	entries := logs.All()
	require.Len(t, entries, 2)
	require.Equal(t, "JOB_START", entries[0].ContextMap()["stage"])
	require.Equal(t, zapcore.WarnLevel, entries[1].Level)
	require.Equal(t, "homepage unfetchable", entries[1].ContextMap()["note"])
	require.NoError(t, sink.Close(context.Background()))
}
