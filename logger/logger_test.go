package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetLevelFromEnv(t *testing.T) {
	t.Setenv("ARCHIDEX_LOG_LEVEL", "trace")
	assert.Equal(t, LevelTrace, GetLevelFromEnv())
	t.Setenv("ARCHIDEX_LOG_LEVEL", "WARN")
	assert.Equal(t, LevelWarn, GetLevelFromEnv())
	t.Setenv("ARCHIDEX_LOG_LEVEL", "bogus")
	assert.Equal(t, LevelInfo, GetLevelFromEnv())
}

func TestConsoleLoggerLevelEnabled(t *testing.T) {
	log := NewConsoleLogger(LevelWarn)
	assert.False(t, log.IsLevelEnabled(LevelDebug))
	assert.True(t, log.IsLevelEnabled(LevelWarn))
	assert.True(t, log.IsLevelEnabled(LevelError))
}

func TestTestLoggerCapturesEntries(t *testing.T) {
	log := NewTestLogger()
	log.Info("hello %s", "world")
	log.Error("boom")
	assert.Len(t, log.Logs, 2)
	assert.Equal(t, "INFO", log.Logs[0].Severity)
	assert.Equal(t, "hello %s", log.Logs[0].Message)
	assert.Equal(t, "ERROR", log.Logs[1].Severity)
}

func TestWithMetadataDoesNotMutateParent(t *testing.T) {
	parent := NewConsoleLogger(LevelInfo).(*consoleLogger)
	child := parent.With(map[string]interface{}{"session": "abc"}).(*consoleLogger)
	assert.Empty(t, parent.metadata)
	assert.Equal(t, "abc", child.metadata["session"])
}
