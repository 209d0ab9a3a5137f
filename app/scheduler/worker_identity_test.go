package scheduler_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/amirphl/orochi-outreach/app/scheduler"
	"github.com/amirphl/orochi-outreach/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerIdentity(t *testing.T) {
	a := scheduler.GenerateWorkerIdentity()
	b := scheduler.GenerateWorkerIdentity()

	assert.False(t, a.IsZero())
	assert.NotEqual(t, a.String(), b.String())
	assert.Contains(t, a.String(), "-")

	fixed := scheduler.NewWorkerIdentity("  worker-1 ")
	assert.Equal(t, "worker-1", fixed.String())
	assert.True(t, scheduler.NewWorkerIdentity("").IsZero())
	assert.True(t, scheduler.WorkerIdentity{}.IsZero())
}

func TestNewSchedulerLogger(t *testing.T) {
	t.Run("Stdout", func(t *testing.T) {
		logger, closer, err := scheduler.NewSchedulerLogger(config.LoggingConfig{Output: "stdout"})
		require.NoError(t, err)
		require.NotNil(t, logger)
		assert.NoError(t, closer.Close())
	})

	t.Run("RotatedFile", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "logs", "scheduler.log")
		logger, closer, err := scheduler.NewSchedulerLogger(config.LoggingConfig{
			Output:     "file",
			FilePath:   path,
			MaxSize:    1,
			MaxBackups: 1,
		})
		require.NoError(t, err)

		logger.Printf("scheduler: started worker=%s", "w-1")
		require.NoError(t, closer.Close())

		raw, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.True(t, strings.Contains(string(raw), "scheduler: started worker=w-1"))
	})
}
