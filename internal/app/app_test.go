package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/filippobounous/fbinv/internal/common"
)

func TestNewAppWiresServices(t *testing.T) {
	cfg := common.NewDefaultConfig()
	cfg.Storage.BasePath = t.TempDir()

	a, err := newApp(cfg, common.NewSilentLogger())
	require.NoError(t, err)

	assert.NotNil(t, a.Market)
	assert.NotNil(t, a.SeriesStore)
	assert.NotNil(t, a.MappingStore)
	assert.False(t, a.StartupTime.IsZero())
}

func TestSchedulerLifecycle(t *testing.T) {
	cfg := common.NewDefaultConfig()
	cfg.Storage.BasePath = t.TempDir()
	cfg.Scheduler.Enabled = true
	cfg.Scheduler.Interval = "1h"

	a, err := newApp(cfg, common.NewSilentLogger())
	require.NoError(t, err)

	a.StartScheduler()
	require.NotNil(t, a.schedulerCancel)
	a.Close()
}

func TestSchedulerDisabledByDefault(t *testing.T) {
	cfg := common.NewDefaultConfig()
	cfg.Storage.BasePath = t.TempDir()

	a, err := newApp(cfg, common.NewSilentLogger())
	require.NoError(t, err)

	a.StartScheduler()
	assert.Nil(t, a.schedulerCancel)
	a.Close()
}
