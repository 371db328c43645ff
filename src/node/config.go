package node

import (
	"testing"
	"time"

	"github.com/mosaicnetworks/runstate/src/common"
	"github.com/mosaicnetworks/runstate/src/runstate"
	"github.com/sirupsen/logrus"
)

// Config contains the settings of a Node.
type Config struct {
	RunState runstate.Config
	Moniker  string
	Logger   *logrus.Logger
}

// NewConfig ...
func NewConfig(rs runstate.Config, moniker string, logger *logrus.Logger) *Config {
	return &Config{
		RunState: rs,
		Moniker:  moniker,
		Logger:   logger,
	}
}

// DefaultConfig ...
func DefaultConfig() *Config {
	logger := logrus.New()
	logger.Level = logrus.DebugLevel

	return &Config{
		RunState: runstate.DefaultConfig(),
		Logger:   logger,
	}
}

// TestConfig returns a configuration with short periods and a logger that
// writes to t.
func TestConfig(t testing.TB) *Config {
	config := DefaultConfig()
	config.RunState.Announce.Interval = 50 * time.Millisecond
	config.RunState.Sync.Period = 200 * time.Millisecond
	config.Logger = common.NewTestLogger(t, logrus.DebugLevel)
	return config
}
