package config

import (
	"errors"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/mosaicnetworks/runstate/src/common"
	"github.com/mosaicnetworks/runstate/src/runstate"
	"github.com/mosaicnetworks/runstate/src/storage"
	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

// ErrInvalid is wrapped by every error returned from Validate.
var ErrInvalid = errors.New("invalid configuration")

// Default filenames.
const (
	// DefaultKeyfile is the default name of the file containing the node's
	// private key
	DefaultKeyfile = "priv_key"

	// DefaultDatabaseFolder is the default name of the folder containing the
	// database files
	DefaultDatabaseFolder = "db"

	// DefaultBoltFile is the name of the bolt database file inside the
	// database folder
	DefaultBoltFile = "refs.db"
)

// Default configuration values.
const (
	DefaultLogLevel         = "debug"
	DefaultBindAddr         = "127.0.0.1:1337"
	DefaultServiceAddr      = "127.0.0.1:8000"
	DefaultTCPTimeout       = 1000 * time.Millisecond
	DefaultMaxPool          = 2
	DefaultStore            = storage.InmemBackend
	DefaultAnnounceInterval = runstate.DefaultAnnounceInterval
	DefaultSyncMaxPeers     = runstate.DefaultSyncMaxPeers
	DefaultSyncOnStartup    = runstate.DefaultSyncOnStartup
	DefaultSyncPeriod       = runstate.DefaultSyncPeriod
)

// Config contains all the configuration properties of a node.
type Config struct {
	// DataDir is the top-level directory containing configuration and data
	DataDir string `mapstructure:"datadir"`

	// LogLevel determines the chattiness of the log output.
	LogLevel string `mapstructure:"log"`

	// LogFile, when set, receives a copy of every log entry in JSON.
	LogFile string `mapstructure:"log-file"`

	// BindAddr is the local address:port where the node accepts peer
	// connections.
	BindAddr string `mapstructure:"listen"`

	// AdvertiseAddr is used to change the address that we advertise to other
	// nodes.
	AdvertiseAddr string `mapstructure:"advertise"`

	// NoService disables the HTTP API service.
	NoService bool `mapstructure:"no-service"`

	// ServiceAddr is the address:port of the HTTP service.
	ServiceAddr string `mapstructure:"service-listen"`

	// Moniker defines the friendly name of this node
	Moniker string `mapstructure:"moniker"`

	// TCPTimeout is the timeout of RPC connections.
	TCPTimeout time.Duration `mapstructure:"timeout"`

	// MaxPool controls how many connections are pooled per target.
	MaxPool int `mapstructure:"max-pool"`

	// Store selects the storage backend: inmem, badger or bolt.
	Store string `mapstructure:"store"`

	// DatabaseDir is the directory containing database files.
	DatabaseDir string `mapstructure:"db"`

	// AnnounceInterval is the period of the announce ticker.
	AnnounceInterval time.Duration `mapstructure:"announce-interval"`

	// SyncMaxPeers is the number of peers to sync with on startup.
	SyncMaxPeers int `mapstructure:"sync-max-peers"`

	// SyncOnStartup enables the startup sync phase.
	SyncOnStartup bool `mapstructure:"sync-on-startup"`

	// SyncPeriod bounds the startup sync phase.
	SyncPeriod time.Duration `mapstructure:"sync-period"`

	logger *logrus.Logger
}

// NewDefaultConfig returns a config object with default values.
func NewDefaultConfig() *Config {
	config := &Config{
		DataDir:          DefaultDataDir(),
		LogLevel:         DefaultLogLevel,
		BindAddr:         DefaultBindAddr,
		ServiceAddr:      DefaultServiceAddr,
		TCPTimeout:       DefaultTCPTimeout,
		MaxPool:          DefaultMaxPool,
		Store:            DefaultStore,
		DatabaseDir:      DefaultDatabaseDir(),
		AnnounceInterval: DefaultAnnounceInterval,
		SyncMaxPeers:     DefaultSyncMaxPeers,
		SyncOnStartup:    DefaultSyncOnStartup,
		SyncPeriod:       DefaultSyncPeriod,
	}

	return config
}

// NewTestConfig returns a config object with default values and a special
// logger for debugging tests.
func NewTestConfig(t testing.TB, level logrus.Level) *Config {
	config := NewDefaultConfig()
	config.logger = common.NewTestLogger(t, level)
	return config
}

// SetDataDir sets the top-level directory, and updates the database directory
// if it is currently set to the default value. If the database directory is
// not currently the default, it means the user has explicitely set it to
// something else, so avoid changing it again here.
func (c *Config) SetDataDir(dataDir string) {
	c.DataDir = dataDir
	if c.DatabaseDir == DefaultDatabaseDir() {
		c.DatabaseDir = filepath.Join(dataDir, DefaultDatabaseFolder)
	}
}

// Keyfile returns the full path of the file containing the private key.
func (c *Config) Keyfile() string {
	return filepath.Join(c.DataDir, DefaultKeyfile)
}

// DatabasePath returns the path handed to storage.NewStore: the directory for
// badger, a file inside it for bolt.
func (c *Config) DatabasePath() string {
	if c.Store == storage.BoltBackend {
		return filepath.Join(c.DatabaseDir, DefaultBoltFile)
	}
	return c.DatabaseDir
}

// RunStateConfig maps the flat options onto the state machine configuration.
func (c *Config) RunStateConfig() runstate.Config {
	return runstate.Config{
		Announce: runstate.AnnounceConfig{
			Interval: c.AnnounceInterval,
		},
		Sync: runstate.SyncConfig{
			MaxPeers:  c.SyncMaxPeers,
			OnStartup: c.SyncOnStartup,
			Period:    c.SyncPeriod,
		},
	}
}

// Validate checks the options the node cannot run without. Every returned
// error wraps ErrInvalid.
func (c *Config) Validate() error {
	var errs []error

	if c.SyncMaxPeers < 1 {
		errs = append(errs, fmt.Errorf("%w: sync-max-peers must be at least 1, got %d", ErrInvalid, c.SyncMaxPeers))
	}
	if c.AnnounceInterval <= 0 {
		errs = append(errs, fmt.Errorf("%w: announce-interval must be positive, got %v", ErrInvalid, c.AnnounceInterval))
	}
	if c.SyncPeriod <= 0 {
		errs = append(errs, fmt.Errorf("%w: sync-period must be positive, got %v", ErrInvalid, c.SyncPeriod))
	}
	if c.TCPTimeout <= 0 {
		errs = append(errs, fmt.Errorf("%w: timeout must be positive, got %v", ErrInvalid, c.TCPTimeout))
	}

	switch c.Store {
	case storage.InmemBackend, storage.BadgerBackend, storage.BoltBackend:
	default:
		errs = append(errs, fmt.Errorf("%w: unknown store %q", ErrInvalid, c.Store))
	}

	return errors.Join(errs...)
}

// Logger returns a formatted logrus Entry, with prefix set to "runstate".
func (c *Config) Logger() *logrus.Entry {
	if c.logger == nil {
		c.logger = logrus.New()
		c.logger.Level = LogLevel(c.LogLevel)
		c.logger.Formatter = new(prefixed.TextFormatter)

		if c.LogFile != "" {
			c.logger.Hooks.Add(lfshook.NewHook(
				c.LogFile,
				&logrus.JSONFormatter{},
			))
		}
	}
	return c.logger.WithField("prefix", "runstate")
}

// BaseLogger returns the logger behind Logger.
func (c *Config) BaseLogger() *logrus.Logger {
	c.Logger()
	return c.logger
}

// DefaultDatabaseDir returns the default path for the database files.
func DefaultDatabaseDir() string {
	return filepath.Join(DefaultDataDir(), DefaultDatabaseFolder)
}

// DefaultDataDir return the default directory name for top-level config based
// on the underlying OS, attempting to respect conventions.
func DefaultDataDir() string {
	// Try to place the data folder in the user's home dir
	home := HomeDir()
	if home != "" {
		if runtime.GOOS == "darwin" {
			return filepath.Join(home, ".Runstate")
		} else if runtime.GOOS == "windows" {
			return filepath.Join(home, "AppData", "Roaming", "Runstate")
		} else {
			return filepath.Join(home, ".runstate")
		}
	}
	// As we cannot guess a stable location, return empty and handle later
	return ""
}

// HomeDir returns the user's home directory.
func HomeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	if usr, err := user.Current(); err == nil {
		return usr.HomeDir
	}
	return ""
}

// LogLevel parses a string into a Logrus log level.
func LogLevel(l string) logrus.Level {
	switch l {
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	case "panic":
		return logrus.PanicLevel
	default:
		return logrus.DebugLevel
	}
}
