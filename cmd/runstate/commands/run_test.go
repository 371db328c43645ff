package commands

import (
	"errors"
	"io/ioutil"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mosaicnetworks/runstate/src/config"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

func resetConfig(t *testing.T) {
	viper.Reset()
	_config = config.NewTestConfig(t, 0)
}

func TestLoadConfigFromFile(t *testing.T) {
	resetConfig(t)
	dir := t.TempDir()

	toml := `
sync-max-peers = 3
sync-on-startup = true
sync-period = "2s"
store = "bolt"
`
	if err := ioutil.WriteFile(filepath.Join(dir, "runstate.toml"), []byte(toml), 0600); err != nil {
		t.Fatalf("err: %v", err)
	}

	cmd := NewRunCmd()
	if err := cmd.Flags().Set("datadir", dir); err != nil {
		t.Fatalf("err: %v", err)
	}

	if err := loadConfig(cmd, nil); err != nil {
		t.Fatalf("err: %v", err)
	}

	if _config.SyncMaxPeers != 3 || !_config.SyncOnStartup || _config.SyncPeriod != 2*time.Second {
		t.Fatalf("config file values should be loaded, got %+v", _config)
	}
	if _config.DatabaseDir != filepath.Join(dir, config.DefaultDatabaseFolder) {
		t.Fatalf("db dir should follow datadir, got %s", _config.DatabaseDir)
	}
	if _config.DatabasePath() != filepath.Join(dir, config.DefaultDatabaseFolder, config.DefaultBoltFile) {
		t.Fatalf("unexpected database path %s", _config.DatabasePath())
	}
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	resetConfig(t)
	dir := t.TempDir()

	cmd := NewRunCmd()
	cmd.Flags().Set("datadir", dir)
	cmd.Flags().Set("sync-max-peers", "0")

	if err := loadConfig(cmd, nil); !errors.Is(err, config.ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}

func TestLoadConfigFileSetsLogger(t *testing.T) {
	viper.Reset()
	_config = config.NewDefaultConfig()
	dir := t.TempDir()
	logFile := filepath.Join(dir, "runstate.log")

	toml := `
log = "warn"
log-file = "` + filepath.ToSlash(logFile) + `"
`
	if err := ioutil.WriteFile(filepath.Join(dir, "runstate.toml"), []byte(toml), 0600); err != nil {
		t.Fatalf("err: %v", err)
	}

	cmd := NewRunCmd()
	if err := cmd.Flags().Set("datadir", dir); err != nil {
		t.Fatalf("err: %v", err)
	}

	if err := loadConfig(cmd, nil); err != nil {
		t.Fatalf("err: %v", err)
	}

	if level := _config.BaseLogger().Level; level != logrus.WarnLevel {
		t.Fatalf("log level should come from the config file, got %s", level)
	}

	_config.Logger().Warn("hello file")

	data, err := ioutil.ReadFile(logFile)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if !strings.Contains(string(data), "hello file") {
		t.Fatalf("log file should receive entries, got %q", data)
	}
}
