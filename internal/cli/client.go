package cli

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"chronoreel/internal/config"
	"chronoreel/internal/gateway"
	"chronoreel/internal/logging"
)

// commandSetup bundles what every command needs: the effective config, the
// backend client, and a logger with its cleanup.
type commandSetup struct {
	cfg    config.Config
	client *gateway.Client
	log    *logrus.Logger

	closeLog func()
}

// setupCommand loads config and builds the gateway client. Interactive
// commands must not write logs to the terminal they draw on, so toFile sends
// them to the state-dir log file instead of stderr.
func setupCommand(configPath string, toFile bool) (*commandSetup, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	var out io.Writer = os.Stderr
	closeLog := func() {}
	if toFile {
		path := defaultIfEmpty(cfg.Log.File, logging.DefaultFilePath())
		f, err := logging.OpenFile(path)
		if err != nil {
			out = io.Discard
		} else {
			out = f
			closeLog = func() { _ = f.Close() }
		}
	}
	log := logging.New(cfg.Log.Level, out)

	client, err := gateway.New(gateway.Options{
		BaseURL: cfg.Backend.BaseURL,
		Token:   cfg.Backend.Token,
		Timeout: cfg.RequestTimeout(),
		Logger:  log,
	})
	if err != nil {
		closeLog()
		return nil, err
	}
	return &commandSetup{cfg: cfg, client: client, log: log, closeLog: closeLog}, nil
}

func (s *commandSetup) Close() {
	if s.closeLog != nil {
		s.closeLog()
	}
}

func trimmed(p *string) string {
	return strings.TrimSpace(*p)
}
