package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"chronoreel/internal/config"
)

func runSettings(args []string) error {
	if len(args) == 0 {
		printSettingsUsage()
		return nil
	}
	switch args[0] {
	case "show":
		return runSettingsShow(args[1:])
	case "set":
		return runSettingsSet(args[1:])
	case "check":
		return runSettingsCheck(args[1:])
	case "help", "-h", "--help":
		printSettingsUsage()
		return nil
	default:
		printSettingsUsage()
		return fmt.Errorf("unknown settings subcommand %q", args[0])
	}
}

func runSettingsShow(args []string) error {
	fs := flag.NewFlagSet("settings show", flag.ContinueOnError)
	configPath := fs.String("config", config.DefaultPath(), "config file path")
	jsonOut := fs.Bool("json", false, "print JSON output")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(trimmed(configPath))
	if err != nil {
		return err
	}
	if *jsonOut {
		redacted := cfg
		if redacted.Backend.Token != "" {
			redacted.Backend.Token = "(set)"
		}
		return printJSON(map[string]any{
			"config_path": trimmed(configPath),
			"config":      redacted,
		})
	}

	fmt.Printf("config: %s\n", trimmed(configPath))
	fmt.Printf("backend_url: %s\n", cfg.Backend.BaseURL)
	token := "(not set)"
	if cfg.Backend.Token != "" {
		token = "(set)"
	}
	fmt.Printf("token: %s\n", token)
	fmt.Printf("request_timeout_seconds: %d\n", cfg.Backend.RequestTimeoutSeconds)
	fmt.Printf("poll_interval_seconds: %d\n", cfg.Polling.IntervalSeconds)
	fmt.Printf("image_attempts: %d\n", cfg.Polling.ImageAttempts)
	fmt.Printf("video_attempts: %d\n", cfg.Polling.VideoAttempts)
	fmt.Printf("log_level: %s\n", cfg.Log.Level)
	return nil
}

func runSettingsSet(args []string) error {
	fs := flag.NewFlagSet("settings set", flag.ContinueOnError)
	configPath := fs.String("config", config.DefaultPath(), "config file path")
	backendURL := fs.String("backend-url", "", "backend base URL (empty keeps current)")
	token := fs.String("token", "", "API token (empty keeps current)")
	clearToken := fs.Bool("clear-token", false, "remove the stored token")
	timeoutSeconds := fs.Int("timeout-seconds", -1, "request timeout in seconds (-1 keeps current)")
	logLevel := fs.String("log-level", "", "log level: debug|info|warn|error (empty keeps current)")
	jsonOut := fs.Bool("json", false, "print JSON output")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}

	path := trimmed(configPath)
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}

	if trimmed(backendURL) != "" {
		cfg.Backend.BaseURL = trimmed(backendURL)
	}
	if *clearToken {
		cfg.Backend.Token = ""
	} else if trimmed(token) != "" {
		cfg.Backend.Token = trimmed(token)
	}
	if *timeoutSeconds != -1 {
		if *timeoutSeconds <= 0 {
			return errors.New("--timeout-seconds must be >= 1")
		}
		cfg.Backend.RequestTimeoutSeconds = *timeoutSeconds
	}
	if level := strings.ToLower(trimmed(logLevel)); level != "" {
		if _, err := logrus.ParseLevel(level); err != nil {
			return fmt.Errorf("invalid --log-level %q", level)
		}
		cfg.Log.Level = level
	}

	if err := config.Save(path, cfg); err != nil {
		return err
	}
	if *jsonOut {
		return printJSON(map[string]any{"config_path": path, "updated": true})
	}
	fmt.Printf("updated settings in %s\n", path)
	fmt.Printf("backend_url: %s\n", cfg.Backend.BaseURL)
	fmt.Printf("log_level: %s\n", cfg.Log.Level)
	return nil
}

// runSettingsCheck verifies the backend is reachable with the configured URL
// and token by fetching the options set.
func runSettingsCheck(args []string) error {
	fs := flag.NewFlagSet("settings check", flag.ContinueOnError)
	configPath := fs.String("config", config.DefaultPath(), "config file path")
	jsonOut := fs.Bool("json", false, "print JSON output")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}

	setup, err := setupCommand(trimmed(configPath), false)
	if err != nil {
		return err
	}
	defer setup.Close()

	opts, err := setup.client.Options(context.Background())
	reachable := err == nil && !opts.Fallback
	if *jsonOut {
		out := map[string]any{
			"backend_url": setup.cfg.Backend.BaseURL,
			"reachable":   reachable,
		}
		if err != nil {
			out["error"] = err.Error()
		}
		return printJSON(out)
	}
	if err != nil {
		return fmt.Errorf("backend check failed: %w", err)
	}
	if opts.Fallback {
		return fmt.Errorf("backend %s unreachable (built-in fallback options in use)", setup.cfg.Backend.BaseURL)
	}
	fmt.Printf("backend ok: %s\n", setup.cfg.Backend.BaseURL)
	fmt.Printf("era presets: %d, music tracks: %d\n", len(opts.EraPresets), len(opts.MusicTracks))
	return nil
}

func printSettingsUsage() {
	fmt.Println("settings commands:")
	fmt.Println("  settings show")
	fmt.Println("  settings set [--backend-url <url>] [--token <token>] [--clear-token]")
	fmt.Println("               [--timeout-seconds N] [--log-level debug|info|warn|error]")
	fmt.Println("  settings check")
}
