package cli

import (
	"context"
	"flag"
	"fmt"
	"strings"

	"chronoreel/internal/config"
)

func runOptions(args []string) error {
	fs := flag.NewFlagSet("options", flag.ContinueOnError)
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
	if err != nil {
		return err
	}
	if *jsonOut {
		return printJSON(map[string]any{
			"options":  opts,
			"fallback": opts.Fallback,
		})
	}

	if opts.Fallback {
		fmt.Println("backend unreachable; showing built-in defaults")
		fmt.Println()
	}
	fmt.Println("era presets:")
	for _, p := range opts.EraPresets {
		fmt.Printf("  %s  %s\n", p.PresetName, p.DisplayName)
		if strings.TrimSpace(p.Description) != "" {
			fmt.Printf("      %s\n", p.Description)
		}
	}
	if len(opts.MusicTracks) == 0 {
		fmt.Println("music tracks: (none)")
	} else {
		fmt.Println("music tracks:")
		for _, m := range opts.MusicTracks {
			artist := defaultIfEmpty(m.Artist, "unknown artist")
			fmt.Printf("  %d. %s - %s (%ds)\n", m.ID, m.Title, artist, m.Duration)
		}
	}
	fmt.Printf("ratios: %s\n", strings.Join(opts.AvailableRatios, ", "))
	durations := make([]string, 0, len(opts.DurationOptions))
	for _, d := range opts.DurationOptions {
		durations = append(durations, fmt.Sprintf("%ds", d))
	}
	fmt.Printf("durations: %s\n", strings.Join(durations, ", "))
	return nil
}
