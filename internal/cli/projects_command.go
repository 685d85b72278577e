package cli

import (
	"context"
	"flag"
	"fmt"

	"chronoreel/internal/config"
	"chronoreel/internal/history"
	"chronoreel/internal/model"
)

func runProjects(args []string) error {
	fs := flag.NewFlagSet("projects", flag.ContinueOnError)
	configPath := fs.String("config", config.DefaultPath(), "config file path")
	historyPath := fs.String("history", history.DefaultPath(), "local history file path")
	localOnly := fs.Bool("local", false, "skip the backend, list local history only")
	jsonOut := fs.Bool("json", false, "print JSON output")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}

	entries, err := history.Read(trimmed(historyPath))
	if err != nil {
		return err
	}

	var projects []model.Project
	var backendErr error
	if !*localOnly {
		setup, err := setupCommand(trimmed(configPath), false)
		if err != nil {
			return err
		}
		defer setup.Close()
		projects, backendErr = setup.client.ListProjects(context.Background())
	}

	if *jsonOut {
		out := map[string]any{
			"projects": projects,
			"history":  entries,
		}
		if backendErr != nil {
			out["backend_error"] = backendErr.Error()
		}
		return printJSON(out)
	}

	if backendErr != nil {
		fmt.Printf("backend unavailable: %v\n", backendErr)
	} else if !*localOnly {
		if len(projects) == 0 {
			fmt.Println("no projects on the backend")
		} else {
			fmt.Println("backend projects:")
			for _, p := range projects {
				title := defaultIfEmpty(p.Title, "(untitled)")
				fmt.Printf("  %d. %s [%s] era=%s %ds %s\n", p.ID, title, p.Status, p.EraPreset, p.Duration, p.Ratio)
				if p.FinalVideoURL != "" {
					fmt.Printf("     video: %s\n", p.FinalVideoURL)
				}
			}
		}
	}

	if len(entries) == 0 {
		fmt.Println("no completed videos in local history")
		return nil
	}
	fmt.Println("local history (newest first):")
	for _, e := range entries {
		title := defaultIfEmpty(e.Title, "(untitled)")
		fmt.Printf("  %d. %s era=%s %ds %s\n", e.ProjectID, title, e.EraPreset, e.Duration, e.Ratio)
		fmt.Printf("     %s\n", e.VideoURL)
		fmt.Printf("     completed: %s\n", e.CompletedAt)
	}
	return nil
}
