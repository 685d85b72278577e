package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"strings"

	"chronoreel/internal/config"
	"chronoreel/internal/model"
	"chronoreel/internal/task"
)

func runStatus(args []string) error {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	configPath := fs.String("config", config.DefaultPath(), "config file path")
	taskID := fs.String("task", "", "backend task id")
	project := fs.Int64("project", 0, "project id to inspect instead of a task")
	watch := fs.Bool("watch", false, "poll the task until it reaches a terminal state")
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

	if *project > 0 {
		return showProjectStatus(setup, *project, *jsonOut)
	}

	id := trimmed(taskID)
	if id == "" {
		return errors.New("set --task <id> or --project <id>")
	}

	if !*watch {
		status, err := setup.client.TaskStatus(context.Background(), id)
		if err != nil {
			return err
		}
		if *jsonOut {
			return printJSON(status)
		}
		printTaskStatus(status)
		return nil
	}

	final, err := task.Poll(context.Background(), setup.client, id, task.Options{
		OnProgress: func(st model.Task) {
			fmt.Printf("\r%-70s", formatTaskLine(st))
		},
		MaxAttempts: setup.cfg.Polling.VideoAttempts,
		Interval:    setup.cfg.PollInterval(),
		Logger:      setup.log,
	})
	fmt.Println()
	if err != nil {
		return err
	}
	if *jsonOut {
		return printJSON(final)
	}
	printTaskStatus(final)
	return nil
}

func showProjectStatus(setup *commandSetup, id int64, jsonOut bool) error {
	p, err := setup.client.Project(context.Background(), id)
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(p)
	}
	title := defaultIfEmpty(p.Title, "(untitled)")
	fmt.Printf("project %d: %s [%s]\n", p.ID, title, p.Status)
	fmt.Printf("  era: %s, duration: %ds, ratio: %s\n", p.EraPreset, p.Duration, p.Ratio)
	if p.FinalVideoURL != "" {
		fmt.Printf("  video: %s\n", p.FinalVideoURL)
	}
	if len(p.Assets) > 0 {
		fmt.Printf("  assets: %d\n", len(p.Assets))
	}
	return nil
}

func printTaskStatus(st model.Task) {
	fmt.Println(formatTaskLine(st))
	if st.Result == nil {
		return
	}
	if st.Result.FinalVideoURL != "" {
		fmt.Printf("video: %s\n", st.Result.FinalVideoURL)
	}
	if st.Result.FinalTaskID != "" {
		fmt.Printf("chained task: %s\n", st.Result.FinalTaskID)
	}
}

func formatTaskLine(st model.Task) string {
	parts := []string{st.TaskID, "[" + st.Status + "]"}
	if p := st.ProgressValue(); p >= 0 {
		parts = append(parts, fmt.Sprintf("%d%%", p))
	}
	if strings.TrimSpace(st.Message) != "" {
		parts = append(parts, st.Message)
	}
	return strings.Join(parts, " ")
}
