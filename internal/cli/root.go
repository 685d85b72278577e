package cli

import "fmt"

func Run(args []string) error {
	if len(args) == 0 {
		printRootUsage()
		return nil
	}

	switch args[0] {
	case "generate":
		return runGenerate(args[1:])
	case "options":
		return runOptions(args[1:])
	case "projects":
		return runProjects(args[1:])
	case "status":
		return runStatus(args[1:])
	case "settings":
		return runSettings(args[1:])
	case "help", "-h", "--help":
		printRootUsage()
		return nil
	default:
		printRootUsage()
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func printRootUsage() {
	fmt.Println("chronoreel: AI era-travel video generator")
	fmt.Println()
	fmt.Println("Quick Start:")
	fmt.Println("  chronoreel options")
	fmt.Println("  chronoreel generate")
	fmt.Println("  chronoreel projects")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  generate  create a video: era selection, image review, final render")
	fmt.Println("  options   list era presets, music tracks, ratios, and durations")
	fmt.Println("  projects  list projects (backend plus local completion history)")
	fmt.Println("  status    show or watch a backend task")
	fmt.Println("  settings  show/update backend URL, token, and log level")
	fmt.Println()
	fmt.Println("Notes:")
	fmt.Println("  - Use --json on commands for machine-readable output")
	fmt.Println("  - generate --no-input runs without the interactive UI (requires --era)")
	fmt.Println("  - CHRONOREEL_BACKEND_URL and CHRONOREEL_TOKEN override the config file")
}
