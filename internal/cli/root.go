package cli

import "fmt"

func Run(args []string) error {
	if len(args) == 0 {
		printRootUsage()
		return nil
	}

	switch args[0] {
	case "run":
		return runRun(args[1:])
	case "review":
		return runReview(args[1:])
	case "status":
		return runStatus(args[1:])
	case "history":
		return runHistory(args[1:])
	case "scan":
		return runScan(args[1:])
	case "init":
		return runInit(args[1:])
	case "doctor":
		return runDoctor(args[1:])
	case "config":
		return runConfig(args[1:])
	case "help", "-h", "--help":
		printRootUsage()
		return nil
	default:
		printRootUsage()
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func printRootUsage() {
	fmt.Println("mvfetch: find and download official music videos for a music library")
	fmt.Println()
	fmt.Println("Quick Start:")
	fmt.Println("  mvfetch init")
	fmt.Println("  mvfetch run --library ~/Music --output-dir ~/Videos/Music\\ Videos")
	fmt.Println("  mvfetch status")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  run       scan the library, match and download videos")
	fmt.Println("  review    work through the review queue of an earlier run")
	fmt.Println("  status    per-status counts for a run (or --all runs)")
	fmt.Println("  history   outcomes recorded across runs")
	fmt.Println("  scan      list library files and the artist/title read from each")
	fmt.Println()
	fmt.Println("Setup:")
	fmt.Println("  init      write a sample config, create the runs directory, run doctor")
	fmt.Println("  doctor    dependency and filesystem preflight checks")
	fmt.Println("  config    print the effective config (--generate writes a sample)")
	fmt.Println()
	fmt.Println("Run a command with -h for its flags.")
}
