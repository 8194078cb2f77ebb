package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"fracttalsync/internal/config"
	"fracttalsync/internal/services/scheduler"
)

const usage = `Usage: fracttalsync <command> [flags]

Commands:
  run       Process an activity report file now
  runs      Show recent run history
  profile   Manage stored API credential profiles
  jobs      Manage scheduled jobs
  daemon    Run in the foreground, firing scheduled jobs
  test      Authenticate against the API without changing anything
`

// errRowsFailed signals a clean run in which some rows failed, so scripts
// can tell "file processed with failures" from "tool broke".
var errRowsFailed = errors.New("some rows failed")

func main() {
	os.Exit(realMain())
}

func realMain() int {
	log.SetFlags(log.LstdFlags)

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		return 2
	}

	cfg, err := config.Load()
	if err != nil {
		log.Printf("ERROR: Failed to load configuration: %v", err)
		return 1
	}

	app := NewApp(cfg)
	if err := app.Startup(); err != nil {
		log.Printf("FATAL: %v", err)
		return 1
	}
	defer app.Shutdown()

	switch os.Args[1] {
	case "run":
		err = cmdRun(app, os.Args[2:])
	case "runs":
		err = cmdRuns(app, os.Args[2:])
	case "profile":
		err = cmdProfile(app, os.Args[2:])
	case "jobs":
		err = cmdJobs(app, os.Args[2:])
	case "daemon":
		err = cmdDaemon(app)
	case "test":
		err = cmdTest(app, os.Args[2:])
	default:
		fmt.Fprint(os.Stderr, usage)
		return 2
	}

	if errors.Is(err, errRowsFailed) {
		return 1
	}
	if err != nil {
		log.Printf("ERROR: %v", err)
		return 1
	}
	return 0
}

// cmdRun processes one report file synchronously. Ctrl-C cancels between
// rows; statuses already applied stay persisted.
func cmdRun(app *App, args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	file := fs.String("file", "", "path to the activity report (.xlsx or .csv)")
	profile := fs.String("profile", "", "stored credential profile (default: config credentials)")
	fs.Parse(args)

	if *file == "" {
		return fmt.Errorf("run: -file is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary, err := app.RunFile(ctx, *profile, *file)
	if err != nil {
		return err
	}

	fmt.Printf("succeeded=%d failed=%d skipped=%d\n", summary.Succeeded, summary.Failed, summary.Skipped)
	if summary.Canceled {
		fmt.Println("run canceled before completion")
	}
	if summary.PersistenceFailed {
		fmt.Printf("WARNING: report was not saved (%s); successful rows may be resubmitted next run\n", summary.PersistenceError)
	}
	if summary.Failed > 0 {
		return errRowsFailed
	}
	return nil
}

func cmdRuns(app *App, args []string) error {
	fs := flag.NewFlagSet("runs", flag.ExitOnError)
	limit := fs.Int("limit", 10, "number of runs to show")
	fs.Parse(args)

	records, err := app.ListRuns(*limit)
	if err != nil {
		return err
	}
	for _, r := range records {
		line := fmt.Sprintf("%s  %s  %-9s  succeeded=%d failed=%d skipped=%d  %s",
			r.CreatedAt.Format("2006-01-02 15:04"), r.ID[:8], r.Status,
			r.Succeeded, r.Failed, r.Skipped, r.FilePath)
		if r.PersistenceFailed {
			line += "  [report not saved]"
		}
		fmt.Println(line)
	}
	return nil
}

func cmdProfile(app *App, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("profile: expected add, list, update, or delete")
	}

	switch args[0] {
	case "list":
		profiles, err := app.ListProfiles()
		if err != nil {
			return err
		}
		for _, p := range profiles {
			fmt.Printf("%s  %s  key=%s\n", p.ID[:8], p.Name, p.APIKey)
		}
		return nil

	case "add", "update":
		fs := flag.NewFlagSet("profile "+args[0], flag.ExitOnError)
		name := fs.String("name", "", "profile name")
		key := fs.String("key", "", "Fracttal API key")
		secret := fs.String("secret", "", "Fracttal API secret (encrypted at rest)")
		baseURL := fs.String("base-url", "", "API base URL override")
		authURL := fs.String("auth-url", "", "OAuth token URL override")
		fs.Parse(args[1:])

		req := CreateProfileRequest{
			Name: *name, APIKey: *key, APISecret: *secret,
			BaseURL: *baseURL, AuthURL: *authURL,
		}
		if args[0] == "add" {
			return app.CreateProfile(req)
		}
		if *name == "" {
			return fmt.Errorf("profile update: -name is required")
		}
		return app.UpdateProfile(*name, req)

	case "delete":
		fs := flag.NewFlagSet("profile delete", flag.ExitOnError)
		name := fs.String("name", "", "profile name or ID")
		fs.Parse(args[1:])
		if *name == "" {
			return fmt.Errorf("profile delete: -name is required")
		}
		return app.DeleteProfile(*name)

	default:
		return fmt.Errorf("profile: unknown subcommand %q", args[0])
	}
}

func cmdJobs(app *App, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("jobs: expected list, add, or delete")
	}

	switch args[0] {
	case "list":
		jobs, err := app.ListScheduledJobs()
		if err != nil {
			return err
		}
		for _, j := range jobs {
			state := "disabled"
			if j.Enabled {
				state = "enabled"
			}
			next := "-"
			if j.NextRun != nil {
				next = *j.NextRun
			}
			fmt.Printf("%s  %s  %-8s  cron=%q  next=%s  %s\n", j.ID[:8], j.Name, state, j.Cron, next, j.FilePath)
		}
		return nil

	case "add":
		fs := flag.NewFlagSet("jobs add", flag.ExitOnError)
		name := fs.String("name", "", "job name")
		profile := fs.String("profile", "", "credential profile name or ID")
		file := fs.String("file", "", "report file path")
		cronExpr := fs.String("cron", "", "cron expression (5 or 6 fields)")
		disabled := fs.Bool("disabled", false, "create the job disabled")
		fs.Parse(args[1:])

		jobID, err := app.UpsertScheduledJob(scheduler.UpsertJobRequest{
			Name:      *name,
			ProfileID: *profile,
			FilePath:  *file,
			Cron:      *cronExpr,
			Enabled:   !*disabled,
		})
		if err != nil {
			return err
		}
		fmt.Println(jobID)
		return nil

	case "delete":
		fs := flag.NewFlagSet("jobs delete", flag.ExitOnError)
		jobID := fs.String("id", "", "job ID")
		fs.Parse(args[1:])
		if *jobID == "" {
			return fmt.Errorf("jobs delete: -id is required")
		}
		return app.DeleteScheduledJob(*jobID)

	default:
		return fmt.Errorf("jobs: unknown subcommand %q", args[0])
	}
}

// cmdDaemon keeps the process alive so cron jobs fire.
func cmdDaemon(app *App) error {
	log.Println("Running in daemon mode; press Ctrl-C to stop")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	log.Println("Stopping...")
	return nil
}

func cmdTest(app *App, args []string) error {
	fs := flag.NewFlagSet("test", flag.ExitOnError)
	profile := fs.String("profile", "", "stored credential profile (default: config credentials)")
	fs.Parse(args)

	if err := app.TestConnection(*profile); err != nil {
		return err
	}
	fmt.Println("authentication OK")
	return nil
}
