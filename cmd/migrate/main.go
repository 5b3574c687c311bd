// Command migrate applies or inspects the database schema without starting
// the server. The server runs pending migrations itself on startup; this is
// for rolling back, or for checking what a deploy is about to change.
//
//	migrate --db data/chirp.db status
//	migrate --db data/chirp.db up
//	migrate --db data/chirp.db down
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/jessevdk/go-flags"
	"github.com/pressly/goose/v3"

	"github.com/sakif/chirp/internal/repository/sqlite"
)

type options struct {
	DB      string `long:"db" env:"DB_PATH" default:"data/chirp.db" description:"Path to the SQLite database file"`
	Verbose bool   `short:"v" long:"verbose" description:"Log every applied migration"`
	Args    struct {
		Command string `positional-arg-name:"command" description:"up, down or status"`
	} `positional-args:"yes"`
}

func main() {
	var opts options
	if _, err := flags.Parse(&opts); err != nil {
		var flagErr *flags.Error
		if errors.As(err, &flagErr) && flagErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	level := slog.LevelWarn
	if opts.Verbose {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if err := run(context.Background(), opts, os.Stdout, logger); err != nil {
		logger.Error("migrate failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// run executes one command and reports to out.
func run(ctx context.Context, opts options, out io.Writer, logger *slog.Logger) error {
	conn, err := sqlite.Open(opts.DB)
	if err != nil {
		return err
	}
	defer conn.Close()

	provider, err := sqlite.NewMigrator(conn)
	if err != nil {
		return err
	}

	command := opts.Args.Command
	if command == "" {
		command = "status"
	}

	switch command {
	case "up":
		results, err := provider.Up(ctx)
		if err != nil {
			return fmt.Errorf("up: %w", err)
		}
		logResults(logger, results)
		fmt.Fprintf(out, "applied %d migration(s)\n", len(results))

	case "down":
		result, err := provider.Down(ctx)
		if err != nil {
			if errors.Is(err, goose.ErrNoNextVersion) {
				fmt.Fprintln(out, "nothing to roll back")
				return nil
			}
			return fmt.Errorf("down: %w", err)
		}
		logResults(logger, []*goose.MigrationResult{result})
		fmt.Fprintf(out, "rolled back version %d\n", result.Source.Version)

	case "status":
		statuses, err := provider.Status(ctx)
		if err != nil {
			return fmt.Errorf("status: %w", err)
		}
		for _, st := range statuses {
			applied := "pending"
			if st.State == goose.StateApplied {
				applied = "applied " + st.AppliedAt.Format("2006-01-02 15:04:05")
			}
			fmt.Fprintf(out, "%5d  %-40s %s\n", st.Source.Version, st.Source.Path, applied)
		}

	default:
		return fmt.Errorf("unknown command %q (want up, down or status)", command)
	}
	return nil
}

func logResults(logger *slog.Logger, results []*goose.MigrationResult) {
	for _, r := range results {
		logger.Info("migration",
			slog.Int64("version", r.Source.Version),
			slog.String("direction", r.Direction),
			slog.Duration("duration", r.Duration),
		)
	}
}
