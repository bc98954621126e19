// Command flockcore is a small operator CLI over the breeding core: it
// dumps the aggregated calendar for a date range and manages state backups.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"

	"flockcore/internal/core"
	"flockcore/pkg/domain"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func usage(stderr io.Writer) {
	fmt.Fprintln(stderr, "usage: flockcore <command> [flags]")
	fmt.Fprintln(stderr, "commands:")
	fmt.Fprintln(stderr, "  calendar -from yyyy-mm-dd -to yyyy-mm-dd   dump the aggregated calendar as JSON")
	fmt.Fprintln(stderr, "  backup create                              write a state snapshot to the blob store")
	fmt.Fprintln(stderr, "  backup list                                list available snapshots")
	fmt.Fprintln(stderr, "  backup restore-latest                      restore the newest snapshot")
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		usage(stderr)
		return 2
	}
	logger := core.NewSlogLogger(slog.New(slog.NewTextHandler(stderr, nil)))
	ctx := context.Background()

	store, err := core.OpenPersistentStore(core.DefaultRulesEngine())
	if err != nil {
		fmt.Fprintf(stderr, "open store: %v\n", err)
		return 1
	}

	switch args[0] {
	case "calendar":
		return runCalendar(ctx, args[1:], store, logger, stdout, stderr)
	case "backup":
		return runBackup(ctx, args[1:], store, logger, stdout, stderr)
	default:
		usage(stderr)
		return 2
	}
}

func runCalendar(ctx context.Context, args []string, store core.PersistentStore, logger core.Logger, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("calendar", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fromArg := fs.String("from", "", "range start (yyyy-mm-dd)")
	toArg := fs.String("to", "", "range end (yyyy-mm-dd)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	from, err := domain.ParseDate(*fromArg)
	if err != nil {
		fmt.Fprintf(stderr, "invalid -from: %v\n", err)
		return 2
	}
	to, err := domain.ParseDate(*toArg)
	if err != nil {
		fmt.Fprintf(stderr, "invalid -to: %v\n", err)
		return 2
	}

	calendar := core.NewStoreCalendar(store, logger)
	index, err := calendar.BuildIndex(ctx, from, to)
	if err != nil {
		fmt.Fprintf(stderr, "build calendar: %v\n", err)
		return 1
	}

	days := make([]*core.CalendarDay, 0, len(index))
	for _, day := range index {
		days = append(days, day)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Date.Before(days[j].Date) })

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(days); err != nil {
		fmt.Fprintf(stderr, "encode calendar: %v\n", err)
		return 1
	}
	return 0
}

func runBackup(ctx context.Context, args []string, store core.PersistentStore, logger core.Logger, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		usage(stderr)
		return 2
	}
	exporter, ok := store.(domain.StateExporter)
	if !ok {
		fmt.Fprintln(stderr, "configured store does not support backups")
		return 1
	}
	blobs, err := core.OpenBlobStore(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "open blob store: %v\n", err)
		return 1
	}
	manager := core.NewBackupManager(exporter, blobs, logger)

	switch args[0] {
	case "create":
		info, err := manager.Create(ctx)
		if err != nil {
			fmt.Fprintf(stderr, "create backup: %v\n", err)
			return 1
		}
		fmt.Fprintf(stdout, "%s (%d bytes)\n", info.Key, info.Size)
		return 0
	case "list":
		infos, err := manager.List(ctx)
		if err != nil {
			fmt.Fprintf(stderr, "list backups: %v\n", err)
			return 1
		}
		for _, info := range infos {
			fmt.Fprintf(stdout, "%s\t%d\t%s\n", info.Key, info.Size, info.LastModified.Format("2006-01-02 15:04:05"))
		}
		return 0
	case "restore-latest":
		key, err := manager.RestoreLatest(ctx)
		if err != nil {
			fmt.Fprintf(stderr, "restore backup: %v\n", err)
			return 1
		}
		fmt.Fprintf(stdout, "restored %s\n", key)
		return 0
	default:
		usage(stderr)
		return 2
	}
}
