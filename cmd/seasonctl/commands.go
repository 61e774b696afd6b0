package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lysyi3m/season-rank/app/refresh"
	"github.com/lysyi3m/season-rank/app/season"
)

func newUpdateCommand(ctx *commandContext) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Refresh every listed season",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			components, err := ctx.components()
			if err != nil {
				return err
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			var results []refresh.Result
			err = runLocked(components.Lock, func() error {
				results = components.Refresher.UpdateAll(runCtx, force)
				return nil
			})
			if err != nil {
				return err
			}

			if err := printResults(cmd, ctx.jsonOutput, results); err != nil {
				return err
			}

			if len(results) == 0 {
				if runCtx.Err() != nil {
					return runCtx.Err()
				}
				return errors.New("no seasons were processed")
			}
			if _, _, failed := refresh.Count(results); failed > 0 {
				return fmt.Errorf("%d season(s) failed", failed)
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Refresh even when documents are fresh")
	return cmd
}

func newSeasonCommand(ctx *commandContext) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "season <year> <month>",
		Short: "Refresh one season",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			year, month, err := parseYearMonth(args[0], args[1])
			if err != nil {
				return err
			}

			components, err := ctx.components()
			if err != nil {
				return err
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			var result refresh.Result
			err = runLocked(components.Lock, func() error {
				result, err = components.Refresher.RefreshMonth(runCtx, year, month, force)
				return err
			})
			if err != nil {
				return err
			}

			if err := printResults(cmd, ctx.jsonOutput, []refresh.Result{result}); err != nil {
				return err
			}
			if result.Failed() {
				return fmt.Errorf("season %s failed: %s", result.Season.Key(), result.Message)
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Refresh even when the document is fresh")
	return cmd
}

func newListCommand(ctx *commandContext) *cobra.Command {
	var cached bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List known seasons with their cached document status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			components, err := ctx.components()
			if err != nil {
				return err
			}

			var statuses []refresh.SeasonStatus
			if cached {
				statuses, err = cachedStatuses(components.Store)
			} else {
				statuses, err = components.Refresher.Seasons(cmd.Context())
			}
			if err != nil {
				return err
			}

			return printSeasons(cmd, ctx.jsonOutput, statuses)
		},
	}

	cmd.Flags().BoolVar(&cached, "cached", false, "Only read the data directory, skip the remote listing")
	return cmd
}

func runLocked(lock *refresh.RunLock, fn func() error) error {
	err := lock.Run(fn)
	if errors.Is(err, refresh.ErrRunLocked) {
		return fmt.Errorf("%w (%s); is the server refreshing?", err, lock.Path())
	}
	return err
}

func parseYearMonth(yearArg, monthArg string) (int, int, error) {
	year, err := strconv.Atoi(yearArg)
	if err != nil || year < 1900 {
		return 0, 0, fmt.Errorf("invalid year %q", yearArg)
	}
	month, err := strconv.Atoi(monthArg)
	if err != nil || month < 1 || month > 12 {
		return 0, 0, fmt.Errorf("invalid month %q: must be 1-12", monthArg)
	}
	return year, month, nil
}

func cachedStatuses(store *season.Store) ([]refresh.SeasonStatus, error) {
	entries, err := store.List()
	if err != nil {
		return nil, err
	}

	statuses := make([]refresh.SeasonStatus, 0, len(entries))
	for _, entry := range entries {
		statuses = append(statuses, refresh.SeasonStatus{
			Key:            entry.Key(),
			Year:           entry.Year,
			Month:          entry.Month,
			Title:          entry.Title,
			Cached:         true,
			Readable:       entry.Readable,
			LastUpdateTime: entry.LastUpdateTime,
			SubjectCount:   entry.SubjectCount,
			Size:           entry.Size,
		})
	}
	return statuses, nil
}
