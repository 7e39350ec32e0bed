package cli

import (
	"context"

	"resortbook/internal/app"
	"resortbook/internal/models"

	"github.com/spf13/cobra"
)

func newCalendarCmd(e *env) *cobra.Command {
	var (
		accommodationID int64
		from, to        string
	)
	c := &cobra.Command{
		Use:   "calendar",
		Short: "List unavailable and partially available dates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.run(cmd, func(ctx context.Context, a *app.App) (interface{}, error) {
				start, err := parseDate("from", from)
				if err != nil {
					return nil, err
				}
				end, err := parseDate("to", to)
				if err != nil {
					return nil, err
				}
				return a.Calendar.UnavailableDates(ctx, accommodationID, start, end)
			})
		},
	}
	c.Flags().Int64Var(&accommodationID, "accommodation", 0, "accommodation id, 0 for events only")
	c.Flags().StringVar(&from, "from", "", "first date (YYYY-MM-DD)")
	c.Flags().StringVar(&to, "to", "", "last date (YYYY-MM-DD)")
	_ = c.MarkFlagRequired("from")
	_ = c.MarkFlagRequired("to")
	return c
}

func newSlotsCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "slots",
		Short: "Show the configured slot windows",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.run(cmd, func(ctx context.Context, a *app.App) (interface{}, error) {
				return a.Catalog.Entries(), nil
			})
		},
	}
}

func newAccommodationCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "accommodation <id>",
		Short: "Show the status projection of an accommodation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.run(cmd, func(ctx context.Context, a *app.App) (interface{}, error) {
				id, err := parseID(args[0])
				if err != nil {
					return nil, err
				}
				return a.Store.GetAccommodation(ctx, id)
			})
		},
	}
}

func newOutboxCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "outbox",
		Short: "Inspect and drain the notification outbox",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "failed",
		Short: "List notifications that exhausted their retries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.run(cmd, func(ctx context.Context, a *app.App) (interface{}, error) {
				failed, err := a.Store.GetFailedNotifications(ctx)
				if err != nil {
					return nil, err
				}
				if failed == nil {
					failed = []models.Notification{}
				}
				return failed, nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "flush",
		Short: "Deliver due notifications once and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.run(cmd, func(ctx context.Context, a *app.App) (interface{}, error) {
				return map[string]int{"processed": a.Dispatcher.RunOnce(ctx)}, nil
			})
		},
	})
	return cmd
}
