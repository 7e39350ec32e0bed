package cli

import (
	"context"

	"resortbook/internal/app"
	"resortbook/internal/models"
	"resortbook/internal/service"

	"github.com/spf13/cobra"
)

func newCheckCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check availability without booking",
	}
	cmd.AddCommand(newCheckRegularCmd(e))
	cmd.AddCommand(newCheckEventCmd(e))
	return cmd
}

func newCheckRegularCmd(e *env) *cobra.Command {
	var (
		accommodationID, excludeID int64
		checkIn, checkOut          string
	)
	c := &cobra.Command{
		Use:   "regular",
		Short: "Check a regular booking request",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.run(cmd, func(ctx context.Context, a *app.App) (interface{}, error) {
				in, err := parseDate("check_in", checkIn)
				if err != nil {
					return nil, err
				}
				out, err := parseOptionalDate("check_out", checkOut)
				if err != nil {
					return nil, err
				}
				v, err := a.Availability.CheckRegularBookingAvailability(ctx, accommodationID, in, out, excludeID)
				if err != nil {
					return nil, err
				}
				return v, verdictError(v)
			})
		},
	}
	c.Flags().Int64Var(&accommodationID, "accommodation", 0, "accommodation id")
	c.Flags().StringVar(&checkIn, "check-in", "", "check-in date (YYYY-MM-DD)")
	c.Flags().StringVar(&checkOut, "check-out", "", "check-out date (YYYY-MM-DD)")
	c.Flags().Int64Var(&excludeID, "exclude", 0, "booking id to ignore")
	_ = c.MarkFlagRequired("accommodation")
	_ = c.MarkFlagRequired("check-in")
	return c
}

func newCheckEventCmd(e *env) *cobra.Command {
	var (
		excludeID       int64
		date, eventType string
	)
	c := &cobra.Command{
		Use:   "event",
		Short: "Check an event booking request",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.run(cmd, func(ctx context.Context, a *app.App) (interface{}, error) {
				d, err := parseDate("booking_date", date)
				if err != nil {
					return nil, err
				}
				v, err := a.Availability.CheckEventBookingAvailability(ctx, d, models.EventType(eventType), excludeID)
				if err != nil {
					return nil, err
				}
				return v, verdictError(v)
			})
		},
	}
	c.Flags().StringVar(&date, "date", "", "event date (YYYY-MM-DD)")
	c.Flags().StringVar(&eventType, "type", "", "morning, evening or whole_day")
	c.Flags().Int64Var(&excludeID, "exclude", 0, "booking id to ignore")
	_ = c.MarkFlagRequired("date")
	_ = c.MarkFlagRequired("type")
	return c
}

func newCreateCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a pending booking",
	}
	cmd.AddCommand(newCreateRegularCmd(e))
	cmd.AddCommand(newCreateEventCmd(e))
	return cmd
}

func newCreateRegularCmd(e *env) *cobra.Command {
	var (
		b                 models.RegularBooking
		accType, slot     string
		checkIn, checkOut string
	)
	c := &cobra.Command{
		Use:   "regular",
		Short: "Create a regular booking",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.run(cmd, func(ctx context.Context, a *app.App) (interface{}, error) {
				var err error
				if b.CheckIn, err = parseDate("check_in", checkIn); err != nil {
					return nil, err
				}
				if b.CheckOut, err = parseOptionalDate("check_out", checkOut); err != nil {
					return nil, err
				}
				b.AccommodationType = models.AccommodationType(accType)
				b.TimeSlot = models.TimeSlot(slot)
				if err := a.Bookings.CreateRegularBooking(ctx, &b); err != nil {
					return nil, err
				}
				return &b, nil
			})
		},
	}
	c.Flags().Int64Var(&b.AccommodationID, "accommodation", 0, "accommodation id")
	c.Flags().StringVar(&accType, "accommodation-type", string(models.AccommodationRoom), "room or cottage")
	c.Flags().StringVar(&checkIn, "check-in", "", "check-in date (YYYY-MM-DD)")
	c.Flags().StringVar(&checkOut, "check-out", "", "check-out date (YYYY-MM-DD)")
	c.Flags().StringVar(&slot, "slot", "", "morning, night or whole_day")
	c.Flags().StringVar(&b.OwnerContact, "contact", "", "owner contact")
	c.Flags().Int64Var(&b.UserID, "user", 0, "owner user id")
	c.Flags().Float64Var(&b.TotalPrice, "price", 0, "total price")
	_ = c.MarkFlagRequired("accommodation")
	_ = c.MarkFlagRequired("check-in")
	_ = c.MarkFlagRequired("slot")
	return c
}

func newCreateEventCmd(e *env) *cobra.Command {
	var (
		b               models.EventBooking
		date, eventType string
	)
	c := &cobra.Command{
		Use:   "event",
		Short: "Create an event booking",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.run(cmd, func(ctx context.Context, a *app.App) (interface{}, error) {
				var err error
				if b.BookingDate, err = parseDate("booking_date", date); err != nil {
					return nil, err
				}
				b.EventType = models.EventType(eventType)
				if err := a.Bookings.CreateEventBooking(ctx, &b); err != nil {
					return nil, err
				}
				return &b, nil
			})
		},
	}
	c.Flags().StringVar(&date, "date", "", "event date (YYYY-MM-DD)")
	c.Flags().StringVar(&eventType, "type", "", "morning, evening or whole_day")
	c.Flags().StringVar(&b.OwnerContact, "contact", "", "owner contact")
	c.Flags().Int64Var(&b.UserID, "user", 0, "owner user id")
	c.Flags().Float64Var(&b.TotalPrice, "price", 0, "total price")
	_ = c.MarkFlagRequired("date")
	_ = c.MarkFlagRequired("type")
	return c
}

func newGetCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "get <regular|event> <id>",
		Short: "Show a booking",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.run(cmd, func(ctx context.Context, a *app.App) (interface{}, error) {
				kind, err := parseKind(args[0])
				if err != nil {
					return nil, err
				}
				id, err := parseID(args[1])
				if err != nil {
					return nil, err
				}
				if kind == models.KindEvent {
					return a.Bookings.GetEventBooking(ctx, id)
				}
				return a.Bookings.GetRegularBooking(ctx, id)
			})
		},
	}
}

func newApproveCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "approve <regular|event> <id>",
		Short: "Approve a booking and reject the pending bookings it conflicts with",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.run(cmd, func(ctx context.Context, a *app.App) (interface{}, error) {
				kind, err := parseKind(args[0])
				if err != nil {
					return nil, err
				}
				id, err := parseID(args[1])
				if err != nil {
					return nil, err
				}
				if kind == models.KindEvent {
					return a.Approval.ApproveEventBooking(ctx, id)
				}
				return a.Approval.ApproveRegularBooking(ctx, id)
			})
		},
	}
}

type statusChange func(s *service.BookingService, ctx context.Context, kind models.BookingKind, id int64) error

type statusOutput struct {
	Kind   models.BookingKind   `json:"kind"`
	ID     int64                `json:"id"`
	Status models.BookingStatus `json:"status"`
}

func newStatusCmd(e *env, use, short string, change statusChange) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <regular|event> <id>",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.run(cmd, func(ctx context.Context, a *app.App) (interface{}, error) {
				kind, err := parseKind(args[0])
				if err != nil {
					return nil, err
				}
				id, err := parseID(args[1])
				if err != nil {
					return nil, err
				}
				if err := change(a.Bookings, ctx, kind, id); err != nil {
					return nil, err
				}
				return currentStatus(ctx, a, kind, id)
			})
		},
	}
}

func currentStatus(ctx context.Context, a *app.App, kind models.BookingKind, id int64) (*statusOutput, error) {
	out := &statusOutput{Kind: kind, ID: id}
	if kind == models.KindEvent {
		b, err := a.Bookings.GetEventBooking(ctx, id)
		if err != nil {
			return nil, err
		}
		out.Status = b.Status
		return out, nil
	}
	b, err := a.Bookings.GetRegularBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	out.Status = b.Status
	return out, nil
}

func newDeleteCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <regular|event> <id>",
		Short: "Delete a rejected or cancelled booking",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.run(cmd, func(ctx context.Context, a *app.App) (interface{}, error) {
				kind, err := parseKind(args[0])
				if err != nil {
					return nil, err
				}
				id, err := parseID(args[1])
				if err != nil {
					return nil, err
				}
				if err := a.Bookings.DeleteBooking(ctx, kind, id); err != nil {
					return nil, err
				}
				return map[string]interface{}{"kind": kind, "id": id, "deleted": true}, nil
			})
		},
	}
}
