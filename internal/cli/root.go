// Package cli implements the resortctl command tree.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"resortbook/internal/app"
	"resortbook/internal/config"
	"resortbook/internal/domain"
	"resortbook/internal/logging"
	"resortbook/internal/models"
	"resortbook/internal/service"

	"github.com/spf13/cobra"
)

const (
	exitFailure  = 1
	exitConflict = 2
)

// Opener builds the application for one command invocation. The returned
// release func closes whatever the opener acquired.
type Opener func(ctx context.Context, configPath string) (*app.App, func(), error)

type env struct {
	configPath string
	timeout    time.Duration
	open       Opener
}

func NewRoot(open Opener) *cobra.Command {
	e := &env{open: open}
	cmd := &cobra.Command{
		Use:           "resortctl",
		Short:         "Resort booking administration",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&e.configPath, "config", defaultConfigPath(), "path to config file")
	cmd.PersistentFlags().DurationVar(&e.timeout, "timeout", 30*time.Second, "command timeout")

	cmd.AddCommand(newCheckCmd(e))
	cmd.AddCommand(newCreateCmd(e))
	cmd.AddCommand(newGetCmd(e))
	cmd.AddCommand(newApproveCmd(e))
	cmd.AddCommand(newStatusCmd(e, "reject", "Reject a pending booking", (*service.BookingService).RejectBooking))
	cmd.AddCommand(newStatusCmd(e, "cancel", "Cancel a pending booking", (*service.BookingService).CancelBooking))
	cmd.AddCommand(newStatusCmd(e, "complete", "Mark an approved booking completed", (*service.BookingService).CompleteBooking))
	cmd.AddCommand(newDeleteCmd(e))
	cmd.AddCommand(newCalendarCmd(e))
	cmd.AddCommand(newSlotsCmd(e))
	cmd.AddCommand(newAccommodationCmd(e))
	cmd.AddCommand(newOutboxCmd(e))
	return cmd
}

// ExitCode maps a command error to the process exit status.
func ExitCode(err error) int {
	if domain.IsConflict(err) {
		return exitConflict
	}
	return exitFailure
}

// DefaultOpener loads the config file and wires the application with logs
// kept off stdout, which carries command output.
func DefaultOpener(ctx context.Context, configPath string) (*app.App, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if cfg.Logging.Output != "file" {
		cfg.Logging.Output = "stderr"
	}

	logger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}
	cliLogger := logger.With().Str("component", "resortctl").Logger()

	a, err := app.New(ctx, cfg, &cliLogger)
	if err != nil {
		if closer != nil {
			_ = closer.Close()
		}
		return nil, nil, err
	}
	return a, func() {
		a.Close()
		if closer != nil {
			_ = closer.Close()
		}
	}, nil
}

func defaultConfigPath() string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	return "configs/config.yaml"
}

// run opens the application, runs fn and writes its result as JSON.
func (e *env) run(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) (interface{}, error)) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), e.timeout)
	defer cancel()

	a, release, err := e.open(ctx, e.configPath)
	if err != nil {
		return err
	}
	defer release()

	out, err := fn(ctx, a)
	if err != nil {
		// Refused checks still print the verdict.
		if v, ok := out.(models.Verdict); ok {
			_ = writeJSON(cmd.OutOrStdout(), v)
		}
		return err
	}
	return writeJSON(cmd.OutOrStdout(), out)
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.NewValidationError("id", "invalid booking id %q", raw)
	}
	return id, nil
}

func parseKind(raw string) (models.BookingKind, error) {
	kind := models.BookingKind(raw)
	if !kind.Valid() {
		return "", domain.NewValidationError("kind", "unknown booking kind %q", raw)
	}
	return kind, nil
}

func parseDate(field, raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, domain.NewValidationError(field, "is required")
	}
	d, err := models.ParseDate(raw)
	if err != nil {
		return time.Time{}, domain.NewValidationError(field, "invalid date %q", raw)
	}
	return d, nil
}

func parseOptionalDate(field, raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	d, err := parseDate(field, raw)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// verdictError turns an unavailable verdict into a conflict so the exit
// status reflects it.
func verdictError(v models.Verdict) error {
	if v.Available {
		return nil
	}
	return domain.ConflictFromVerdict(v)
}
