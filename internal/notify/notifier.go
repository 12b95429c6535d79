package notify

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/fuelops/internal/domain"
	"github.com/gosuda/fuelops/internal/messenger"
)

// ErrPlatformNotFound is returned when a messenger platform is not registered.
var ErrPlatformNotFound = errors.New("notify: platform not found") //nolint:gochecknoglobals // sentinel error

// MessengerRegistry maps platform names to Messenger implementations.
type MessengerRegistry interface {
	Get(platform string) (messenger.Messenger, bool)
}

// Target is one channel on one platform that receives run reports.
type Target struct {
	Platform  string
	ChannelID string
}

// Notifier reports finished archival runs to the configured chat channels.
type Notifier struct {
	messengers MessengerRegistry
	targets    []Target
}

// New creates a Notifier that posts to every target.
func New(messengers MessengerRegistry, targets ...Target) *Notifier {
	return &Notifier{
		messengers: messengers,
		targets:    targets,
	}
}

// NotifyRun posts the run report to every target. A failing target does not
// stop delivery to the others; all failures are returned together.
// With no targets configured the report is only logged.
func (n *Notifier) NotifyRun(ctx context.Context, runID uuid.UUID, result *domain.RunResult) error {
	report := BuildRunReport(runID, result)

	if len(n.targets) == 0 {
		log.Info().Str("run_id", runID.String()).Str("title", report.Title).Msg("notify: no targets configured")
		return nil
	}

	var errs []error
	for _, t := range n.targets {
		if err := n.NotifyVia(ctx, t.Platform, t.ChannelID, report); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify.Notifier.NotifyRun: %w", errors.Join(errs...))
	}

	return nil
}

// NotifyVia sends a report using a specific platform and channel directly.
func (n *Notifier) NotifyVia(ctx context.Context, platform, channelID string, report messenger.Report) error {
	msg, ok := n.messengers.Get(platform)
	if !ok {
		return fmt.Errorf("notify.Notifier.NotifyVia: platform %q: %w", platform, ErrPlatformNotFound)
	}

	if _, err := msg.SendReport(ctx, channelID, report); err != nil {
		return fmt.Errorf("notify.Notifier.NotifyVia: send: %w", err)
	}

	return nil
}

// BuildRunReport summarizes a run: "N records archived in M ms" on success,
// the error list otherwise. Per-collection counts are listed in name order.
func BuildRunReport(runID uuid.UUID, result *domain.RunResult) messenger.Report {
	ms := result.TotalDuration.Milliseconds()
	report := messenger.Report{
		Success: result.Success,
		Title:   fmt.Sprintf("%d records archived in %d ms", result.TotalRecordsArchived, ms),
	}
	if !result.Success {
		report.Title = fmt.Sprintf("Archival run failed after %d records in %d ms", result.TotalRecordsArchived, ms)
	}

	names := make([]string, 0, len(result.CollectionsArchived))
	for et := range result.CollectionsArchived {
		names = append(names, string(et))
	}
	sort.Strings(names)
	for _, name := range names {
		cr := result.CollectionsArchived[domain.EntityType(name)]
		report.Fields = append(report.Fields, messenger.Field{
			Label: name,
			Value: strconv.FormatInt(cr.RecordsArchived, 10),
		})
	}

	report.Details = append(report.Details, "run "+runID.String())
	for _, et := range result.Skipped {
		report.Details = append(report.Details, "skipped "+string(et))
	}
	report.Details = append(report.Details, result.Errors...)

	return report
}
