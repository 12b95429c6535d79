package v1

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"

	"github.com/gosuda/fuelops/internal/archival"
	"github.com/gosuda/fuelops/internal/domain"
)

const (
	defaultJobsLimit = 50
	apiInitiator     = "api"
)

// ArchivalDeps groups the services behind the archival routes.
type ArchivalDeps struct {
	Runner   ArchivalRunner
	Restorer RecordRestorer
	Stats    StatsProvider
	Jobs     JobReader
	Schedule ScheduleInfo // nil when scheduled runs are disabled
	// RunContext governs runs started through the API. It must outlive the
	// request; the server passes its lifetime context.
	RunContext context.Context //nolint:containedctx // background run lifetime
}

// --- runs ---

type StartRunInput struct {
	Body struct {
		MonthsToKeep         int      `json:"months_to_keep,omitempty" minimum:"0" doc:"Retention for operational collections (default 6)"`
		AuditLogMonthsToKeep int      `json:"audit_log_months_to_keep,omitempty" minimum:"0" doc:"Retention for audit logs (default 12)"`
		DryRun               bool     `json:"dry_run,omitempty" doc:"Count eligible records without moving them"`
		Collections          []string `json:"collections,omitempty" doc:"Collections to archive; empty means all"`
		BatchSize            int      `json:"batch_size,omitempty" minimum:"0" maximum:"10000" doc:"Records per batch (default 1000)"`
		ContinueOnError      bool     `json:"continue_on_error,omitempty" doc:"Keep going after a collection fails"`
		InitiatedBy          string   `json:"initiated_by,omitempty" maxLength:"128" doc:"Recorded on job records (default api)"`
	}
}

type RunResponse struct {
	RunID  *uuid.UUID        `json:"run_id,omitempty"`
	Result *domain.RunResult `json:"result,omitempty"`
}

type StartRunOutput struct {
	Status int
	Body   RunResponse
}

// --- restore ---

type RestoreInput struct {
	Body struct {
		Collection string     `json:"collection" minLength:"1" doc:"Collection to restore into"`
		StartDate  *time.Time `json:"start_date,omitempty" doc:"Earliest archive time, inclusive"`
		EndDate    *time.Time `json:"end_date,omitempty" doc:"Latest archive time, inclusive"`
		OnConflict string     `json:"on_conflict,omitempty" enum:"fail,skip,overwrite" doc:"Behaviour when the identity is already live (default fail)"`
		BatchSize  int        `json:"batch_size,omitempty" minimum:"0" maximum:"10000"`
	}
}

type RestoreOutput struct {
	Body archival.RestoreResult
}

// --- stats ---

type GetStatsOutput struct {
	Body *archival.Stats
}

// --- jobs ---

type ListJobsInput struct {
	Collection string `query:"collection" doc:"Filter by collection"`
	Limit      int    `query:"limit" minimum:"0" maximum:"500" doc:"Maximum number of jobs (default 50)"`
}

type GetJobInput struct {
	ID uuid.UUID `path:"id" doc:"Job ID"`
}

// JobResponse is the wire form of domain.ArchiveJob.
type JobResponse struct {
	ID              uuid.UUID  `json:"id"`
	CollectionName  string     `json:"collection_name"`
	CutoffDate      time.Time  `json:"cutoff_date"`
	InitiatedBy     string     `json:"initiated_by"`
	Status          string     `json:"status"`
	RecordsArchived int64      `json:"records_archived"`
	DurationMS      int64      `json:"duration_ms"`
	StartedAt       time.Time  `json:"started_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	Error           string     `json:"error,omitempty"`
}

type ListJobsOutput struct {
	Body []JobResponse
}

type GetJobOutput struct {
	Body JobResponse
}

// --- schedule ---

type ScheduleResponse struct {
	Enabled  bool       `json:"enabled"`
	Schedule string     `json:"schedule,omitempty"`
	NextRun  *time.Time `json:"next_run,omitempty"`
}

type GetScheduleOutput struct {
	Body ScheduleResponse
}

func RegisterArchivalRoutes(api huma.API, deps ArchivalDeps) {
	huma.Register(api, huma.Operation{
		OperationID:   "start-archival-run",
		Method:        http.MethodPost,
		Path:          "/archival/runs",
		Summary:       "Start an archival run",
		Description:   "Dry runs execute synchronously and return the counts. Real runs start in the background and return the run ID.",
		Tags:          []string{"Archival"},
		DefaultStatus: http.StatusAccepted,
	}, func(ctx context.Context, input *StartRunInput) (*StartRunOutput, error) {
		opts := archival.RunOptions{
			MonthsToKeep:         input.Body.MonthsToKeep,
			AuditLogMonthsToKeep: input.Body.AuditLogMonthsToKeep,
			DryRun:               input.Body.DryRun,
			BatchSize:            input.Body.BatchSize,
			ContinueOnError:      input.Body.ContinueOnError,
		}
		for _, c := range input.Body.Collections {
			opts.Collections = append(opts.Collections, domain.EntityType(c))
		}
		initiatedBy := input.Body.InitiatedBy
		if initiatedBy == "" {
			initiatedBy = apiInitiator
		}

		if opts.DryRun {
			result, err := deps.Runner.Run(ctx, opts, initiatedBy)
			if err != nil {
				return nil, archivalError("failed to start dry run", err)
			}
			return &StartRunOutput{Status: http.StatusOK, Body: RunResponse{Result: result}}, nil
		}

		runCtx := deps.RunContext
		if runCtx == nil {
			runCtx = context.WithoutCancel(ctx)
		}
		runID, _, err := deps.Runner.Start(runCtx, opts, initiatedBy)
		if err != nil {
			return nil, archivalError("failed to start archival run", err)
		}
		return &StartRunOutput{Status: http.StatusAccepted, Body: RunResponse{RunID: &runID}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "restore-archived-records",
		Method:      http.MethodPost,
		Path:        "/archival/restore",
		Summary:     "Restore archived records into the live store",
		Tags:        []string{"Archival"},
	}, func(ctx context.Context, input *RestoreInput) (*RestoreOutput, error) {
		result, err := deps.Restorer.Restore(ctx, archival.RestoreRequest{
			EntityType: domain.EntityType(input.Body.Collection),
			StartDate:  input.Body.StartDate,
			EndDate:    input.Body.EndDate,
			OnConflict: domain.ConflictPolicy(input.Body.OnConflict),
			BatchSize:  input.Body.BatchSize,
		})
		if err != nil {
			return nil, archivalError("failed to restore records", err)
		}
		return &RestoreOutput{Body: result}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-archival-stats",
		Method:      http.MethodGet,
		Path:        "/archival/stats",
		Summary:     "Get live and archived record counts",
		Tags:        []string{"Archival"},
	}, func(ctx context.Context, _ *struct{}) (*GetStatsOutput, error) {
		stats, err := deps.Stats.Stats(ctx)
		if err != nil {
			return nil, huma.Error500InternalServerError("failed to compute archival stats", err)
		}
		return &GetStatsOutput{Body: stats}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-archival-jobs",
		Method:      http.MethodGet,
		Path:        "/archival/jobs",
		Summary:     "List recent archive jobs",
		Tags:        []string{"Archival"},
	}, func(ctx context.Context, input *ListJobsInput) (*ListJobsOutput, error) {
		limit := input.Limit
		if limit == 0 {
			limit = defaultJobsLimit
		}

		jobs, err := deps.Jobs.ListRecent(ctx, domain.EntityType(input.Collection), limit)
		if err != nil {
			return nil, huma.Error500InternalServerError("failed to list archive jobs", err)
		}

		out := make([]JobResponse, 0, len(jobs))
		for _, j := range jobs {
			out = append(out, toJobResponse(j))
		}
		return &ListJobsOutput{Body: out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-archival-job",
		Method:      http.MethodGet,
		Path:        "/archival/jobs/{id}",
		Summary:     "Get an archive job",
		Tags:        []string{"Archival"},
	}, func(ctx context.Context, input *GetJobInput) (*GetJobOutput, error) {
		job, err := deps.Jobs.GetByID(ctx, input.ID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, huma.Error404NotFound("archive job not found")
			}
			return nil, huma.Error500InternalServerError("failed to get archive job", err)
		}
		return &GetJobOutput{Body: toJobResponse(job)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-archival-schedule",
		Method:      http.MethodGet,
		Path:        "/archival/schedule",
		Summary:     "Get the scheduled run configuration",
		Tags:        []string{"Archival"},
	}, func(_ context.Context, _ *struct{}) (*GetScheduleOutput, error) {
		if deps.Schedule == nil || !deps.Schedule.IsRunning() {
			return &GetScheduleOutput{}, nil
		}
		return &GetScheduleOutput{Body: ScheduleResponse{
			Enabled:  true,
			Schedule: deps.Schedule.Schedule(),
			NextRun:  deps.Schedule.NextRun(),
		}}, nil
	})
}

// archivalError maps engine errors onto problem responses.
func archivalError(msg string, err error) error {
	switch {
	case errors.Is(err, domain.ErrRunInProgress):
		return huma.Error409Conflict("an archival run is already in progress", err)
	case errors.Is(err, archival.ErrRestoreConflict):
		return huma.Error409Conflict("restored record already exists in the live store", err)
	case errors.Is(err, domain.ErrUnknownEntityType):
		return huma.Error422UnprocessableEntity("unknown collection", err)
	case errors.Is(err, archival.ErrInvalidRequest):
		return huma.Error422UnprocessableEntity(msg, err)
	default:
		return huma.Error500InternalServerError(msg, err)
	}
}

func toJobResponse(j *domain.ArchiveJob) JobResponse {
	return JobResponse{
		ID:              j.ID,
		CollectionName:  string(j.CollectionName),
		CutoffDate:      j.CutoffDate,
		InitiatedBy:     j.InitiatedBy,
		Status:          string(j.Status),
		RecordsArchived: j.RecordsArchived,
		DurationMS:      j.Duration.Milliseconds(),
		StartedAt:       j.StartedAt,
		CompletedAt:     j.CompletedAt,
		Error:           j.Error,
	}
}
