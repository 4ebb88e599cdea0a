package transport

import (
	"context"
	"strings"
	"time"

	"github.com/GriffinCanCode/scopectx/internal/domain/scope"
	"github.com/GriffinCanCode/scopectx/internal/shared/clock"
	"github.com/GriffinCanCode/scopectx/internal/shared/id"
	"github.com/GriffinCanCode/scopectx/internal/shared/utils"
)

// Baggage keys written for jobs. Caller parameters live under
// BaggageJobParamPrefix so they can never overwrite a reserved key.
const (
	BaggageJobID            = "job-id"
	BaggageJobType          = "job-type"
	BaggageJobParamPrefix   = "job-param-"
	BaggageJobName          = "job-name"
	BaggageJobScheduledTime = "job-scheduled-time"
)

// AdHocJob is a one-off unit of background work. All work for one job id
// shares one trace.
type AdHocJob struct {
	ID         string
	Type       string
	Parameters map[string]string
	TenantID   string
	ProjectID  string
}

// ScheduledJob is one run of a recurring job. Every run is its own trace.
type ScheduledJob struct {
	Name          string
	ScheduledTime time.Time
	TenantID      string
	ProjectID     string
}

// JobConfig configures a JobMapper. Zero values select defaults.
type JobConfig struct {
	MaxValueLength int
	IDs            id.Source
	Clock          clock.Clock
}

// JobMapper synthesizes scope values for background work.
type JobMapper struct {
	cfg JobConfig
}

// NewJobMapper creates a job mapper.
func NewJobMapper(cfg JobConfig) *JobMapper {
	if cfg.MaxValueLength <= 0 {
		cfg.MaxValueLength = utils.DefaultMaxHeaderValueLength
	}
	if cfg.IDs == nil {
		cfg.IDs = id.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.System{}
	}
	return &JobMapper{cfg: cfg}
}

// AdHoc maps an ad-hoc job. The correlation id is the job id and there is
// no causation id.
func (m *JobMapper) AdHoc(job AdHocJob, cancel context.Context) (scope.InitValues, error) {
	const op = "transport.AdHoc"
	if utils.IsBlank(job.ID) {
		return scope.InitValues{}, invalid(op, "job id")
	}
	if utils.IsBlank(job.Type) {
		return scope.InitValues{}, invalid(op, "job type")
	}

	bag := make(map[string]string, len(job.Parameters)+2)
	for k, v := range job.Parameters {
		if utils.IsBlank(k) {
			return scope.InitValues{}, invalid(op, "parameter name")
		}
		if utils.IsBlank(v) {
			return scope.InitValues{}, invalid(op, "parameter "+k)
		}
		bag[m.clip(BaggageJobParamPrefix+strings.TrimSpace(k))] = m.clip(v)
	}
	jobID := m.clip(job.ID)
	bag[BaggageJobID] = jobID
	bag[BaggageJobType] = m.clip(job.Type)

	return scope.InitValues{
		CorrelationID: jobID,
		TenantID:      m.clip(job.TenantID),
		ProjectID:     m.clip(job.ProjectID),
		Baggage:       bag,
		Cancellation:  cancel,
	}, nil
}

// Scheduled maps one run of a scheduled job. A fresh correlation id is
// generated per run. A zero ScheduledTime means now.
func (m *JobMapper) Scheduled(job ScheduledJob, cancel context.Context) (scope.InitValues, error) {
	if utils.IsBlank(job.Name) {
		return scope.InitValues{}, invalid("transport.Scheduled", "job name")
	}

	at := job.ScheduledTime
	if at.IsZero() {
		at = m.cfg.Clock.Now()
	}

	return scope.InitValues{
		CorrelationID: m.cfg.IDs.NewID(),
		TenantID:      m.clip(job.TenantID),
		ProjectID:     m.clip(job.ProjectID),
		Baggage: map[string]string{
			BaggageJobName:          m.clip(job.Name),
			BaggageJobScheduledTime: FormatScheduledTime(at),
		},
		Cancellation: cancel,
	}, nil
}

// InitializeAdHoc maps job and initializes c with it.
func (m *JobMapper) InitializeAdHoc(c *scope.Context, job AdHocJob, cancel context.Context) error {
	v, err := m.AdHoc(job, cancel)
	if err != nil {
		return err
	}
	return c.InitializeFrom(v)
}

// InitializeScheduled maps job and initializes c with it.
func (m *JobMapper) InitializeScheduled(c *scope.Context, job ScheduledJob, cancel context.Context) error {
	v, err := m.Scheduled(job, cancel)
	if err != nil {
		return err
	}
	return c.InitializeFrom(v)
}

// FormatScheduledTime renders t as ISO-8601 in UTC.
func FormatScheduledTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func (m *JobMapper) clip(s string) string {
	return strings.TrimSpace(utils.Truncate(s, m.cfg.MaxValueLength))
}

func invalid(op, field string) error {
	return &scope.ValidationError{Op: op, Field: field, Reason: "must not be blank"}
}
