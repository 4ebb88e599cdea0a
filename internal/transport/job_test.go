package transport

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/scopectx/internal/domain/scope"
	"github.com/GriffinCanCode/scopectx/internal/shared/clock"
)

// Scenario C.
func TestAdHocParametersCannotCollide(t *testing.T) {
	m := NewJobMapper(JobConfig{})
	v, err := m.AdHoc(AdHocJob{
		ID:         "job-42",
		Type:       "Sync",
		Parameters: map[string]string{"job-type": "evil"},
	}, context.Background())
	require.NoError(t, err)

	assert.Equal(t, "job-42", v.CorrelationID)
	assert.Empty(t, v.CausationID)
	assert.Equal(t, "Sync", v.Baggage[BaggageJobType])
	assert.Equal(t, "evil", v.Baggage["job-param-job-type"])
	assert.Equal(t, "job-42", v.Baggage[BaggageJobID])
}

func TestAdHocValidation(t *testing.T) {
	tests := []struct {
		name string
		job  AdHocJob
	}{
		{"blank id", AdHocJob{ID: " ", Type: "Sync"}},
		{"blank type", AdHocJob{ID: "job-1"}},
		{"blank parameter name", AdHocJob{ID: "job-1", Type: "Sync", Parameters: map[string]string{"": "x"}}},
		{"blank parameter value", AdHocJob{ID: "job-1", Type: "Sync", Parameters: map[string]string{"k": ""}}},
	}

	m := NewJobMapper(JobConfig{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.AdHoc(tt.job, context.Background())
			assert.True(t, scope.IsValidation(err))
		})
	}
}

func TestAdHocSameJobSameTrace(t *testing.T) {
	m := NewJobMapper(JobConfig{})
	job := AdHocJob{ID: "job-7", Type: "Reindex", TenantID: "tenant-a"}

	first, err := m.AdHoc(job, context.Background())
	require.NoError(t, err)
	second, err := m.AdHoc(job, context.Background())
	require.NoError(t, err)

	assert.Equal(t, first.CorrelationID, second.CorrelationID)
	assert.Equal(t, "tenant-a", first.TenantID)
}

func TestScheduled(t *testing.T) {
	n := 0
	m := NewJobMapper(JobConfig{IDs: fixedSeq(&n)})
	at := time.Date(2026, 2, 3, 4, 5, 6, 0, time.FixedZone("CET", 3600))

	first, err := m.Scheduled(ScheduledJob{Name: "nightly-report", ScheduledTime: at}, context.Background())
	require.NoError(t, err)
	second, err := m.Scheduled(ScheduledJob{Name: "nightly-report", ScheduledTime: at}, context.Background())
	require.NoError(t, err)

	assert.NotEqual(t, first.CorrelationID, second.CorrelationID, "each run is its own trace")
	assert.Empty(t, first.CausationID)
	assert.Equal(t, "nightly-report", first.Baggage[BaggageJobName])
	assert.Equal(t, "2026-02-03T03:05:06Z", first.Baggage[BaggageJobScheduledTime])

	_, err = m.Scheduled(ScheduledJob{}, context.Background())
	assert.True(t, scope.IsValidation(err))
}

func TestScheduledDefaultsToNow(t *testing.T) {
	clk := clock.NewManual(time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC))
	m := NewJobMapper(JobConfig{Clock: clk})

	v, err := m.Scheduled(ScheduledJob{Name: "tick"}, context.Background())
	require.NoError(t, err)
	assert.Equal(t, "2026-06-01T00:00:00Z", v.Baggage[BaggageJobScheduledTime])
}

func TestJobInitialize(t *testing.T) {
	m := NewJobMapper(JobConfig{})

	sc := newScope(t)
	require.NoError(t, m.InitializeAdHoc(sc, AdHocJob{ID: "job-1", Type: "Sync"}, context.Background()))
	corr, _ := sc.CorrelationID()
	assert.Equal(t, "job-1", corr)

	sched := newScope(t)
	require.NoError(t, m.InitializeScheduled(sched, ScheduledJob{Name: "tick"}, context.Background()))
	v, ok, _ := sched.BaggageItem(BaggageJobName)
	assert.True(t, ok)
	assert.Equal(t, "tick", v)

	bad := newScope(t)
	assert.Error(t, m.InitializeAdHoc(bad, AdHocJob{}, context.Background()))
	assert.False(t, bad.IsInitialized())
}
