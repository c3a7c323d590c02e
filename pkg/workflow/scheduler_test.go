package workflow

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/letterflow/letterflow/pkg/dedupe"
	"github.com/letterflow/letterflow/pkg/models"
)

type schedulerFixture struct {
	*engineFixture
	matcher   *TriggerMatcher
	scheduler *Scheduler
}

func newSchedulerFixture(t *testing.T) *schedulerFixture {
	t.Helper()

	base := newEngineFixture(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	f := &schedulerFixture{
		engineFixture: base,
		matcher:       NewTriggerMatcher(base.persistence, dedupe.NewMemoryStore(), nil, logger),
	}

	f.scheduler = NewScheduler(SchedulerOptions{
		Persistence: base.persistence,
		Engine:      base.engine,
		Matcher:     f.matcher,
		OwnerID:     "worker-test",
		Logger:      logger,
	})
	f.scheduler.now = func() time.Time { return base.clock }
	f.matcher.now = func() time.Time { return base.clock }

	return f
}

func TestTickAdvancesDueWaitingRun(t *testing.T) {
	f := newSchedulerFixture(t)

	def := &models.Definition{
		Nodes: []*models.Node{
			triggerNode("trigger"),
			waitNode("wait", 1, models.DelayUnitHours),
			emailNode("followup"),
		},
		Edges: []*models.Edge{
			edge("e1", "trigger", "wait"),
			edge("e2", "wait", "followup"),
		},
	}
	f.saveWorkflow(t, def, models.WorkflowStatusActive)
	run := f.startRun(t, def, "sub-1")

	// First pass claims the fresh run and suspends it on the WAIT node.
	f.scheduler.Tick(context.Background())
	assert.Equal(t, models.RunStatusWaiting, f.storedRun(t, run.ID).Status)
	assert.Empty(t, f.email.sent)

	// Not due yet: the waiting run is left alone.
	f.clock = f.clock.Add(30 * time.Minute)
	f.scheduler.Tick(context.Background())
	assert.Equal(t, models.RunStatusWaiting, f.storedRun(t, run.ID).Status)

	f.clock = f.clock.Add(time.Hour)
	f.scheduler.Tick(context.Background())

	assert.Len(t, f.email.sent, 1)
	assert.Equal(t, models.RunStatusCompleted, f.storedRun(t, run.ID).Status)
}

func TestTickFiresDueCustomDateOnce(t *testing.T) {
	f := newSchedulerFixture(t)

	def := linearEmailDefinition()
	date := f.clock.Add(-time.Minute)

	wf := &models.Workflow{
		ID:            "wf-launch",
		PublicationID: "pub-1",
		Name:          "Launch day blast",
		Trigger:       models.TriggerCustomDate,
		TriggerConfig: models.TriggerConfig{Date: &date},
		Status:        models.WorkflowStatusActive,
		IsActive:      true,
		Definition:    def,
	}
	require.NoError(t, f.persistence.WorkflowRepository().Save(context.Background(), wf))

	f.scheduler.Tick(context.Background())

	runs, err := f.persistence.RunRepository().ListByWorkflow(context.Background(), wf.ID)
	require.NoError(t, err)
	require.Len(t, runs, 1)

	stored, err := f.persistence.WorkflowRepository().GetByID(context.Background(), wf.ID)
	require.NoError(t, err)
	assert.NotNil(t, stored.FiredAt)

	// Later passes never fire the workflow again.
	f.clock = f.clock.Add(time.Hour)
	f.scheduler.Tick(context.Background())

	runs, err = f.persistence.RunRepository().ListByWorkflow(context.Background(), wf.ID)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestTickIgnoresFutureCustomDate(t *testing.T) {
	f := newSchedulerFixture(t)

	date := f.clock.Add(time.Hour)
	wf := &models.Workflow{
		ID:            "wf-launch",
		PublicationID: "pub-1",
		Name:          "Launch day blast",
		Trigger:       models.TriggerCustomDate,
		TriggerConfig: models.TriggerConfig{Date: &date},
		Status:        models.WorkflowStatusActive,
		IsActive:      true,
		Definition:    linearEmailDefinition(),
	}
	require.NoError(t, f.persistence.WorkflowRepository().Save(context.Background(), wf))

	f.scheduler.Tick(context.Background())

	runs, err := f.persistence.RunRepository().ListByWorkflow(context.Background(), wf.ID)
	require.NoError(t, err)
	assert.Empty(t, runs)

	stored, err := f.persistence.WorkflowRepository().GetByID(context.Background(), wf.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.FiredAt)
}

func TestTickSkipsRunsClaimedElsewhere(t *testing.T) {
	f := newSchedulerFixture(t)

	def := linearEmailDefinition()
	f.saveWorkflow(t, def, models.WorkflowStatusActive)
	run := f.startRun(t, def, "sub-1")

	// Another worker holds an unexpired claim on the run.
	_, err := f.persistence.RunRepository().ClaimDue(context.Background(), "worker-other", f.clock, time.Minute, 10)
	require.NoError(t, err)

	f.scheduler.Tick(context.Background())
	assert.Empty(t, f.email.sent)

	// Once the lease expires the run is claimable again.
	f.clock = f.clock.Add(5 * time.Minute)
	f.scheduler.Tick(context.Background())

	assert.Len(t, f.email.sent, 1)
	assert.Equal(t, models.RunStatusCompleted, f.storedRun(t, run.ID).Status)
}
