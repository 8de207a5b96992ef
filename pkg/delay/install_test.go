package delay

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdziat/simple-deferred-calls/pkg/codec"
	"github.com/jdziat/simple-deferred-calls/pkg/core"
	"github.com/jdziat/simple-deferred-calls/pkg/queue"
	"github.com/jdziat/simple-deferred-calls/pkg/storage"
	"github.com/jdziat/simple-deferred-calls/pkg/worker"
)

func newSQLiteQueue(t *testing.T) (*queue.Queue, *storage.GormStorage) {
	t.Helper()
	store, err := storage.Open("sqlite", ":memory:", nil)
	require.NoError(t, err)
	require.NoError(t, store.Migrate(context.Background()))
	sqlDB, err := store.DB().DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return queue.New(store), store
}

func TestInstall_IsIdempotent(t *testing.T) {
	t.Cleanup(func() { SetDefault(nil) })
	q, _ := newSQLiteQueue(t)
	reg := NewRegistry()

	first := Install(q, reg)
	h1, ok := q.GetHandler(JobType)
	require.True(t, ok)

	second := Install(q, reg)
	h2, ok := q.GetHandler(JobType)
	require.True(t, ok)

	assert.Same(t, h1, h2, "repeated Install must not replace the handler")
	assert.Same(t, second, Default())
	assert.NotSame(t, first, second)
}

func TestInstall_KeepsHostHandler(t *testing.T) {
	t.Cleanup(func() { SetDefault(nil) })
	q, _ := newSQLiteQueue(t)

	var hostCalls int
	q.Register(JobType, func(ctx context.Context, payload []string) error {
		hostCalls++
		return nil
	})
	h, _ := q.GetHandler(JobType)

	Install(q, NewRegistry())

	got, _ := q.GetHandler(JobType)
	assert.Same(t, h, got)
	require.NoError(t, got.Execute(context.Background(), []byte(`["x"]`)))
	assert.Equal(t, 1, hostCalls)
}

func TestPackageHelpers_NotInstalled(t *testing.T) {
	SetDefault(nil)

	_, err := Delay(&reports{}).Call(context.Background(), "Generate", 2024)
	assert.ErrorIs(t, err, core.ErrNotInstalled)

	_, err = DelayFor(&reports{}, time.Minute).Call(context.Background(), "Generate", 2024)
	assert.ErrorIs(t, err, core.ErrNotInstalled)

	_, err = DelayUntil(&reports{}, time.Now()).Call(context.Background(), "Generate", 2024)
	assert.ErrorIs(t, err, core.ErrNotInstalled)
}

func TestPackageHelpers_UseDefault(t *testing.T) {
	t.Cleanup(func() { SetDefault(nil) })
	q, store := newSQLiteQueue(t)
	reg := NewRegistry()
	rep := &reports{}
	reg.MustRegister("Report", rep)
	Install(q, reg)

	when := time.Now().Add(time.Hour).Truncate(time.Second)
	id, err := DelayUntil(rep, when, Queue("reports")).Call(context.Background(), "Generate", 2024)
	require.NoError(t, err)

	job, err := store.GetJob(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, JobType, job.Type)
	assert.Equal(t, "reports", job.Queue)
	require.NotNil(t, job.RunAt)
	assert.True(t, job.RunAt.Equal(when), "run_at %v want %v", job.RunAt, when)
}

func TestQueueSubmitter_ZeroRetriesStored(t *testing.T) {
	q, store := newSQLiteQueue(t)
	reg := NewRegistry()
	rep := &reports{}
	reg.MustRegister("Report", rep)
	q.RegisterIfAbsent(JobType, NewJob(reg).Handle)

	d := New(reg, NewQueueSubmitter(q))
	id, err := d.Delay(rep, Retries(0)).Call(context.Background(), "Generate", 2024)
	require.NoError(t, err)

	job, err := store.GetJob(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, 0, job.MaxRetries)
}

func TestQueueSubmitter_EmitsCallDeferred(t *testing.T) {
	q, _ := newSQLiteQueue(t)
	reg := NewRegistry()
	rep := &reports{}
	reg.MustRegister("Report", rep)
	q.RegisterIfAbsent(JobType, NewJob(reg).Handle)

	events := q.Events()
	defer q.Unsubscribe(events)

	d := New(reg, NewQueueSubmitter(q))
	id, err := d.DelayFor(rep, time.Minute).Call(context.Background(), "Generate", 2024)
	require.NoError(t, err)

	select {
	case e := <-events:
		cd, ok := e.(*core.CallDeferred)
		require.True(t, ok, "got %T", e)
		assert.Equal(t, id, cd.JobID)
		assert.Equal(t, "Report", cd.Target)
		assert.Equal(t, "Generate", cd.Method)
		require.NotNil(t, cd.RunAt)
	case <-time.After(time.Second):
		t.Fatal("no CallDeferred event")
	}
}

func TestEndToEnd_ReportGenerate(t *testing.T) {
	t.Cleanup(func() { SetDefault(nil) })
	q, store := newSQLiteQueue(t)
	reg := NewRegistry()
	rep := &reports{}
	reg.MustRegister("Report", rep)
	d := Install(q, reg)

	id, err := d.Delay(rep).CallKwargs(context.Background(), "Generate", Kwargs{"format": "csv"}, 2024)
	require.NoError(t, err)
	assert.Empty(t, rep.snapshot(), "nothing runs before the worker")

	job, err := store.GetJob(context.Background(), id)
	require.NoError(t, err)
	payload, ok := job.Payload()
	require.True(t, ok)
	rec, err := codec.Decode(payload)
	require.NoError(t, err)
	assert.Equal(t, codec.Record{
		Target: "Report", Method: "Generate",
		Args: []any{2024}, Kwargs: map[string]any{"format": "csv"},
	}, rec)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() {
		done <- worker.NewWorker(q, worker.PollInterval(10*time.Millisecond)).Start(ctx)
	}()

	require.Eventually(t, func() bool {
		j, err := store.GetJob(context.Background(), id)
		return err == nil && j != nil && j.Status == core.StatusCompleted
	}, 5*time.Second, 20*time.Millisecond)
	cancel()
	<-done

	assert.Equal(t, []reportCall{{Year: 2024, Opts: ReportOptions{Format: "csv"}}}, rep.snapshot())
}
