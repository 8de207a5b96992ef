package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdziat/simple-deferred-calls/pkg/codec"
	"github.com/jdziat/simple-deferred-calls/pkg/core"
	"github.com/jdziat/simple-deferred-calls/pkg/delay"
)

type mailer struct {
	mu   sync.Mutex
	sent []string
}

func (m *mailer) Deliver(to string, opts map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, fmt.Sprintf("%s:%v", to, opts["subject"]))
}

func (m *mailer) Bounce() error {
	return errors.New("mailbox full")
}

func (m *mailer) deliveries() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.sent...)
}

type harness struct {
	t      *testing.T
	reg    *delay.Registry
	mailer *mailer
	cfg    string
}

func newHarness(t *testing.T, extra string) *harness {
	t.Helper()
	t.Cleanup(func() { delay.SetDefault(nil) })

	dir := t.TempDir()
	cfg := filepath.Join(dir, "deferred.yaml")
	body := fmt.Sprintf(`
storage:
  driver: sqlite
  dsn: %s?_busy_timeout=5000
worker:
  concurrency: 1
  poll_interval: 10ms
logging:
  level: error
%s`, filepath.Join(dir, "jobs.db"), extra)
	require.NoError(t, os.WriteFile(cfg, []byte(body), 0o600))

	m := &mailer{}
	reg := delay.NewRegistry()
	reg.MustRegister("Mailer", m)

	return &harness{t: t, reg: reg, mailer: m, cfg: cfg}
}

func (h *harness) runCtx(ctx context.Context, stdin string, args ...string) (string, error) {
	cmd := NewRootCommand(h.reg)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--config", h.cfg, "--env-file", filepath.Join(h.t.TempDir(), "none.env")}, args...))
	err := cmd.ExecuteContext(ctx)
	return out.String(), err
}

func (h *harness) run(args ...string) (string, error) {
	return h.runCtx(context.Background(), "", args...)
}

func (h *harness) work(d time.Duration) {
	h.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	_, err := h.runCtx(ctx, "", "work")
	require.NoError(h.t, err)
}

func TestEnqueueInspectWork(t *testing.T) {
	h := newHarness(t, "")

	out, err := h.run("enqueue", "Mailer", "Deliver", "ada@example.com", "--kwarg", "subject=hi")
	require.NoError(t, err)
	id := strings.TrimSpace(out)
	require.NotEmpty(t, id)

	out, err = h.run("inspect")
	require.NoError(t, err)
	assert.Contains(t, out, id)
	assert.Contains(t, out, `Mailer.Deliver("ada@example.com", subject: "hi")`)
	assert.Contains(t, out, "1 of 1 jobs")

	h.work(time.Second)
	assert.Equal(t, []string{"ada@example.com:hi"}, h.mailer.deliveries())

	out, err = h.run("stats")
	require.NoError(t, err)
	assert.Contains(t, out, "QUEUE")
	var row []string
	for _, line := range strings.Split(out, "\n") {
		if f := strings.Fields(line); len(f) == 5 && f[0] == "default" {
			row = f
		}
	}
	assert.Equal(t, []string{"default", "0", "0", "1", "0"}, row)

	out, err = h.run("purge", "--status", "completed")
	require.NoError(t, err)
	assert.Equal(t, "purged 1 jobs\n", out)
}

func TestEnqueue_Scheduled(t *testing.T) {
	h := newHarness(t, "")

	_, err := h.run("enqueue", "Mailer", "Deliver", "bob@example.com", "--in", "1h")
	require.NoError(t, err)

	h.work(200 * time.Millisecond)
	assert.Empty(t, h.mailer.deliveries())

	out, err := h.run("inspect", "--status", "pending")
	require.NoError(t, err)
	assert.Contains(t, out, "Mailer.Deliver")
}

func TestEnqueue_Errors(t *testing.T) {
	h := newHarness(t, "")

	_, err := h.run("enqueue", "Billing", "Charge")
	assert.ErrorIs(t, err, core.ErrUnknownTarget)

	_, err = h.run("enqueue", "Mailer", "Shred")
	assert.ErrorIs(t, err, core.ErrUnknownMethod)

	_, err = h.run("enqueue", "Mailer", "Deliver", "x", "--kwarg", "novalue")
	assert.ErrorContains(t, err, "key=value")

	_, err = h.run("enqueue", "Mailer", "Deliver", "x", "--in", "1h", "--at", "2030-01-01T00:00:00Z")
	assert.ErrorContains(t, err, "mutually exclusive")
}

func TestRetryFailedJob(t *testing.T) {
	h := newHarness(t, "")

	out, err := h.run("enqueue", "Mailer", "Bounce", "--retries", "0")
	require.NoError(t, err)
	id := strings.TrimSpace(out)

	h.work(time.Second)

	out, err = h.run("inspect", "--status", "failed")
	require.NoError(t, err)
	assert.Contains(t, out, id)

	out, err = h.run("retry", id)
	require.NoError(t, err)
	assert.Equal(t, id+"\n", out)

	out, err = h.run("inspect", "--status", "pending")
	require.NoError(t, err)
	assert.Contains(t, out, id)

	_, err = h.run("retry", id)
	assert.ErrorContains(t, err, "cannot retry")
}

func TestEnqueue_Sidekiq(t *testing.T) {
	mr := miniredis.RunT(t)
	h := newHarness(t, fmt.Sprintf("submitter: sidekiq\nredis:\n  addr: %s\n  namespace: app\n", mr.Addr()))

	out, err := h.run("enqueue", "Mailer", "Deliver", "ada@example.com", "--queue", "mail")
	require.NoError(t, err)
	assert.Len(t, strings.TrimSpace(out), 24)

	items, err := mr.List("app:queue:mail")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Contains(t, items[0], `"class":"Sidekiq::DelayExtensions::DelayedClass"`)
}

func TestDecode(t *testing.T) {
	h := newHarness(t, "")
	payload, err := codec.Encode(codec.Record{
		Target: "Report",
		Method: "generate",
		Args:   []any{2024},
		Kwargs: map[string]any{"format": "csv"},
	})
	require.NoError(t, err)

	out, err := h.runCtx(context.Background(), payload, "decode")
	require.NoError(t, err)
	assert.Contains(t, out, "target: Report")
	assert.Contains(t, out, "method: generate")
	assert.Contains(t, out, `call:   Report.generate(2024, format: "csv")`)

	out, err = h.run("decode", fmt.Sprintf("[%q]", payload))
	require.NoError(t, err)
	assert.Contains(t, out, "args:   [2024]")

	_, err = h.run("decode", "--", "- !ruby/object:User {}\n- :x\n- []\n")
	assert.ErrorIs(t, err, core.ErrDisallowedType)
}

func TestDecode_RestrictedAllowList(t *testing.T) {
	h := newHarness(t, "codec:\n  allowed_kinds: [\"null\", int, string, symbol, class, seq]\n")
	payload, err := codec.Encode(codec.Record{Target: "Report", Method: "run", Args: []any{1.5}})
	require.NoError(t, err)

	_, err = h.run("decode", "--", payload)
	assert.ErrorIs(t, err, core.ErrDisallowedType)
}

func TestPurge_RejectsActiveStatus(t *testing.T) {
	h := newHarness(t, "")
	_, err := h.run("purge", "--status", "pending")
	assert.ErrorContains(t, err, "--status")
}

func TestTargets(t *testing.T) {
	h := newHarness(t, "")
	out, err := h.run("targets")
	require.NoError(t, err)
	assert.Equal(t, "Mailer\n", out)
}

func TestParseValue(t *testing.T) {
	tests := map[string]any{
		"2024":       2024,
		"csv":        "csv",
		"true":       true,
		"1.5":        1.5,
		"[1, 2]":     []any{1, 2},
		"":           nil,
		"2024-03-01": codec.Date{Year: 2024, Month: time.March, Day: 1},
		":weekly":    codec.Symbol("weekly"),
		"{a: 1}":     map[string]any{"a": 1},
	}
	for raw, want := range tests {
		got, err := parseValue(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got, raw)
	}
}

func TestParseValue_PsychTime(t *testing.T) {
	got, err := parseValue("2024-01-02 03:04:05.000000000 Z")
	require.NoError(t, err)
	ts, ok := got.(time.Time)
	require.True(t, ok, "got %T", got)
	assert.True(t, ts.Equal(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)))

	_, err = parseValue("!ruby/object:User {}")
	assert.ErrorIs(t, err, core.ErrDisallowedType)
}

func TestDescribe_BoundsCycles(t *testing.T) {
	cycle := []any{nil}
	cycle[0] = cycle

	out := describe(codec.Record{Target: "Report", Method: "run", Args: []any{cycle}})
	assert.True(t, strings.HasPrefix(out, "Report.run([[[["))
	assert.Contains(t, out, "[...]")
}
