package delay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jdziat/simple-deferred-calls/pkg/codec"
)

type ReportOptions struct {
	Format string
	DryRun bool `mapstructure:"dry_run"`
}

type reportCall struct {
	Year int
	Opts ReportOptions
}

// reports is the receiver most tests defer calls on.
type reports struct {
	mu    sync.Mutex
	calls []reportCall
	ctx   context.Context
}

func (r *reports) Generate(ctx context.Context, year int, opts ReportOptions) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ctx = ctx
	r.calls = append(r.calls, reportCall{Year: year, Opts: opts})
	return nil
}

func (r *reports) snapshot() []reportCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]reportCall(nil), r.calls...)
}

var errArchiveDown = errors.New("archive unavailable")

// recorder exposes methods covering the binding rules.
type recorder struct {
	mu   sync.Mutex
	got  []any
	fail error
}

func (r *recorder) record(vals ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, vals...)
}

func (r *recorder) Values() []any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]any(nil), r.got...)
}

func (r *recorder) Ping() { r.record("ping") }

func (r *recorder) Add(a int, b int64) int {
	r.record(a, b)
	return int(int64(a) + b)
}

func (r *recorder) Scale(f float64, n uint8) { r.record(f, n) }

func (r *recorder) Tag(ctx context.Context, names ...string) error {
	r.record(len(names))
	for _, n := range names {
		r.record(n)
	}
	return r.fail
}

func (r *recorder) Greet(name string, opts map[string]any) { r.record(name, opts) }

func (r *recorder) Configure(opts *ReportOptions) { r.record(opts) }

func (r *recorder) Archive(ctx context.Context, day time.Time) error {
	r.record(day)
	return errArchiveDown
}

func (r *recorder) Sum(values []int) { r.record(fmt.Sprint(values)) }

func (r *recorder) DeleteInactive(days int) { r.record("delete_inactive", days) }

func (r *recorder) Explode() { panic("boom") }

// submission is one call a recordingSubmitter received.
type submission struct {
	jobType string
	payload []string
	opts    Options
}

type recordingSubmitter struct {
	mu   sync.Mutex
	subs []submission
	err  error
}

func (s *recordingSubmitter) Submit(_ context.Context, jobType string, payload []string, opts Options) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	s.subs = append(s.subs, submission{jobType: jobType, payload: payload, opts: opts})
	return fmt.Sprintf("job-%d", len(s.subs)), nil
}

func (s *recordingSubmitter) last() submission {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subs[len(s.subs)-1]
}

func (s *recordingSubmitter) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// decodeLast decodes the payload of the last submission.
func (s *recordingSubmitter) decodeLast() (codec.Record, error) {
	return codec.Decode(s.last().payload[0])
}

func newTestDelayer(opts ...DelayerOption) (*Delayer, *recordingSubmitter, *reports, *recorder) {
	reg := NewRegistry()
	rep := &reports{}
	rec := &recorder{}
	reg.MustRegister("Report", rep)
	reg.MustRegister("Recorder", rec)
	sub := &recordingSubmitter{}
	return New(reg, sub, opts...), sub, rep, rec
}
