// Package sidekiq submits deferred calls to a Sidekiq-compatible Redis.
//
// Jobs are written in Sidekiq's wire format, so a Ruby Sidekiq process with
// the delay extensions loaded can run calls captured in Go, and the other
// way round.
package sidekiq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/jdziat/simple-deferred-calls/pkg/core"
	"github.com/jdziat/simple-deferred-calls/pkg/delay"
	"github.com/jdziat/simple-deferred-calls/pkg/security"
)

// DelayedClass is the Ruby worker class that replays deferred class calls.
const DelayedClass = "Sidekiq::DelayExtensions::DelayedClass"

// Payload is a Sidekiq job as stored in Redis.
type Payload struct {
	Class      string   `json:"class"`
	Args       []string `json:"args"`
	Queue      string   `json:"queue"`
	JID        string   `json:"jid"`
	Retry      any      `json:"retry"`
	CreatedAt  float64  `json:"created_at"`
	EnqueuedAt float64  `json:"enqueued_at,omitempty"`
	At         float64  `json:"at,omitempty"`
}

// Client pushes jobs the way Sidekiq::Client does.
type Client struct {
	rdb          redis.UniversalClient
	namespace    string
	defaultQueue string
	classes      map[string]string
	uniqueTTL    time.Duration
	logger       *slog.Logger
	now          func() time.Time
}

var _ delay.Submitter = (*Client)(nil)

// Option configures a Client.
type Option interface {
	applyClient(*Client)
}

type optionFunc func(*Client)

func (f optionFunc) applyClient(c *Client) { f(c) }

// WithNamespace prefixes every key with ns and a colon, as redis-namespace does.
func WithNamespace(ns string) Option {
	return optionFunc(func(c *Client) {
		c.namespace = ns
	})
}

// WithDefaultQueue sets the queue used when a call names none.
func WithDefaultQueue(name string) Option {
	return optionFunc(func(c *Client) {
		c.defaultQueue = name
	})
}

// WithClass maps a job type to the Ruby class that runs it.
func WithClass(jobType, class string) Option {
	return optionFunc(func(c *Client) {
		c.classes[jobType] = class
	})
}

// DefaultUniqueTTL is how long a unique key blocks duplicates unless
// WithUniqueTTL says otherwise.
const DefaultUniqueTTL = 24 * time.Hour

// WithUniqueTTL sets how long a unique key blocks duplicates. Sidekiq never
// reports completion, so the lock simply expires.
func WithUniqueTTL(d time.Duration) Option {
	return optionFunc(func(c *Client) {
		c.uniqueTTL = d
	})
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(c *Client) {
		c.logger = l
	})
}

// NewClient returns a Client writing through rdb.
func NewClient(rdb redis.UniversalClient, opts ...Option) *Client {
	c := &Client{
		rdb:          rdb,
		defaultQueue: "default",
		classes:      map[string]string{delay.JobType: DelayedClass},
		uniqueTTL:    DefaultUniqueTTL,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt.applyClient(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

func (c *Client) key(parts ...string) string {
	k := strings.Join(parts, ":")
	if c.namespace == "" {
		return k
	}
	return c.namespace + ":" + k
}

// Submit pushes the payload as a Sidekiq job. Calls with At in the future go
// to the schedule sorted set; everything else is pushed onto its queue.
// Priority has no Sidekiq equivalent and is ignored.
func (c *Client) Submit(ctx context.Context, jobType string, payload []string, opts delay.Options) (string, error) {
	queue := opts.Queue
	if queue == "" {
		queue = c.defaultQueue
	}
	if err := security.ValidateQueueName(queue); err != nil {
		return "", err
	}

	class, ok := c.classes[jobType]
	if !ok {
		class = jobType
	}

	now := c.now()
	job := Payload{
		Class:     class,
		Args:      payload,
		Queue:     queue,
		JID:       newJID(),
		Retry:     true,
		CreatedAt: delay.UnixSeconds(now),
	}
	if opts.Retries != nil {
		job.Retry = security.ClampRetries(*opts.Retries)
	}

	scheduled := opts.At != nil && *opts.At > delay.UnixSeconds(now)
	if scheduled {
		job.At = *opts.At
	} else {
		job.EnqueuedAt = job.CreatedAt
	}

	body, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("deferred: marshal sidekiq job: %w", err)
	}
	if len(body) > security.MaxJobArgsSize {
		return "", core.ErrJobArgsTooLarge
	}

	if opts.UniqueKey != "" {
		if err := c.lockUnique(ctx, opts.UniqueKey, job.JID); err != nil {
			return "", err
		}
	}

	_, err = c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if scheduled {
			pipe.ZAdd(ctx, c.key("schedule"), redis.Z{Score: job.At, Member: body})
			return nil
		}
		pipe.SAdd(ctx, c.key("queues"), queue)
		pipe.LPush(ctx, c.key("queue", queue), body)
		return nil
	})
	if err != nil {
		if opts.UniqueKey != "" {
			c.unlockUnique(ctx, opts.UniqueKey, job.JID)
		}
		return "", fmt.Errorf("deferred: push sidekiq job: %w", err)
	}

	c.logger.Debug("sidekiq job pushed", "jid", job.JID, "class", class, "queue", queue, "scheduled", scheduled)
	return job.JID, nil
}

func (c *Client) lockUnique(ctx context.Context, key, jid string) error {
	if err := security.ValidateUniqueKey(key); err != nil {
		return err
	}
	ok, err := c.rdb.SetNX(ctx, c.key("unique", key), jid, c.uniqueTTL).Result()
	if err != nil {
		return fmt.Errorf("deferred: lock unique key: %w", err)
	}
	if !ok {
		return core.ErrDuplicateJob
	}
	return nil
}

// unlockCmd deletes a unique key only while it still names the given jid.
var unlockCmd = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// unlockUnique releases a key taken by lockUnique for a job that never
// reached Redis.
func (c *Client) unlockUnique(ctx context.Context, key, jid string) {
	err := unlockCmd.Run(context.WithoutCancel(ctx), c.rdb, []string{c.key("unique", key)}, jid).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		c.logger.Warn("failed to release unique key", "key", key, "error", err)
	}
}

// Queued returns the jobs waiting on queue, oldest first.
func (c *Client) Queued(ctx context.Context, queue string) ([]Payload, error) {
	raw, err := c.rdb.LRange(ctx, c.key("queue", queue), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Payload, 0, len(raw))
	for i := len(raw) - 1; i >= 0; i-- {
		p, err := parsePayload(raw[i])
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// Scheduled returns the jobs in the schedule set, earliest first.
func (c *Client) Scheduled(ctx context.Context) ([]Payload, error) {
	raw, err := c.rdb.ZRange(ctx, c.key("schedule"), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Payload, 0, len(raw))
	for _, r := range raw {
		p, err := parsePayload(r)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func parsePayload(raw string) (Payload, error) {
	var p Payload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return Payload{}, fmt.Errorf("deferred: decode sidekiq job: %w", err)
	}
	return p, nil
}

// newJID returns 24 hex characters, the shape of SecureRandom.hex(12).
func newJID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:24]
}
