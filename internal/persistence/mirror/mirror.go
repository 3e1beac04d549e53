// Package mirror copies written save files to off-box object storage. Uploads run on
// worker goroutines; a full queue drops the job rather than stalling the caller.
package mirror

import (
	"context"
	"log"
	"path"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type Uploader interface {
	Put(ctx context.Context, key string, body []byte) error
}

type Stats struct {
	QueueDepth         int    `json:"queue_depth"`
	QueueCapacity      int    `json:"queue_capacity"`
	EnqueuedTotal      uint64 `json:"enqueued_total"`
	DroppedTotal       uint64 `json:"dropped_total"`
	UploadSuccessTotal uint64 `json:"upload_success_total"`
	UploadFailTotal    uint64 `json:"upload_fail_total"`
	LastSuccessUnix    int64  `json:"last_success_unix"`
	LastErrorUnix      int64  `json:"last_error_unix"`
}

type Options struct {
	// Prefix is prepended to every key.
	Prefix        string
	Workers       int
	QueueCapacity int
	MaxAttempts   int
	// Backoff before attempt n+1 is n*n*Backoff.
	Backoff time.Duration
	Logger  *log.Logger
}

type job struct {
	key  string
	body []byte
}

type Mirror struct {
	up   Uploader
	opts Options

	jobs chan job
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	enqueued  atomic.Uint64
	dropped   atomic.Uint64
	succeeded atomic.Uint64
	failed    atomic.Uint64
	lastOK    atomic.Int64
	lastErr   atomic.Int64
}

func New(up Uploader, opts Options) *Mirror {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.QueueCapacity <= 0 {
		opts.QueueCapacity = 64
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 4
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 200 * time.Millisecond
	}
	opts.Prefix = strings.Trim(strings.ReplaceAll(opts.Prefix, "\\", "/"), "/")
	m := &Mirror{up: up, opts: opts, jobs: make(chan job, opts.QueueCapacity)}
	for i := 0; i < opts.Workers; i++ {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			for j := range m.jobs {
				m.upload(j)
			}
		}()
	}
	return m
}

// Enqueue schedules body for upload under key. It never blocks and must not race
// with Close.
func (m *Mirror) Enqueue(key string, body []byte) {
	if m == nil || m.closed.Load() {
		return
	}
	if m.opts.Prefix != "" {
		key = path.Join(m.opts.Prefix, key)
	}
	m.enqueued.Add(1)
	select {
	case m.jobs <- job{key: key, body: body}:
	default:
		n := m.dropped.Add(1)
		m.printf("mirror drop key=%s reason=queue_full dropped_total=%d", key, n)
	}
}

// Close waits for queued uploads to finish.
func (m *Mirror) Close() {
	if m == nil {
		return
	}
	m.once.Do(func() {
		m.closed.Store(true)
		close(m.jobs)
	})
	m.wg.Wait()
}

func (m *Mirror) Stats() Stats {
	if m == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:         len(m.jobs),
		QueueCapacity:      cap(m.jobs),
		EnqueuedTotal:      m.enqueued.Load(),
		DroppedTotal:       m.dropped.Load(),
		UploadSuccessTotal: m.succeeded.Load(),
		UploadFailTotal:    m.failed.Load(),
		LastSuccessUnix:    m.lastOK.Load(),
		LastErrorUnix:      m.lastErr.Load(),
	}
}

func (m *Mirror) upload(j job) {
	var err error
	for attempt := 1; attempt <= m.opts.MaxAttempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		err = m.up.Put(ctx, j.key, j.body)
		cancel()
		if err == nil {
			m.succeeded.Add(1)
			m.lastOK.Store(time.Now().Unix())
			m.printf("mirror uploaded key=%s bytes=%d", j.key, len(j.body))
			return
		}
		if attempt < m.opts.MaxAttempts {
			time.Sleep(time.Duration(attempt*attempt) * m.opts.Backoff)
		}
	}
	m.failed.Add(1)
	m.lastErr.Store(time.Now().Unix())
	m.printf("mirror upload failed key=%s err=%v", j.key, err)
}

func (m *Mirror) printf(format string, args ...any) {
	if m.opts.Logger != nil {
		m.opts.Logger.Printf(format, args...)
	}
}
