// Package pipeline drives the packet sink: it pulls sample batches from a
// source, runs them through the sink, and dispatches completed frames from
// the queue to handlers.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/dbehnke/oqpsk-sink/pkg/logger"
	"github.com/dbehnke/oqpsk-sink/pkg/mac"
	"github.com/dbehnke/oqpsk-sink/pkg/queue"
	"github.com/dbehnke/oqpsk-sink/pkg/sink"
	"github.com/dbehnke/oqpsk-sink/pkg/source"
)

// DefaultBatchSize is the number of samples requested per read
const DefaultBatchSize = 4096

// Decoded is a received frame after MAC parsing
type Decoded struct {
	ID       string
	Session  string
	Seq      uint64
	Received time.Time
	Raw      []byte
	// Frame is nil when the bytes are not a parseable MAC frame
	Frame    *mac.Frame
	ParseErr error
}

// Handler consumes decoded frames
type Handler interface {
	HandleFrame(ctx context.Context, frame Decoded) error
}

// HandlerFunc adapts a function to Handler
type HandlerFunc func(ctx context.Context, frame Decoded) error

// HandleFrame calls f
func (f HandlerFunc) HandleFrame(ctx context.Context, frame Decoded) error {
	return f(ctx, frame)
}

// Monitor receives pipeline-level measurements
type Monitor interface {
	ObserveBatch(samples []float32)
	FrameDropped()
	FCSChecked(valid bool)
	QueueDepth(n int)
}

type nopMonitor struct{}

func (nopMonitor) ObserveBatch([]float32) {}
func (nopMonitor) FrameDropped()          {}
func (nopMonitor) FCSChecked(bool)        {}
func (nopMonitor) QueueDepth(int)         {}

// Config holds pipeline settings
type Config struct {
	BatchSize int
	Monitor   Monitor
}

// Stats counts pipeline activity
type Stats struct {
	Samples       uint64 `json:"samples"`
	Batches       uint64 `json:"batches"`
	Frames        uint64 `json:"frames"`
	Dropped       uint64 `json:"dropped"`
	HandlerErrors uint64 `json:"handler_errors"`
	QueueDepth    int    `json:"queue_depth"`
	QueueLimit    int    `json:"queue_limit"` // 0 means unbounded
}

// Pipeline connects a source, a sink and its queue, and handlers.
// Run may be called once; it closes the queue when it returns.
type Pipeline struct {
	cfg      Config
	sink     *sink.Sink
	queue    *queue.Queue
	log      *logger.Logger
	handlers []Handler
	session  string
	started  time.Time

	samples       atomic.Uint64
	batches       atomic.Uint64
	frames        atomic.Uint64
	dropped       atomic.Uint64
	handlerErrors atomic.Uint64
}

// New creates a pipeline. The sink must enqueue into q.
func New(cfg Config, s *sink.Sink, q *queue.Queue, log *logger.Logger, handlers ...Handler) *Pipeline {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Monitor == nil {
		cfg.Monitor = nopMonitor{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Pipeline{
		cfg:      cfg,
		sink:     s,
		queue:    q,
		log:      log.WithComponent("pipeline"),
		handlers: handlers,
		session:  uuid.NewString(),
		started:  time.Now(),
	}
}

// Session identifies this pipeline run
func (p *Pipeline) Session() string {
	return p.session
}

// Uptime returns the time since the pipeline was created
func (p *Pipeline) Uptime() time.Duration {
	return time.Since(p.started)
}

// Stats returns a snapshot of the counters
func (p *Pipeline) Stats() Stats {
	return Stats{
		Samples:       p.samples.Load(),
		Batches:       p.batches.Load(),
		Frames:        p.frames.Load(),
		Dropped:       p.dropped.Load(),
		HandlerErrors: p.handlerErrors.Load(),
		QueueDepth:    p.queue.Len(),
		QueueLimit:    p.queue.Limit(),
	}
}

// Run processes src until it is exhausted, ctx is cancelled, or the sink
// faults. Frames already queued are dispatched before Run returns. A source
// reaching io.EOF is a clean stop and returns nil.
func (p *Pipeline) Run(ctx context.Context, src source.Source) error {
	p.log.Info("Pipeline starting",
		logger.String("session", p.session),
		logger.Int("batch_size", p.cfg.BatchSize),
		logger.Int("queue_limit", p.queue.Limit()),
		logger.Int("threshold", p.sink.Threshold()))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		// Dispatch outlives ctx so queued frames are drained on shutdown
		p.dispatch(context.WithoutCancel(ctx))
	}()

	err := p.read(ctx, src)

	p.queue.Close()
	wg.Wait()

	stats := p.Stats()
	p.log.Info("Pipeline stopped",
		logger.Uint64("samples", stats.Samples),
		logger.Uint64("frames", stats.Frames),
		logger.Uint64("dropped", stats.Dropped))

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ctx.Err()
	}
	return err
}

func (p *Pipeline) read(ctx context.Context, src source.Source) error {
	buf := make([]float32, p.cfg.BatchSize)
	for {
		n, err := src.Read(ctx, buf)
		if n > 0 {
			if werr := p.work(buf[:n]); werr != nil {
				return werr
			}
		}

		switch {
		case err == nil:
		case errors.Is(err, io.EOF):
			p.log.Info("Sample source exhausted")
			return nil
		case errors.Is(err, source.ErrTruncated):
			p.log.Warn("Sample source ended mid-sample", logger.Error(err))
			return nil
		default:
			return err
		}
	}
}

// work feeds one batch through the sink. A full queue drops the frame that
// completed and processing resumes with the next sample.
func (p *Pipeline) work(batch []float32) error {
	p.batches.Add(1)
	p.samples.Add(uint64(len(batch)))
	p.cfg.Monitor.ObserveBatch(batch)

	for len(batch) > 0 {
		n, err := p.sink.Work(batch)
		batch = batch[n:]
		if err == nil {
			break
		}
		if errors.Is(err, queue.ErrFull) {
			p.dropped.Add(1)
			p.cfg.Monitor.FrameDropped()
			p.log.Warn("Queue full, dropping frame", logger.Int("pending", p.queue.Len()))
			continue
		}
		return fmt.Errorf("sink fault: %w", err)
	}
	p.cfg.Monitor.QueueDepth(p.queue.Len())
	return nil
}

func (p *Pipeline) dispatch(ctx context.Context) {
	for {
		qf, err := p.queue.Dequeue(ctx)
		if err != nil {
			return
		}
		p.cfg.Monitor.QueueDepth(p.queue.Len())
		p.frames.Add(1)

		d := p.decode(qf)
		for _, h := range p.handlers {
			if err := h.HandleFrame(ctx, d); err != nil {
				p.handlerErrors.Add(1)
				p.log.Warn("Frame handler failed",
					logger.String("frame", d.ID),
					logger.Error(err))
			}
		}
	}
}

func (p *Pipeline) decode(qf queue.Frame) Decoded {
	d := Decoded{
		ID:       uuid.NewString(),
		Session:  p.session,
		Seq:      qf.Seq,
		Received: qf.Received,
		Raw:      qf.Data,
	}
	d.Frame, d.ParseErr = mac.Parse(qf.Data)
	if d.Frame != nil {
		p.cfg.Monitor.FCSChecked(d.Frame.FCSValid)
	}
	return d
}
