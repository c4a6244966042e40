package poll

import (
	"context"
	"sync"
	"time"

	"github.com/Alwanly/service-heartbeat-pipeline/pkg/logger"
	"go.uber.org/zap"
)

// poller implements the Poller interface
type poller struct {
	logger     *logger.CanonicalLogger
	stopCh     chan struct{}
	stopOnce   sync.Once
	wg         sync.WaitGroup
	fetchFuncs map[string]MetaFunc
}

// NewPoller creates a new Poller instance
func NewPoller(log *logger.CanonicalLogger) Poller {
	return &poller{
		logger:     log,
		stopCh:     make(chan struct{}),
		fetchFuncs: make(map[string]MetaFunc),
	}
}

// Start begins polling every registered function
func (p *poller) Start(ctx context.Context) error {
	for name, meta := range p.fetchFuncs {
		p.wg.Add(1)
		go p.poll(ctx, name, meta)
	}
	return nil
}

// Stop gracefully stops the poller
func (p *poller) Stop() error {
	p.stopOnce.Do(func() { close(p.stopCh) })
	p.wg.Wait()
	return nil
}

// poll runs one function on its ticker until stopped
func (p *poller) poll(ctx context.Context, name string, meta MetaFunc) {
	defer p.wg.Done()

	ticker := time.NewTicker(meta.Interval)
	defer ticker.Stop()
	p.logger.Info("started polling", zap.String(logger.FieldPollName, name), zap.Duration("interval", meta.Interval))

	if meta.RunImmediately {
		p.performPoll(ctx, name, meta)
	}
	for {
		select {
		case <-p.stopCh:
			p.logger.Info("stopping poller", zap.String(logger.FieldPollName, name))
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.performPoll(ctx, name, meta)
		}
	}
}

// performPoll executes a single poll operation
func (p *poller) performPoll(ctx context.Context, name string, meta MetaFunc) {
	lc := logger.NewLogContext()
	pollCtx := logger.WithLogContext(ctx, lc)
	start := time.Now()

	err := meta.FetchFunc(pollCtx)
	fields := append(lc.Fields(),
		zap.String(logger.FieldPollName, name),
		zap.Int64("duration_ms", time.Since(start).Milliseconds()),
	)
	if err != nil {
		fields = append(fields, zap.Error(err), zap.Bool(logger.FieldSuccess, false))
		p.logger.Error("poll failed", fields...)
		return
	}
	fields = append(fields, zap.Bool(logger.FieldSuccess, true))
	p.logger.Debug("poll completed", fields...)
}

// RegisterFetchFunc registers a fetch function with its polling configuration
func (p *poller) RegisterFetchFunc(name string, fetchFunc FetchFunc, config PollerConfig) {
	if name == "" || fetchFunc == nil || config.Interval <= 0 {
		p.logger.Error("invalid fetch function registration", zap.String(logger.FieldPollName, name))
		return
	}
	if _, exists := p.fetchFuncs[name]; exists {
		panic("name already existing")
	}
	p.fetchFuncs[name] = MetaFunc{
		FetchFunc:    fetchFunc,
		PollerConfig: config,
	}
	p.logger.Info("fetch function registered", zap.String(logger.FieldPollName, name), zap.Duration("interval", config.Interval))
}
