// Package pipeline orchestrates the flow from ingestors to the ingestion
// endpoint: ingest, process, batch, deliver.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"reflect"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/GabrielNunesIT/go-libs/logger"

	"github.com/GabrielNunesIT/azmon-shipper/internal/auth"
	"github.com/GabrielNunesIT/azmon-shipper/internal/config"
	"github.com/GabrielNunesIT/azmon-shipper/internal/deadletter"
	"github.com/GabrielNunesIT/azmon-shipper/internal/delivery"
	"github.com/GabrielNunesIT/azmon-shipper/internal/encoding"
	"github.com/GabrielNunesIT/azmon-shipper/internal/ingestor"
	"github.com/GabrielNunesIT/azmon-shipper/internal/model"
	"github.com/GabrielNunesIT/azmon-shipper/internal/processor"
)

// Pipeline coordinates ingestors, the processor chain, the batcher, and the
// delivery drivers.
type Pipeline struct {
	mu     sync.RWMutex
	cfg    *config.Config
	logger logger.ILogger

	ingestors  map[string]ingestor.Ingestor
	chain      *processor.Chain
	batcher    *Batcher
	authn      *auth.Authenticator
	service    *delivery.Service
	deadletter *deadletter.Writer
}

// options collects test seams for New.
type options struct {
	credential     azcore.TokenCredential
	httpClient     delivery.HTTPDoer
	deadLetterOpts []deadletter.Option
}

// Option configures a Pipeline.
type Option func(*options)

// WithCredential overrides the credential built from configuration.
func WithCredential(cred azcore.TokenCredential) Option {
	return func(o *options) {
		o.credential = cred
	}
}

// WithHTTPClient sets a custom HTTP client for the delivery service.
func WithHTTPClient(client delivery.HTTPDoer) Option {
	return func(o *options) {
		o.httpClient = client
	}
}

// WithDeadLetterOptions forwards options to the dead-letter writer.
func WithDeadLetterOptions(opts ...deadletter.Option) Option {
	return func(o *options) {
		o.deadLetterOpts = append(o.deadLetterOpts, opts...)
	}
}

// New creates a pipeline from configuration. It acquires the initial access
// token before returning, so a misconfigured credential fails here rather
// than on the first delivery.
func New(ctx context.Context, cfg *config.Config, log logger.ILogger, opts ...Option) (*Pipeline, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	p := &Pipeline{
		cfg:    cfg,
		logger: log.SubLogger("Pipeline"),
	}

	if err := p.buildIngestors(); err != nil {
		return nil, fmt.Errorf("building ingestors: %w", err)
	}

	chain, err := buildProcessorChain(cfg)
	if err != nil {
		return nil, fmt.Errorf("building processors: %w", err)
	}
	p.chain = chain

	cred := o.credential
	if cred == nil {
		cred, err = auth.NewCredential(cfg.Azure)
		if err != nil {
			return nil, fmt.Errorf("building credential: %w", err)
		}
	}

	authn, err := auth.NewAuthenticator(ctx, cred, cfg.Azure.TokenRefreshInterval, log)
	if err != nil {
		return nil, fmt.Errorf("acquiring initial token: %w", err)
	}
	p.authn = authn

	var svcOpts []delivery.ServiceOption
	if o.httpClient != nil {
		svcOpts = append(svcOpts, delivery.WithHTTPClient(o.httpClient))
	}
	p.service = delivery.NewService(cfg.Azure, authn, log, svcOpts...)

	p.batcher = NewBatcher(cfg.Batch, encoding.NewEncoder(cfg.Transform))

	p.deadletter = deadletter.NewWriter(cfg.DeadLetter, log, o.deadLetterOpts...)
	if err := p.deadletter.Start(); err != nil {
		return nil, fmt.Errorf("opening dead letter log: %w", err)
	}

	p.logger.Infof("delivering to %s", p.service.Endpoint())
	return p, nil
}

// buildIngestors creates the enabled ingestors.
func (p *Pipeline) buildIngestors() error {
	p.ingestors = make(map[string]ingestor.Ingestor)

	if p.cfg.Ingestors.File.Enabled {
		p.ingestors["file"] = ingestor.NewFileIngestor(p.cfg.Ingestors.File)
	}
	if p.cfg.Ingestors.Journal.Enabled {
		p.ingestors["journal"] = ingestor.NewJournalIngestor(p.cfg.Ingestors.Journal)
	}
	if p.cfg.Ingestors.Stdin.Enabled {
		p.ingestors["stdin"] = ingestor.NewStdinIngestor(p.cfg.Ingestors.Stdin, p.logger)
	}

	if len(p.ingestors) == 0 {
		return fmt.Errorf("no ingestors enabled")
	}

	p.logger.Debugf("built %d ingestors", len(p.ingestors))
	return nil
}

// buildProcessorChain creates the processor chain from config.
func buildProcessorChain(cfg *config.Config) (*processor.Chain, error) {
	chain := processor.NewChain()

	if cfg.Parser.Enabled {
		parser, err := processor.NewParser(cfg.Parser)
		if err != nil {
			return nil, fmt.Errorf("creating parser: %w", err)
		}
		chain.Add(parser)
	}

	if cfg.Enricher.Enabled {
		chain.Add(processor.NewEnricher(cfg.Enricher))
	}

	return chain, nil
}

// Run starts the pipeline and blocks until the context is cancelled or an
// ingestor fails. Cancellation drains: ingestors stop, queued events are
// batched, and pending batches get the shutdown grace period to ship.
func (p *Pipeline) Run(ctx context.Context) error {
	defer p.deadletter.Close()

	eventChan := make(chan *model.LogEvent, p.cfg.Pipeline.BufferSize)
	batchChan := make(chan *delivery.Request, p.cfg.Request.Concurrency)

	// Drivers run on their own context so queued batches still ship during
	// the shutdown grace period.
	driverCtx, driverCancel := context.WithCancel(context.Background())
	defer driverCancel()

	var drivers sync.WaitGroup
	for i := 0; i < p.cfg.Request.Concurrency; i++ {
		drivers.Add(1)
		go func(id int) {
			defer drivers.Done()
			p.runDriver(driverCtx, id, batchChan)
		}(i)
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return p.authn.Run(gCtx)
	})

	var ingest sync.WaitGroup
	p.mu.RLock()
	for name, ing := range p.ingestors {
		raw := make(chan *model.LogEvent, p.cfg.Pipeline.BufferSize)

		g.Go(func() error {
			return p.runIngestor(gCtx, name, ing, raw)
		})

		ingest.Add(1)
		g.Go(func() error {
			defer ingest.Done()
			p.processLoop(gCtx, name, raw, eventChan)
			return nil
		})
	}
	p.mu.RUnlock()

	go func() {
		ingest.Wait()
		close(eventChan)
	}()

	g.Go(func() error {
		p.runBatcher(gCtx, eventChan, batchChan)
		return nil
	})

	// Abandon pending deliveries if shutdown outlives the grace period.
	drained := make(chan struct{})
	go func() {
		<-gCtx.Done()
		timer := time.NewTimer(p.shutdownTimeout())
		defer timer.Stop()
		select {
		case <-drained:
		case <-timer.C:
			p.logger.Warning("shutdown grace period expired, abandoning pending deliveries")
			driverCancel()
		}
	}()

	err := g.Wait()

	drivers.Wait()
	close(drained)

	p.logger.Debug("pipeline stopped")
	return err
}

// runIngestor runs a single ingestor until it finishes or the context ends.
// Cancellation is a clean stop; anything else aborts the run.
func (p *Pipeline) runIngestor(ctx context.Context, name string, ing ingestor.Ingestor, raw chan *model.LogEvent) error {
	p.logger.Debugf("started ingestor: %s", name)

	err := ing.Start(ctx, raw)
	if err != nil && !errors.Is(err, context.Canceled) {
		p.logger.Errorf("ingestor failed: name=%s, error=%v", name, err)
		return fmt.Errorf("ingestor %s: %w", name, err)
	}

	p.logger.Debugf("ingestor stopped: name=%s", name)
	return nil
}

// processLoop runs events from one ingestor through the processor chain and
// forwards them to the shared event channel.
func (p *Pipeline) processLoop(ctx context.Context, name string, raw <-chan *model.LogEvent, out chan<- *model.LogEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-raw:
			if !ok {
				return
			}

			if err := p.processorChain().Process(ctx, event); err != nil {
				p.logger.Debugf("processor error: ingestor=%s, error=%v", name, err)
				continue
			}

			select {
			case out <- event:
			case <-ctx.Done():
				return
			default:
				if p.dropOnFullBuffer() {
					p.logger.Debug("buffer full, dropping event")
					continue
				}
				select {
				case out <- event:
				case <-ctx.Done():
					return
				}
			}
		}
	}
}

// runBatcher accumulates events into batches and hands them to the drivers.
// It owns batchChan and closes it once the event stream ends.
func (p *Pipeline) runBatcher(ctx context.Context, events <-chan *model.LogEvent, batches chan<- *delivery.Request) {
	defer close(batches)

	ticker := time.NewTicker(p.batchTimeout())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// Drain what the processors already queued, then flush.
			for {
				select {
				case event, ok := <-events:
					if !ok {
						p.emit(batches, p.batcher.Flush())
						return
					}
					p.addToBatch(batches, event)
				default:
					p.emit(batches, p.batcher.Flush())
					return
				}
			}

		case event, ok := <-events:
			if !ok {
				p.emit(batches, p.batcher.Flush())
				return
			}
			p.addToBatch(batches, event)

		case <-ticker.C:
			p.emit(batches, p.batcher.Flush())
		}
	}
}

// addToBatch encodes one event into the batcher, emitting any batch the
// addition completed.
func (p *Pipeline) addToBatch(batches chan<- *delivery.Request, event *model.LogEvent) {
	req, err := p.batcher.Add(event)
	if err != nil {
		p.logger.Debugf("encode error, dropping event: %v", err)
		return
	}
	p.emit(batches, req)
}

// emit hands a ready batch to the drivers. The blocking send is the
// pipeline's backpressure: when every driver is busy, batching pauses.
func (p *Pipeline) emit(batches chan<- *delivery.Request, req *delivery.Request) {
	if req != nil {
		batches <- req
	}
}

// runDriver delivers batches until the batch channel closes.
func (p *Pipeline) runDriver(ctx context.Context, id int, batches <-chan *delivery.Request) {
	log := p.logger.SubLogger(fmt.Sprintf("Driver-%d", id))
	for req := range batches {
		p.deliver(ctx, log, req)
	}
}

// deliver sends one batch, retrying per the classifier's verdict until the
// batch ships, is rejected, runs out of attempts, or the context ends.
// Rejected and exhausted batches go to the dead-letter log.
func (p *Pipeline) deliver(ctx context.Context, log logger.ILogger, req *delivery.Request) {
	reqCfg := p.requestConfig()
	backoff := reqCfg.RetryInitialBackoff

	for attempt := 1; ; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, reqCfg.Timeout)
		res, err := p.service.Send(attemptCtx, req)
		cancel()

		action := delivery.Classify(res, err)
		switch action.Verdict {
		case delivery.Successful:
			log.Debugf("batch delivered: events=%d, bytes=%d, attempts=%d", res.Events, res.RawByteSize, attempt)
			return

		case delivery.DontRetry:
			log.Errorf("batch rejected: reason=%q, events=%d", action.Reason, req.Events)
			p.recordDrop(log, action.Reason, req)
			return

		case delivery.Retry:
			if reqCfg.MaxRetries > 0 && attempt >= reqCfg.MaxRetries {
				log.Errorf("batch dropped after %d attempts: reason=%q", attempt, action.Reason)
				p.recordDrop(log, action.Reason, req)
				return
			}
			log.Warningf("delivery attempt %d failed, retrying in %s: reason=%q", attempt, backoff, action.Reason)
		}

		select {
		case <-time.After(jitter(backoff)):
		case <-ctx.Done():
			log.Warningf("delivery abandoned at shutdown: events=%d", req.Events)
			return
		}

		backoff *= 2
		if backoff > reqCfg.RetryMaxBackoff {
			backoff = reqCfg.RetryMaxBackoff
		}
	}
}

// recordDrop writes a dropped batch to the dead-letter log.
func (p *Pipeline) recordDrop(log logger.ILogger, reason string, req *delivery.Request) {
	if err := p.deadletter.Record(reason, req.Events, req.Body); err != nil {
		log.Errorf("dead letter write failed: %v", err)
	}
}

// jitter randomizes a backoff delay within ±25%.
func jitter(d time.Duration) time.Duration {
	return time.Duration(float64(d) * (0.75 + rand.Float64()*0.5))
}

// Reconfigure applies settings that are safe to change while running:
// parser, enricher, transform shape, batch limits, and retry settings.
// Ingestor, endpoint, credential, concurrency and dead-letter changes take
// effect on restart.
func (p *Pipeline) Reconfigure(newCfg *config.Config) error {
	chain, err := buildProcessorChain(newCfg)
	if err != nil {
		return fmt.Errorf("building processors: %w", err)
	}

	p.mu.Lock()
	oldCfg := p.cfg
	p.cfg = newCfg
	p.chain = chain
	p.mu.Unlock()

	p.batcher.Reconfigure(newCfg.Batch, encoding.NewEncoder(newCfg.Transform))

	if restartNeeded(oldCfg, newCfg) {
		p.logger.Warning("some changes (ingestors, endpoint, credentials, concurrency, dead letter) take effect on restart")
	}

	p.logger.Info("configuration applied")
	return nil
}

// restartNeeded reports whether the new config touches components that are
// built once at startup.
func restartNeeded(oldCfg, newCfg *config.Config) bool {
	if oldCfg.Azure != newCfg.Azure {
		return true
	}
	if !reflect.DeepEqual(oldCfg.Ingestors, newCfg.Ingestors) {
		return true
	}
	if oldCfg.Request.Concurrency != newCfg.Request.Concurrency {
		return true
	}
	if oldCfg.Batch.Timeout != newCfg.Batch.Timeout {
		return true
	}
	return oldCfg.DeadLetter != newCfg.DeadLetter
}

// IngestorCount returns the number of enabled ingestors.
func (p *Pipeline) IngestorCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.ingestors)
}

func (p *Pipeline) processorChain() *processor.Chain {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.chain
}

func (p *Pipeline) dropOnFullBuffer() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cfg.Pipeline.DropOnFullBuffer
}

func (p *Pipeline) requestConfig() config.RequestConfig {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cfg.Request
}

func (p *Pipeline) batchTimeout() time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cfg.Batch.Timeout
}

func (p *Pipeline) shutdownTimeout() time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cfg.Pipeline.ShutdownTimeout
}
