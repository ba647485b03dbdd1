package etl

import (
	"context"
	"sort"
	"time"

	"github.com/dshills/etlgraph-go/etl/observe"
	"github.com/google/uuid"
)

// Engine is the top-level driver: it builds a Plan from a root Extractor and
// runs it. Grounded on cupyd's core/etl.py, with the per-run identity and
// observability additions described in SPEC_FULL.md §9.
type Engine struct {
	root *Node
	cfg  *engineConfig
	log  *observe.Logger
}

// New builds an Engine rooted at root. root must be a Node of KindExtractor
// returned by NewExtractor; neither New nor BuildPlan checks root's kind.
//
// Example:
//
//	eng, err := etl.New(extractorNode, etl.WithMetrics(prometheus.DefaultRegisterer))
func New(root *Node, opts ...EngineOption) (*Engine, error) {
	cfg := defaultEngineConfig()
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}
	log := observe.NewLogger(cfg.logWriter, cfg.logLevel)
	return &Engine{root: root, cfg: cfg, log: log}, nil
}

// Run builds the plan, launches every segment, and blocks until the graph is
// exhausted, a node fails, or a termination signal arrives. See RunOptions
// for the recognized knobs and ETLExecutionError / InterruptedETL for the
// error surface.
func (e *Engine) Run(ctx context.Context, opts RunOptions) error {
	opts = opts.withDefaults()
	runID := uuid.NewString()
	log := e.log.WithRunID(runID).WithComponent("engine")
	start := time.Now()

	plan, err := BuildPlan(e.root, opts.Workers, e.log.WithComponent("connector").WithRunID(runID))
	if err != nil {
		return err
	}

	var metrics *observe.Metrics
	if e.cfg.registerer != nil {
		metrics = observe.NewMetrics(e.cfg.registerer)
		for _, seg := range plan.Segments {
			metrics.ActiveWorkers.WithLabelValues(seg.ID).Set(float64(seg.Replicas * len(seg.Nodes)))
		}
	}

	counters := make(map[string]*Counter)
	var counterList []observe.CounterSnapshot
	for _, n := range plan.Nodes {
		if n.Kind() == KindLoader && len(n.downstreams) == 0 {
			c := NewCounter(n.Name)
			counters[n.Name] = c
			counterList = append(counterList, c)
		}
	}

	stop := NewFlag()
	pause := NewFlag()

	sig := newSignalHandler(stop, e.log.WithRunID(runID))
	sig.Start()

	var timingsCh chan observe.TimingSample
	var timingsDone chan struct{}
	if opts.MonitorPerformance {
		timingsCh = make(chan observe.TimingSample, 4096)
		timingsDone = make(chan struct{})
		timingsObs := observe.NewTimings(e.log.WithRunID(runID), 0)
		go func() {
			timingsObs.Run(timingsCh)
			close(timingsDone)
		}()
	}

	progressCtx, cancelProgress := context.WithCancel(ctx)
	defer cancelProgress()
	var progressDone, progressExited chan struct{}
	if opts.ShowProgress {
		progressDone = make(chan struct{})
		progressExited = make(chan struct{})
		progressObs := observe.NewProgress(e.log.WithRunID(runID), counterList, 0)
		go func() {
			progressObs.Run(progressCtx, progressDone)
			close(progressExited)
		}()
	}

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	var sampleDone chan struct{}
	if metrics != nil {
		sampleDone = make(chan struct{})
		go sampleQueueDepth(runCtx, plan, metrics, sampleDone)
	}

	totalReplicas := 0
	live := make(map[string]int, len(plan.Segments))
	for _, seg := range plan.Segments {
		live[seg.ID] = seg.Replicas
		totalReplicas += seg.Replicas
	}

	completions := make(chan segmentCompletion, totalReplicas)
	for _, seg := range plan.Segments {
		for i := 0; i < seg.Replicas; i++ {
			sw := &segmentWorker{
				plan: plan, segment: seg,
				stop: stop, pause: pause,
				counters: counters, timings: timingsCh, metrics: metrics,
				log: e.log.WithRunID(runID), tracer: e.cfg.tracer,
			}
			go func() { completions <- sw.run(runCtx) }()
		}
	}

	errByName := make(map[string]*NodeException)
	for i := 0; i < totalReplicas; i++ {
		comp := <-completions
		for name, ne := range comp.errors {
			if _, ok := errByName[name]; !ok {
				errByName[name] = ne
			}
		}
		live[comp.segment.ID]--
		if metrics != nil {
			metrics.ActiveWorkers.WithLabelValues(comp.segment.ID).Sub(float64(len(comp.segment.Nodes)))
		}
		if live[comp.segment.ID] == 0 {
			for _, sink := range comp.segment.sinks {
				sink.connector.FinishProducing(runCtx, sink.downstreamReplicas)
			}
		}
	}

	if timingsCh != nil {
		close(timingsCh)
		<-timingsDone
	}
	if progressDone != nil {
		if stop.Raised() {
			cancelProgress()
		} else {
			close(progressDone)
		}
		<-progressExited
	}
	if sampleDone != nil {
		cancelRun()
		<-sampleDone
	}
	if metrics != nil {
		for _, seg := range plan.Segments {
			metrics.ActiveWorkers.WithLabelValues(seg.ID).Set(0)
		}
	}
	sig.Stop()

	interrupted, signalName := sig.Interrupted()
	elapsed := time.Since(start)

	if len(errByName) > 0 {
		var names []string
		var first *NodeException
		for _, n := range plan.Nodes {
			if ne, ok := errByName[n.Name]; ok {
				names = append(names, n.Name)
				if first == nil {
					first = ne
				}
			}
		}
		sort.Strings(names)
		log.Error("run completed with node failures", first.Cause, "nodes", names, "elapsed", observe.Elapsed(elapsed))
		if opts.RaiseException {
			return &ETLExecutionError{FailedNodes: names, Cause: first.Cause}
		}
		return nil
	}

	if interrupted {
		log.Warn("run interrupted", "signal", signalName, "elapsed", observe.Elapsed(elapsed))
		if opts.RaiseExceptionIfInterrupted {
			return &InterruptedETL{Signal: signalName}
		}
		return nil
	}

	log.Info("run finished", "elapsed", observe.Elapsed(elapsed))
	return nil
}

// sampleQueueDepth periodically copies each cross-group connector's current
// length into observe.Metrics.QueueDepth until ctx is cancelled, then signals
// done. In-group connectors are segment-local and rebuilt per replica, so
// they carry no single queue-depth value worth exporting.
func sampleQueueDepth(ctx context.Context, plan *Plan, metrics *observe.Metrics, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	sample := func() {
		for pair, conn := range plan.CrossGroupConnectors() {
			metrics.QueueDepth.WithLabelValues(pair[0].Name, pair[1].Name).Set(float64(conn.Len()))
		}
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sample()
		}
	}
}
