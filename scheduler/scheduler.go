// Package scheduler runs validations on a fixed-size worker pool. Capacity
// is bounded twice: the number of concurrently running validations never
// exceeds the parallelism, and the waiting queue has a depth ceiling past
// which submissions are rejected instead of buffered.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/codetask/validator/report"
	"github.com/codetask/validator/runner"
	"github.com/codetask/validator/sandbox"
	"github.com/codetask/validator/types"
)

const (
	defaultQueueDepth = 512

	// how long the single automatic retry waits for a queue slot before
	// ErrOverloaded surfaces
	overloadRetryWait = 50 * time.Millisecond
)

var (
	// ErrOverloaded is returned when the waiting queue is at its ceiling.
	// The caller should back off and resubmit later.
	ErrOverloaded = errors.New("validation queue is full")

	// ErrDuplicate is returned when a submission with the same id is
	// already queued or running.
	ErrDuplicate = errors.New("submission id already in flight")

	// ErrShutdown is returned once the scheduler stopped accepting work.
	ErrShutdown = errors.New("scheduler is shut down")
)

// EnvironmentPool hands out isolated environments for the duration of one
// validation.
type EnvironmentPool interface {
	Get() (sandbox.PoolEnvironment, error)
	Put(sandbox.PoolEnvironment)
}

// Job is one validation request: a submission plus the test cases to run
// it against.
type Job struct {
	Submission *types.Submission
	Cases      []types.TestCase
	Options    types.Options

	// Progress, when set, is called after each executed test case from
	// the worker goroutine.
	Progress func(types.TestResult)
}

// Config defines scheduler configuration.
type Config struct {
	Runner         *runner.Runner
	EnvPool        EnvironmentPool
	Parallelism    int
	QueueDepth     int
	Logger         *zap.Logger
	ReportObserver func(*types.Report)
}

// Scheduler accepts validation jobs and returns one report per job.
type Scheduler interface {
	Start()
	Submit(context.Context, *Job) (<-chan *types.Report, error)
	Cancel(id string) bool
	Shutdown()
}

type scheduler struct {
	runner         *runner.Runner
	envPool        EnvironmentPool
	parallelism    int
	queueDepth     int
	logger         *zap.Logger
	reportObserver func(*types.Report)

	startOnce sync.Once
	stopOnce  sync.Once
	wg        sync.WaitGroup
	workCh    chan *task
	done      chan struct{}

	mu       sync.Mutex
	inflight map[string]*task
}

type task struct {
	job      *Job
	ctx      context.Context
	cancel   context.CancelFunc
	resultCh chan<- *types.Report
}

// New creates a scheduler from the config.
func New(conf Config) Scheduler {
	if conf.Parallelism <= 0 {
		conf.Parallelism = 1
	}
	if conf.QueueDepth <= 0 {
		conf.QueueDepth = defaultQueueDepth
	}
	if conf.Logger == nil {
		conf.Logger = zap.NewNop()
	}
	return &scheduler{
		runner:         conf.Runner,
		envPool:        conf.EnvPool,
		parallelism:    conf.Parallelism,
		queueDepth:     conf.QueueDepth,
		logger:         conf.Logger,
		reportObserver: conf.ReportObserver,
		inflight:       make(map[string]*task),
	}
}

// Start launches the worker goroutines.
func (s *scheduler) Start() {
	s.startOnce.Do(func() {
		s.workCh = make(chan *task, s.queueDepth)
		s.done = make(chan struct{})
		s.wg.Add(s.parallelism)
		for i := 0; i < s.parallelism; i++ {
			go s.loop()
		}
	})
}

// Submit enqueues a job. The returned channel delivers exactly one report.
// A full queue is retried once, waiting briefly for a slot to free up,
// before ErrOverloaded surfaces.
func (s *scheduler) Submit(ctx context.Context, job *Job) (<-chan *types.Report, error) {
	select {
	case <-s.done:
		return nil, ErrShutdown
	default:
	}

	id := job.Submission.ID
	jctx, cancel := context.WithCancel(ctx)
	ch := make(chan *types.Report, 1)
	t := &task{job: job, ctx: jctx, cancel: cancel, resultCh: ch}

	s.mu.Lock()
	if _, ok := s.inflight[id]; ok {
		s.mu.Unlock()
		cancel()
		return nil, ErrDuplicate
	}
	s.inflight[id] = t
	s.mu.Unlock()

	select {
	case s.workCh <- t:
		return ch, nil
	default:
	}

	timer := time.NewTimer(overloadRetryWait)
	defer timer.Stop()
	select {
	case s.workCh <- t:
		return ch, nil
	case <-timer.C:
		s.remove(id)
		cancel()
		return nil, ErrOverloaded
	case <-s.done:
		s.remove(id)
		cancel()
		return nil, ErrShutdown
	}
}

// Cancel stops the validation with the given id. A queued job is discarded
// when dequeued, a running one has its context cancelled. Returns false
// when the id is unknown or already finished.
func (s *scheduler) Cancel(id string) bool {
	s.mu.Lock()
	t, ok := s.inflight[id]
	s.mu.Unlock()
	if !ok {
		return false
	}
	t.cancel()
	return true
}

// Shutdown stops accepting work and waits for running validations.
func (s *scheduler) Shutdown() {
	s.stopOnce.Do(func() {
		close(s.done)
		s.wg.Wait()
	})
}

func (s *scheduler) loop() {
	defer s.wg.Done()
	for {
		select {
		case t := <-s.workCh:
			s.process(t)
		case <-s.done:
			return
		}
	}
}

func (s *scheduler) process(t *task) {
	id := t.job.Submission.ID
	start := time.Now()

	rep := s.validate(t)

	s.remove(id)
	t.cancel()
	if s.reportObserver != nil {
		s.reportObserver(rep)
	}
	s.logger.Info("validation finished",
		zap.String("submissionId", id),
		zap.Stringer("verdict", rep.Verdict),
		zap.Int("passed", rep.Passed),
		zap.Int("total", rep.Total),
		zap.Duration("elapsed", time.Since(start)))
	t.resultCh <- rep
}

// validate runs the job, retrying once when the environment itself failed.
func (s *scheduler) validate(t *task) *types.Report {
	for attempt := 0; ; attempt++ {
		rep, setupFault := s.run(t)
		if !setupFault || attempt > 0 || t.ctx.Err() != nil {
			return rep
		}
		s.logger.Warn("environment fault, retrying once",
			zap.String("submissionId", t.job.Submission.ID))
	}
}

func (s *scheduler) run(t *task) (*types.Report, bool) {
	job := t.job
	sub := job.Submission
	total := len(job.Cases)

	if t.ctx.Err() != nil {
		return report.Cancelled(sub.ID, total, nil), false
	}

	env, err := s.envPool.Get()
	if err != nil {
		return report.Internal(sub.ID, total, "no environment available"), true
	}
	defer s.envPool.Put(env)

	profile, cr, err := s.runner.Prepare(t.ctx, env, sub)
	if err != nil {
		return report.Internal(sub.ID, total, err.Error()), false
	}
	if cr.Setup {
		return report.Internal(sub.ID, total, "environment setup failed"), true
	}
	if !cr.OK {
		return report.CompileFailure(sub.ID, total, cr.Output), false
	}

	results := make([]types.TestResult, 0, total)
	failed := false
	setupFault := false
	for _, tc := range job.Cases {
		if t.ctx.Err() != nil {
			results = append(results, types.TestResult{Index: tc.Index, Skipped: true})
			continue
		}
		if failed && !job.Options.RunAll {
			results = append(results, types.TestResult{Index: tc.Index, Skipped: true})
			continue
		}
		r := s.runner.RunCase(t.ctx, env, profile, tc)
		if job.Progress != nil {
			job.Progress(r)
		}
		results = append(results, r)
		if !r.Passed {
			failed = true
			if r.Outcome != nil && r.Outcome.Reason == types.ReasonSetupFailed {
				setupFault = true
			}
		}
	}

	if t.ctx.Err() != nil {
		return report.Cancelled(sub.ID, total, results), false
	}
	return report.Summarize(sub.ID, total, results, cr.Output), setupFault
}

func (s *scheduler) remove(id string) {
	s.mu.Lock()
	delete(s.inflight, id)
	s.mu.Unlock()
}
