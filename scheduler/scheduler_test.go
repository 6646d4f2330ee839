package scheduler

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	gorunner "github.com/criyle/go-sandbox/runner"
	"go.uber.org/zap/zaptest"

	"github.com/codetask/validator/language"
	"github.com/codetask/validator/runner"
	"github.com/codetask/validator/sandbox"
	"github.com/codetask/validator/types"
)

// fakeEnv writes "ok\n" to stdout on every exec and finishes immediately.
// An optional hook runs at exec entry, used for gating and counting.
type fakeEnv struct {
	workDir string
	hook    func(ctx context.Context)
	execs   *int32
}

func (f *fakeEnv) Execve(ctx context.Context, param sandbox.ExecveParam) (sandbox.Process, error) {
	if f.hook != nil {
		f.hook(ctx)
	}
	if f.execs != nil {
		atomic.AddInt32(f.execs, 1)
	}
	if len(param.Files) > 1 {
		syscall.Write(int(param.Files[1]), []byte("ok\n"))
	}
	p := &procDone{rt: gorunner.Result{Status: gorunner.StatusNormal}, done: make(chan struct{})}
	close(p.done)
	return p, nil
}

func (f *fakeEnv) WorkDir() *os.File {
	d, _ := os.Open(f.workDir)
	return d
}

func (f *fakeEnv) Open(p string, flags int, perm os.FileMode) (*os.File, error) {
	return os.OpenFile(filepath.Join(f.workDir, p), flags, perm)
}

func (f *fakeEnv) Reset() error   { return nil }
func (f *fakeEnv) Destroy() error { return nil }

type procDone struct {
	rt   gorunner.Result
	done chan struct{}
}

func (p *procDone) Done() <-chan struct{}        { return p.done }
func (p *procDone) Result() sandbox.RunnerResult { <-p.done; return p.rt }
func (p *procDone) Usage() sandbox.Usage         { return sandbox.Usage{} }

// fakePool builds a fresh fakeEnv per Get, optionally failing first.
type fakePool struct {
	t        *testing.T
	hook     func(ctx context.Context)
	execs    int32
	failures int32
}

func (p *fakePool) Get() (sandbox.PoolEnvironment, error) {
	if atomic.AddInt32(&p.failures, -1) >= 0 {
		return nil, errors.New("no container available")
	}
	return &fakeEnv{workDir: p.t.TempDir(), hook: p.hook, execs: &p.execs}, nil
}

func (p *fakePool) Put(sandbox.PoolEnvironment) {}

// newGate returns a channel the sandbox hook blocks on plus an idempotent
// release. The release is also registered as cleanup so a failing test
// cannot deadlock scheduler shutdown.
func newGate(t *testing.T) (chan struct{}, func()) {
	t.Helper()
	gate := make(chan struct{})
	var once sync.Once
	release := func() { once.Do(func() { close(gate) }) }
	t.Cleanup(release)
	return gate, release
}

func newTestScheduler(t *testing.T, pool EnvironmentPool, parallelism, depth int) Scheduler {
	t.Helper()
	s := New(Config{
		Runner:      &runner.Runner{Langs: language.Default(), TickInterval: 5 * time.Millisecond},
		EnvPool:     pool,
		Parallelism: parallelism,
		QueueDepth:  depth,
		Logger:      zaptest.NewLogger(t),
	})
	s.Start()
	t.Cleanup(s.Shutdown)
	return s
}

func newJob(id string, opts types.Options, cases ...types.TestCase) *Job {
	return &Job{
		Submission: &types.Submission{ID: id, Language: "python", Source: []byte("print('ok')")},
		Cases:      cases,
		Options:    opts,
	}
}

func passCase(idx int) types.TestCase {
	return types.TestCase{Index: idx, Expected: []byte("ok\n"), Mode: types.ModeExact}
}

func failCase(idx int) types.TestCase {
	return types.TestCase{Index: idx, Expected: []byte("nope\n"), Mode: types.ModeExact}
}

func waitReport(t *testing.T, ch <-chan *types.Report) *types.Report {
	t.Helper()
	select {
	case rep := <-ch:
		return rep
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for report")
		return nil
	}
}

func TestSubmitAccepted(t *testing.T) {
	pool := &fakePool{t: t}
	s := newTestScheduler(t, pool, 1, 8)

	ch, err := s.Submit(context.TODO(), newJob("s1", types.Options{}, passCase(0), passCase(1)))
	if err != nil {
		t.Fatal(err)
	}
	rep := waitReport(t, ch)
	if rep.Verdict != types.VerdictAccepted {
		t.Fatalf("verdict = %v", rep.Verdict)
	}
	if rep.Passed != 2 || rep.Total != 2 {
		t.Errorf("passed %d / total %d", rep.Passed, rep.Total)
	}
}

func TestFailFastSkipsRemaining(t *testing.T) {
	pool := &fakePool{t: t}
	s := newTestScheduler(t, pool, 1, 8)

	var mu sync.Mutex
	var progressed []int
	job := newJob("s1", types.Options{}, passCase(0), failCase(1), passCase(2))
	job.Progress = func(r types.TestResult) {
		mu.Lock()
		progressed = append(progressed, r.Index)
		mu.Unlock()
	}

	ch, err := s.Submit(context.TODO(), job)
	if err != nil {
		t.Fatal(err)
	}
	rep := waitReport(t, ch)
	if rep.Verdict != types.VerdictWrongAnswer {
		t.Fatalf("verdict = %v", rep.Verdict)
	}
	if got := atomic.LoadInt32(&pool.execs); got != 2 {
		t.Errorf("executed %d cases, want 2", got)
	}
	if len(rep.Results) != 3 || !rep.Results[2].Skipped {
		t.Errorf("results = %+v", rep.Results)
	}
	if rep.FirstFailure == nil || rep.FirstFailure.Index != 1 {
		t.Errorf("firstFailure = %+v", rep.FirstFailure)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(progressed) != 2 {
		t.Errorf("progress callbacks = %v", progressed)
	}
}

func TestRunAllExecutesEverything(t *testing.T) {
	pool := &fakePool{t: t}
	s := newTestScheduler(t, pool, 1, 8)

	ch, err := s.Submit(context.TODO(),
		newJob("s1", types.Options{RunAll: true}, passCase(0), failCase(1), passCase(2)))
	if err != nil {
		t.Fatal(err)
	}
	rep := waitReport(t, ch)
	if got := atomic.LoadInt32(&pool.execs); got != 3 {
		t.Errorf("executed %d cases, want 3", got)
	}
	if rep.Passed != 2 || rep.Verdict != types.VerdictWrongAnswer {
		t.Errorf("passed = %d, verdict = %v", rep.Passed, rep.Verdict)
	}
	for _, r := range rep.Results {
		if r.Skipped {
			t.Errorf("case %d skipped under runAll", r.Index)
		}
	}
}

func TestOverloadedWhenQueueStaysFull(t *testing.T) {
	started := make(chan struct{}, 1)
	gate, release := newGate(t)
	var once sync.Once
	pool := &fakePool{t: t, hook: func(ctx context.Context) {
		once.Do(func() { close(started) })
		select {
		case <-gate:
		case <-ctx.Done():
		}
	}}
	s := newTestScheduler(t, pool, 1, 1)

	chA, err := s.Submit(context.TODO(), newJob("a", types.Options{}, passCase(0)))
	if err != nil {
		t.Fatal(err)
	}
	<-started

	chB, err := s.Submit(context.TODO(), newJob("b", types.Options{}, passCase(0)))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Submit(context.TODO(), newJob("c", types.Options{}, passCase(0))); !errors.Is(err, ErrOverloaded) {
		t.Fatalf("err = %v, want ErrOverloaded", err)
	}

	release()
	waitReport(t, chA)
	waitReport(t, chB)
}

func TestOverloadedRetryPicksUpFreedSlot(t *testing.T) {
	started := make(chan struct{}, 1)
	gate, release := newGate(t)
	var once sync.Once
	pool := &fakePool{t: t, hook: func(ctx context.Context) {
		once.Do(func() { close(started) })
		select {
		case <-gate:
		case <-ctx.Done():
		}
	}}
	s := newTestScheduler(t, pool, 1, 1)

	chA, err := s.Submit(context.TODO(), newJob("a", types.Options{}, passCase(0)))
	if err != nil {
		t.Fatal(err)
	}
	<-started

	chB, err := s.Submit(context.TODO(), newJob("b", types.Options{}, passCase(0)))
	if err != nil {
		t.Fatal(err)
	}

	// free a slot while the third submission sits in its retry window
	go func() {
		time.Sleep(5 * time.Millisecond)
		release()
	}()
	chC, err := s.Submit(context.TODO(), newJob("c", types.Options{}, passCase(0)))
	if err != nil {
		t.Fatalf("err = %v, want the retry to pick up the freed slot", err)
	}

	waitReport(t, chA)
	waitReport(t, chB)
	waitReport(t, chC)
}

func TestCancelRunning(t *testing.T) {
	started := make(chan struct{}, 1)
	var once sync.Once
	pool := &fakePool{t: t, hook: func(ctx context.Context) {
		once.Do(func() { close(started) })
		<-ctx.Done()
	}}
	s := newTestScheduler(t, pool, 1, 8)

	ch, err := s.Submit(context.TODO(), newJob("s1", types.Options{}, passCase(0), passCase(1)))
	if err != nil {
		t.Fatal(err)
	}
	<-started

	if !s.Cancel("s1") {
		t.Fatal("cancel returned false for a running submission")
	}
	rep := waitReport(t, ch)
	if rep.Verdict != types.VerdictCancelled {
		t.Fatalf("verdict = %v", rep.Verdict)
	}
	if s.Cancel("s1") {
		t.Error("cancel must return false once the submission finished")
	}
}

func TestCancelQueued(t *testing.T) {
	started := make(chan struct{}, 1)
	gate, release := newGate(t)
	var once sync.Once
	pool := &fakePool{t: t, hook: func(ctx context.Context) {
		once.Do(func() { close(started) })
		select {
		case <-gate:
		case <-ctx.Done():
		}
	}}
	s := newTestScheduler(t, pool, 1, 4)

	chA, err := s.Submit(context.TODO(), newJob("a", types.Options{}, passCase(0)))
	if err != nil {
		t.Fatal(err)
	}
	<-started

	chB, err := s.Submit(context.TODO(), newJob("b", types.Options{}, passCase(0), passCase(1)))
	if err != nil {
		t.Fatal(err)
	}
	if !s.Cancel("b") {
		t.Fatal("cancel returned false for a queued submission")
	}

	release()
	waitReport(t, chA)
	rep := waitReport(t, chB)
	if rep.Verdict != types.VerdictCancelled {
		t.Fatalf("verdict = %v", rep.Verdict)
	}
}

func TestDuplicateRejected(t *testing.T) {
	started := make(chan struct{}, 1)
	gate, release := newGate(t)
	var once sync.Once
	pool := &fakePool{t: t, hook: func(ctx context.Context) {
		once.Do(func() { close(started) })
		select {
		case <-gate:
		case <-ctx.Done():
		}
	}}
	s := newTestScheduler(t, pool, 1, 8)

	ch, err := s.Submit(context.TODO(), newJob("s1", types.Options{}, passCase(0)))
	if err != nil {
		t.Fatal(err)
	}
	<-started

	if _, err := s.Submit(context.TODO(), newJob("s1", types.Options{}, passCase(0))); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("err = %v, want ErrDuplicate", err)
	}
	release()
	waitReport(t, ch)
}

func TestEnvironmentFaultRetriedOnce(t *testing.T) {
	pool := &fakePool{t: t, failures: 1}
	s := newTestScheduler(t, pool, 1, 8)

	ch, err := s.Submit(context.TODO(), newJob("s1", types.Options{}, passCase(0)))
	if err != nil {
		t.Fatal(err)
	}
	rep := waitReport(t, ch)
	if rep.Verdict != types.VerdictAccepted {
		t.Fatalf("verdict = %v, want retry to succeed", rep.Verdict)
	}
}

func TestEnvironmentFaultTwiceIsInternal(t *testing.T) {
	pool := &fakePool{t: t, failures: 2}
	s := newTestScheduler(t, pool, 1, 8)

	ch, err := s.Submit(context.TODO(), newJob("s1", types.Options{}, passCase(0)))
	if err != nil {
		t.Fatal(err)
	}
	rep := waitReport(t, ch)
	if rep.Verdict != types.VerdictInternalError {
		t.Fatalf("verdict = %v", rep.Verdict)
	}
}

func TestConcurrencyBounded(t *testing.T) {
	const parallelism = 2
	var active, peak int32
	gate, release := newGate(t)
	pool := &fakePool{t: t, hook: func(ctx context.Context) {
		cur := atomic.AddInt32(&active, 1)
		for {
			old := atomic.LoadInt32(&peak)
			if cur <= old || atomic.CompareAndSwapInt32(&peak, old, cur) {
				break
			}
		}
		select {
		case <-gate:
		case <-ctx.Done():
		}
		atomic.AddInt32(&active, -1)
	}}
	s := newTestScheduler(t, pool, parallelism, 8)

	var chs []<-chan *types.Report
	for _, id := range []string{"a", "b", "c", "d"} {
		ch, err := s.Submit(context.TODO(), newJob(id, types.Options{}, passCase(0)))
		if err != nil {
			t.Fatal(err)
		}
		chs = append(chs, ch)
	}

	// wait until both workers are inside the sandbox
	deadline := time.Now().Add(5 * time.Second)
	for atomic.LoadInt32(&active) < parallelism {
		if time.Now().After(deadline) {
			t.Fatal("workers never saturated")
		}
		time.Sleep(time.Millisecond)
	}
	release()
	for _, ch := range chs {
		waitReport(t, ch)
	}
	if got := atomic.LoadInt32(&peak); got != parallelism {
		t.Errorf("peak concurrency = %d, want %d", got, parallelism)
	}
}
