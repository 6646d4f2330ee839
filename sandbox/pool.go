package sandbox

import "sync"

// PoolEnvironment is an Environment that can be recycled between
// submissions.
type PoolEnvironment interface {
	Environment
	Reset() error
	Destroy() error
}

// EnvBuilder builds isolated environments on demand.
type EnvBuilder interface {
	Build() (PoolEnvironment, error)
}

// Pool hands out environments and recycles them after use. A container that
// failed to reset is destroyed instead of being reused.
type Pool struct {
	builder EnvBuilder

	mu  sync.Mutex
	env []PoolEnvironment
}

// NewPool returns a pool for the builder.
func NewPool(builder EnvBuilder) *Pool {
	return &Pool{builder: builder}
}

// Get returns a free environment, building a new one when none is cached.
func (p *Pool) Get() (PoolEnvironment, error) {
	p.mu.Lock()
	if n := len(p.env); n > 0 {
		rt := p.env[n-1]
		p.env = p.env[:n-1]
		p.mu.Unlock()
		return rt, nil
	}
	p.mu.Unlock()
	return p.builder.Build()
}

// Put recycles the environment after wiping its scratch directory.
func (p *Pool) Put(env PoolEnvironment) {
	if err := env.Reset(); err != nil {
		env.Destroy()
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.env = append(p.env, env)
}

// Release destroys all cached environments.
func (p *Pool) Release() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range p.env {
		e.Destroy()
	}
	p.env = nil
}
