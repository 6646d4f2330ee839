package main

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/codetask/validator/sandbox"
	"github.com/codetask/validator/scheduler"
	"github.com/codetask/validator/types"
)

const metricsNamespace = "validator"

var (
	// 1ms -> 10s
	timeBuckets = []float64{
		0.001, 0.002, 0.005, 0.008, 0.010, 0.025, 0.050, 0.075, 0.1, 0.2,
		0.4, 0.6, 0.8, 1.0, 1.5, 2, 5, 10,
	}

	metricsSummaryQuantile = map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001}

	validationCount = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "validation_total",
		Help:      "Number of finished validations",
	}, []string{"verdict"})

	validationTimeHist = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Name:      "time_seconds",
		Help:      "Histogram for the total sandbox wall time per validation",
		Buckets:   timeBuckets,
	}, []string{"verdict"})

	validationTimeSummary = prometheus.NewSummaryVec(prometheus.SummaryOpts{
		Namespace:  metricsNamespace,
		Name:       "time",
		Help:       "Summary for the total sandbox wall time per validation",
		Objectives: metricsSummaryQuantile,
	}, []string{"verdict"})

	caseCount = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "case_total",
		Help:      "Number of test case results",
	}, []string{"result"})

	envCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "environment_created",
		Help:      "Total number of environment build by environment builder",
	})

	envInUse = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "environment_in_use",
		Help:      "Total number of environment currently in use",
	})
)

func init() {
	prometheus.MustRegister(validationCount)
	prometheus.MustRegister(validationTimeHist, validationTimeSummary)
	prometheus.MustRegister(caseCount)
	prometheus.MustRegister(envCreated, envInUse)
}

func reportObserve(rep *types.Report) {
	verdict := rep.Verdict.String()
	validationCount.WithLabelValues(verdict).Inc()
	ob := rep.TotalWallTime.Seconds()
	validationTimeHist.WithLabelValues(verdict).Observe(ob)
	validationTimeSummary.WithLabelValues(verdict).Observe(ob)
	for _, r := range rep.Results {
		switch {
		case r.Skipped:
			caseCount.WithLabelValues("skipped").Inc()
		case r.Passed:
			caseCount.WithLabelValues("passed").Inc()
		default:
			caseCount.WithLabelValues("failed").Inc()
		}
	}
}

var _ sandbox.EnvBuilder = &metricsEnvBuilder{}

type metricsEnvBuilder struct {
	sandbox.EnvBuilder
}

func (b *metricsEnvBuilder) Build() (sandbox.PoolEnvironment, error) {
	e, err := b.EnvBuilder.Build()
	if err != nil {
		return nil, err
	}
	envCreated.Inc()
	return e, nil
}

var _ scheduler.EnvironmentPool = &metricsEnvPool{}

type metricsEnvPool struct {
	scheduler.EnvironmentPool
}

func (p *metricsEnvPool) Get() (sandbox.PoolEnvironment, error) {
	e, err := p.EnvironmentPool.Get()
	if err != nil {
		return nil, err
	}
	envInUse.Inc()
	return e, nil
}

func (p *metricsEnvPool) Put(env sandbox.PoolEnvironment) {
	p.EnvironmentPool.Put(env)
	envInUse.Dec()
}
