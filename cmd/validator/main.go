// Command validator starts a http server that validates untrusted code
// submissions: it compiles and runs them inside a sandbox against test
// cases and reports a verdict per submission.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	ginprometheus "github.com/zsais/go-gin-prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/codetask/validator/cmd/validator/config"
	restvalidator "github.com/codetask/validator/cmd/validator/rest_validator"
	"github.com/codetask/validator/cmd/validator/version"
	wsvalidator "github.com/codetask/validator/cmd/validator/ws_validator"
	"github.com/codetask/validator/language"
	"github.com/codetask/validator/runner"
	"github.com/codetask/validator/sandbox"
	"github.com/codetask/validator/scheduler"
	"github.com/codetask/validator/types"
)

var logger *zap.Logger

func main() {
	conf := loadConf()
	if conf.Version {
		fmt.Println(version.Version)
		return
	}
	initLogger(conf)
	defer logger.Sync()
	if ce := logger.Check(zap.InfoLevel, "Config loaded"); ce != nil {
		ce.Write(zap.String("config", fmt.Sprintf("%+v", conf)))
	}

	langs := loadLanguages(conf)
	envPool, releasePool := newPool(conf)
	prefork(envPool, conf.PreFork)
	sched := newScheduler(conf, envPool, langs)
	sched.Start()
	logger.Info("Scheduler started",
		zap.Int("parallelism", conf.Parallelism),
		zap.Int("queueDepth", conf.QueueDepth),
		zap.Duration("timeLimitCheckInterval", conf.TimeLimitCheckerInterval))

	servers := []initFunc{
		cleanUpScheduler(sched),
		cleanUpPool(releasePool),
		initHTTPServer(conf, sched, langs),
		initMonitorHTTPServer(conf),
	}

	// Gracefully shutdown, with signal / HTTP server / monitor HTTP server
	sig := make(chan os.Signal, 1+len(servers))

	stops := []stopFunc{}
	for _, s := range servers {
		start, stop := s()
		if start != nil {
			go func() {
				start()
				sig <- os.Interrupt
			}()
		}
		if stop != nil {
			stops = append(stops, stop)
		}
	}

	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	signal.Reset(syscall.SIGINT, syscall.SIGTERM)

	logger.Info("Shutting Down...")

	ctx, cancel := context.WithTimeout(context.TODO(), time.Second*3)
	defer cancel()

	var eg errgroup.Group
	for _, s := range stops {
		eg.Go(func() error {
			return s(ctx)
		})
	}

	go func() {
		logger.Info("Shutdown Finished", zap.Error(eg.Wait()))
		cancel()
	}()
	<-ctx.Done()
}

func loadConf() *config.Config {
	var conf config.Config
	if err := conf.Load(); err != nil {
		if err == flag.ErrHelp {
			os.Exit(0)
		}
		log.Fatalln("load config failed ", err)
	}
	return &conf
}

func initLogger(conf *config.Config) {
	if conf.Silent {
		logger = zap.NewNop()
		return
	}

	var err error
	if conf.Release {
		logger, err = zap.NewProduction()
	} else {
		config := zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		if !conf.EnableDebugLog {
			config.Level.SetLevel(zap.InfoLevel)
		}
		logger, err = config.Build()
	}
	if err != nil {
		log.Fatalln("init logger failed ", err)
	}
}

func loadLanguages(conf *config.Config) *language.Registry {
	langs, err := language.Load(conf.LangConf)
	if err != nil {
		logger.Fatal("load language config failed", zap.String("file", conf.LangConf), zap.Error(err))
	}
	logger.Info("Language profiles loaded", zap.Strings("languages", langs.Names()))
	return langs
}

func newPool(conf *config.Config) (scheduler.EnvironmentPool, func()) {
	b, err := newEnvBuilder(conf)
	if err != nil {
		logger.Fatal("create environment builder failed", zap.Error(err))
	}
	if conf.EnableMetrics {
		b = &metricsEnvBuilder{b}
	}
	p := sandbox.NewPool(b)
	var ep scheduler.EnvironmentPool = p
	if conf.EnableMetrics {
		ep = &metricsEnvPool{p}
	}
	return ep, p.Release
}

func prefork(envPool scheduler.EnvironmentPool, prefork int) {
	if prefork <= 0 {
		return
	}
	logger.Info("Create prefork containers", zap.Int("count", prefork))
	m := make([]sandbox.PoolEnvironment, 0, prefork)
	for i := 0; i < prefork; i++ {
		e, err := envPool.Get()
		if err != nil {
			logger.Fatal("prefork environment failed", zap.Error(err))
		}
		m = append(m, e)
	}
	for _, e := range m {
		envPool.Put(e)
	}
}

func newScheduler(conf *config.Config, envPool scheduler.EnvironmentPool, langs *language.Registry) scheduler.Scheduler {
	var observer func(*types.Report)
	if conf.EnableMetrics {
		observer = reportObserve
	}
	return scheduler.New(scheduler.Config{
		Runner: &runner.Runner{
			Langs:        langs,
			TickInterval: conf.TimeLimitCheckerInterval,
		},
		EnvPool:        envPool,
		Parallelism:    conf.Parallelism,
		QueueDepth:     conf.QueueDepth,
		Logger:         logger,
		ReportObserver: observer,
	})
}

type (
	stopFunc func(ctx context.Context) error
	initFunc func() (start func(), cleanUp stopFunc)
)

func cleanUpScheduler(sched scheduler.Scheduler) initFunc {
	return func() (start func(), cleanUp stopFunc) {
		return nil, func(ctx context.Context) error {
			sched.Shutdown()
			logger.Info("Scheduler shutdown")
			return nil
		}
	}
}

func cleanUpPool(release func()) initFunc {
	return func() (start func(), cleanUp stopFunc) {
		return nil, func(ctx context.Context) error {
			release()
			logger.Info("Environment pool released")
			return nil
		}
	}
}

func initHTTPServer(conf *config.Config, sched scheduler.Scheduler, langs *language.Registry) initFunc {
	return func() (start func(), cleanUp stopFunc) {
		r := initHTTPMux(conf, sched, langs)
		srv := http.Server{
			Addr:    conf.HTTPAddr,
			Handler: r,
		}

		return func() {
				logger.Info("Starting http server", zap.String("addr", conf.HTTPAddr))
				if err := srv.ListenAndServe(); errors.Is(err, http.ErrServerClosed) {
					logger.Info("Http server stopped", zap.Error(err))
				} else {
					logger.Error("Http server stopped", zap.Error(err))
				}
			}, func(ctx context.Context) error {
				logger.Info("Http server shutting down")
				return srv.Shutdown(ctx)
			}
	}
}

func initMonitorHTTPServer(conf *config.Config) initFunc {
	return func() (start func(), cleanUp stopFunc) {
		mr := initMonitorHTTPMux(conf)
		if mr == nil {
			return nil, nil
		}
		msrv := http.Server{
			Addr:    conf.MonitorAddr,
			Handler: mr,
		}
		return func() {
				logger.Info("Starting monitoring http server", zap.String("addr", conf.MonitorAddr))
				logger.Info("Monitoring http server stopped", zap.Error(msrv.ListenAndServe()))
			}, func(ctx context.Context) error {
				logger.Info("Monitoring http server shutdown")
				return msrv.Shutdown(ctx)
			}
	}
}

func initHTTPMux(conf *config.Config, sched scheduler.Scheduler, langs *language.Registry) http.Handler {
	if conf.Release {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(ginzap.Ginzap(logger, "", false))
	r.Use(ginzap.RecoveryWithZap(logger, true))

	// Metrics Handle
	if conf.EnableMetrics {
		initGinMetrics(r)
	}

	// Version handle
	r.GET("/version", handleVersion)

	// Add auth token
	if conf.AuthToken != "" {
		r.Use(tokenAuth(conf.AuthToken))
		logger.Info("Attach token auth")
	}

	// Rest Handle
	restvalidator.NewValidateHandle(sched, langs, logger).Register(r)

	// WebSocket Handle
	wsvalidator.New(sched, langs, logger).Register(r)

	return r
}

func initMonitorHTTPMux(conf *config.Config) http.Handler {
	if !conf.EnableMetrics && !conf.EnableDebug {
		return nil
	}
	mux := http.NewServeMux()
	if conf.EnableMetrics {
		mux.Handle("/metrics", promhttp.Handler())
	}
	if conf.EnableDebug {
		initDebugRoute(mux)
	}
	return mux
}

func initDebugRoute(mux *http.ServeMux) {
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
}

func initGinMetrics(r *gin.Engine) {
	p := ginprometheus.NewPrometheus("gin")
	p.ReqCntURLLabelMappingFn = func(c *gin.Context) string {
		return c.FullPath()
	}
	p.Use(r)
}

func tokenAuth(token string) gin.HandlerFunc {
	const bearer = "Bearer "
	return func(c *gin.Context) {
		reqToken := c.GetHeader("Authorization")
		if strings.HasPrefix(reqToken, bearer) && reqToken[len(bearer):] == token {
			c.Next()
			return
		}
		c.AbortWithStatus(http.StatusUnauthorized)
	}
}

func handleVersion(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"buildVersion": version.Version,
		"goVersion":    runtime.Version(),
		"platform":     runtime.GOARCH,
		"os":           runtime.GOOS,
	})
}
