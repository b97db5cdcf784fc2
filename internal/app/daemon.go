package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/rbright/canto/internal/cli"
	"github.com/rbright/canto/internal/config"
	"github.com/rbright/canto/internal/event"
	"github.com/rbright/canto/internal/ipc"
	"github.com/rbright/canto/internal/metrics"
	"github.com/rbright/canto/internal/offline"
	"github.com/rbright/canto/internal/offline/whisperserver"
	"github.com/rbright/canto/internal/output"
	"github.com/rbright/canto/internal/pipeline"
	"github.com/rbright/canto/internal/recognizer"
	"github.com/rbright/canto/internal/session"
	"github.com/rbright/canto/internal/version"
	"golang.org/x/sync/errgroup"
)

const commitTimeout = 5 * time.Second

func (r Runner) commandListen(ctx context.Context, parsed cli.Parsed, cfg config.Config, logger *slog.Logger) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	locales := parsed.Locales
	if len(locales) == 0 {
		locales = cfg.Locales
	}

	err = runDaemon(ctx, daemonOptions{
		SocketPath: socketPath,
		Config:     cfg,
		Locales:    locales,
		AutoStart:  parsed.AutoStart,
		Stdout:     r.Stdout,
		Logger:     logger,
	})
	if errors.Is(err, ipc.ErrAlreadyRunning) {
		fmt.Fprintln(r.Stderr, "error: canto daemon is already running")
		return 1
	}
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		logger.Error("daemon failed", "error", err.Error())
		return 1
	}
	return 0
}

type daemonOptions struct {
	SocketPath string
	Config     config.Config
	Locales    []string
	AutoStart  bool
	Stdout     io.Writer
	Logger     *slog.Logger
	// Ready, when set, is called once the socket accepts clients.
	Ready func()
}

// runDaemon owns the socket and the listening session until ctx is done.
func runDaemon(ctx context.Context, opts daemonOptions) error {
	cfg := opts.Config
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	listener, err := ipc.Acquire(ctx, opts.SocketPath, 180*time.Millisecond, 2, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = listener.Close()
		_ = os.Remove(opts.SocketPath)
	}()

	m := metrics.New()

	factory, err := pipeline.NewFactory(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("create recognizer backend: %w", err)
	}
	defer func() { _ = factory.Close() }()

	broadcaster := output.NewBroadcaster(m)
	sink, closers, err := buildSinks(cfg.Sinks, broadcaster, opts.Stdout, logger, m)
	if err != nil {
		return err
	}
	defer closeAll(closers, logger)

	var offlineSvc *offline.Service
	if cfg.Offline.Server != "" {
		offlineSvc, err = openOffline(cfg.Offline, logger, m)
		if err != nil {
			return err
		}
		defer func() { _ = offlineSvc.Close() }()
	}

	controller := session.NewController(factory, sessionOptions(cfg, opts.Locales, logger, sink, m))
	rt := newRouter(controller, offlineSvc, broadcaster)

	logger.Info("daemon listening",
		"socket", opts.SocketPath,
		"backend", cfg.Recognizer.Backend,
		"locales", opts.Locales,
		"offline", offlineSvc != nil,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return controller.Run(gctx) })
	g.Go(func() error { return ipc.Serve(gctx, listener, rt) })
	if cfg.Metrics.Listen != "" {
		g.Go(func() error { return m.Serve(gctx, cfg.Metrics.Listen) })
	}
	if opts.AutoStart {
		g.Go(func() error {
			if err := controller.Start(gctx, opts.Locales); err != nil {
				logger.Warn("auto start failed", "error", err.Error())
			}
			return nil
		})
	}
	if opts.Ready != nil {
		opts.Ready()
	}

	err = g.Wait()
	logger.Info("daemon stopped")
	return err
}

// buildSinks fans session events out to the broadcaster and every configured
// sink. The returned closers flush the sinks and must run after the session
// stops.
func buildSinks(
	cfg config.SinksConfig,
	broadcaster *output.Broadcaster,
	stdout io.Writer,
	logger *slog.Logger,
	drops output.DropCounter,
) (event.Sink, []io.Closer, error) {
	sinks := output.Multi{broadcaster}
	var closers []io.Closer

	if cfg.Stdout && stdout != nil {
		sinks = append(sinks, output.Only(output.NewWriter(stdout), event.KindResult, event.KindError, event.KindState))
	}

	if len(cfg.CommitCmd.Argv) > 0 {
		cmd := output.NewCommand(cfg.CommitCmd.Argv, commitTimeout, logger, drops)
		sinks = append(sinks, cmd)
		closers = append(closers, cmd)
	}

	if len(cfg.Kafka.Brokers) > 0 {
		k, err := output.NewKafka(output.KafkaConfig{
			Brokers:            cfg.Kafka.Brokers,
			TopicPartial:       cfg.Kafka.TopicPartial,
			TopicFinal:         cfg.Kafka.TopicFinal,
			TopicEvents:        cfg.Kafka.TopicEvents,
			IncludeSoundLevels: cfg.Kafka.IncludeSoundLevels,
		}, logger, drops)
		if err != nil {
			closeAll(closers, logger)
			return nil, nil, fmt.Errorf("kafka sink: %w", err)
		}
		sinks = append(sinks, k)
		closers = append(closers, k)
	}

	if cfg.NATS.URL != "" {
		n, err := output.DialNATS(cfg.NATS.URL, cfg.NATS.Subject, logger, drops)
		if err != nil {
			closeAll(closers, logger)
			return nil, nil, fmt.Errorf("nats sink: %w", err)
		}
		sinks = append(sinks, n)
		closers = append(closers, n)
	}

	return sinks, closers, nil
}

func closeAll(closers []io.Closer, logger *slog.Logger) {
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i].Close(); err != nil {
			logger.Warn("close sink failed", "error", err.Error())
		}
	}
}

func sessionOptions(cfg config.Config, locales []string, logger *slog.Logger, sink event.Sink, recorder session.Recorder) session.Options {
	return session.Options{
		Logger:     logger,
		Sink:       sink,
		Recorder:   recorder,
		Locales:    locales,
		Recognizer: pipeline.RecognizerOptions(cfg.Recognizer),
		Delays: recognizer.Delays{
			NoSpeech:           millis(cfg.Backoff.NoSpeechMS),
			ServerDisconnected: millis(cfg.Backoff.ServerDisconnectedMS),
			Other:              millis(cfg.Backoff.OtherMS),
		},
		Recreate: session.RecreatePolicy{
			Interval:    millis(cfg.Backoff.RecreateMS),
			Multiplier:  cfg.Backoff.RecreateMultiplier,
			MaxAttempts: cfg.Backoff.RecreateMaxAttempts,
		},
	}
}

func openOffline(cfg config.OfflineConfig, logger *slog.Logger, observer offline.Observer) (*offline.Service, error) {
	engine, err := whisperserver.New(cfg.Server, whisperserver.Options{
		Language: cfg.Language,
		Timeout:  millis(cfg.TimeoutMS),
	})
	if err != nil {
		return nil, fmt.Errorf("offline engine: %w", err)
	}
	return offline.Open(engine, offline.Options{
		Workers:  cfg.Workers,
		Timeout:  millis(cfg.TimeoutMS),
		Logger:   logger,
		Observer: observer,
	})
}

func millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

// router dispatches IPC requests to the session or the offline service and
// serves event subscriptions from the broadcaster.
type router struct {
	session ipc.Handler
	offline ipc.Handler
	events  *output.Broadcaster
}

func newRouter(controller *session.Controller, svc *offline.Service, events *output.Broadcaster) *router {
	rt := &router{session: controller, events: events}
	if svc != nil {
		rt.offline = svc
	}
	return rt
}

func (rt *router) Handle(ctx context.Context, req ipc.Request) ipc.Response {
	switch req.Command {
	case ipc.CommandInit, ipc.CommandTranscribe, ipc.CommandFree:
		if rt.offline == nil {
			return ipc.Response{OK: false, Code: ipc.CodeUnavailable, Error: "offline transcription is not configured"}
		}
		return rt.offline.Handle(ctx, req)
	case ipc.CommandVersion:
		resp := ipc.Response{OK: true, Message: version.String()}
		if rt.offline != nil {
			engine := rt.offline.Handle(ctx, req)
			if engine.OK {
				resp.Text = engine.Text
			}
		}
		return resp
	default:
		return rt.session.Handle(ctx, req)
	}
}

func (rt *router) Stream(ctx context.Context, _ ipc.Request, emit func(any) error) error {
	ch, unsubscribe := rt.events.Subscribe()
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			if err := emit(ev); err != nil {
				return err
			}
		}
	}
}
