package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"showdown-mirror/battle"
	"showdown-mirror/client"
	"showdown-mirror/config"
	"showdown-mirror/data"
	"showdown-mirror/game"
	"showdown-mirror/history"
	"showdown-mirror/logging"
	"showdown-mirror/notify"
	"showdown-mirror/sse"
	"showdown-mirror/tui"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "showdown-mirror:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := pflag.NewFlagSet("showdown-mirror", pflag.ContinueOnError)
	configDir := fs.String("config-dir", ".", "directory holding "+config.FileName)
	config.Flags(fs)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := config.Load(*configDir, fs)
	if err != nil {
		return err
	}

	mode := cfg.UI.Mode
	if mode == config.ModeTUI && !isatty.IsTerminal(os.Stdout.Fd()) {
		mode = config.ModeLog
	}

	// The terminal belongs to tview in tui mode, so logs only go to a file.
	console := io.Writer(os.Stderr)
	logPath := cfg.Log.File
	if mode == config.ModeTUI {
		console = io.Discard
		if logPath == "" {
			logPath = logging.Path("logs", "showdown-mirror", time.Now())
		}
	}
	log, logCloser, err := logging.New(cfg.Log.Level, logPath, console)
	if err != nil {
		return err
	}
	defer logCloser.Close()
	if mode != cfg.UI.Mode {
		log.Warn().Str("mode", mode).Msg("stdout is not a terminal, falling back")
	}

	dex, err := data.Load(cfg.Data.Pokedex, cfg.Data.Moves)
	if err != nil {
		log.Warn().Err(err).Msg("dex not loaded, types and move power will be unknown")
	} else {
		species, moves := dex.Len()
		log.Info().Int("species", species).Int("moves", moves).Msg("dex loaded")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	room := client.RoomID(cfg.Battle.Room)
	sd := client.NewShowdownClient(client.Config{
		URL:          cfg.Server.URL,
		EventBuffer:  cfg.Server.EventBuffer,
		SendRate:     cfg.Server.SendRate,
		SendBurst:    cfg.Server.SendBurst,
		WriteTimeout: cfg.Server.WriteTimeout,
	}, log)
	defer sd.Close()

	sup := newSupervisor(sd, room, cfg.Battle.Commands, cfg.Server.ReconnectAttempts, cfg.Server.ReconnectBackoff, log)

	store := game.NewStore()
	var (
		listeners notify.Multi
		queues    []*notify.Queue
		app       *tui.App
		bcast     *sse.Broadcaster
		onDiag    func(battle.Diagnostic)
	)
	addListener := func(l notify.Listener, post func(func())) *notify.Queue {
		q := notify.NewQueue(l, post, 0)
		queues = append(queues, q)
		listeners = append(listeners, q)
		return q
	}

	switch mode {
	case config.ModeTUI:
		app = tui.New(tui.Config{Room: room, Store: store, Dex: dex, Send: sd.Send, Log: log})
		onDiag = noticeDiagnostics(addListener(app, app.Post), app.Notice)
		sup.onState = app.SetConnected
	case config.ModeSSE:
		bcast = sse.NewBroadcaster(store, log)
		addListener(bcast, nil)
		addListener(notify.LogListener{Log: log}, nil)
	default:
		addListener(notify.LogListener{Log: log}, nil)
	}

	if cfg.History.Enabled {
		rec, err := history.Open(cfg.History.Path, room, log)
		if err != nil {
			return err
		}
		defer rec.Close()
		addListener(rec, nil)
	}

	session, err := battle.NewSession(battle.SessionConfig{
		Room:        room,
		Store:       store,
		OnLifecycle:  sup.Lifecycle,
		Log:          log,
		OnDiagnostic: onDiag,
	}, listeners)
	if err != nil {
		return err
	}

	log.Info().Str("mode", mode).Str("room", room).Str("url", cfg.Server.URL).Msg("starting")
	sd.Connect(ctx)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := session.Run(gctx, sd.Events())
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		return sup.run(gctx)
	})
	if bcast != nil {
		g.Go(func() error {
			return sse.Serve(gctx, cfg.SSE.Addr, bcast.Handler(), log)
		})
	}
	if app != nil {
		g.Go(func() error {
			err := app.Run(gctx)
			// Quitting the UI ends the program.
			cancel()
			return err
		})
	}

	err = g.Wait()
	shutdown(log, sd, queues, bcast)
	if err != nil {
		log.Error().Err(err).Msg("stopped")
		return err
	}
	log.Info().Msg("bye")
	return nil
}

// noticeDiagnostics shows diagnostics through q, behind the notifications
// already queued for the same target.
func noticeDiagnostics(q *notify.Queue, notice func(text string)) func(battle.Diagnostic) {
	return func(d battle.Diagnostic) {
		q.Do(func() { notice(fmt.Sprintf("%s: %v", d.Keyword, d.Err)) })
	}
}

// shutdown closes the transport first so no new notifications are produced,
// then drains every listener queue.
func shutdown(log zerolog.Logger, sd *client.ShowdownClient, queues []*notify.Queue, bcast *sse.Broadcaster) {
	if err := sd.Close(); err != nil {
		log.Debug().Err(err).Msg("closing client")
	}
	for _, q := range queues {
		q.Close()
	}
	if bcast != nil {
		bcast.Close()
	}
}
