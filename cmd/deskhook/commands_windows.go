//go:build windows

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/1broseidon/deskhook/internal/capture"
	"github.com/1broseidon/deskhook/internal/iconbridge"
	"github.com/1broseidon/deskhook/internal/overlay"
	"github.com/1broseidon/deskhook/internal/platform"
	"github.com/1broseidon/deskhook/internal/winstack"
)

func runRun(args []string) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	title := fs.String("title", "", "Title of the overlay window to attach to (required)")
	configPath := fs.String("config", "", "Config file path (default: <config dir>/deskhook/config.yaml)")
	hotRect := fs.String("hot-rect", "", "Screen rect l,t,r,b treated as interactive overlay content")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: deskhook run --title TITLE [--config PATH] [--hot-rect l,t,r,b]")
		fmt.Fprintln(os.Stderr, "")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return 0
		}
		return 2
	}
	if *title == "" {
		fs.Usage()
		return 2
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logger, closer, err := newLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to open log: %v", err)
	}
	defer closer.Close()

	var scene capture.HitFunc
	if *hotRect != "" {
		r, err := parseRect(*hotRect)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 2
		}
		scene = r.Contains
	}

	native, err := platform.NewNative()
	if err != nil {
		log.Fatalf("Failed to start platform backend: %v", err)
	}
	unlock, err := native.AcquireInstanceLock("deskhook")
	if err != nil {
		log.Fatalf("Failed to start: %v", err)
	}
	defer unlock()

	window, err := native.FindWindow("", *title)
	if err != nil {
		log.Fatalf("Failed to find overlay window: %v", err)
	}

	var icons overlay.IconGrid
	if cfg.Icons.GetEnabled() {
		icons = iconbridge.New(native, logger.With("component", "iconbridge"))
	}

	sess, err := overlay.New(overlay.Options{
		Window:        window,
		Mode:          styleMode(cfg.Mode),
		System:        native,
		Icons:         icons,
		Scene:         scene,
		Tracker:       trackerOptions(cfg, logger.With("component", "winstack")),
		CaptureRadius: cfg.Capture.Radius,
		CaptureMaxAge: cfg.Capture.MaxAge,
		Logger:        logger,
	})
	if err != nil {
		log.Fatalf("Failed to start session: %v", err)
	}
	defer sess.Close()

	// The hook runs on the window's own thread; the tick loop runs here.
	var mu sync.Mutex
	restore, err := native.SubclassHitTest(window, func(p platform.Point) bool {
		mu.Lock()
		defer mu.Unlock()
		return sess.NCHitTest(p)
	})
	if err != nil {
		logger.Warn("hit-test hook unavailable, relying on click-through", "err", err)
	} else {
		defer restore()
	}

	logger.Info("deskhook attached", "hwnd", fmt.Sprintf("%#x", uintptr(window)), "mode", cfg.Mode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	tickLoop(ctx, native, sess, &mu, cfg.TickInterval, logger)
	logger.Info("deskhook stopped")
	return 0
}

func tickLoop(ctx context.Context, native *platform.Native, sess *overlay.Session, mu *sync.Mutex, every time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	wasDown := false
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		cursor, err := native.CursorPos()
		if err != nil {
			continue
		}
		down := native.LeftButtonDown()

		mu.Lock()
		sess.Tick(cursor)
		if down && !wasDown {
			target := sess.HandleClick(cursor)
			logger.Info("click", "x", cursor.X, "y", cursor.Y, "target", target.Kind, "icon", target.Icon)
		}
		mu.Unlock()
		wasDown = down
	}
}

func runWindows(args []string) int {
	fs := flag.NewFlagSet("windows", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	configPath := fs.String("config", "", "Config file path (default: <config dir>/deskhook/config.yaml)")
	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return 0
		}
		return 2
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	logger, closer, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer closer.Close()

	native, err := platform.NewNative()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	tracker := winstack.New(native, trackerOptions(cfg, logger))
	if err := tracker.Refresh(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	formatWindows(os.Stdout, tracker.Windows(), terminalWidth())
	return 0
}

func runIcons(args []string) int {
	if len(args) > 0 && (args[0] == "help" || args[0] == "-h" || args[0] == "--help") {
		fmt.Fprintln(os.Stdout, "Usage: deskhook icons [hittest X Y]")
		return 0
	}

	native, err := platform.NewNative()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	bridge := iconbridge.New(native, nil)
	if err := bridge.Initialize(); err != nil {
		fmt.Fprintf(os.Stderr, "desktop icons unavailable: %v\n", err)
		return 1
	}
	defer bridge.Dispose()

	if len(args) > 0 {
		if args[0] != "hittest" || len(args) != 3 {
			fmt.Fprintln(os.Stderr, "Usage: deskhook icons [hittest X Y]")
			return 2
		}
		p, err := parsePoint(args[1], args[2])
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 2
		}
		fmt.Println(bridge.HitTest(p))
		return 0
	}

	fmt.Printf("%d icons\n", bridge.IconCount())
	i := 0
	for p := range bridge.IconPositions() {
		fmt.Printf("%-4d %d,%d\n", i, p.X, p.Y)
		i++
	}
	return 0
}
