// Package overlay ties the window stack, the icon bridge, the capture gate
// and the style controller together for one overlay window.
package overlay

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/1broseidon/deskhook/internal/capture"
	"github.com/1broseidon/deskhook/internal/platform"
	"github.com/1broseidon/deskhook/internal/winstack"
	"github.com/1broseidon/deskhook/internal/winstyle"
)

// ErrSessionExists is returned by New while another session is open.
var ErrSessionExists = errors.New("overlay session already running")

var active atomic.Bool

// System is the window manager: everything the tracker and the style
// controller need.
type System interface {
	winstack.Source
	winstyle.Styler
}

// IconGrid is the desktop icon hit tester, normally an *iconbridge.Bridge.
type IconGrid interface {
	Initialize() error
	HitTest(p platform.Point) int
	Dispose() error
}

// Options configures a Session.
type Options struct {
	Window platform.Handle
	Mode   winstyle.Mode
	System System
	// Icons may be nil when icon awareness is off.
	Icons IconGrid
	// Scene reports whether the overlay has interactive content under a
	// screen point. Nil means the overlay never takes the pointer.
	Scene capture.HitFunc

	Tracker       winstack.Options
	CaptureRadius float64
	CaptureMaxAge time.Duration

	Logger *slog.Logger
	Now    func() time.Time
}

// Decision is the outcome of one tick.
type Decision struct {
	Capture  bool
	Icon     int // -1 when the cursor is not over an icon
	Occluder *winstack.Window
}

// TargetKind classifies what a click landed on.
type TargetKind int

const (
	TargetBackground TargetKind = iota
	TargetIcon
	TargetWindow
	TargetScene
)

func (k TargetKind) String() string {
	switch k {
	case TargetIcon:
		return "icon"
	case TargetWindow:
		return "window"
	case TargetScene:
		return "scene"
	default:
		return "background"
	}
}

// Target is a resolved click.
type Target struct {
	Kind   TargetKind
	Icon   int
	Window winstack.Window
}

// Session is single-threaded: Tick, ResolveClick, HandleClick and NCHitTest
// must be called from the thread that owns the overlay window.
type Session struct {
	window  platform.Handle
	icons   IconGrid
	scene   capture.HitFunc
	tracker *winstack.Tracker
	gate    *capture.Gate
	style   *winstyle.Controller
	logger  *slog.Logger
	now     func() time.Time
	closed  bool
}

// New claims the single session slot, applies the window mode and attaches
// the icon bridge. Styling and icon failures are logged; the session still
// runs in a degraded state.
func New(opts Options) (*Session, error) {
	if opts.System == nil {
		return nil, fmt.Errorf("overlay: nil system")
	}
	if opts.Window == 0 {
		return nil, fmt.Errorf("overlay: no window")
	}
	if !active.CompareAndSwap(false, true) {
		return nil, ErrSessionExists
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	scene := opts.Scene
	if scene == nil {
		scene = func(platform.Point) bool { return false }
	}

	trackerOpts := opts.Tracker
	trackerOpts.Self = opts.Window
	if trackerOpts.Logger == nil {
		trackerOpts.Logger = logger.With("component", "winstack")
	}
	trackerOpts.Now = now

	gate := capture.NewGate(opts.CaptureRadius, opts.CaptureMaxAge)
	gate.Now = now

	s := &Session{
		window:  opts.Window,
		icons:   opts.Icons,
		scene:   scene,
		tracker: winstack.New(opts.System, trackerOpts),
		gate:    gate,
		style:   winstyle.New(opts.System, opts.Window, logger.With("component", "winstyle")),
		logger:  logger,
		now:     now,
	}

	if err := s.style.Configure(opts.Mode); err != nil {
		logger.Warn("window style setup incomplete", "mode", opts.Mode, "err", err)
	}
	if s.icons != nil {
		if err := s.icons.Initialize(); err != nil {
			logger.Warn("desktop icons unavailable", "err", err)
		}
	}
	if err := s.tracker.Refresh(); err != nil {
		logger.Warn("initial window refresh failed", "err", err)
	}
	return s, nil
}

// Close releases the icon bridge and the session slot.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	defer active.Store(false)
	if s.icons != nil {
		if err := s.icons.Dispose(); err != nil {
			return fmt.Errorf("release icon bridge: %w", err)
		}
	}
	return nil
}

// Tracker exposes the window snapshot for diagnostics.
func (s *Session) Tracker() *winstack.Tracker { return s.tracker }

// Tick runs one frame of the input flow for the cursor position and applies
// click-through accordingly.
func (s *Session) Tick(cursor platform.Point) Decision {
	if _, err := s.tracker.RefreshIfDue(s.now()); err != nil {
		s.logger.Debug("window refresh failed", "err", err)
	}
	d := s.decide(cursor)
	if s.style.Mode() == winstyle.ModeTransparent {
		if err := s.style.SetClickThrough(!d.Capture); err != nil {
			s.logger.Debug("click-through update failed", "err", err)
		}
	}
	return d
}

// NCHitTest answers the window procedure's hit test: true means the overlay
// takes the pointer at p.
func (s *Session) NCHitTest(p platform.Point) bool {
	return s.decide(p).Capture
}

func (s *Session) decide(p platform.Point) Decision {
	d := Decision{Icon: s.iconAt(p)}
	if w, ok := s.occluder(p); ok {
		d.Occluder = &w
	}
	if d.Icon < 0 && d.Occluder == nil {
		d.Capture = s.gate.ShouldCapture(p, s.scene)
	}
	return d
}

// ResolveClick classifies a click at p: an icon wins over a window in front
// of the overlay, which wins over scene content, then the background.
func (s *Session) ResolveClick(p platform.Point) Target {
	if icon := s.iconAt(p); icon >= 0 {
		return Target{Kind: TargetIcon, Icon: icon}
	}
	if w, ok := s.occluder(p); ok {
		return Target{Kind: TargetWindow, Icon: -1, Window: w}
	}
	if s.scene(p) {
		return Target{Kind: TargetScene, Icon: -1}
	}
	return Target{Kind: TargetBackground, Icon: -1}
}

// HandleClick resolves a click and, when it lands on scene content, brings
// the overlay in front of the foreground window without activating it.
func (s *Session) HandleClick(p platform.Point) Target {
	t := s.ResolveClick(p)
	s.logger.Debug("click", "x", p.X, "y", p.Y, "target", t.Kind)
	if t.Kind == TargetScene && s.style.Mode() == winstyle.ModeTransparent {
		if err := s.style.SetZOrder(winstyle.ZFront); err != nil {
			s.logger.Warn("raise overlay failed", "err", err)
		}
	}
	return t
}

func (s *Session) iconAt(p platform.Point) int {
	if s.icons == nil {
		return -1
	}
	return s.icons.HitTest(p)
}

// occluder returns the frontmost window strictly in front of the overlay
// at p.
func (s *Session) occluder(p platform.Point) (winstack.Window, bool) {
	self, ok := s.tracker.Info(s.window)
	if !ok {
		return winstack.Window{}, false
	}
	return s.tracker.CoveredInFront(p, self.Z)
}
