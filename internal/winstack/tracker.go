// Package winstack keeps a filtered, Z-ordered snapshot of the top-level
// windows and answers "is this point covered" queries against it.
package winstack

import (
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/1broseidon/deskhook/internal/platform"
)

// Source is the window manager as seen by the tracker.
type Source interface {
	EnumerateWindows() ([]platform.Handle, error)
	ForegroundWindow() platform.Handle
	IsVisible(h platform.Handle) bool
	WindowRect(h platform.Handle) (platform.Rect, error)
	WindowTitle(h platform.Handle) (string, error)
	ExStyle(h platform.Handle) (platform.ExStyle, error)
	ProcessName(h platform.Handle) (string, error)
	IsCloaked(h platform.Handle) (bool, error)
}

// Window is one entry of the snapshot.
type Window struct {
	Handle     platform.Handle
	Rect       platform.Rect
	Z          int // 0 is frontmost
	Title      string
	Foreground bool
	Process    string // executable base name, empty when unknown
}

// Options configures a Tracker.
type Options struct {
	// Self is the overlay window. It is always part of the snapshot.
	Self            platform.Handle
	MinWindowSize   int
	TitleDenylist   []string
	ProcessDenylist []string
	RefreshInterval time.Duration
	Logger          *slog.Logger
	Now             func() time.Time
}

const (
	DefaultMinWindowSize   = 50
	DefaultRefreshInterval = 500 * time.Millisecond
)

// Tracker owns the snapshot. It is not safe for concurrent use; the overlay
// drives it from a single tick loop.
type Tracker struct {
	src     Source
	self    platform.Handle
	minSize int
	titles  []string
	procs   []string
	every   time.Duration
	logger  *slog.Logger
	now     func() time.Time

	windows     []Window
	lastRefresh time.Time
	refreshed   bool
}

// New returns a tracker with an empty snapshot.
func New(src Source, opts Options) *Tracker {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	every := opts.RefreshInterval
	if every <= 0 {
		every = DefaultRefreshInterval
	}
	procs := make([]string, 0, len(opts.ProcessDenylist))
	for _, p := range opts.ProcessDenylist {
		procs = append(procs, strings.ToLower(p))
	}
	return &Tracker{
		src:     src,
		self:    opts.Self,
		minSize: opts.MinWindowSize,
		titles:  append([]string(nil), opts.TitleDenylist...),
		procs:   procs,
		every:   every,
		logger:  logger,
		now:     now,
	}
}

// Refresh rebuilds the snapshot. If enumeration itself fails the previous
// snapshot is kept and the error returned; a window that cannot be inspected
// is skipped.
func (t *Tracker) Refresh() error {
	t.lastRefresh = t.now()
	t.refreshed = true

	handles, err := t.src.EnumerateWindows()
	if err != nil {
		return fmt.Errorf("enumerate windows: %w", err)
	}

	fg := t.src.ForegroundWindow()
	next := make([]Window, 0, len(handles)+1)
	sawSelf := false
	for _, h := range handles {
		w, ok := t.inspect(h)
		if !ok {
			continue
		}
		if h == t.self {
			sawSelf = true
		}
		w.Z = len(next)
		w.Foreground = h == fg
		next = append(next, w)
	}

	if !sawSelf && t.self != 0 {
		w := Window{Handle: t.self, Z: len(next), Foreground: t.self == fg}
		if r, err := t.src.WindowRect(t.self); err == nil {
			w.Rect = r
		} else {
			t.logger.Debug("overlay rect unavailable", "err", err)
		}
		w.Title, _ = t.src.WindowTitle(t.self)
		next = append(next, w)
	}

	t.windows = next
	return nil
}

// RefreshIfDue refreshes when the refresh interval has elapsed since the
// previous refresh, or when there has been none. It reports whether a
// refresh ran.
func (t *Tracker) RefreshIfDue(now time.Time) (bool, error) {
	if t.refreshed && now.Sub(t.lastRefresh) < t.every {
		return false, nil
	}
	return true, t.Refresh()
}

func (t *Tracker) inspect(h platform.Handle) (Window, bool) {
	if h != t.self && !t.src.IsVisible(h) {
		return Window{}, false
	}
	rect, err := t.src.WindowRect(h)
	if err != nil {
		t.logger.Debug("skipping window", "hwnd", fmt.Sprintf("%#x", uintptr(h)), "err", err)
		return Window{}, false
	}
	title, err := t.src.WindowTitle(h)
	if err != nil {
		t.logger.Debug("skipping window", "hwnd", fmt.Sprintf("%#x", uintptr(h)), "err", err)
		return Window{}, false
	}
	w := Window{Handle: h, Rect: rect, Title: title}

	if h == t.self {
		return w, true
	}
	ex, err := t.src.ExStyle(h)
	if err != nil || ex&platform.ExStyleToolWindow != 0 {
		return Window{}, false
	}
	if rect.Width() < t.minSize || rect.Height() < t.minSize {
		return Window{}, false
	}
	if title == "" {
		return Window{}, false
	}
	for _, deny := range t.titles {
		if strings.Contains(title, deny) {
			return Window{}, false
		}
	}

	proc, err := t.src.ProcessName(h)
	if err == nil {
		w.Process = proc
	}
	if t.deniedProcess(proc) {
		cloaked, err := t.src.IsCloaked(h)
		if err != nil || cloaked {
			return Window{}, false
		}
	}
	return w, true
}

func (t *Tracker) deniedProcess(name string) bool {
	if name == "" {
		return false
	}
	name = strings.ToLower(name)
	for _, pattern := range t.procs {
		if ok, err := path.Match(pattern, name); err == nil && ok {
			return true
		}
	}
	return false
}

// Windows returns a copy of the snapshot, front to back.
func (t *Tracker) Windows() []Window {
	out := make([]Window, len(t.windows))
	copy(out, t.windows)
	return out
}

// Info returns the snapshot entry for h.
func (t *Tracker) Info(h platform.Handle) (Window, bool) {
	for _, w := range t.windows {
		if w.Handle == h {
			return w, true
		}
	}
	return Window{}, false
}

// CoveredExcept returns the frontmost window containing p, skipping ignore.
func (t *Tracker) CoveredExcept(p platform.Point, ignore platform.Handle) (Window, bool) {
	for _, w := range t.windows {
		if w.Handle == ignore {
			continue
		}
		if w.Rect.Contains(p) {
			return w, true
		}
	}
	return Window{}, false
}

// CoveredInFront returns the frontmost window containing p whose Z is
// strictly less than maxZ. With maxZ 0 nothing qualifies.
func (t *Tracker) CoveredInFront(p platform.Point, maxZ int) (Window, bool) {
	for _, w := range t.windows {
		if w.Z >= maxZ {
			break
		}
		if w.Rect.Contains(p) {
			return w, true
		}
	}
	return Window{}, false
}

// InRect returns every window overlapping r, front to back.
func (t *Tracker) InRect(r platform.Rect) []Window {
	var out []Window
	for _, w := range t.windows {
		if w.Rect.Intersects(r) {
			out = append(out, w)
		}
	}
	return out
}
