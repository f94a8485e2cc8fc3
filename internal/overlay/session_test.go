package overlay

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/1broseidon/deskhook/internal/platform"
	"github.com/1broseidon/deskhook/internal/winstack"
	"github.com/1broseidon/deskhook/internal/winstyle"
)

const overlayWindow platform.Handle = 0x100

type desktopWindow struct {
	handle platform.Handle
	rect   platform.Rect
	title  string
}

// fakeDesktop is a window manager with a fixed front-to-back stack.
type fakeDesktop struct {
	stack    []desktopWindow
	fg       platform.Handle
	ex       platform.ExStyle
	exWrites int
	pos      []platform.Handle // insert-after handles for the overlay
	frameErr error
}

func (d *fakeDesktop) find(h platform.Handle) (desktopWindow, bool) {
	for _, w := range d.stack {
		if w.handle == h {
			return w, true
		}
	}
	return desktopWindow{}, false
}

func (d *fakeDesktop) EnumerateWindows() ([]platform.Handle, error) {
	out := make([]platform.Handle, 0, len(d.stack))
	for _, w := range d.stack {
		out = append(out, w.handle)
	}
	return out, nil
}

func (d *fakeDesktop) ForegroundWindow() platform.Handle { return d.fg }
func (d *fakeDesktop) IsVisible(platform.Handle) bool { return true }

func (d *fakeDesktop) WindowRect(h platform.Handle) (platform.Rect, error) {
	w, ok := d.find(h)
	if !ok {
		return platform.Rect{}, platform.ErrNotFound
	}
	return w.rect, nil
}

func (d *fakeDesktop) WindowTitle(h platform.Handle) (string, error) {
	w, ok := d.find(h)
	if !ok {
		return "", platform.ErrNotFound
	}
	return w.title, nil
}

func (d *fakeDesktop) ExStyle(h platform.Handle) (platform.ExStyle, error) {
	if h == overlayWindow {
		return d.ex, nil
	}
	return 0, nil
}

func (d *fakeDesktop) ProcessName(platform.Handle) (string, error) { return "app.exe", nil }
func (d *fakeDesktop) IsCloaked(platform.Handle) (bool, error) { return false, nil }

func (d *fakeDesktop) SetStyle(platform.Handle, platform.Style) error { return nil }

func (d *fakeDesktop) SetExStyle(h platform.Handle, s platform.ExStyle) error {
	d.exWrites++
	d.ex = s
	return nil
}

func (d *fakeDesktop) SetWindowPos(h, after platform.Handle, _ platform.Rect, _ platform.PosFlags) error {
	if h == overlayWindow {
		d.pos = append(d.pos, after)
	}
	return nil
}

func (d *fakeDesktop) ExtendFrameIntoClientArea(platform.Handle) error { return d.frameErr }
func (d *fakeDesktop) ScreenBounds() (platform.Rect, error) {
	return platform.Rect{Right: 1920, Bottom: 1080}, nil
}
func (d *fakeDesktop) DesktopWorker() (platform.Handle, error) { return 0x2, nil }
func (d *fakeDesktop) SetParent(platform.Handle, platform.Handle) error {
	return nil
}

func (d *fakeDesktop) clickThrough() bool { return d.ex&platform.ExStyleTransparent != 0 }

// fakeIcons reports an icon inside any of its rects.
type fakeIcons struct {
	rects    []platform.Rect
	initErr  error
	inits    int
	disposes int
}

func (f *fakeIcons) Initialize() error {
	f.inits++
	return f.initErr
}

func (f *fakeIcons) HitTest(p platform.Point) int {
	for i, r := range f.rects {
		if r.Contains(p) {
			return i
		}
	}
	return -1
}

func (f *fakeIcons) Dispose() error {
	f.disposes++
	return nil
}

func rect(l, t, r, b int) platform.Rect {
	return platform.Rect{Left: l, Top: t, Right: r, Bottom: b}
}

// W1 sits in front of the overlay, W2 behind it. The overlay covers the
// whole screen.
func newDesktop() *fakeDesktop {
	return &fakeDesktop{
		fg: 0x11,
		stack: []desktopWindow{
			{handle: 0x11, rect: rect(0, 0, 400, 400), title: "W1"},
			{handle: overlayWindow, rect: rect(0, 0, 1920, 1080), title: "Overlay"},
			{handle: 0x22, rect: rect(300, 300, 900, 900), title: "W2"},
		},
	}
}

func openSession(t *testing.T, opts Options) *Session {
	t.Helper()
	s, err := New(opts)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sceneEverywhere(platform.Point) bool { return true }

func TestTick_PassThroughOverFrontWindowCaptureElsewhere(t *testing.T) {
	desk := newDesktop()
	clock := time.Unix(0, 0)
	s := openSession(t, Options{
		Window: overlayWindow,
		Mode:   winstyle.ModeTransparent,
		System: desk,
		Scene:  sceneEverywhere,
		Now:    func() time.Time { return clock },
	})

	d := s.Tick(platform.Point{X: 100, Y: 100})
	if d.Capture {
		t.Fatalf("expected pass-through over W1")
	}
	if d.Occluder == nil || d.Occluder.Handle != 0x11 {
		t.Fatalf("expected W1 as occluder, got %+v", d.Occluder)
	}
	if !desk.clickThrough() {
		t.Fatalf("expected click-through on over W1")
	}

	clock = clock.Add(time.Millisecond)
	d = s.Tick(platform.Point{X: 600, Y: 600})
	if !d.Capture || d.Occluder != nil {
		t.Fatalf("expected capture over W2 only region, got %+v", d)
	}
	if desk.clickThrough() {
		t.Fatalf("expected click-through off while capturing")
	}
}

func TestTick_CaptureAfterFrontWindowCloses(t *testing.T) {
	desk := &fakeDesktop{
		stack: []desktopWindow{
			{handle: 0x11, rect: rect(0, 0, 500, 500), title: "W1"},
			{handle: overlayWindow, rect: rect(100, 100, 800, 800), title: "Overlay"},
		},
	}
	clock := time.Unix(0, 0)
	s := openSession(t, Options{
		Window: overlayWindow,
		Mode:   winstyle.ModeTransparent,
		System: desk,
		Scene:  sceneEverywhere,
		Now:    func() time.Time { return clock },
	})
	p := platform.Point{X: 200, Y: 200}

	if d := s.Tick(p); d.Capture {
		t.Fatalf("expected pass-through while W1 covers the point")
	}

	desk.stack = desk.stack[1:]
	clock = clock.Add(winstack.DefaultRefreshInterval)
	if d := s.Tick(p); !d.Capture {
		t.Fatalf("expected capture once W1 is gone, got %+v", d)
	}
}

func TestTick_ClickThroughWrittenOnlyOnChange(t *testing.T) {
	desk := newDesktop()
	clock := time.Unix(0, 0)
	s := openSession(t, Options{
		Window: overlayWindow,
		Mode:   winstyle.ModeTransparent,
		System: desk,
		Scene:  sceneEverywhere,
		Now:    func() time.Time { return clock },
	})
	base := desk.exWrites

	for i := 0; i < 5; i++ {
		clock = clock.Add(20 * time.Millisecond)
		s.Tick(platform.Point{X: 1000, Y: 1000})
	}
	if got := desk.exWrites - base; got != 0 {
		t.Fatalf("expected no writes while capture state is unchanged, got %d", got)
	}
	s.Tick(platform.Point{X: 10, Y: 10})
	if got := desk.exWrites - base; got != 1 {
		t.Fatalf("expected a single write on change, got %d", got)
	}
}

func TestTick_IconSuppressesCapture(t *testing.T) {
	desk := newDesktop()
	icons := &fakeIcons{rects: []platform.Rect{rect(1000, 0, 1064, 64)}}
	s := openSession(t, Options{
		Window: overlayWindow,
		Mode:   winstyle.ModeTransparent,
		System: desk,
		Icons:  icons,
		Scene:  sceneEverywhere,
	})
	d := s.Tick(platform.Point{X: 1030, Y: 30})
	if d.Capture || d.Icon != 0 {
		t.Fatalf("expected icon 0 and no capture, got %+v", d)
	}
	if icons.inits != 1 {
		t.Fatalf("expected icon bridge initialized once, got %d", icons.inits)
	}
}

func TestResolveClick_Priority(t *testing.T) {
	desk := newDesktop()
	icons := &fakeIcons{rects: []platform.Rect{rect(50, 50, 114, 114), rect(1000, 0, 1064, 64)}}
	sceneRect := rect(1200, 600, 1400, 800)
	s := openSession(t, Options{
		Window: overlayWindow,
		Mode:   winstyle.ModeTransparent,
		System: desk,
		Icons:  icons,
		Scene:  sceneRect.Contains,
	})

	tests := []struct {
		name string
		p    platform.Point
		want Target
	}{
		{"icon beats front window", platform.Point{X: 60, Y: 60}, Target{Kind: TargetIcon, Icon: 0}},
		{"icon on empty desktop", platform.Point{X: 1010, Y: 10}, Target{Kind: TargetIcon, Icon: 1}},
		{"front window", platform.Point{X: 200, Y: 200}, Target{Kind: TargetWindow, Icon: -1, Window: winstack.Window{
			Handle: 0x11, Rect: rect(0, 0, 400, 400), Z: 0, Title: "W1", Foreground: true, Process: "app.exe",
		}}},
		{"window behind overlay is not a target", platform.Point{X: 800, Y: 800}, Target{Kind: TargetBackground, Icon: -1}},
		{"scene", platform.Point{X: 1300, Y: 700}, Target{Kind: TargetScene, Icon: -1}},
		{"background", platform.Point{X: 1800, Y: 1000}, Target{Kind: TargetBackground, Icon: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, s.ResolveClick(tt.p)); diff != "" {
				t.Fatalf("target mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestHandleClick_SceneRaisesOverlay(t *testing.T) {
	desk := newDesktop()
	s := openSession(t, Options{
		Window: overlayWindow,
		Mode:   winstyle.ModeTransparent,
		System: desk,
		Scene:  sceneEverywhere,
	})
	desk.pos = nil

	if got := s.HandleClick(platform.Point{X: 1500, Y: 900}); got.Kind != TargetScene {
		t.Fatalf("expected scene target, got %v", got.Kind)
	}
	want := []platform.Handle{0x11, platform.HandleNoTopmost}
	if diff := cmp.Diff(want, desk.pos); diff != "" {
		t.Fatalf("overlay moves mismatch (-want +got):\n%s", diff)
	}

	desk.pos = nil
	s.HandleClick(platform.Point{X: 100, Y: 100})
	if len(desk.pos) != 0 {
		t.Fatalf("expected no move for a window click, got %v", desk.pos)
	}
}

func TestNCHitTest(t *testing.T) {
	desk := newDesktop()
	s := openSession(t, Options{
		Window: overlayWindow,
		Mode:   winstyle.ModeTransparent,
		System: desk,
		Scene:  rect(1000, 500, 1100, 600).Contains,
	})
	if !s.NCHitTest(platform.Point{X: 1050, Y: 550}) {
		t.Fatalf("expected capture over scene content")
	}
	if s.NCHitTest(platform.Point{X: 1500, Y: 900}) {
		t.Fatalf("expected pass-through away from scene content")
	}
}

func TestNew_SingleInstance(t *testing.T) {
	first := openSession(t, Options{Window: overlayWindow, Mode: winstyle.ModeTransparent, System: newDesktop()})

	if _, err := New(Options{Window: overlayWindow, Mode: winstyle.ModeTransparent, System: newDesktop()}); !errors.Is(err, ErrSessionExists) {
		t.Fatalf("expected ErrSessionExists, got %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	second, err := New(Options{Window: overlayWindow, Mode: winstyle.ModeTransparent, System: newDesktop()})
	if err != nil {
		t.Fatalf("expected new session after close, got %v", err)
	}
	second.Close()
}

func TestNew_DegradedWhenIconsFail(t *testing.T) {
	icons := &fakeIcons{initErr: platform.ErrNotFound}
	s := openSession(t, Options{
		Window: overlayWindow,
		Mode:   winstyle.ModeTransparent,
		System: newDesktop(),
		Icons:  icons,
	})
	if d := s.Tick(platform.Point{X: 10, Y: 10}); d.Icon != -1 {
		t.Fatalf("expected no icon, got %d", d.Icon)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if icons.disposes != 1 {
		t.Fatalf("expected icon bridge disposed, got %d", icons.disposes)
	}
}

func TestTick_FailedStyleSetupLeavesClickThroughAlone(t *testing.T) {
	desk := newDesktop()
	desk.frameErr = errors.New("composition disabled")
	s := openSession(t, Options{
		Window: overlayWindow,
		Mode:   winstyle.ModeTransparent,
		System: desk,
		Scene:  sceneEverywhere,
	})
	base := desk.exWrites
	s.Tick(platform.Point{X: 100, Y: 100})
	s.Tick(platform.Point{X: 1000, Y: 1000})
	if desk.exWrites != base {
		t.Fatalf("expected no click-through writes on a partly styled window, got %d", desk.exWrites-base)
	}
	if got := s.HandleClick(platform.Point{X: 1000, Y: 1000}); got.Kind != TargetScene {
		t.Fatalf("expected scene target, got %v", got.Kind)
	}
	if len(desk.pos) != 0 {
		t.Fatalf("expected no z-order moves, got %v", desk.pos)
	}
}

func TestTick_BehindIconsLeavesStyleAlone(t *testing.T) {
	desk := newDesktop()
	s := openSession(t, Options{
		Window: overlayWindow,
		Mode:   winstyle.ModeBehindIcons,
		System: desk,
		Scene:  sceneEverywhere,
	})
	base := desk.exWrites
	s.Tick(platform.Point{X: 1000, Y: 1000})
	s.Tick(platform.Point{X: 10, Y: 10})
	if desk.exWrites != base {
		t.Fatalf("expected no ex-style writes in behind-icons mode, got %d", desk.exWrites-base)
	}
}
