package platform

import "errors"

// Handle is an opaque top-level window identifier (an HWND on Windows).
type Handle uintptr

// ProcessHandle is an open handle to another process.
type ProcessHandle uintptr

// Z-order sentinels accepted as the insert-after argument of SetWindowPos.
const (
	HandleTop       Handle = 0
	HandleBottom    Handle = 1
	HandleTopmost   Handle = ^Handle(0) // -1
	HandleNoTopmost Handle = ^Handle(1) // -2
)

// Point is a position in integer screen (or client) coordinates.
type Point struct {
	X int
	Y int
}

// Rect describes a rectangle by its edges in screen coordinates.
type Rect struct {
	Left   int
	Top    int
	Right  int
	Bottom int
}

func (r Rect) Width() int  { return r.Right - r.Left }
func (r Rect) Height() int { return r.Bottom - r.Top }

// Contains reports whether p lies inside r. Edges are inclusive.
func (r Rect) Contains(p Point) bool {
	return p.X >= r.Left && p.X <= r.Right && p.Y >= r.Top && p.Y <= r.Bottom
}

// Intersects reports whether r and o overlap, touching edges included.
func (r Rect) Intersects(o Rect) bool {
	return !(o.Right < r.Left || o.Left > r.Right || o.Bottom < r.Top || o.Top > r.Bottom)
}

// Style holds GWL_STYLE window style bits.
type Style uint32

const (
	StylePopup   Style = 0x80000000
	StyleVisible Style = 0x10000000
	StyleChild   Style = 0x40000000
)

// ExStyle holds GWL_EXSTYLE extended window style bits.
type ExStyle uint32

const (
	ExStyleTopmost     ExStyle = 0x00000008
	ExStyleTransparent ExStyle = 0x00000020 // click-through
	ExStyleToolWindow  ExStyle = 0x00000080
	ExStyleLayered     ExStyle = 0x00080000
	ExStyleNoActivate  ExStyle = 0x08000000
)

// PosFlags are SetWindowPos flags.
type PosFlags uint32

const (
	PosNoSize        PosFlags = 0x0001
	PosNoMove        PosFlags = 0x0002
	PosNoActivate    PosFlags = 0x0010
	PosFrameChanged  PosFlags = 0x0020
	PosShowWindow    PosFlags = 0x0040
	PosNoOwnerZOrder PosFlags = 0x0200
)

var (
	// ErrProcessGone reports that a foreign process exited or revoked our
	// access; its handles and allocations are no longer usable.
	ErrProcessGone = errors.New("foreign process gone or access revoked")
	// ErrNotFound reports that a shell window could not be located.
	ErrNotFound = errors.New("window not found")
	// ErrUnsupported is returned by NewNative on platforms without a backend.
	ErrUnsupported = errors.New("platform not supported")
	// ErrAlreadyRunning reports that another process holds the instance lock.
	ErrAlreadyRunning = errors.New("another instance is already running")
)
