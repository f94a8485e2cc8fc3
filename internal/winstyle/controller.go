// Package winstyle applies the overlay's window styles and moves it in the
// Z order.
package winstyle

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/1broseidon/deskhook/internal/platform"
)

// Mode is fixed once Configure has run.
type Mode int

const (
	ModeUnset Mode = iota
	// ModeTransparent keeps the overlay in the normal Z order and toggles
	// click-through as the pointer moves.
	ModeTransparent
	// ModeBehindIcons parents the overlay under the shell worker window,
	// between the wallpaper and the icons.
	ModeBehindIcons
)

func (m Mode) String() string {
	switch m {
	case ModeTransparent:
		return "transparent"
	case ModeBehindIcons:
		return "behind-icons"
	default:
		return "unset"
	}
}

// ZOrder is a placement request for SetZOrder.
type ZOrder int

const (
	ZBottom ZOrder = iota
	ZFront
	ZTop
)

func (z ZOrder) String() string {
	switch z {
	case ZBottom:
		return "bottom"
	case ZFront:
		return "front"
	case ZTop:
		return "top"
	default:
		return fmt.Sprintf("ZOrder(%d)", int(z))
	}
}

var (
	ErrAlreadyConfigured = errors.New("window style already configured")
	ErrWrongMode         = errors.New("operation not available in this mode")
)

// Styler is the window manager as seen by the controller.
type Styler interface {
	SetStyle(h platform.Handle, s platform.Style) error
	ExStyle(h platform.Handle) (platform.ExStyle, error)
	SetExStyle(h platform.Handle, s platform.ExStyle) error
	SetWindowPos(h, insertAfter platform.Handle, bounds platform.Rect, flags platform.PosFlags) error
	ForegroundWindow() platform.Handle
	ExtendFrameIntoClientArea(h platform.Handle) error
	ScreenBounds() (platform.Rect, error)
	DesktopWorker() (platform.Handle, error)
	SetParent(child, parent platform.Handle) error
}

const zFlags = platform.PosNoMove | platform.PosNoSize | platform.PosNoActivate

// Controller owns the overlay window's styles. It is not safe for
// concurrent use.
type Controller struct {
	sys       Styler
	window    platform.Handle
	requested Mode
	mode      Mode
	logger    *slog.Logger
}

func New(sys Styler, window platform.Handle, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Controller{sys: sys, window: window, logger: logger}
}

// Mode reports the mode the window was successfully configured for, or
// ModeUnset when Configure has not run or failed part way.
func (c *Controller) Mode() Mode { return c.mode }

// Configure applies the startup styles for mode. It may run once; a failing
// step leaves the window partially styled, is returned to the caller and
// keeps the mode unset so mode-specific operations stay off.
func (c *Controller) Configure(mode Mode) error {
	if c.requested != ModeUnset {
		return ErrAlreadyConfigured
	}
	switch mode {
	case ModeTransparent, ModeBehindIcons:
	default:
		return fmt.Errorf("configure: unknown mode %d", int(mode))
	}
	c.requested = mode
	if err := c.apply(mode); err != nil {
		return err
	}
	c.mode = mode
	return nil
}

func (c *Controller) apply(mode Mode) error {
	if err := c.sys.SetStyle(c.window, platform.StylePopup|platform.StyleVisible); err != nil {
		return fmt.Errorf("configure %s: set style: %w", mode, err)
	}
	ex, err := c.sys.ExStyle(c.window)
	if err != nil {
		return fmt.Errorf("configure %s: read ex-style: %w", mode, err)
	}

	if mode == ModeTransparent {
		if err := c.sys.SetExStyle(c.window, ex|platform.ExStyleNoActivate|platform.ExStyleLayered); err != nil {
			return fmt.Errorf("configure %s: set ex-style: %w", mode, err)
		}
		if err := c.sys.ExtendFrameIntoClientArea(c.window); err != nil {
			return fmt.Errorf("configure %s: extend frame: %w", mode, err)
		}
		if err := c.SetZOrder(ZBottom); err != nil {
			return fmt.Errorf("configure %s: %w", mode, err)
		}
		c.logger.Debug("window configured", "mode", mode)
		return nil
	}

	ex = (ex &^ platform.ExStyleToolWindow) | platform.ExStyleTransparent | platform.ExStyleLayered
	if err := c.sys.SetExStyle(c.window, ex); err != nil {
		return fmt.Errorf("configure %s: set ex-style: %w", mode, err)
	}
	bounds, err := c.sys.ScreenBounds()
	if err != nil {
		return fmt.Errorf("configure %s: screen bounds: %w", mode, err)
	}
	if err := c.sys.SetWindowPos(c.window, platform.HandleTop, bounds, platform.PosNoActivate|platform.PosFrameChanged); err != nil {
		return fmt.Errorf("configure %s: resize: %w", mode, err)
	}
	worker, err := c.sys.DesktopWorker()
	if err != nil {
		return fmt.Errorf("configure %s: find worker: %w", mode, err)
	}
	if err := c.sys.SetParent(c.window, worker); err != nil {
		return fmt.Errorf("configure %s: reparent: %w", mode, err)
	}
	c.logger.Debug("window configured", "mode", mode, "worker", fmt.Sprintf("%#x", uintptr(worker)))
	return nil
}

// SetClickThrough makes the overlay pass pointer input through (on) or take
// it (off). It reads the live ex-style and writes only when the bit differs.
func (c *Controller) SetClickThrough(on bool) error {
	if c.mode != ModeTransparent {
		return ErrWrongMode
	}
	ex, err := c.sys.ExStyle(c.window)
	if err != nil {
		return fmt.Errorf("click-through: read ex-style: %w", err)
	}
	if (ex&platform.ExStyleTransparent != 0) == on {
		return nil
	}
	if on {
		ex |= platform.ExStyleTransparent
	} else {
		ex &^= platform.ExStyleTransparent
	}
	if err := c.sys.SetExStyle(c.window, ex); err != nil {
		return fmt.Errorf("click-through: write ex-style: %w", err)
	}
	return nil
}

// SetZOrder moves the overlay without activating it. Front places it just
// above the foreground window and leaves it non-topmost.
func (c *Controller) SetZOrder(z ZOrder) error {
	switch z {
	case ZBottom:
		return c.place(platform.HandleBottom)
	case ZTop:
		return c.place(platform.HandleTopmost)
	case ZFront:
		fg := c.sys.ForegroundWindow()
		if fg != 0 && fg != c.window {
			if err := c.place(fg); err != nil {
				return err
			}
			if err := c.sys.SetWindowPos(fg, c.window, platform.Rect{}, zFlags); err != nil {
				return fmt.Errorf("z-order front: move foreground: %w", err)
			}
		}
		return c.place(platform.HandleNoTopmost)
	default:
		return fmt.Errorf("z-order: unknown placement %d", int(z))
	}
}

func (c *Controller) place(after platform.Handle) error {
	if err := c.sys.SetWindowPos(c.window, after, platform.Rect{}, zFlags); err != nil {
		return fmt.Errorf("z-order: %w", err)
	}
	return nil
}
