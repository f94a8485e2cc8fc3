// Package iconbridge hit-tests and enumerates the desktop icons by driving
// the shell's list-view control through buffers allocated inside the shell
// process.
package iconbridge

import (
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"

	"github.com/1broseidon/deskhook/internal/platform"
)

// List-view messages.
const (
	lvmGetItemCount    = 0x1004
	lvmGetItemPosition = 0x1010
	lvmHitTest         = 0x1012
)

// Shell is the subset of the OS needed to reach the icon grid.
type Shell interface {
	DesktopListView() (platform.Handle, error)
	WindowProcessID(h platform.Handle) (uint32, error)
	OpenProcess(pid uint32) (platform.ProcessHandle, error)
	CloseProcess(p platform.ProcessHandle) error
	AllocForeign(p platform.ProcessHandle, size int) (uintptr, error)
	FreeForeign(p platform.ProcessHandle, addr uintptr) error
	WriteForeign(p platform.ProcessHandle, addr uintptr, data []byte) error
	ReadForeign(p platform.ProcessHandle, addr uintptr, buf []byte) error
	SendMessage(h platform.Handle, msg uint32, wParam, lParam uintptr) uintptr
	IsWindow(h platform.Handle) bool
	ScreenToClient(h platform.Handle, p platform.Point) (platform.Point, error)
	ClientToScreen(h platform.Handle, p platform.Point) (platform.Point, error)
}

// Bridge owns the shell process handle and two foreign buffers. It is not
// safe for concurrent use.
type Bridge struct {
	shell  Shell
	logger *slog.Logger

	listView platform.Handle
	process  platform.ProcessHandle
	pointBuf *foreignBuffer
	hitBuf   *foreignBuffer
}

// New returns an uninitialized bridge. Every query answers "no icon" until
// Initialize succeeds.
func New(shell Shell, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Bridge{shell: shell, logger: logger}
}

// Initialized reports whether the bridge holds live shell resources.
func (b *Bridge) Initialized() bool {
	return b.process != 0 && b.pointBuf != nil && b.hitBuf != nil
}

// Initialize releases whatever the bridge held and attaches to the current
// shell list view.
func (b *Bridge) Initialize() error {
	if err := b.Dispose(); err != nil {
		b.logger.Warn("icon bridge: release before init", "err", err)
	}

	lv, err := b.shell.DesktopListView()
	if err != nil {
		return fmt.Errorf("locate desktop list view: %w", err)
	}
	pid, err := b.shell.WindowProcessID(lv)
	if err != nil {
		return fmt.Errorf("list view owner: %w", err)
	}
	proc, err := b.shell.OpenProcess(pid)
	if err != nil {
		return fmt.Errorf("open shell process: %w", err)
	}

	closeProc := func() error { return b.shell.CloseProcess(proc) }

	pointBuf, err := allocForeign(b.shell, proc, pointSize)
	if err != nil {
		b.release("close shell process", closeProc)
		return fmt.Errorf("allocate point buffer: %w", err)
	}
	hitBuf, err := allocForeign(b.shell, proc, hitTestInfoSize)
	if err != nil {
		b.release("free point buffer", pointBuf.free)
		b.release("close shell process", closeProc)
		return fmt.Errorf("allocate hit-test buffer: %w", err)
	}

	b.listView = lv
	b.process = proc
	b.pointBuf = pointBuf
	b.hitBuf = hitBuf
	b.logger.Debug("icon bridge attached", "pid", pid, "listview", fmt.Sprintf("%#x", uintptr(lv)))
	return nil
}

// HitTest returns the index of the icon under the screen point, or -1.
func (b *Bridge) HitTest(screen platform.Point) int {
	if !b.Initialized() {
		return -1
	}
	if err := b.checkListView(); err != nil {
		b.reattachIfGone(err)
		return -1
	}
	client, err := b.shell.ScreenToClient(b.listView, screen)
	if err != nil {
		b.reattachIfGone(listViewGone("screen to client", err))
		return -1
	}

	info := hitTestInfo{Point: client, Item: -1}
	if err := b.hitBuf.write(info.marshal()); err != nil {
		b.reattachIfGone(err)
		return -1
	}
	b.shell.SendMessage(b.listView, lvmHitTest, 0, b.hitBuf.addr)

	raw := make([]byte, hitTestInfoSize)
	if err := b.hitBuf.read(raw); err != nil {
		b.reattachIfGone(err)
		return -1
	}
	return int(unmarshalHitTestInfo(raw).Item)
}

// IconCount returns the number of icons on the desktop, or 0 when detached.
func (b *Bridge) IconCount() int {
	if !b.Initialized() {
		return 0
	}
	if err := b.checkListView(); err != nil {
		b.reattachIfGone(err)
		return 0
	}
	return int(int32(b.shell.SendMessage(b.listView, lvmGetItemCount, 0, 0)))
}

// IconPositions yields the screen position of every icon, in index order.
// Each iteration queries the shell afresh; a failed read ends the sequence.
func (b *Bridge) IconPositions() iter.Seq[platform.Point] {
	return func(yield func(platform.Point) bool) {
		count := b.IconCount()
		raw := make([]byte, pointSize)
		for i := 0; i < count; i++ {
			if !b.Initialized() {
				return
			}
			if err := b.pointBuf.write(marshalPoint(platform.Point{})); err != nil {
				b.reattachIfGone(err)
				return
			}
			b.shell.SendMessage(b.listView, lvmGetItemPosition, uintptr(i), b.pointBuf.addr)
			if err := b.pointBuf.read(raw); err != nil {
				b.reattachIfGone(err)
				return
			}
			screen, err := b.shell.ClientToScreen(b.listView, unmarshalPoint(raw))
			if err != nil {
				b.reattachIfGone(listViewGone("client to screen", err))
				return
			}
			if !yield(screen) {
				return
			}
		}
	}
}

// checkListView fails with ErrProcessGone once the list view window has been
// destroyed. Messages to a dead handle just answer 0.
func (b *Bridge) checkListView() error {
	if !b.shell.IsWindow(b.listView) {
		return fmt.Errorf("list view %#x: %w", uintptr(b.listView), platform.ErrProcessGone)
	}
	return nil
}

// listViewGone tags a coordinate conversion failure. Conversions only fail
// when the list view handle is no longer valid.
func listViewGone(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, platform.ErrProcessGone, err)
}

// reattachIfGone reattaches once when the shell process went away (explorer
// restart). Other failures are left alone.
func (b *Bridge) reattachIfGone(err error) {
	if !errors.Is(err, platform.ErrProcessGone) {
		b.logger.Debug("icon bridge: foreign memory access failed", "err", err)
		return
	}
	b.logger.Info("icon bridge: shell process gone, reattaching", "err", err)
	if err := b.Initialize(); err != nil {
		b.logger.Warn("icon bridge: reattach failed", "err", err)
	}
}

// Dispose frees both buffers and closes the process handle. Every step runs
// even if an earlier one fails or panics; the failures are joined.
func (b *Bridge) Dispose() error {
	var errs []error
	if b.pointBuf != nil {
		buf := b.pointBuf
		b.pointBuf = nil
		errs = append(errs, b.release("free point buffer", buf.free))
	}
	if b.hitBuf != nil {
		buf := b.hitBuf
		b.hitBuf = nil
		errs = append(errs, b.release("free hit-test buffer", buf.free))
	}
	if b.process != 0 {
		proc := b.process
		b.process = 0
		errs = append(errs, b.release("close shell process", func() error { return b.shell.CloseProcess(proc) }))
	}
	b.listView = 0
	return errors.Join(errs...)
}

// release runs one cleanup step and logs its failure or panic.
func (b *Bridge) release(name string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s: panic: %v", name, r)
			b.logger.Error("icon bridge: release", "err", err)
		}
	}()
	if err = fn(); err != nil {
		err = fmt.Errorf("%s: %w", name, err)
		b.logger.Warn("icon bridge: release", "err", err)
	}
	return err
}
