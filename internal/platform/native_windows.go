//go:build windows

package platform

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	user32 = windows.NewLazySystemDLL("user32.dll")
	dwmapi = windows.NewLazySystemDLL("dwmapi.dll")
	kernel = windows.NewLazySystemDLL("kernel32.dll")

	procEnumWindows          = user32.NewProc("EnumWindows")
	procIsWindow             = user32.NewProc("IsWindow")
	procIsWindowVisible      = user32.NewProc("IsWindowVisible")
	procGetWindowRect        = user32.NewProc("GetWindowRect")
	procGetWindowTextW       = user32.NewProc("GetWindowTextW")
	procGetWindowTextLengthW = user32.NewProc("GetWindowTextLengthW")
	procCallWindowProcW      = user32.NewProc("CallWindowProcW")
	procGetForegroundWindow  = user32.NewProc("GetForegroundWindow")
	procSetWindowPos         = user32.NewProc("SetWindowPos")
	procSetParent            = user32.NewProc("SetParent")
	procFindWindowExW        = user32.NewProc("FindWindowExW")
	procSendMessageW         = user32.NewProc("SendMessageW")
	procSendMessageTimeoutW  = user32.NewProc("SendMessageTimeoutW")
	procScreenToClient       = user32.NewProc("ScreenToClient")
	procClientToScreen       = user32.NewProc("ClientToScreen")
	procGetSystemMetrics     = user32.NewProc("GetSystemMetrics")
	procGetCursorPos         = user32.NewProc("GetCursorPos")
	procGetAsyncKeyState     = user32.NewProc("GetAsyncKeyState")

	procDwmExtendFrameIntoClientArea = dwmapi.NewProc("DwmExtendFrameIntoClientArea")
	procDwmGetWindowAttribute        = dwmapi.NewProc("DwmGetWindowAttribute")

	procVirtualAllocEx = kernel.NewProc("VirtualAllocEx")
	procVirtualFreeEx  = kernel.NewProc("VirtualFreeEx")
	procSetLastError   = kernel.NewProc("SetLastError")
)

const (
	gwlWndProc int32 = -4
	gwlStyle   int32 = -16
	gwlExStyle int32 = -20

	wmNCHitTest     = 0x0084
	wmMouseActivate = 0x0021
	htClient        = 1
	htTransparent   = ^uintptr(0) // -1
	maNoActivate    = 3

	smCXScreen = 0
	smCYScreen = 1

	dwmwaCloaked = 14

	vkLButton = 0x01

	// Asks Progman to spawn the WorkerW that sits between wallpaper and icons.
	msgSpawnWorker = 0x052C
	smtoNormal     = 0x0000
)

type point32 struct {
	X int32
	Y int32
}

type rect32 struct {
	Left   int32
	Top    int32
	Right  int32
	Bottom int32
}

type margins struct {
	CxLeftWidth    int32
	CxRightWidth   int32
	CyTopHeight    int32
	CyBottomHeight int32
}

// Native talks to the Win32 window manager and to other processes through
// user32, dwmapi and kernel32. It keeps no state of its own: every query
// reads the live OS value.
type Native struct{}

// NewNative returns the Win32 backend.
func NewNative() (*Native, error) {
	return &Native{}, nil
}

var (
	enumMu   sync.Mutex
	enumList []Handle
	// Created once: the runtime caps the number of callbacks per process.
	enumCallback = windows.NewCallback(func(hwnd uintptr, _ uintptr) uintptr {
		enumList = append(enumList, Handle(hwnd))
		return 1
	})
)

var errEnumBusy = errors.New("window enumeration already in progress")

// EnumerateWindows returns every top-level window, front to back. The OS
// callback only appends to a list; nothing re-enters enumeration from it.
func (n *Native) EnumerateWindows() ([]Handle, error) {
	if !enumMu.TryLock() {
		return nil, errEnumBusy
	}
	defer enumMu.Unlock()

	enumList = enumList[:0]
	ret, _, callErr := procEnumWindows.Call(enumCallback, 0)
	if ret == 0 {
		return nil, fmt.Errorf("EnumWindows: %w", callErr)
	}
	out := make([]Handle, len(enumList))
	copy(out, enumList)
	return out, nil
}

// ForegroundWindow returns the window with keyboard focus, or 0.
func (n *Native) ForegroundWindow() Handle {
	ret, _, _ := procGetForegroundWindow.Call()
	return Handle(ret)
}

// IsWindow reports whether h still names an existing window.
func (n *Native) IsWindow(h Handle) bool {
	ret, _, _ := procIsWindow.Call(uintptr(h))
	return ret != 0
}

func (n *Native) IsVisible(h Handle) bool {
	ret, _, _ := procIsWindowVisible.Call(uintptr(h))
	return ret != 0
}

func (n *Native) WindowRect(h Handle) (Rect, error) {
	var r rect32
	ret, _, callErr := procGetWindowRect.Call(uintptr(h), uintptr(unsafe.Pointer(&r)))
	if ret == 0 {
		return Rect{}, fmt.Errorf("GetWindowRect(%#x): %w", uintptr(h), callErr)
	}
	return Rect{Left: int(r.Left), Top: int(r.Top), Right: int(r.Right), Bottom: int(r.Bottom)}, nil
}

// WindowTitle returns the window text. An untitled window yields "" and no
// error; a vanished window yields an error.
func (n *Native) WindowTitle(h Handle) (string, error) {
	procSetLastError.Call(0)
	length, _, _ := procGetWindowTextLengthW.Call(uintptr(h))
	if length == 0 {
		if last := windows.GetLastError(); last != nil && !errors.Is(last, windows.ERROR_SUCCESS) {
			return "", fmt.Errorf("GetWindowTextLengthW(%#x): %w", uintptr(h), last)
		}
		return "", nil
	}
	buf := make([]uint16, length+1)
	procGetWindowTextW.Call(uintptr(h), uintptr(unsafe.Pointer(&buf[0])), uintptr(len(buf)))
	return windows.UTF16ToString(buf), nil
}

func (n *Native) SetStyle(h Handle, s Style) error {
	return setWindowLongPtr(h, gwlStyle, uintptr(s))
}

func (n *Native) ExStyle(h Handle) (ExStyle, error) {
	v, err := getWindowLongPtr(h, gwlExStyle)
	return ExStyle(v), err
}

func (n *Native) SetExStyle(h Handle, s ExStyle) error {
	return setWindowLongPtr(h, gwlExStyle, uintptr(s))
}

// getWindowLongPtr can legally return 0 on success, so only GetLastError
// tells a real failure apart.
func getWindowLongPtr(h Handle, index int32) (uintptr, error) {
	if h == 0 {
		return 0, fmt.Errorf("%s: hwnd is 0", procGetWindowLong.Name)
	}
	procSetLastError.Call(0)
	ret, _, _ := procGetWindowLong.Call(uintptr(h), uintptr(index))
	if ret == 0 {
		if last := windows.GetLastError(); last != nil && !errors.Is(last, windows.ERROR_SUCCESS) {
			return 0, fmt.Errorf("%s(%#x, %d): %w", procGetWindowLong.Name, uintptr(h), index, last)
		}
	}
	return ret, nil
}

func setWindowLongPtr(h Handle, index int32, value uintptr) error {
	if h == 0 {
		return fmt.Errorf("%s: hwnd is 0", procSetWindowLong.Name)
	}
	procSetLastError.Call(0)
	ret, _, _ := procSetWindowLong.Call(uintptr(h), uintptr(index), value)
	if ret == 0 {
		if last := windows.GetLastError(); last != nil && !errors.Is(last, windows.ERROR_SUCCESS) {
			return fmt.Errorf("%s(%#x, %d): %w", procSetWindowLong.Name, uintptr(h), index, last)
		}
	}
	return nil
}

// SetWindowPos moves h in the Z order after insertAfter (a window or one of
// the Handle* sentinels) and, unless flags say otherwise, to bounds.
func (n *Native) SetWindowPos(h, insertAfter Handle, bounds Rect, flags PosFlags) error {
	ret, _, callErr := procSetWindowPos.Call(
		uintptr(h),
		uintptr(insertAfter),
		uintptr(int32(bounds.Left)),
		uintptr(int32(bounds.Top)),
		uintptr(int32(bounds.Width())),
		uintptr(int32(bounds.Height())),
		uintptr(flags),
	)
	if ret == 0 {
		return fmt.Errorf("SetWindowPos(%#x, %#x): %w", uintptr(h), uintptr(insertAfter), callErr)
	}
	return nil
}

// ExtendFrameIntoClientArea turns the whole client area into DWM glass so
// per-pixel alpha shows the desktop through the window.
func (n *Native) ExtendFrameIntoClientArea(h Handle) error {
	m := margins{CxLeftWidth: -1, CxRightWidth: -1, CyTopHeight: -1, CyBottomHeight: -1}
	hr, _, _ := procDwmExtendFrameIntoClientArea.Call(uintptr(h), uintptr(unsafe.Pointer(&m)))
	if int32(hr) < 0 {
		return fmt.Errorf("DwmExtendFrameIntoClientArea(%#x): HRESULT %#x", uintptr(h), uint32(hr))
	}
	return nil
}

// IsCloaked reports whether DWM hides the window even though it is
// nominally visible (suspended UWP frames, other virtual desktops).
func (n *Native) IsCloaked(h Handle) (bool, error) {
	var cloaked uint32
	hr, _, _ := procDwmGetWindowAttribute.Call(
		uintptr(h),
		dwmwaCloaked,
		uintptr(unsafe.Pointer(&cloaked)),
		unsafe.Sizeof(cloaked),
	)
	if int32(hr) < 0 {
		return false, fmt.Errorf("DwmGetWindowAttribute(%#x): HRESULT %#x", uintptr(h), uint32(hr))
	}
	return cloaked != 0, nil
}

func (n *Native) SetParent(child, parent Handle) error {
	procSetLastError.Call(0)
	ret, _, _ := procSetParent.Call(uintptr(child), uintptr(parent))
	if ret == 0 {
		if last := windows.GetLastError(); last != nil && !errors.Is(last, windows.ERROR_SUCCESS) {
			return fmt.Errorf("SetParent(%#x, %#x): %w", uintptr(child), uintptr(parent), last)
		}
	}
	return nil
}

// ScreenBounds returns the primary display in screen coordinates.
func (n *Native) ScreenBounds() (Rect, error) {
	w, _, _ := procGetSystemMetrics.Call(smCXScreen)
	h, _, _ := procGetSystemMetrics.Call(smCYScreen)
	if w == 0 || h == 0 {
		return Rect{}, fmt.Errorf("GetSystemMetrics: no primary display size")
	}
	return Rect{Right: int(int32(w)), Bottom: int(int32(h))}, nil
}

func (n *Native) WindowProcessID(h Handle) (uint32, error) {
	var pid uint32
	if _, err := windows.GetWindowThreadProcessId(windows.HWND(h), &pid); err != nil {
		return 0, fmt.Errorf("GetWindowThreadProcessId(%#x): %w", uintptr(h), err)
	}
	if pid == 0 {
		return 0, fmt.Errorf("GetWindowThreadProcessId(%#x): no owning process", uintptr(h))
	}
	return pid, nil
}

// ProcessName returns the executable base name of the process owning h.
func (n *Native) ProcessName(h Handle) (string, error) {
	pid, err := n.WindowProcessID(h)
	if err != nil {
		return "", err
	}
	proc, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, pid)
	if err != nil {
		return "", fmt.Errorf("OpenProcess(%d): %w", pid, err)
	}
	defer windows.CloseHandle(proc)

	buf := make([]uint16, windows.MAX_PATH)
	size := uint32(len(buf))
	if err := windows.QueryFullProcessImageName(proc, 0, &buf[0], &size); err != nil {
		return "", fmt.Errorf("QueryFullProcessImageName(%d): %w", pid, err)
	}
	return filepath.Base(windows.UTF16ToString(buf[:size])), nil
}

func utf16PtrOrNil(s string) (*uint16, error) {
	if s == "" {
		return nil, nil
	}
	return windows.UTF16PtrFromString(s)
}

func findWindowEx(parent, after Handle, class, title string) Handle {
	classPtr, err := utf16PtrOrNil(class)
	if err != nil {
		return 0
	}
	titlePtr, err := utf16PtrOrNil(title)
	if err != nil {
		return 0
	}
	ret, _, _ := procFindWindowExW.Call(
		uintptr(parent),
		uintptr(after),
		uintptr(unsafe.Pointer(classPtr)),
		uintptr(unsafe.Pointer(titlePtr)),
	)
	return Handle(ret)
}

// FindWindow looks a top-level window up by class and/or title.
func (n *Native) FindWindow(class, title string) (Handle, error) {
	h := findWindowEx(0, 0, class, title)
	if h == 0 {
		return 0, fmt.Errorf("FindWindow(class=%q, title=%q): %w", class, title, ErrNotFound)
	}
	return h, nil
}

// shellViewHost returns the first top-level window that hosts the shell's
// SHELLDLL_DefView, and that view.
func (n *Native) shellViewHost() (host, view Handle, err error) {
	tops, err := n.EnumerateWindows()
	if err != nil {
		return 0, 0, err
	}
	for _, top := range tops {
		if v := findWindowEx(top, 0, "SHELLDLL_DefView", ""); v != 0 {
			return top, v, nil
		}
	}
	return 0, 0, fmt.Errorf("SHELLDLL_DefView: %w", ErrNotFound)
}

// DesktopListView locates the SysListView32 control that owns the desktop
// icons. It is a child of SHELLDLL_DefView, not a sibling.
func (n *Native) DesktopListView() (Handle, error) {
	_, view, err := n.shellViewHost()
	if err != nil {
		return 0, err
	}
	lv := findWindowEx(view, 0, "SysListView32", "FolderView")
	if lv == 0 {
		return 0, fmt.Errorf("desktop FolderView: %w", ErrNotFound)
	}
	return lv, nil
}

// DesktopWorker returns the WorkerW window that renders between the
// wallpaper and the icons, asking Progman to create it first.
func (n *Native) DesktopWorker() (Handle, error) {
	progman := findWindowEx(0, 0, "Progman", "")
	if progman == 0 {
		return 0, fmt.Errorf("Progman: %w", ErrNotFound)
	}
	var result uintptr
	procSendMessageTimeoutW.Call(uintptr(progman), msgSpawnWorker, 0, 0, smtoNormal, 1000, uintptr(unsafe.Pointer(&result)))

	if host, _, err := n.shellViewHost(); err == nil {
		if w := findWindowEx(0, host, "WorkerW", ""); w != 0 {
			return w, nil
		}
	}
	// Newer shells parent the WorkerW under Progman itself.
	if w := findWindowEx(progman, 0, "WorkerW", ""); w != 0 {
		return w, nil
	}
	return 0, fmt.Errorf("WorkerW: %w", ErrNotFound)
}

func (n *Native) SendMessage(h Handle, msg uint32, wParam, lParam uintptr) uintptr {
	ret, _, _ := procSendMessageW.Call(uintptr(h), uintptr(msg), wParam, lParam)
	return ret
}

func (n *Native) ScreenToClient(h Handle, p Point) (Point, error) {
	pt := point32{X: int32(p.X), Y: int32(p.Y)}
	ret, _, callErr := procScreenToClient.Call(uintptr(h), uintptr(unsafe.Pointer(&pt)))
	if ret == 0 {
		return Point{}, fmt.Errorf("ScreenToClient(%#x): %w", uintptr(h), callErr)
	}
	return Point{X: int(pt.X), Y: int(pt.Y)}, nil
}

func (n *Native) ClientToScreen(h Handle, p Point) (Point, error) {
	pt := point32{X: int32(p.X), Y: int32(p.Y)}
	ret, _, callErr := procClientToScreen.Call(uintptr(h), uintptr(unsafe.Pointer(&pt)))
	if ret == 0 {
		return Point{}, fmt.Errorf("ClientToScreen(%#x): %w", uintptr(h), callErr)
	}
	return Point{X: int(pt.X), Y: int(pt.Y)}, nil
}

// memErr tags the failure codes that mean the foreign process is gone or
// our access to it was revoked.
func memErr(op string, err error) error {
	var errno windows.Errno
	if errors.As(err, &errno) && (errno == windows.ERROR_ACCESS_DENIED || errno == windows.ERROR_INVALID_HANDLE) {
		return fmt.Errorf("%s: %w: %w", op, ErrProcessGone, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (n *Native) OpenProcess(pid uint32) (ProcessHandle, error) {
	h, err := windows.OpenProcess(windows.PROCESS_ALL_ACCESS, false, pid)
	if err != nil {
		return 0, fmt.Errorf("OpenProcess(%d): %w", pid, err)
	}
	return ProcessHandle(h), nil
}

func (n *Native) CloseProcess(p ProcessHandle) error {
	if err := windows.CloseHandle(windows.Handle(p)); err != nil {
		return fmt.Errorf("CloseHandle: %w", err)
	}
	return nil
}

func (n *Native) AllocForeign(p ProcessHandle, size int) (uintptr, error) {
	addr, _, callErr := procVirtualAllocEx.Call(
		uintptr(p),
		0,
		uintptr(size),
		windows.MEM_COMMIT|windows.MEM_RESERVE,
		windows.PAGE_READWRITE,
	)
	if addr == 0 {
		return 0, memErr("VirtualAllocEx", callErr)
	}
	return addr, nil
}

func (n *Native) FreeForeign(p ProcessHandle, addr uintptr) error {
	ret, _, callErr := procVirtualFreeEx.Call(uintptr(p), addr, 0, windows.MEM_RELEASE)
	if ret == 0 {
		return memErr("VirtualFreeEx", callErr)
	}
	return nil
}

func (n *Native) WriteForeign(p ProcessHandle, addr uintptr, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	var written uintptr
	if err := windows.WriteProcessMemory(windows.Handle(p), addr, &data[0], uintptr(len(data)), &written); err != nil {
		return memErr("WriteProcessMemory", err)
	}
	if written != uintptr(len(data)) {
		return fmt.Errorf("WriteProcessMemory: short write %d/%d", written, len(data))
	}
	return nil
}

func (n *Native) ReadForeign(p ProcessHandle, addr uintptr, buf []byte) error {
	if len(buf) == 0 {
		return nil
	}
	var read uintptr
	if err := windows.ReadProcessMemory(windows.Handle(p), addr, &buf[0], uintptr(len(buf)), &read); err != nil {
		return memErr("ReadProcessMemory", err)
	}
	if read != uintptr(len(buf)) {
		return fmt.Errorf("ReadProcessMemory: short read %d/%d", read, len(buf))
	}
	return nil
}

// AcquireInstanceLock claims a session-local named mutex. The returned func
// releases it.
func (n *Native) AcquireInstanceLock(name string) (func() error, error) {
	ptr, err := windows.UTF16PtrFromString(`Local\` + name)
	if err != nil {
		return nil, err
	}
	h, err := windows.CreateMutex(nil, true, ptr)
	if err != nil {
		if h != 0 {
			windows.CloseHandle(h)
		}
		if errors.Is(err, windows.ERROR_ALREADY_EXISTS) {
			return nil, fmt.Errorf("%s: %w", name, ErrAlreadyRunning)
		}
		return nil, fmt.Errorf("CreateMutex(%s): %w", name, err)
	}
	release := func() error {
		// Ownership is per OS thread; closing the handle is what lets the
		// next instance in.
		windows.ReleaseMutex(h)
		return windows.CloseHandle(h)
	}
	return release, nil
}

// CursorPos returns the cursor position in screen coordinates.
func (n *Native) CursorPos() (Point, error) {
	var pt point32
	ret, _, callErr := procGetCursorPos.Call(uintptr(unsafe.Pointer(&pt)))
	if ret == 0 {
		return Point{}, fmt.Errorf("GetCursorPos: %w", callErr)
	}
	return Point{X: int(pt.X), Y: int(pt.Y)}, nil
}

// LeftButtonDown reports whether the primary mouse button is held, system-wide.
func (n *Native) LeftButtonDown() bool {
	ret, _, _ := procGetAsyncKeyState.Call(vkLButton)
	return ret&0x8000 != 0
}

type hitTestHook struct {
	prev    uintptr
	capture func(Point) bool
}

var (
	hooks       sync.Map // Handle -> *hitTestHook
	hookWndProc = windows.NewCallback(func(hwnd uintptr, msg uint32, wParam, lParam uintptr) uintptr {
		v, ok := hooks.Load(Handle(hwnd))
		if !ok {
			return 0
		}
		hook := v.(*hitTestHook)
		if hook.prev == 0 {
			return 0
		}
		switch msg {
		case wmNCHitTest:
			p := Point{X: int(int16(lParam & 0xFFFF)), Y: int(int16((lParam >> 16) & 0xFFFF))}
			if hook.capture(p) {
				return htClient
			}
			return htTransparent
		case wmMouseActivate:
			return maNoActivate
		}
		ret, _, _ := procCallWindowProcW.Call(hook.prev, hwnd, uintptr(msg), wParam, lParam)
		return ret
	})
)

// SubclassHitTest replaces the window procedure of h so that WM_NCHITTEST is
// answered by capture (HTCLIENT when true, HTTRANSPARENT otherwise) and
// mouse activation is always refused. The returned func restores the
// previous procedure.
func (n *Native) SubclassHitTest(h Handle, capture func(Point) bool) (func() error, error) {
	if _, loaded := hooks.Load(h); loaded {
		return nil, fmt.Errorf("window %#x already subclassed", uintptr(h))
	}
	hook := &hitTestHook{capture: capture}
	hooks.Store(h, hook)

	index := gwlWndProc
	procSetLastError.Call(0)
	prev, _, _ := procSetWindowLong.Call(uintptr(h), uintptr(index), hookWndProc)
	if prev == 0 {
		hooks.Delete(h)
		return nil, fmt.Errorf("%s(GWLP_WNDPROC): %w", procSetWindowLong.Name, windows.GetLastError())
	}
	hook.prev = prev

	restore := func() error {
		defer hooks.Delete(h)
		return setWindowLongPtr(h, gwlWndProc, prev)
	}
	return restore, nil
}
