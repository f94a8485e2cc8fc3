//go:build windows && (amd64 || arm64)

package platform

var (
	procGetWindowLong = user32.NewProc("GetWindowLongPtrW")
	procSetWindowLong = user32.NewProc("SetWindowLongPtrW")
)
