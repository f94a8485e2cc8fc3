//go:build windows && (386 || arm)

package platform

// user32 exports the Ptr variants only on 64-bit; on 32-bit they are macros
// over the plain ones.
var (
	procGetWindowLong = user32.NewProc("GetWindowLongW")
	procSetWindowLong = user32.NewProc("SetWindowLongW")
)
