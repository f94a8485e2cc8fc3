//go:build !windows

package platform

// Native has no implementation outside Windows.
type Native struct{}

// NewNative always fails with ErrUnsupported on this platform.
func NewNative() (*Native, error) {
	return nil, ErrUnsupported
}
