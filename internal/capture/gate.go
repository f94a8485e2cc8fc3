// Package capture decides whether the overlay takes the pointer, reusing
// the last answer while the pointer stays put for about a frame.
package capture

import (
	"math"
	"time"

	"github.com/1broseidon/deskhook/internal/platform"
)

const (
	DefaultRadius = 3.0
	DefaultMaxAge = 16 * time.Millisecond
)

// HitFunc reports whether the overlay's scene has something interactive
// under the screen point. It is usually a renderer ray test.
type HitFunc func(p platform.Point) bool

// Gate caches the last capture decision.
type Gate struct {
	Radius float64
	MaxAge time.Duration
	Now    func() time.Time

	valid  bool
	point  platform.Point
	at     time.Time
	result bool
}

// NewGate returns a gate with the given radius (pixels) and max age. Zero
// values select the defaults.
func NewGate(radius float64, maxAge time.Duration) *Gate {
	if radius <= 0 {
		radius = DefaultRadius
	}
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return &Gate{Radius: radius, MaxAge: maxAge, Now: time.Now}
}

// ShouldCapture returns the cached result when p is strictly within Radius
// of the cached point and the cache is strictly younger than MaxAge.
// Otherwise it evaluates hit and caches the answer.
func (g *Gate) ShouldCapture(p platform.Point, hit HitFunc) bool {
	now := g.now()
	if g.valid && distance(p, g.point) < g.Radius && now.Sub(g.at) < g.MaxAge {
		return g.result
	}
	result := hit(p)
	g.valid = true
	g.point = p
	g.at = now
	g.result = result
	return result
}

// Last returns the cached point and result, and whether the cache holds
// anything.
func (g *Gate) Last() (platform.Point, bool, bool) {
	return g.point, g.result, g.valid
}

// Reset drops the cached decision.
func (g *Gate) Reset() {
	g.valid = false
}

func (g *Gate) now() time.Time {
	if g.Now == nil {
		return time.Now()
	}
	return g.Now()
}

func distance(a, b platform.Point) float64 {
	return math.Hypot(float64(a.X-b.X), float64(a.Y-b.Y))
}
