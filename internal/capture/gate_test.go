package capture

import (
	"testing"
	"time"

	"github.com/1broseidon/deskhook/internal/platform"
)

type countingHit struct {
	calls  int
	result bool
}

func (c *countingHit) hit(platform.Point) bool {
	c.calls++
	return c.result
}

func newTestGate(now *time.Time) *Gate {
	g := NewGate(0, 0)
	g.Now = func() time.Time { return *now }
	return g
}

func TestShouldCapture_CachesWithinRadiusAndAge(t *testing.T) {
	now := time.Unix(0, 0)
	g := newTestGate(&now)
	h := &countingHit{result: true}

	if !g.ShouldCapture(platform.Point{X: 100, Y: 100}, h.hit) {
		t.Fatalf("expected capture")
	}
	h.result = false

	now = now.Add(5 * time.Millisecond)
	if !g.ShouldCapture(platform.Point{X: 101, Y: 101}, h.hit) {
		t.Fatalf("expected cached capture")
	}
	if h.calls != 1 {
		t.Fatalf("expected 1 hit evaluation, got %d", h.calls)
	}
}

func TestShouldCapture_Recomputes(t *testing.T) {
	tests := []struct {
		name    string
		move    platform.Point
		elapsed time.Duration
	}{
		{"exactly radius away", platform.Point{X: 3, Y: 0}, time.Millisecond},
		{"beyond radius", platform.Point{X: 3, Y: 3}, time.Millisecond},
		{"exactly max age", platform.Point{}, 16 * time.Millisecond},
		{"older than max age", platform.Point{}, 40 * time.Millisecond},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			now := time.Unix(0, 0)
			g := newTestGate(&now)
			h := &countingHit{result: true}
			start := platform.Point{X: 50, Y: 50}

			g.ShouldCapture(start, h.hit)
			h.result = false
			now = now.Add(tt.elapsed)
			p := platform.Point{X: start.X + tt.move.X, Y: start.Y + tt.move.Y}
			if g.ShouldCapture(p, h.hit) {
				t.Fatalf("expected fresh evaluation to return false")
			}
			if h.calls != 2 {
				t.Fatalf("expected 2 hit evaluations, got %d", h.calls)
			}
		})
	}
}

func TestShouldCapture_SecondCallWithinWindowIsStable(t *testing.T) {
	now := time.Unix(0, 0)
	g := newTestGate(&now)
	flip := false
	hit := func(platform.Point) bool {
		flip = !flip
		return flip
	}
	first := g.ShouldCapture(platform.Point{X: 10, Y: 10}, hit)
	now = now.Add(10 * time.Millisecond)
	if second := g.ShouldCapture(platform.Point{X: 10, Y: 10}, hit); second != first {
		t.Fatalf("expected %v from cache, got %v", first, second)
	}
}

func TestReset(t *testing.T) {
	now := time.Unix(0, 0)
	g := newTestGate(&now)
	h := &countingHit{result: true}

	if _, _, ok := g.Last(); ok {
		t.Fatalf("expected empty cache")
	}
	g.ShouldCapture(platform.Point{X: 1, Y: 2}, h.hit)
	p, result, ok := g.Last()
	if !ok || !result || p != (platform.Point{X: 1, Y: 2}) {
		t.Fatalf("unexpected cache state %v %v %v", p, result, ok)
	}

	g.Reset()
	g.ShouldCapture(platform.Point{X: 1, Y: 2}, h.hit)
	if h.calls != 2 {
		t.Fatalf("expected Reset to force evaluation, got %d calls", h.calls)
	}
}
