package pipeline

import (
	"math/rand/v2"
	"time"
)

// Backoff returns the delay before retry number retry (0-based):
// min(max, base*2^retry), jittered uniformly into [d/2, d].
func Backoff(retry int, base, max time.Duration, jitter func() float64) time.Duration {
	d := base
	for i := 0; i < retry && d < max; i++ {
		d *= 2
	}
	if d > max {
		d = max
	}
	if jitter == nil {
		jitter = rand.Float64
	}
	half := d / 2
	return half + time.Duration(jitter()*float64(d-half))
}
