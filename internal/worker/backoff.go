package worker

import (
	"math"
	"math/rand/v2"
	"time"
)

// ExponentialBackoff doubles base per attempt up to capDelay and adds up to
// 250ms of jitter.
//
// attempt=0 => base, attempt=1 => 2*base, attempt=2 => 4*base
func ExponentialBackoff(attempt int, base, capDelay time.Duration) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	delay := time.Duration(float64(base) * math.Pow(2, float64(attempt)))

	if delay > capDelay || delay <= 0 {
		delay = capDelay
	}

	return delay + time.Duration(rand.IntN(250))*time.Millisecond
}
