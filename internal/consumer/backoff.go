package consumer

import (
	"math"
	"time"
)

// retryBackoff returns min(initial*2^(attempt-1), max).
func retryBackoff(initial, max time.Duration, attempt int64) time.Duration {
	if initial <= 0 {
		return 0
	}
	if attempt < 1 {
		attempt = 1
	}

	delay := initial
	for i := int64(1); i < attempt; i++ {
		if delay > time.Duration(math.MaxInt64/2) {
			delay = time.Duration(math.MaxInt64)
			break
		}
		delay *= 2
	}

	if max > 0 && delay > max {
		return max
	}
	return delay
}
