package api

import "time"

// SetBackoffBaseDelayForTest shrinks the retry schedule so retry tests run
// quickly. Returns a restore function.
func SetBackoffBaseDelayForTest(d time.Duration) (restore func()) {
	previous := backoffBaseDelay
	backoffBaseDelay = d
	return func() {
		backoffBaseDelay = previous
	}
}
