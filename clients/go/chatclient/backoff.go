package chatclient

import "time"

const (
	backoffBase          = time.Second
	backoffMax           = 10 * time.Second
	defaultMaxReconnects = 5
)

// Delay returns how long to wait before reconnect attempt n (0-based):
// exponential backoff capped at backoffMax.
func Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := backoffBase
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= backoffMax {
			return backoffMax
		}
	}
	return d
}
