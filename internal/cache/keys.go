package cache

import "fmt"

func JobStatusKey(jobID string) string {
	return fmt.Sprintf("job:%s:status", jobID)
}

// AttemptKey counts failed deliveries of one queue message.
func AttemptKey(handle string) string {
	return fmt.Sprintf("attempts:%s", handle)
}

func RateLimitKey(client string) string {
	return fmt.Sprintf("ratelimit:%s", client)
}
