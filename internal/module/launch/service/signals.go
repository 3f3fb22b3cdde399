package service

import "time"

// LaunchSignalStore is the redis-backed coordination surface the write and
// ingestion paths depend on: upsert locking, cache invalidation signals and
// the seen-external-ID dedup set.
type LaunchSignalStore interface {
	AcquireLock(lockKey string, ttl time.Duration) bool
	ReleaseLock(lockKey string)
	InvalidateLaunchCache() error
	MarkExternalIDSeen(launchpad string, externalID string) error
	IsExternalIDSeen(launchpad string, externalID string) (bool, error)
	ForgetExternalID(launchpad string, externalID string) error
}

// LaunchThrottle tracks repeated failures per launch so ingestion can back
// off instead of hammering a broken upstream entry.
type LaunchThrottle interface {
	IsLaunchThrottled(launchpad string, externalID string) bool
	LaunchThrottle(launchpad string, externalID string, requestStatus string) bool
}

// ErrorAlerter delivers operator alerts with dedup so a flapping launchpad
// does not flood the channel.
type ErrorAlerter interface {
	HandleErrorWithThrottling(key string, errorMsg string)
}
