package config

import "fmt"

// CacheKeyStruct builds the Redis key names used across services and
// workers, so the layout lives in one place.
type CacheKeyStruct struct{}

// SessionLiveKey returns the key of the hash mirroring a session's latest
// progress envelope for fast resume reads.
func (r *CacheKeyStruct) SessionLiveKey(sessionID string) string {
	return fmt.Sprintf("session:%s:live", sessionID)
}

// UserActiveSessionKey returns the key holding a user's current unfinished
// session id.
func (r *CacheKeyStruct) UserActiveSessionKey(userID int) string {
	return fmt.Sprintf("user:%d:active_session", userID)
}

// SessionEventsChannel returns the PubSub channel carrying save and
// finalize events for the monitor feed.
func (r *CacheKeyStruct) SessionEventsChannel() string {
	return "session:events"
}

// CacheKey is the shared key builder.
var CacheKey = &CacheKeyStruct{}

// WorkerKeyStruct names the Redis queues consumed by background workers.
type WorkerKeyStruct struct {
	PersistSessionsQueue string
}

// WorkerKey holds the queue names.
var WorkerKey = &WorkerKeyStruct{
	PersistSessionsQueue: "persist_sessions_queue",
}
