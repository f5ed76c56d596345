package mqtt

import "fmt"

// Topic prefixes for the gateway's announcements.
//
// All topics use the flat scheme: dormlock/{category}/{id}/{event}
const (
	// TopicPrefix is the base for all gateway topics.
	TopicPrefix = "dormlock"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "dormlock/system"
)

// Topics provides builders for gateway MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	resultTopic := topics.UnlockResult("1001_A1:B2:C3:D4:E5:F6")
//	// Returns: "dormlock/unlock/1001_A1:B2:C3:D4:E5:F6/result"
type Topics struct{}

// SystemStatus returns the topic for gateway online/offline status.
//
// Example: dormlock/system/status
func (Topics) SystemStatus() string {
	return TopicPrefixSystem + "/status"
}

// UnlockResult returns the topic for unlock attempt outcomes.
//
// Example: dormlock/unlock/1001_A1:B2:C3:D4:E5:F6/result
func (Topics) UnlockResult(lockID string) string {
	return fmt.Sprintf("%s/unlock/%s/result", TopicPrefix, lockID)
}

// UnlockProgress returns the topic for in-flight unlock progress.
//
// Example: dormlock/unlock/1001_A1:B2:C3:D4:E5:F6/progress
func (Topics) UnlockProgress(lockID string) string {
	return fmt.Sprintf("%s/unlock/%s/progress", TopicPrefix, lockID)
}

// SessionEvent returns the topic for session lifecycle events.
//
// Example: dormlock/session/login
func (Topics) SessionEvent(kind string) string {
	return fmt.Sprintf("%s/session/%s", TopicPrefix, kind)
}
