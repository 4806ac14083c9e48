package redis

import "time"

// Config holds Redis connection and behavior settings
type Config struct {
	// URL is the Redis connection URL (e.g., redis://localhost:6379)
	URL string

	// Pool settings
	PoolSize     int
	MinIdleConns int

	// TTL settings. Session and connection keys self-expire so a crashed
	// process cannot leak them; room keys expire after the grace period
	// once a public room empties.
	SessionTTL    time.Duration
	ConnectionTTL time.Duration
	MembershipTTL time.Duration
	RoomTTL       time.Duration

	// EmptyRoomGrace is how long an emptied public room's keys linger
	// before expiry, so a brief reconnect burst does not destroy it.
	EmptyRoomGrace time.Duration
}

// DefaultConfig returns sensible defaults for Redis configuration
func DefaultConfig() Config {
	return Config{
		URL:            "redis://localhost:6379",
		PoolSize:       10,
		MinIdleConns:   2,
		SessionTTL:     24 * time.Hour,
		ConnectionTTL:  time.Hour,
		MembershipTTL:  24 * time.Hour,
		RoomTTL:        24 * time.Hour,
		EmptyRoomGrace: 5 * time.Minute,
	}
}
