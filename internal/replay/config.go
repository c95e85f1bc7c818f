package replay

import "time"

// Config holds configuration for a replay run.
type Config struct {
	BaseURL  string        // Base URL of the service
	Sessions int           // Number of practice sessions to simulate
	Problems int           // Number of distinct problems to spread sessions over
	Edits    int           // Edit events per session before the first run
	Workers  int           // Number of concurrent workers
	Timeout  time.Duration // HTTP request timeout
	ThinkMin time.Duration // Minimum pause between events in a session
	ThinkMax time.Duration // Maximum pause between events in a session
	Verbose  bool          // Enable verbose logging
}

// Stats tracks outcomes across a replay run.
type Stats struct {
	StartTime       time.Time
	EndTime         time.Time
	Duration        time.Duration
	SessionsRun     int
	EventsSubmitted int64
	EventsFailed    int64
	ActionsReceived int64
}
