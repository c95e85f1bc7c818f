package main

import (
	"context"
	"flag"
	"os"
	"runtime"
	"time"

	"github.com/okian/nudge/internal/replay"
	"github.com/okian/nudge/pkg/logger"
)

// Default configuration constants.
const (
	defaultSessions      = 100
	defaultProblems      = 5
	defaultEdits         = 6
	defaultWorkers       = 2 // multiplier for runtime.NumCPU()
	defaultTimeout       = 30 * time.Second
	defaultReplayTimeout = 10 * time.Minute
)

func main() {
	var (
		baseURL  = flag.String("url", "http://localhost:5500", "Base URL of the service")
		sessions = flag.Int("sessions", defaultSessions, "Number of practice sessions to simulate")
		problems = flag.Int("problems", defaultProblems, "Number of distinct problems")
		edits    = flag.Int("edits", defaultEdits, "Edit events per session")
		workers  = flag.Int("workers", runtime.NumCPU()*defaultWorkers, "Number of concurrent workers")
		timeout  = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		thinkMin = flag.Duration("think-min", 0, "Minimum pause between session events")
		thinkMax = flag.Duration("think-max", 0, "Maximum pause between session events")
		verbose  = flag.Bool("verbose", false, "Enable verbose logging")
	)
	flag.Parse()

	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("Failed to initialize logging: " + err.Error() + "\n")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultReplayTimeout)
	defer cancel()

	config := &replay.Config{
		BaseURL:  *baseURL,
		Sessions: *sessions,
		Problems: *problems,
		Edits:    *edits,
		Workers:  *workers,
		Timeout:  *timeout,
		ThinkMin: *thinkMin,
		ThinkMax: *thinkMax,
		Verbose:  *verbose,
	}

	if err := replay.Run(ctx, config); err != nil {
		os.Stderr.WriteString("Replay failed: " + err.Error() + "\n")
		return
	}
}
