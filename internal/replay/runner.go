package replay

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/nudge/internal/domain/model"
	"github.com/okian/nudge/pkg/logger"
)

// Route paths on the target service.
const (
	routeFileEdit = "/FileEdit/"
	routeRun      = "/Run.Program/"
	routeSubmit   = "/Submit/"
	routeHealth   = "/healthz"
)

// Run executes a complete replay: health check, session generation, and
// concurrent session playback.
func Run(ctx context.Context, config *Config) error {
	stats := &Stats{
		StartTime: time.Now(),
	}

	logger.Get().Info(ctx, "starting replay",
		logger.String("baseURL", config.BaseURL),
		logger.Int("sessions", config.Sessions),
		logger.Int("problems", config.Problems),
		logger.Int("workers", config.Workers),
		logger.String("timeout", config.Timeout.String()))

	if err := checkServiceHealth(ctx, config); err != nil {
		return fmt.Errorf("service health check failed: %w", err)
	}

	sessions := generateSessions(config)
	if err := playSessions(ctx, config, sessions, stats); err != nil {
		return fmt.Errorf("session playback failed: %w", err)
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	stats.SessionsRun = len(sessions)

	logger.Get().Info(ctx, "replay completed",
		logger.Int("sessions", stats.SessionsRun),
		logger.Int64("eventsSubmitted", atomic.LoadInt64(&stats.EventsSubmitted)),
		logger.Int64("eventsFailed", atomic.LoadInt64(&stats.EventsFailed)),
		logger.Int64("actionsReceived", atomic.LoadInt64(&stats.ActionsReceived)),
		logger.Duration("duration", stats.Duration))
	return nil
}

// checkServiceHealth verifies the service is running.
func checkServiceHealth(ctx context.Context, config *Config) error {
	client := newHTTPClient(config.Timeout)

	resp, err := client.Get(ctx, config.BaseURL+routeHealth)
	if err != nil {
		return fmt.Errorf("failed to connect to service: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != 200 {
		return fmt.Errorf("service health check failed with status: %d", resp.StatusCode)
	}
	logger.Get().Info(ctx, "service is healthy")
	return nil
}

// playSessions drains the session plan through a worker pool. Each worker
// plays whole sessions so per-subject event ordering is preserved.
func playSessions(ctx context.Context, config *Config, sessions []session, stats *Stats) error {
	client := newHTTPClient(config.Timeout)

	sessionChan := make(chan session, config.Workers)
	var wg sync.WaitGroup

	for i := 0; i < config.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for s := range sessionChan {
				select {
				case <-ctx.Done():
					return
				default:
					playSession(ctx, client, config, s, stats)
				}
			}
		}()
	}

	for _, s := range sessions {
		select {
		case <-ctx.Done():
			close(sessionChan)
			wg.Wait()
			return ctx.Err()
		case sessionChan <- s:
		}
	}
	close(sessionChan)
	wg.Wait()
	return nil
}

// playSession replays one student's session: a run of edits, a program run,
// and for non-abandoned sessions a final submission.
func playSession(ctx context.Context, client *HTTPClient, config *Config, s session, stats *Stats) {
	base := model.Fields{
		model.FieldSubjectID: s.SubjectID,
		model.FieldProblemID: s.ProblemID,
	}

	for i := 1; i <= s.Edits; i++ {
		fields := base.Clone()
		fields[model.FieldCodeState] = snapshot(i)
		fields[model.FieldClientTimestamp] = time.Now().Format(time.RFC3339)
		post(ctx, client, config, routeFileEdit, fields, stats)
		think(ctx, config)
	}

	fields := base.Clone()
	fields[model.FieldCodeState] = snapshot(s.Edits)
	fields[model.FieldCodeStateID] = s.SubjectID + "-" + strconv.Itoa(s.Edits)
	post(ctx, client, config, routeRun, fields, stats)
	think(ctx, config)

	if s.Outcome == caseAbandoned {
		return
	}

	fields = base.Clone()
	fields[model.FieldCodeState] = snapshot(s.Edits)
	fields[model.FieldCodeStateID] = s.SubjectID + "-" + strconv.Itoa(s.Edits)
	fields[model.FieldScore] = s.score()
	post(ctx, client, config, routeSubmit, fields, stats)
}

// post submits one event and folds the result into stats.
func post(ctx context.Context, client *HTTPClient, config *Config, route string, fields model.Fields, stats *Stats) {
	actions, err := client.PostEvent(ctx, config.BaseURL+route, fields)
	atomic.AddInt64(&stats.EventsSubmitted, 1)
	if err != nil {
		atomic.AddInt64(&stats.EventsFailed, 1)
		if config.Verbose {
			logger.Get().Warn(ctx, "event submission failed", logger.String("route", route), logger.Error(err))
		}
		return
	}
	atomic.AddInt64(&stats.ActionsReceived, int64(len(actions)))
	if config.Verbose && len(actions) > 0 {
		logger.Get().Info(ctx, "received actions", logger.String("route", route), logger.Int("count", len(actions)))
	}
}

// think pauses between session events to mimic typing cadence.
func think(ctx context.Context, config *Config) {
	if config.ThinkMax <= 0 {
		return
	}
	pause := config.ThinkMin
	if spread := config.ThinkMax - config.ThinkMin; spread > 0 {
		pause += time.Duration(getRandomFloat() * float64(spread))
	}
	select {
	case <-ctx.Done():
	case <-time.After(pause):
	}
}
