// Package service wires the event log, condition assignment, the active
// intervention policy, and the model rebuild pipeline into the dispatch
// engine behind the HTTP API.
package service

import (
	"context"
	"sync"
	"time"

	eventqueue "github.com/okian/nudge/internal/adapters/mq/queue"
	workerpool "github.com/okian/nudge/internal/adapters/mq/worker"
	"github.com/okian/nudge/internal/adapters/repository"
	"github.com/okian/nudge/internal/config"
	"github.com/okian/nudge/internal/domain/assign"
	"github.com/okian/nudge/internal/domain/inflight"
	"github.com/okian/nudge/internal/domain/intervene"
	"github.com/okian/nudge/internal/domain/model"
	"github.com/okian/nudge/internal/domain/modelcache"
	"github.com/okian/nudge/internal/domain/scoring"
	"github.com/okian/nudge/pkg/logger"
	"github.com/okian/nudge/pkg/metrics"
)

// Default service configuration constants.
const (
	defaultShutdownTimeout = 10 * time.Second
)

// Service implements the API dependencies for the intervention system.
type Service struct {
	mu sync.RWMutex

	// Core components
	store        repository.EventStore
	assigner     *assign.Assigner
	policy       intervene.Intervention
	cache        *modelcache.Cache
	rebuildQueue eventqueue.Queue
	workerPool   *workerpool.Pool
	tracker      inflight.Tracker

	// Configuration
	dbPath             string
	databaseID         string
	assignmentMode     string
	probability        float64
	inverseProblems    []string
	manualAssignments  map[string]string
	activePolicy       string
	reminderThreshold  time.Duration
	buildMinCount      int
	buildIncrement     int
	rebuildQueueSize   int
	rebuildWorkerCount int
	modelCacheSize     int
	clock              func() time.Time

	// State
	started bool

	// Logging
	logger logger.Logger
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		dbPath:             "data/log.db",
		databaseID:         "log",
		assignmentMode:     config.AssignRandomStudent,
		probability:        0.5,
		manualAssignments:  map[string]string{},
		activePolicy:       intervene.NameRunReminder,
		reminderThreshold:  15 * time.Second,
		buildMinCount:      10,
		buildIncrement:     5,
		rebuildQueueSize:   1024,
		rebuildWorkerCount: 2,
		modelCacheSize:     128,
		clock:              time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start initializes and starts the service components.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get()
	}

	s.logger.Info(ctx, "starting intervention service...")

	if s.store == nil {
		store, err := repository.Open(s.dbPath, repository.WithClock(s.clock))
		if err != nil {
			return err
		}
		s.store = store
	}

	s.assigner = assign.New(s.store,
		assign.WithDatabaseID(s.databaseID),
		assign.WithMode(s.assignmentMode),
		assign.WithProbability(s.probability),
		assign.WithInverseProblems(s.inverseProblems),
		assign.WithManualAssignments(s.manualAssignments),
		assign.WithLogger(s.logger.Named("assign")),
	)
	s.cache = modelcache.New(s.store, scoring.NewTrainer(),
		modelcache.WithThresholds(s.buildMinCount, s.buildIncrement),
		modelcache.WithMaxEntries(s.modelCacheSize),
		modelcache.WithLogger(s.logger.Named("modelcache")),
	)
	s.tracker = inflight.New()
	s.rebuildQueue = eventqueue.NewInMemoryQueue(
		eventqueue.WithCapacity(s.rebuildQueueSize),
	)
	s.workerPool = workerpool.NewPool(s.rebuildWorkerCount, s.rebuildQueue, s.cache, s.tracker)
	s.workerPool.Start(ctx)

	policy, err := s.buildPolicy()
	if err != nil {
		return err
	}
	s.policy = policy

	s.started = true
	s.logger.Info(ctx, "intervention service started",
		logger.String("database", s.dbPath),
		logger.String("policy", s.policy.Name()),
		logger.String("assignment", s.assignmentMode),
		logger.Int("rebuildWorkers", s.rebuildWorkerCount),
	)
	return nil
}

// buildPolicy selects the active intervention from configuration.
func (s *Service) buildPolicy() (intervene.Intervention, error) {
	switch s.activePolicy {
	case intervene.NameGreeting:
		return intervene.NewGreeting(), nil
	case intervene.NameRunReminder:
		return intervene.NewRunReminder(s.store,
			intervene.WithThreshold(s.reminderThreshold),
			intervene.WithNow(s.clock),
		), nil
	case intervene.NameAutograder:
		return intervene.NewAutograder(s.cache, s,
			intervene.WithAutograderLogger(s.logger.Named("autograder")),
		), nil
	default:
		return nil, ErrUnknownPolicy
	}
}

// Stop gracefully shuts down the service.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()

	s.logger.Info(ctx, "stopping intervention service...")

	if s.rebuildQueue != nil {
		_ = s.rebuildQueue.Close()
	}
	if s.workerPool != nil {
		s.workerPool.Stop(ctx)
	}
	if s.store != nil {
		_ = s.store.Close()
	}

	s.started = false
	s.logger.Info(ctx, "intervention service stopped")
}

// HandleEvent logs one activity event and returns the actions the active
// policy wants shown to the student.
//
// Logging always happens first so the event log is a complete record of
// activity; only storage failures abort the request. Everything after the
// append degrades to an empty action list rather than an error.
func (s *Service) HandleEvent(ctx context.Context, eventType string, fields model.Fields) ([]model.Action, error) {
	if _, err := s.store.Append(ctx, eventType, fields); err != nil {
		return nil, err
	}
	metrics.RecordEventLogged(eventType)

	// At a minimum an intervention needs a problem and the code state.
	problemID, ok := fields.String(model.FieldProblemID)
	if !ok || problemID == "" {
		s.logger.Warn(ctx, "no ProblemID provided - skipping intervention")
		metrics.RecordInterventionSkipped("missing_problem")
		return []model.Action{}, nil
	}
	code, ok := fields.String(model.FieldCodeState)
	if !ok {
		s.logger.Warn(ctx, "no CodeState provided - skipping intervention")
		metrics.RecordInterventionSkipped("missing_code_state")
		return []model.Action{}, nil
	}

	if subjectID, ok := fields.String(model.FieldSubjectID); ok {
		isIntervention, err := s.assigner.Resolve(ctx, subjectID, problemID)
		if err != nil {
			return nil, err
		}
		if !isIntervention {
			metrics.RecordInterventionSkipped("control_group")
			return []model.Action{}, nil
		}
	} else {
		// Fail open: an unidentified subject still gets the intervention.
		s.logger.Warn(ctx, "no SubjectID provided - defaulting to intervention group")
	}

	start := time.Now()
	actions, err := s.policy.OnEvent(ctx, eventType, fields, code)
	metrics.RecordPolicyLatency(s.policy.Name(), float64(time.Since(start).Milliseconds()))
	if err != nil {
		// Policy failures degrade to "no action"; the logging path stays
		// available even when scoring or the reminder query breaks.
		metrics.RecordPolicyError(s.policy.Name())
		s.logger.Error(ctx, "intervention policy failed",
			logger.String("policy", s.policy.Name()),
			logger.String("eventType", eventType),
			logger.Error(err),
		)
		return []model.Action{}, nil
	}
	if actions == nil {
		actions = []model.Action{}
	}
	for _, a := range actions {
		metrics.RecordActionEmitted(a.Action)
	}
	return actions, nil
}

// Trigger hands a stale problem to the rebuild workers. Duplicate triggers
// for a problem already queued or building collapse into one task.
func (s *Service) Trigger(ctx context.Context, problemID string) bool {
	if s.tracker.SeenAndRecord(ctx, problemID) {
		return false
	}
	if !s.rebuildQueue.Enqueue(ctx, eventqueue.Task{ProblemID: problemID}) {
		s.tracker.Unrecord(ctx, problemID)
		return false
	}
	metrics.RecordRebuildTriggered()
	return true
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{
		"started":    s.started,
		"assignment": s.assignmentMode,
	}
	if !s.started {
		return stats
	}

	ctx := context.Background()
	stats["policy"] = s.policy.Name()
	stats["rebuildQueueLength"] = s.rebuildQueue.Len(ctx)
	stats["rebuildsInFlight"] = s.tracker.Size()
	stats["modelCacheSize"] = s.cache.Size()
	if count, err := s.store.EventCount(ctx); err == nil {
		stats["eventCount"] = count
	}
	return stats
}
