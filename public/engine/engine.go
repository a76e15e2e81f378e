// Package engine owns the risk state of the monitored entities. An Engine
// wraps a Storage with the two simulation processes (score drift and alert
// spawning) and the mutation commands used by operators.
//
// Not-found policy: commands that reference an unknown entity, alert or rule
// id are silent no-ops. They report that nothing happened through a boolean
// or an empty id and never return an error for it. Errors are reserved for
// malformed input, which is rejected before any state is touched.
package engine

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/awion/cryon-risk/model"
	"github.com/awion/cryon-risk/public/metrics"
	"github.com/awion/cryon-risk/public/storage"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// ErrAlreadyRunning is returned by Start on a running engine
var ErrAlreadyRunning = errors.New("engine already running")

// DefaultMessages is the alert message catalog used when none is configured
var DefaultMessages = []string{
	"Unusual network activity detected",
	"Failed authentication attempts exceeded threshold",
	"Suspicious file access pattern identified",
	"Privilege escalation attempt detected",
}

// SimulationConfig controls the two periodic processes
type SimulationConfig struct {
	DriftInterval    time.Duration `yaml:"driftInterval"`
	AlertInterval    time.Duration `yaml:"alertInterval"`
	AlertProbability float64       `yaml:"alertProbability"`
	Messages         []string      `yaml:"messages"`
}

// DefaultSimulationConfig returns the reference periods and probability
func DefaultSimulationConfig() SimulationConfig {
	return SimulationConfig{
		DriftInterval:    10 * time.Second,
		AlertInterval:    30 * time.Second,
		AlertProbability: 0.3,
		Messages:         append([]string(nil), DefaultMessages...),
	}
}

// AlertSink receives every alert after it has been committed to the store
type AlertSink interface {
	Publish(alert model.Alert) error
}

// Engine is the handle to one risk-state engine
type Engine struct {
	store   *storage.Storage
	config  SimulationConfig
	rng     Source
	now     func() time.Time
	newID   func(prefix string) string
	logger  *zap.Logger
	metrics *metrics.Metrics
	sinks   []AlertSink

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// Option customises an Engine
type Option func(*Engine)

// WithRandom replaces the default random source
func WithRandom(src Source) Option {
	return func(e *Engine) { e.rng = src }
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithIDGenerator replaces the uuid based id generator
func WithIDGenerator(newID func(prefix string) string) Option {
	return func(e *Engine) { e.newID = newID }
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithMetrics sets the metrics collectors
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithAlertSink adds a sink that receives every inserted alert
func WithAlertSink(sink AlertSink) Option {
	return func(e *Engine) { e.sinks = append(e.sinks, sink) }
}

// New creates an engine over store. Zero fields of config take the defaults.
func New(store *storage.Storage, config SimulationConfig, opts ...Option) *Engine {
	defaults := DefaultSimulationConfig()
	if config.DriftInterval <= 0 {
		config.DriftInterval = defaults.DriftInterval
	}
	if config.AlertInterval <= 0 {
		config.AlertInterval = defaults.AlertInterval
	}
	if len(config.Messages) == 0 {
		config.Messages = defaults.Messages
	}

	e := &Engine{
		store:  store,
		config: config,
		rng:    NewRandom(time.Now().UnixNano()),
		now:    time.Now,
		newID:  newUUID,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	if e.metrics == nil {
		e.metrics = metrics.New(prometheus.NewRegistry())
	}

	e.refreshTierGauge()
	return e
}

func newUUID(prefix string) string {
	return fmt.Sprintf("%s-%s", prefix, uuid.NewString())
}

// Config returns the simulation settings in use
func (e *Engine) Config() SimulationConfig {
	return e.config
}

// Start begins both periodic processes
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		return ErrAlreadyRunning
	}
	e.running = true
	e.stopChan = make(chan struct{})

	e.logger.Info("Starting risk engine",
		zap.Duration("drift_interval", e.config.DriftInterval),
		zap.Duration("alert_interval", e.config.AlertInterval),
		zap.Float64("alert_probability", e.config.AlertProbability))

	e.wg.Add(2)
	go e.runDrift(e.stopChan)
	go e.runAlertSpawn(e.stopChan)
	return nil
}

// Stop halts both periodic processes. When it returns no further scheduled
// mutation will be issued. Stopping a stopped engine is a no-op.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.running {
		return
	}
	close(e.stopChan)
	e.wg.Wait()
	e.running = false

	e.logger.Info("Risk engine stopped")
}

// Running reports whether the periodic processes are active
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// publish hands a committed alert to metrics and every sink
func (e *Engine) publish(alert model.Alert) {
	e.metrics.RecordAlert(alert)
	for _, sink := range e.sinks {
		if err := sink.Publish(alert); err != nil {
			e.logger.Warn("Failed to forward alert", zap.String("alert_id", alert.ID), zap.Error(err))
		}
	}
}

func (e *Engine) refreshTierGauge() {
	e.metrics.SetTierCounts(e.store.TierCounts())
}
