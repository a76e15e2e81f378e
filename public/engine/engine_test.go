package engine

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/awion/cryon-risk/model"
	"github.com/awion/cryon-risk/public/metrics"
	"github.com/awion/cryon-risk/public/scorer"
	"github.com/awion/cryon-risk/public/storage"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2025, 1, 27, 12, 0, 0, 0, time.UTC)

// scriptedSource replays fixed values and falls back to a neutral draw
type scriptedSource struct {
	mu     sync.Mutex
	floats []float64
	ints   []int
	float  float64
}

func (s *scriptedSource) Float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.floats) == 0 {
		return s.float
	}
	f := s.floats[0]
	s.floats = s.floats[1:]
	return f
}

func (s *scriptedSource) Intn(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.ints) == 0 {
		return 0
	}
	i := s.ints[0]
	s.ints = s.ints[1:]
	return i % n
}

type recordingSink struct {
	mu     sync.Mutex
	alerts []model.Alert
	err    error
}

func (r *recordingSink) Publish(alert model.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, alert)
	return r.err
}

func (r *recordingSink) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.alerts)
}

func sequentialIDs() func(string) string {
	var mu sync.Mutex
	n := 0
	return func(prefix string) string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%s%03d", prefix, n)
	}
}

type fixture struct {
	engine *Engine
	store  *storage.Storage
	rng    *scriptedSource
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	store, err := storage.NewStorage(storage.StorageConfig{Type: "memory"}, nil)
	require.NoError(t, err)

	rng := &scriptedSource{float: 0.5}
	base := []Option{
		WithRandom(rng),
		WithClock(func() time.Time { return fixedNow }),
		WithIDGenerator(sequentialIDs()),
	}
	e := New(store, SimulationConfig{AlertProbability: 0.3}, append(base, opts...)...)
	return &fixture{engine: e, store: store, rng: rng}
}

func (f *fixture) seedEntity(t *testing.T, id string, score int) {
	t.Helper()
	require.NoError(t, f.store.InsertEntity(model.Entity{
		ID:         id,
		Name:       "Sarah Johnson",
		Type:       model.EntityUser,
		Department: "Finance",
		RiskScore:  score,
	}))
}

func assertInvariants(t *testing.T, entities []model.Entity) {
	t.Helper()
	for _, e := range entities {
		assert.GreaterOrEqual(t, e.RiskScore, scorer.MinScore, e.ID)
		assert.LessOrEqual(t, e.RiskScore, scorer.MaxScore, e.ID)
		assert.Equal(t, scorer.TierOf(e.RiskScore), e.Status, e.ID)
	}
}

func TestNew_AppliesDefaults(t *testing.T) {
	store, err := storage.NewStorage(storage.StorageConfig{Type: "memory"}, nil)
	require.NoError(t, err)

	e := New(store, SimulationConfig{})
	cfg := e.Config()
	assert.Equal(t, 10*time.Second, cfg.DriftInterval)
	assert.Equal(t, 30*time.Second, cfg.AlertInterval)
	assert.Equal(t, DefaultMessages, cfg.Messages)
}

func TestAddEntity(t *testing.T) {
	f := newFixture(t)

	id, err := f.engine.AddEntity(model.EntityForm{Name: "Build Agent", Type: model.EntityDevice, Department: "IT"})
	require.NoError(t, err)
	assert.Equal(t, "E001", id)

	e, ok := f.engine.Entity(id)
	require.True(t, ok)
	assert.Equal(t, scorer.DefaultInitialScore, e.RiskScore)
	assert.Equal(t, model.SeverityLow, e.Status)
	assert.Equal(t, fixedNow, e.LastActivity)
	assert.Empty(t, e.Patterns)
	require.Len(t, e.Recommendations, 1)
	assert.Equal(t, "Enable Baseline Monitoring", e.Recommendations[0].Title)
	assert.Equal(t, model.RecommendMonitoring, e.Recommendations[0].Type)
	assert.Equal(t, model.SeverityMedium, e.Recommendations[0].Priority)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.engine.metrics.ScoreMutations.WithLabelValues(metrics.SourceCreate)))
}

func TestAddEntity_InitialScore(t *testing.T) {
	f := newFixture(t)
	score := 42

	id, err := f.engine.AddEntity(model.EntityForm{Name: "John Smith", Type: model.EntityUser, Department: "Engineering", InitialRiskScore: &score})
	require.NoError(t, err)

	e, _ := f.engine.Entity(id)
	assert.Equal(t, 42, e.RiskScore)
	assert.Equal(t, model.SeverityCritical, e.Status)
}

func TestAddEntity_ValidationLeavesStoreUntouched(t *testing.T) {
	f := newFixture(t)
	bad := 60

	_, err := f.engine.AddEntity(model.EntityForm{Name: "", Type: model.EntityUser, Department: "Sales"})
	assert.ErrorIs(t, err, model.ErrValidation)
	_, err = f.engine.AddEntity(model.EntityForm{Name: "CRM", Type: model.EntityApplication, Department: "Sales", InitialRiskScore: &bad})
	assert.ErrorIs(t, err, model.ErrValidation)

	assert.Empty(t, f.engine.Entities())
}

func TestUpdateRiskScore_AuditAlert(t *testing.T) {
	f := newFixture(t)
	f.seedEntity(t, "E002", 15)
	f.store.InsertAlert(model.Alert{ID: "A-existing", EntityID: "E002"})

	ok, err := f.engine.UpdateRiskScore("E002", 30, "policy review")
	require.NoError(t, err)
	assert.True(t, ok)

	e, _ := f.engine.Entity("E002")
	assert.Equal(t, 30, e.RiskScore)
	assert.Equal(t, model.SeverityHigh, e.Status)
	assert.Equal(t, fixedNow, e.LastActivity)

	alerts := f.engine.Alerts()
	require.Len(t, alerts, 2)
	head := alerts[0]
	assert.Equal(t, "E002", head.EntityID)
	assert.Equal(t, model.AlertThreshold, head.Type)
	assert.Equal(t, model.SeverityMedium, head.Severity)
	assert.False(t, head.Acknowledged)
	assert.Contains(t, head.Message, "policy review")
	assert.Equal(t, "A-existing", alerts[1].ID)
}

func TestUpdateRiskScore_SameScoreStillAudited(t *testing.T) {
	f := newFixture(t)
	f.seedEntity(t, "E002", 15)

	for i := 0; i < 2; i++ {
		ok, err := f.engine.UpdateRiskScore("E002", 15, "re-confirmed")
		require.NoError(t, err)
		assert.True(t, ok)
	}

	assert.Len(t, f.engine.Alerts(), 2)
}

func TestUpdateRiskScore_ClampsAndRounds(t *testing.T) {
	f := newFixture(t)
	f.seedEntity(t, "E1", 20)

	_, err := f.engine.UpdateRiskScore("E1", 99, "escalated")
	require.NoError(t, err)
	e, _ := f.engine.Entity("E1")
	assert.Equal(t, 50, e.RiskScore)

	_, err = f.engine.UpdateRiskScore("E1", 24.5, "rounded")
	require.NoError(t, err)
	e, _ = f.engine.Entity("E1")
	assert.Equal(t, 25, e.RiskScore)
	assert.Equal(t, model.SeverityHigh, e.Status)
}

func TestUpdateRiskScore_NoopAndValidation(t *testing.T) {
	f := newFixture(t)
	f.seedEntity(t, "E1", 20)

	ok, err := f.engine.UpdateRiskScore("missing", 30, "policy review")
	assert.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, f.engine.Alerts())

	ok, err = f.engine.UpdateRiskScore("E1", 30, "  ")
	assert.ErrorIs(t, err, model.ErrValidation)
	assert.False(t, ok)
	e, _ := f.engine.Entity("E1")
	assert.Equal(t, 20, e.RiskScore)
	assert.Empty(t, f.engine.Alerts())
}

func TestAddPattern(t *testing.T) {
	f := newFixture(t)
	f.seedEntity(t, "E002", 15)
	f.rng.ints = []int{3, 2} // frequency 4, impact jitter 2

	id, err := f.engine.AddPattern("E002", model.PatternForm{
		Name:        "X",
		Description: "Repeated access to payroll exports",
		Severity:    8,
		Category:    model.CategoryAccess,
		Threshold:   3,
	})
	require.NoError(t, err)
	assert.Equal(t, "P001", id)

	e, _ := f.engine.Entity("E002")
	assert.Equal(t, 19, e.RiskScore)
	assert.Equal(t, model.SeverityMedium, e.Status)
	assert.Equal(t, fixedNow, e.LastActivity)

	require.Len(t, e.Patterns, 1)
	p := e.Patterns[0]
	assert.Equal(t, "X", p.Name)
	assert.Equal(t, 8, p.Severity)
	assert.Equal(t, 4, p.Frequency)
	assert.Equal(t, 8, p.Impact)
	assert.Equal(t, fixedNow, p.LastDetected)

	require.Len(t, e.Recommendations, 1)
	rec := e.Recommendations[0]
	assert.Equal(t, model.RecommendAccess, rec.Type)
	assert.Equal(t, model.SeverityCritical, rec.Priority)
	assert.Equal(t, "5 minutes", rec.EstimatedTime)
}

func TestAddPattern_CategoryMapping(t *testing.T) {
	tests := []struct {
		category model.Category
		severity int
		wantType model.RecommendationType
		wantPrio model.Severity
	}{
		{model.CategoryNetwork, 6, model.RecommendFirewall, model.SeverityHigh},
		{model.CategoryAuthentication, 4, model.RecommendConfiguration, model.SeverityMedium},
		{model.CategoryBehavior, 2, model.RecommendMonitoring, model.SeverityLow},
	}

	for _, tt := range tests {
		t.Run(string(tt.category), func(t *testing.T) {
			f := newFixture(t)
			f.seedEntity(t, "E1", 10)

			_, err := f.engine.AddPattern("E1", model.PatternForm{Name: "sig", Description: "d", Severity: tt.severity, Category: tt.category, Threshold: 1})
			require.NoError(t, err)

			e, _ := f.engine.Entity("E1")
			assert.Equal(t, 10+tt.severity/2, e.RiskScore)
			rec := e.Recommendations[len(e.Recommendations)-1]
			assert.Equal(t, tt.wantType, rec.Type)
			assert.Equal(t, tt.wantPrio, rec.Priority)
			assert.GreaterOrEqual(t, e.Patterns[0].Frequency, 1)
			assert.LessOrEqual(t, e.Patterns[0].Frequency, 10)
		})
	}
}

func TestAddPattern_ClampsAndAppends(t *testing.T) {
	f := newFixture(t)
	f.seedEntity(t, "E1", 48)
	form := model.PatternForm{Name: "Privilege Escalation", Description: "Attempts to gain higher privileges", Severity: 9, Category: model.CategoryAccess, Threshold: 1}

	_, err := f.engine.AddPattern("E1", form)
	require.NoError(t, err)
	_, err = f.engine.AddPattern("E1", form)
	require.NoError(t, err)

	e, _ := f.engine.Entity("E1")
	assert.Equal(t, 50, e.RiskScore)
	require.Len(t, e.Patterns, 2)
	assert.NotEqual(t, e.Patterns[0].ID, e.Patterns[1].ID)
	assert.Len(t, e.Recommendations, 2)
}

func TestAddPattern_UnknownEntityIsNoop(t *testing.T) {
	f := newFixture(t)
	f.seedEntity(t, "E1", 10)
	before := f.engine.Entities()

	id, err := f.engine.AddPattern("missing", model.PatternForm{Name: "X", Description: "d", Severity: 5, Category: model.CategoryBehavior, Threshold: 1})
	assert.NoError(t, err)
	assert.Empty(t, id)
	assert.Equal(t, before, f.engine.Entities())

	_, err = f.engine.AddPattern("E1", model.PatternForm{Name: "X", Description: "d", Severity: 0, Category: model.CategoryBehavior, Threshold: 1})
	assert.ErrorIs(t, err, model.ErrValidation)
	assert.Equal(t, before, f.engine.Entities())
}

func TestAcknowledgeAlert(t *testing.T) {
	f := newFixture(t)
	f.store.InsertAlert(model.Alert{ID: "A1"})
	f.store.InsertAlert(model.Alert{ID: "A2"})
	before := f.engine.Alerts()

	assert.False(t, f.engine.AcknowledgeAlert("missing"))
	assert.Equal(t, before, f.engine.Alerts())

	assert.True(t, f.engine.AcknowledgeAlert("A1"))
	once := f.engine.Alerts()
	assert.False(t, f.engine.AcknowledgeAlert("A1"))
	assert.Equal(t, once, f.engine.Alerts())
	assert.Len(t, once, 2)
}

func TestRuleCommands(t *testing.T) {
	f := newFixture(t)
	rule := model.RiskRule{Name: "Unusual Data Transfer", Description: "Monitors large transfers", Weight: 7, Threshold: 10, Enabled: true, Category: model.CategoryNetwork}

	id, err := f.engine.AddRule(rule)
	require.NoError(t, err)
	assert.Equal(t, "RR001", id)

	_, err = f.engine.AddRule(model.RiskRule{Name: "bad", Description: "d", Weight: 11, Threshold: 1, Category: model.CategoryNetwork})
	assert.ErrorIs(t, err, model.ErrValidation)

	rule.ID = id
	rule.Weight = 9
	ok, err := f.engine.UpdateRule(rule)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 9, f.engine.Rules()[0].Weight)

	rule.ID = "RR-missing"
	ok, err = f.engine.UpdateRule(rule)
	assert.NoError(t, err)
	assert.False(t, ok)
	assert.Len(t, f.engine.Rules(), 1)

	assert.True(t, f.engine.ToggleRule(id))
	assert.False(t, f.engine.Rules()[0].Enabled)
	assert.False(t, f.engine.ToggleRule("RR-missing"))

	assert.False(t, f.engine.DeleteRule("RR-missing"))
	assert.True(t, f.engine.DeleteRule(id))
	assert.Empty(t, f.engine.Rules())
}

func TestRuleToggle_DoesNotTouchScores(t *testing.T) {
	f := newFixture(t)
	f.seedEntity(t, "E1", 20)
	id, err := f.engine.AddRule(model.RiskRule{Name: "Off-Hours Access", Description: "d", Weight: 10, Threshold: 1, Enabled: false, Category: model.CategoryBehavior})
	require.NoError(t, err)

	f.engine.ToggleRule(id)

	e, _ := f.engine.Entity("E1")
	assert.Equal(t, 20, e.RiskScore)
}

func TestDriftTick_BoundedUnderExtremeDeltas(t *testing.T) {
	f := newFixture(t)
	f.seedEntity(t, "E1", 45)
	f.seedEntity(t, "E2", 8)

	f.rng.float = 0.999999 // delta just under +1
	for i := 0; i < 50; i++ {
		assert.Equal(t, 2, f.engine.DriftTick())
		assertInvariants(t, f.engine.Entities())
	}
	for _, e := range f.engine.Entities() {
		assert.Equal(t, 50, e.RiskScore)
	}

	f.rng.float = 0 // delta -1
	for i := 0; i < 60; i++ {
		f.engine.DriftTick()
		assertInvariants(t, f.engine.Entities())
	}
	for _, e := range f.engine.Entities() {
		assert.Equal(t, 5, e.RiskScore)
		assert.Equal(t, model.SeverityLow, e.Status)
	}
}

func TestDriftTick_SharedTimestamp(t *testing.T) {
	f := newFixture(t)
	f.seedEntity(t, "E1", 20)
	f.seedEntity(t, "E2", 30)
	f.rng.floats = []float64{0.75, 0.2} // +0.5 rounds to 21, -0.6 rounds to 29

	f.engine.DriftTick()

	entities := f.engine.Entities()
	assert.Equal(t, 21, entities[0].RiskScore)
	assert.Equal(t, 29, entities[1].RiskScore)
	for _, e := range entities {
		assert.Equal(t, fixedNow, e.LastActivity)
	}
	assert.Equal(t, 2.0, testutil.ToFloat64(f.engine.metrics.ScoreMutations.WithLabelValues(metrics.SourceDrift)))
}

func TestDriftTick_EmptyStore(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, 0, f.engine.DriftTick())
}

func TestSpawnAlertTick(t *testing.T) {
	sink := &recordingSink{}
	f := newFixture(t, WithAlertSink(sink))
	f.seedEntity(t, "E1", 20)
	f.seedEntity(t, "E2", 30)

	f.rng.floats = []float64{0.3}
	_, ok := f.engine.SpawnAlertTick()
	assert.False(t, ok, "probability not met")
	assert.Empty(t, f.engine.Alerts())

	f.rng.floats = []float64{0.1}
	f.rng.ints = []int{1, 2, 3, 1} // E2, pattern, critical, message #2
	alert, ok := f.engine.SpawnAlertTick()
	require.True(t, ok)
	assert.Equal(t, "E2", alert.EntityID)
	assert.Equal(t, model.AlertPattern, alert.Type)
	assert.Equal(t, model.SeverityCritical, alert.Severity)
	assert.Equal(t, DefaultMessages[1], alert.Message)
	assert.Equal(t, fixedNow, alert.Timestamp)
	assert.False(t, alert.Acknowledged)

	alerts := f.engine.Alerts()
	require.Len(t, alerts, 1)
	assert.Equal(t, alert, alerts[0])
	assert.Equal(t, 1, sink.count())
}

func TestSpawnAlertTick_EmptyAndNewEntities(t *testing.T) {
	f := newFixture(t)

	f.rng.floats = []float64{0.0}
	_, ok := f.engine.SpawnAlertTick()
	assert.False(t, ok)

	id, err := f.engine.AddEntity(model.EntityForm{Name: "Dev-Server-01", Type: model.EntityDevice, Department: "IT Infrastructure"})
	require.NoError(t, err)

	f.rng.floats = []float64{0.0}
	alert, ok := f.engine.SpawnAlertTick()
	require.True(t, ok)
	assert.Equal(t, id, alert.EntityID)
}

func TestAlertSink_FailureDoesNotRollBack(t *testing.T) {
	sink := &recordingSink{err: errors.New("nats down")}
	f := newFixture(t, WithAlertSink(sink))
	f.seedEntity(t, "E1", 20)

	ok, err := f.engine.UpdateRiskScore("E1", 25, "manual review")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Len(t, f.engine.Alerts(), 1)
	assert.Equal(t, 1, sink.count())
}

func TestStartStop(t *testing.T) {
	store, err := storage.NewStorage(storage.StorageConfig{Type: "memory"}, nil)
	require.NoError(t, err)
	e := New(store, SimulationConfig{
		DriftInterval:    5 * time.Millisecond,
		AlertInterval:    5 * time.Millisecond,
		AlertProbability: 1,
	}, WithRandom(NewRandom(42)))
	_, err = e.AddEntity(model.EntityForm{Name: "CRM-Application", Type: model.EntityApplication, Department: "Sales"})
	require.NoError(t, err)

	require.NoError(t, e.Start())
	assert.True(t, e.Running())
	assert.ErrorIs(t, e.Start(), ErrAlreadyRunning)

	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(e.metrics.ScoreMutations.WithLabelValues(metrics.SourceDrift)) >= 2 &&
			len(e.Alerts()) >= 2
	}, 2*time.Second, 5*time.Millisecond)

	e.Stop()
	assert.False(t, e.Running())
	e.Stop()

	drifts := testutil.ToFloat64(e.metrics.ScoreMutations.WithLabelValues(metrics.SourceDrift))
	alerts := len(e.Alerts())
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, drifts, testutil.ToFloat64(e.metrics.ScoreMutations.WithLabelValues(metrics.SourceDrift)))
	assert.Equal(t, alerts, len(e.Alerts()))
	assertInvariants(t, e.Entities())

	require.NoError(t, e.Start())
	e.Stop()
}

func TestConcurrentOverridesWithDrift(t *testing.T) {
	store, err := storage.NewStorage(storage.StorageConfig{Type: "memory"}, nil)
	require.NoError(t, err)
	e := New(store, SimulationConfig{}, WithRandom(NewRandom(7)))

	const entityCount = 40
	ids := make([]string, 0, entityCount)
	for i := 0; i < entityCount; i++ {
		id, err := e.AddEntity(model.EntityForm{Name: fmt.Sprintf("host-%d", i), Type: model.EntityDevice, Department: "Ops"})
		require.NoError(t, err)
		ids = append(ids, id)
	}

	var wg sync.WaitGroup
	start := make(chan struct{})
	for i, id := range ids {
		wg.Add(1)
		go func(id string, score int) {
			defer wg.Done()
			<-start
			ok, err := e.UpdateRiskScore(id, float64(score), "bulk review")
			assert.NoError(t, err)
			assert.True(t, ok)
		}(id, 5+i)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		<-start
		assert.Equal(t, entityCount, e.DriftTick())
	}()
	close(start)
	wg.Wait()

	overrides := testutil.ToFloat64(e.metrics.ScoreMutations.WithLabelValues(metrics.SourceOverride))
	drifts := testutil.ToFloat64(e.metrics.ScoreMutations.WithLabelValues(metrics.SourceDrift))
	assert.Equal(t, float64(entityCount), overrides)
	assert.Equal(t, float64(entityCount), drifts)
	assert.Equal(t, float64(2*entityCount), overrides+drifts)

	audits := 0
	for _, a := range e.Alerts() {
		if a.Type == model.AlertThreshold && a.Message != "" {
			audits++
		}
	}
	assert.Equal(t, entityCount, audits)

	// creation sample + override sample + drift sample for every entity
	for _, id := range ids {
		assert.Len(t, e.Trends(id), 3)
	}
	assertInvariants(t, e.Entities())
}

func TestSeed(t *testing.T) {
	f := newFixture(t)
	rules := []model.RiskRule{
		{ID: "RR001", Name: "Failed Login Attempts", Description: "Detects multiple failed authentication attempts", Weight: 8, Threshold: 5, Enabled: true, Category: model.CategoryAuthentication},
		{Name: "Off-Hours Access", Description: "Monitors access outside business hours", Weight: 6, Threshold: 3, Enabled: true, Category: model.CategoryBehavior},
	}
	entities := []model.EntityForm{{Name: "John Smith", Type: model.EntityUser, Department: "Engineering"}}

	require.NoError(t, f.engine.Seed(rules, entities))
	assert.Len(t, f.engine.Rules(), 2)
	assert.Equal(t, "RR001", f.engine.Rules()[0].ID)
	assert.NotEmpty(t, f.engine.Rules()[1].ID)
	assert.Len(t, f.engine.Entities(), 1)

	require.NoError(t, f.engine.Seed(rules, entities))
	assert.Len(t, f.engine.Rules(), 2)
	assert.Len(t, f.engine.Entities(), 1)

	g := newFixture(t)
	err := g.engine.Seed([]model.RiskRule{{Name: "bad"}}, nil)
	assert.ErrorIs(t, err, model.ErrValidation)
}
