package approval

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"loanguard/config"
	"loanguard/loan"
	"loanguard/ml"
)

type fakeRecorder struct {
	mu        sync.Mutex
	decisions []loan.Decision
	err       error
}

func (f *fakeRecorder) SaveDecision(ctx context.Context, d loan.Decision) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.decisions = append(f.decisions, d)
	return f.err
}

type fakePublisher struct {
	mu        sync.Mutex
	decisions []loan.Decision
}

func (f *fakePublisher) PublishDecision(d loan.Decision) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.decisions = append(f.decisions, d)
}

type fakeTrainingLog struct {
	reports []TrainingReport
}

func (f *fakeTrainingLog) LogTraining(ctx context.Context, r TrainingReport) error {
	f.reports = append(f.reports, r)
	return nil
}

func modelConfig() config.ModelConfig {
	return config.Default().Model
}

// ageRecords approves everyone at or above 50 and rejects everyone at or below 28.
func ageRecords() []loan.Record {
	records := make([]loan.Record, 0, 10)
	for _, age := range []int{20, 22, 24, 26, 28, 50, 52, 54, 56, 58} {
		a := loan.DefaultApplicant()
		a.Age = age
		records = append(records, loan.Record{Applicant: a, Approved: age >= 50})
	}
	return records
}

func TestEngineTrainsOnSampleRecords(t *testing.T) {
	logs := &fakeTrainingLog{}
	engine, err := NewEngine(context.Background(), modelConfig(), zap.NewNop(), WithTrainingLog(logs))
	require.NoError(t, err)

	snap, err := engine.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, snap.TrainSize)
	assert.Equal(t, 2, snap.TestSize)
	assert.Contains(t, []float64{0, 0.5, 1}, snap.Accuracy)
	assert.Equal(t, []string{"Business", "Salaried", "Self-Employed"}, snap.EmploymentClasses)
	assert.Equal(t, loan.FeatureNames(), snap.Features)
	assert.NotEmpty(t, snap.Rules)
	assert.Equal(t, uint64(1), snap.Generation)

	require.Len(t, logs.reports, 1)
	assert.Equal(t, 6, logs.reports[0].DataPoints)

	d, err := engine.Decide(context.Background(), loan.DefaultApplicant())
	require.NoError(t, err)
	assert.Contains(t, []int{loan.LabelRejected, loan.LabelApproved}, d.Label)
	assert.Equal(t, loan.MessageFor(d.Label), d.Message)
	assert.Equal(t, d.Label == loan.LabelApproved, d.Approved)
	assert.NotEmpty(t, d.ID)
}

func TestEngineDecisionsFollowTree(t *testing.T) {
	rec := &fakeRecorder{}
	pub := &fakePublisher{}
	engine, err := NewEngine(context.Background(), modelConfig(), zap.NewNop(),
		WithRecords(ageRecords()), WithRecorder(rec), WithPublisher(pub))
	require.NoError(t, err)

	snap, err := engine.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1.0, snap.Accuracy)

	young := loan.DefaultApplicant()
	young.Age = 18
	d, err := engine.Decide(context.Background(), young)
	require.NoError(t, err)
	assert.False(t, d.Approved)
	assert.Equal(t, loan.RejectedMessage, d.Message)

	old := loan.DefaultApplicant()
	old.Age = 60
	d, err = engine.Decide(context.Background(), old)
	require.NoError(t, err)
	assert.True(t, d.Approved)
	assert.Equal(t, loan.ApprovedMessage, d.Message)
	assert.Equal(t, 1.0, d.Confidence)

	assert.Len(t, rec.decisions, 2)
	assert.Len(t, pub.decisions, 2)
}

func TestEngineRejectsInvalidAndUnknownEmployment(t *testing.T) {
	engine, err := NewEngine(context.Background(), modelConfig(), zap.NewNop(), WithRecords(ageRecords()))
	require.NoError(t, err)

	bad := loan.DefaultApplicant()
	bad.CreditScore = 100
	_, err = engine.Decide(context.Background(), bad)
	var verr *loan.ValidationError
	require.True(t, errors.As(err, &verr))

	// valid on the form, but the training table only ever saw Salaried
	business := loan.DefaultApplicant()
	business.Employment = loan.Business
	_, err = engine.Decide(context.Background(), business)
	assert.True(t, errors.Is(err, ml.ErrUnknownLabel))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = engine.Decide(ctx, loan.DefaultApplicant())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEngineCachesUntilRetrain(t *testing.T) {
	engine, err := NewEngine(context.Background(), modelConfig(), zap.NewNop())
	require.NoError(t, err)

	a := loan.DefaultApplicant()
	first, err := engine.Decide(context.Background(), a)
	require.NoError(t, err)
	second, err := engine.Decide(context.Background(), a)
	require.NoError(t, err)
	assert.Equal(t, first.Label, second.Label)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, 1, engine.CacheLen())

	snap, err := engine.Retrain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(2), snap.Generation)
	assert.Equal(t, 0, engine.CacheLen())
}

func TestEngineRetrainEachRequest(t *testing.T) {
	cfg := modelConfig()
	cfg.RetrainEachRequest = true
	engine, err := NewEngine(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)

	_, err = engine.Decide(context.Background(), loan.DefaultApplicant())
	require.NoError(t, err)
	snap, err := engine.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(3), snap.Generation)
	assert.True(t, snap.RetrainEachRequest)
	assert.Equal(t, 0, engine.CacheLen())
}

func TestEngineReconfigure(t *testing.T) {
	engine, err := NewEngine(context.Background(), modelConfig(), zap.NewNop())
	require.NoError(t, err)

	cfg := modelConfig()
	cfg.MaxDepth = 1
	require.NoError(t, engine.Reconfigure(context.Background(), cfg))
	snap, err := engine.Snapshot(context.Background())
	require.NoError(t, err)
	assert.LessOrEqual(t, snap.Depth, 1)

	cfg.TestRatio = 2
	assert.Error(t, engine.Reconfigure(context.Background(), cfg))
}

func TestEngineSaveModel(t *testing.T) {
	engine, err := NewEngine(context.Background(), modelConfig(), zap.NewNop(), WithRecords(ageRecords()))
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "model.json")
	require.NoError(t, engine.SaveModel(path))

	model, err := ml.LoadModel(ml.ModelTypeDecisionTree, path)
	require.NoError(t, err)
	label, _, err := model.Predict(loan.DefaultApplicant().Vector(0))
	require.NoError(t, err)
	assert.Equal(t, loan.LabelRejected, label)
}

func TestEngineRecorderFailureDoesNotFailDecision(t *testing.T) {
	rec := &fakeRecorder{err: errors.New("disk full")}
	engine, err := NewEngine(context.Background(), modelConfig(), zap.NewNop(), WithRecorder(rec))
	require.NoError(t, err)

	_, err = engine.Decide(context.Background(), loan.DefaultApplicant())
	assert.NoError(t, err)
	assert.Len(t, rec.decisions, 1)
}

// noisyRecords 随机标签，树会长得很深，训练耗时足以与其他调用重叠
func noisyRecords(n int) []loan.Record {
	rng := rand.New(rand.NewSource(7))
	types := loan.EmploymentTypes()
	records := make([]loan.Record, n)
	for i := range records {
		a := loan.Applicant{
			Age:         loan.AgeRange.Min + rng.Intn(loan.AgeRange.Max-loan.AgeRange.Min+1),
			Income:      loan.IncomeRange.Min + rng.Intn(loan.IncomeRange.Max-loan.IncomeRange.Min+1),
			CreditScore: loan.CreditScoreRange.Min + rng.Intn(loan.CreditScoreRange.Max-loan.CreditScoreRange.Min+1),
			LoanAmount:  loan.LoanAmountRange.Min + rng.Intn(loan.LoanAmountRange.Max-loan.LoanAmountRange.Min+1),
			Employment:  types[rng.Intn(len(types))],
			Dependents:  rng.Intn(loan.DependentsRange.Max + 1),
		}
		records[i] = loan.Record{Applicant: a, Approved: rng.Intn(2) == 1}
	}
	return records
}

func TestEngineReconfigureWinsOverConcurrentRetrain(t *testing.T) {
	engine, err := NewEngine(context.Background(), modelConfig(), zap.NewNop(), WithRecords(noisyRecords(600)))
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := engine.Retrain(context.Background())
		assert.NoError(t, err)
	}()
	time.Sleep(10 * time.Millisecond)

	cfg := modelConfig()
	cfg.MaxDepth = 1
	require.NoError(t, engine.Reconfigure(context.Background(), cfg))
	wg.Wait()

	snap, err := engine.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(3), snap.Generation)
	assert.LessOrEqual(t, snap.Depth, 1, "model trained with a stale config was installed")
}

func TestEngineDecideWithSnapshotUsesDecidingModel(t *testing.T) {
	cfg := modelConfig()
	cfg.RetrainEachRequest = true
	log := &fakeTrainingLog{}
	engine, err := NewEngine(context.Background(), cfg, zap.NewNop(), WithRecords(ageRecords()), WithTrainingLog(log))
	require.NoError(t, err)
	require.Len(t, log.reports, 1)

	d, snap, err := engine.DecideWithSnapshot(context.Background(), loan.DefaultApplicant())
	require.NoError(t, err)
	assert.Len(t, log.reports, 2)
	assert.Equal(t, uint64(2), snap.Generation)
	assert.Equal(t, fmt.Sprintf("%s#%d", cfg.Type, snap.Generation), d.Model)
	assert.Equal(t, 1.0, snap.Accuracy)

	_, _, err = engine.DecideWithSnapshot(context.Background(), loan.Applicant{})
	assert.Error(t, err)
	assert.Len(t, log.reports, 2)
}
