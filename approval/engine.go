// Package approval 训练贷款审批模型并给出审批结果
package approval

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"loanguard/config"
	"loanguard/loan"
	"loanguard/ml"
)

// Recorder 持久化审批结果
type Recorder interface {
	SaveDecision(ctx context.Context, d loan.Decision) error
}

// Publisher 推送审批结果到实时看板
type Publisher interface {
	PublishDecision(d loan.Decision)
}

// TrainingLogger 记录训练结果
type TrainingLogger interface {
	LogTraining(ctx context.Context, report TrainingReport) error
}

// TrainingReport 一次训练的评估结果
type TrainingReport struct {
	ModelName  string
	Evaluation ml.Evaluation
	DataPoints int
	TrainedAt  time.Time
}

// Snapshot 当前模型概况
type Snapshot struct {
	ModelType          string    `json:"model_type"`
	Accuracy           float64   `json:"accuracy"`
	Precision          float64   `json:"precision"`
	Recall             float64   `json:"recall"`
	TrainSize          int       `json:"train_size"`
	TestSize           int       `json:"test_size"`
	Depth              int       `json:"depth"`
	NodeCount          int       `json:"node_count"`
	Features           []string  `json:"features"`
	EmploymentClasses  []string  `json:"employment_classes"`
	Rules              string    `json:"rules"`
	Generation         uint64    `json:"generation"`
	RetrainEachRequest bool      `json:"retrain_each_request"`
	TrainedAt          time.Time `json:"trained_at"`
}

type prediction struct {
	label      int
	confidence float64
}

type trainedModel struct {
	tree       *ml.DecisionTree
	encoder    *ml.LabelEncoder
	eval       ml.Evaluation
	trainSize  int
	testSize   int
	trainedAt  time.Time
	generation uint64
}

// Engine 审批引擎
type Engine struct {
	// trainMu 串行化训练，配置读取、训练与替换模型在同一临界区内完成
	trainMu    sync.Mutex
	mu         sync.RWMutex
	cfg        config.ModelConfig
	current    *trainedModel
	cache      *lru.Cache[string, prediction]
	generation uint64

	records     []loan.Record
	recorder    Recorder
	publisher   Publisher
	trainingLog TrainingLogger
	logger      *zap.Logger
}

// Option 引擎选项
type Option func(*Engine)

func WithRecorder(r Recorder) Option { return func(e *Engine) { e.recorder = r } }

func WithPublisher(p Publisher) Option { return func(e *Engine) { e.publisher = p } }

func WithTrainingLog(t TrainingLogger) Option { return func(e *Engine) { e.trainingLog = t } }

// WithRecords 替换内置训练数据
func WithRecords(records []loan.Record) Option {
	return func(e *Engine) { e.records = append([]loan.Record(nil), records...) }
}

// NewEngine 创建引擎并完成首次训练
func NewEngine(ctx context.Context, cfg config.ModelConfig, logger *zap.Logger, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		cfg:     cfg,
		records: loan.SampleRecords(),
		logger:  logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	if err := e.resetCache(cfg.CacheSize); err != nil {
		return nil, err
	}
	if _, err := e.Retrain(ctx); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Engine) resetCache(size int) error {
	if size <= 0 {
		e.cache = nil
		return nil
	}
	cache, err := lru.New[string, prediction](size)
	if err != nil {
		return fmt.Errorf("create decision cache: %w", err)
	}
	e.cache = cache
	return nil
}

// Retrain 重新训练并替换当前模型
func (e *Engine) Retrain(ctx context.Context) (Snapshot, error) {
	e.trainMu.Lock()
	defer e.trainMu.Unlock()

	model, cfg, err := e.retrainLocked(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	return e.snapshotOf(model, cfg), nil
}

// retrainLocked 调用方须持有 trainMu
func (e *Engine) retrainLocked(ctx context.Context) (*trainedModel, config.ModelConfig, error) {
	e.mu.RLock()
	cfg := e.cfg
	e.mu.RUnlock()

	model, err := e.train(cfg)
	if err != nil {
		return nil, cfg, err
	}

	e.mu.Lock()
	e.generation++
	model.generation = e.generation
	e.current = model
	if e.cache != nil {
		e.cache.Purge()
	}
	e.mu.Unlock()

	e.logger.Info("model trained",
		zap.Uint64("generation", model.generation),
		zap.Float64("accuracy", model.eval.Accuracy),
		zap.Int("train_size", model.trainSize),
		zap.Int("test_size", model.testSize),
		zap.Int("depth", model.tree.Depth()))

	if e.trainingLog != nil {
		report := TrainingReport{
			ModelName:  cfg.Type,
			Evaluation: model.eval,
			DataPoints: model.trainSize + model.testSize,
			TrainedAt:  model.trainedAt,
		}
		if err := e.trainingLog.LogTraining(ctx, report); err != nil {
			e.logger.Warn("failed to log training", zap.Error(err))
		}
	}
	return model, cfg, nil
}

// Reconfigure 应用新的模型配置并重新训练
func (e *Engine) Reconfigure(ctx context.Context, cfg config.ModelConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	e.trainMu.Lock()
	defer e.trainMu.Unlock()

	e.mu.Lock()
	e.cfg = cfg
	err := e.resetCache(cfg.CacheSize)
	e.mu.Unlock()
	if err != nil {
		return err
	}
	_, _, err = e.retrainLocked(ctx)
	return err
}

func (e *Engine) train(cfg config.ModelConfig) (*trainedModel, error) {
	if len(e.records) == 0 {
		return nil, errors.New("no training records")
	}

	employment := make([]string, len(e.records))
	for i, r := range e.records {
		employment[i] = string(r.Employment)
	}
	encoder := &ml.LabelEncoder{}
	codes, err := encoder.FitTransform(employment)
	if err != nil {
		return nil, fmt.Errorf("encode employment: %w", err)
	}

	features := make([][]float64, len(e.records))
	labels := make([]int, len(e.records))
	for i, r := range e.records {
		features[i] = r.Vector(codes[i])
		labels[i] = r.Label()
	}

	trainX, trainY, testX, testY, err := ml.TrainTestSplit(features, labels, cfg.TestRatio, cfg.Seed)
	if err != nil {
		return nil, fmt.Errorf("split dataset: %w", err)
	}

	model, err := ml.NewModel(cfg.Type, cfg.MaxDepth)
	if err != nil {
		return nil, err
	}
	tree, ok := model.(*ml.DecisionTree)
	if !ok {
		return nil, fmt.Errorf("model type %q is not a decision tree", cfg.Type)
	}
	if err := tree.Train(trainX, trainY); err != nil {
		return nil, fmt.Errorf("train: %w", err)
	}

	eval, err := ml.Evaluate(tree, testX, testY, loan.LabelApproved)
	if err != nil {
		return nil, fmt.Errorf("evaluate: %w", err)
	}

	return &trainedModel{
		tree:      tree,
		encoder:   encoder,
		eval:      eval,
		trainSize: len(trainX),
		testSize:  len(testX),
		trainedAt: time.Now(),
	}, nil
}

// model 返回用于本次请求的模型；逐请求训练模式下每次重新训练
func (e *Engine) model(ctx context.Context) (*trainedModel, config.ModelConfig, error) {
	e.mu.RLock()
	cfg := e.cfg
	current := e.current
	e.mu.RUnlock()

	if !cfg.RetrainEachRequest {
		return current, cfg, nil
	}
	e.trainMu.Lock()
	defer e.trainMu.Unlock()
	return e.retrainLocked(ctx)
}

// CacheLen 缓存中的预测数量
func (e *Engine) CacheLen() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.cache == nil {
		return 0
	}
	return e.cache.Len()
}

// Decide 审批申请
func (e *Engine) Decide(ctx context.Context, a loan.Applicant) (loan.Decision, error) {
	decision, _, _, err := e.decide(ctx, a)
	return decision, err
}

// DecideWithSnapshot 审批申请，并返回做出该决定的模型概况
func (e *Engine) DecideWithSnapshot(ctx context.Context, a loan.Applicant) (loan.Decision, Snapshot, error) {
	decision, model, cfg, err := e.decide(ctx, a)
	if err != nil {
		return loan.Decision{}, Snapshot{}, err
	}
	return decision, e.snapshotOf(model, cfg), nil
}

func (e *Engine) decide(ctx context.Context, a loan.Applicant) (loan.Decision, *trainedModel, config.ModelConfig, error) {
	if err := ctx.Err(); err != nil {
		return loan.Decision{}, nil, config.ModelConfig{}, err
	}
	if err := a.Validate(); err != nil {
		return loan.Decision{}, nil, config.ModelConfig{}, err
	}

	model, cfg, err := e.model(ctx)
	if err != nil {
		return loan.Decision{}, nil, cfg, err
	}

	pred, err := e.predict(model, cfg, a)
	if err != nil {
		return loan.Decision{}, nil, cfg, err
	}

	decision := loan.Decision{
		ID:         uuid.NewString(),
		Approved:   pred.label == loan.LabelApproved,
		Label:      pred.label,
		Confidence: pred.confidence,
		Message:    loan.MessageFor(pred.label),
		Applicant:  a,
		Model:      fmt.Sprintf("%s#%d", cfg.Type, model.generation),
		DecidedAt:  time.Now(),
	}

	if e.recorder != nil {
		if err := e.recorder.SaveDecision(ctx, decision); err != nil {
			e.logger.Warn("failed to record decision", zap.String("id", decision.ID), zap.Error(err))
		}
	}
	if e.publisher != nil {
		e.publisher.PublishDecision(decision)
	}
	e.logger.Debug("loan decided",
		zap.String("id", decision.ID),
		zap.Bool("approved", decision.Approved),
		zap.Float64("confidence", decision.Confidence))
	return decision, model, cfg, nil
}

func (e *Engine) predict(model *trainedModel, cfg config.ModelConfig, a loan.Applicant) (prediction, error) {
	e.mu.RLock()
	cache := e.cache
	e.mu.RUnlock()

	useCache := cache != nil && !cfg.RetrainEachRequest
	key := fmt.Sprintf("%d/%s", model.generation, a.Key())
	if useCache {
		if p, ok := cache.Get(key); ok {
			return p, nil
		}
	}

	code, err := model.encoder.Transform(string(a.Employment))
	if err != nil {
		return prediction{}, err
	}
	label, confidence, err := model.tree.Predict(a.Vector(code))
	if err != nil {
		return prediction{}, fmt.Errorf("predict: %w", err)
	}
	p := prediction{label: label, confidence: confidence}
	if useCache {
		cache.Add(key, p)
	}
	return p, nil
}

// Snapshot 返回当前模型概况
func (e *Engine) Snapshot(ctx context.Context) (Snapshot, error) {
	model, cfg, err := e.model(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	return e.snapshotOf(model, cfg), nil
}

func (e *Engine) snapshotOf(model *trainedModel, cfg config.ModelConfig) Snapshot {
	return Snapshot{
		ModelType:          cfg.Type,
		Accuracy:           model.eval.Accuracy,
		Precision:          model.eval.Precision,
		Recall:             model.eval.Recall,
		TrainSize:          model.trainSize,
		TestSize:           model.testSize,
		Depth:              model.tree.Depth(),
		NodeCount:          len(model.tree.Nodes()),
		Features:           loan.FeatureNames(),
		EmploymentClasses:  model.encoder.Classes(),
		Rules:              model.tree.Describe(loan.FeatureNames()),
		Generation:         model.generation,
		RetrainEachRequest: cfg.RetrainEachRequest,
		TrainedAt:          model.trainedAt,
	}
}

// SaveModel 将当前决策树写入文件
func (e *Engine) SaveModel(path string) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.current == nil {
		return ml.ErrNotTrained
	}
	return e.current.tree.Save(path)
}
