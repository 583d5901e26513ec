package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"loanguard/approval"
	"loanguard/loan"
)

const schema = `
    CREATE TABLE IF NOT EXISTS decisions (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        decision_id TEXT NOT NULL,
        age INTEGER NOT NULL,
        income INTEGER NOT NULL,
        credit_score INTEGER NOT NULL,
        loan_amount INTEGER NOT NULL,
        employment_type TEXT NOT NULL,
        dependents INTEGER NOT NULL,
        label INTEGER NOT NULL,
        confidence REAL NOT NULL,
        model TEXT,
        decided_at DATETIME NOT NULL,
        UNIQUE(decision_id)
    );
    CREATE INDEX IF NOT EXISTS idx_decisions_decided_at ON decisions(decided_at);
    CREATE TABLE IF NOT EXISTS training_log (
        id INTEGER PRIMARY KEY,
        model_name VARCHAR(50),
        accuracy REAL,
        precision REAL,
        recall REAL,
        trained_at DATETIME,
        data_points INTEGER
    );
    `

// Store persists loan decisions and training runs in SQLite.
type Store struct {
	db *sql.DB
}

// TrainingEntry is one row of the training log.
type TrainingEntry struct {
	ModelName  string    `json:"model_name"`
	Accuracy   float64   `json:"accuracy"`
	Precision  float64   `json:"precision"`
	Recall     float64   `json:"recall"`
	DataPoints int       `json:"data_points"`
	TrainedAt  time.Time `json:"trained_at"`
}

// DecisionStats counts decisions by outcome.
type DecisionStats struct {
	Total    int `json:"total"`
	Approved int `json:"approved"`
	Rejected int `json:"rejected"`
}

// Open opens (and creates if needed) the database at path.
func Open(path string, enableWAL bool) (*Store, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, err
			}
		}
	}

	dsn := path + "?_busy_timeout=5000"
	if enableWAL {
		dsn += "&_journal_mode=WAL&_synchronous=NORMAL"
	}
	database, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database failed: %w", err)
	}
	// sqlite3 serialises writers; a single connection also keeps :memory: databases shared
	database.SetMaxOpenConns(1)

	if _, err := database.Exec(schema); err != nil {
		database.Close()
		return nil, fmt.Errorf("create tables failed: %w", err)
	}
	return &Store{db: database}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveDecision stores a decision; saving the same decision ID twice is a no-op.
func (s *Store) SaveDecision(ctx context.Context, d loan.Decision) error {
	_, err := s.db.ExecContext(ctx, `
        INSERT OR IGNORE INTO decisions (decision_id, age, income, credit_score, loan_amount, employment_type, dependents, label, confidence, model, decided_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.Applicant.Age, d.Applicant.Income, d.Applicant.CreditScore, d.Applicant.LoanAmount,
		string(d.Applicant.Employment), d.Applicant.Dependents, d.Label, d.Confidence, d.Model, d.DecidedAt.UTC())
	return err
}

// RecentDecisions returns the newest decisions first.
func (s *Store) RecentDecisions(ctx context.Context, limit int) ([]loan.Decision, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT decision_id, age, income, credit_score, loan_amount, employment_type, dependents, label, confidence, model, decided_at
        FROM decisions
        ORDER BY decided_at DESC, id DESC
        LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var decisions []loan.Decision
	for rows.Next() {
		var d loan.Decision
		var employment string
		var model sql.NullString
		if err := rows.Scan(&d.ID, &d.Applicant.Age, &d.Applicant.Income, &d.Applicant.CreditScore,
			&d.Applicant.LoanAmount, &employment, &d.Applicant.Dependents, &d.Label, &d.Confidence,
			&model, &d.DecidedAt); err != nil {
			return nil, err
		}
		d.Applicant.Employment = loan.EmploymentType(employment)
		d.Model = model.String
		d.Approved = d.Label == loan.LabelApproved
		d.Message = loan.MessageFor(d.Label)
		decisions = append(decisions, d)
	}
	return decisions, rows.Err()
}

// DecisionStats counts approved and rejected decisions.
func (s *Store) DecisionStats(ctx context.Context) (DecisionStats, error) {
	var stats DecisionStats
	err := s.db.QueryRowContext(ctx, `
        SELECT COUNT(*),
               COALESCE(SUM(CASE WHEN label = ? THEN 1 ELSE 0 END), 0)
        FROM decisions`, loan.LabelApproved).Scan(&stats.Total, &stats.Approved)
	if err != nil {
		return DecisionStats{}, err
	}
	stats.Rejected = stats.Total - stats.Approved
	return stats, nil
}

// LogTraining appends a training run to training_log.
func (s *Store) LogTraining(ctx context.Context, report approval.TrainingReport) error {
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO training_log (model_name, accuracy, precision, recall, trained_at, data_points)
        VALUES (?, ?, ?, ?, ?, ?)`,
		report.ModelName, report.Evaluation.Accuracy, report.Evaluation.Precision,
		report.Evaluation.Recall, report.TrainedAt.UTC(), report.DataPoints)
	return err
}

// LatestTraining returns the most recent training run, or nil when none has been logged.
func (s *Store) LatestTraining(ctx context.Context) (*TrainingEntry, error) {
	var e TrainingEntry
	err := s.db.QueryRowContext(ctx, `
        SELECT model_name, accuracy, precision, recall, data_points, trained_at
        FROM training_log
        ORDER BY id DESC
        LIMIT 1`).Scan(&e.ModelName, &e.Accuracy, &e.Precision, &e.Recall, &e.DataPoints, &e.TrainedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

var (
	_ approval.Recorder       = (*Store)(nil)
	_ approval.TrainingLogger = (*Store)(nil)
)
