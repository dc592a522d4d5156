package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/cerebrumd/cerebrum/goal"
)

const defaultDBName = "cerebrum.db"

// schema keeps frequently queried fields in columns and the full record as a
// JSON document, so partial updates stay atomic without a column per field.
const schema = `
CREATE TABLE IF NOT EXISTS goals (
	id         TEXT PRIMARY KEY,
	status     TEXT NOT NULL,
	tier       TEXT NOT NULL,
	data       TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_goals_status ON goals(status);
CREATE INDEX IF NOT EXISTS idx_goals_tier ON goals(tier);
CREATE TABLE IF NOT EXISTS priority_queue (
	id         INTEGER PRIMARY KEY CHECK (id = 1),
	data       TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
`

// SQLiteStore persists goals in a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// EnsureWorkspace creates the workspace directory if missing.
func EnsureWorkspace(workspace string) (string, error) {
	path := filepath.Join(workspace, ".cerebrum")
	if err := os.MkdirAll(path, 0o755); err != nil {
		return "", err
	}
	return path, nil
}

// DBPath returns the database path for a workspace.
func DBPath(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, ".cerebrum", defaultDBName)
}

// OpenSQLite opens (and if needed initializes) the workspace database.
func OpenSQLite(workspace string) (*SQLiteStore, error) {
	if _, err := EnsureWorkspace(workspace); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?cache=shared&_pragma=foreign_keys(1)", DBPath(workspace))
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	return NewSQLiteStore(db)
}

// NewSQLiteStore wraps an open database handle, creating the schema if needed.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// CreateGoal inserts a new goal row.
func (s *SQLiteStore) CreateGoal(ctx context.Context, g *goal.Goal) error {
	if err := g.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(g)
	if err != nil {
		return fmt.Errorf("encode goal: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO goals(id,status,tier,data,created_at,updated_at) VALUES (?,?,?,?,?,?)`,
		g.ID, string(g.Status), string(g.Tier), string(data), g.CreatedAt, g.UpdatedAt)
	if err != nil {
		// The id is the primary key, so a duplicate insert is the only
		// constraint that can trip here.
		return fmt.Errorf("%w: %s", ErrGoalExists, g.ID)
	}
	return nil
}

func scanGoal(row interface{ Scan(dest ...any) error }) (*goal.Goal, error) {
	var data string
	if err := row.Scan(&data); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrGoalNotFound
		}
		return nil, err
	}
	var g goal.Goal
	if err := json.Unmarshal([]byte(data), &g); err != nil {
		return nil, fmt.Errorf("decode goal: %w", err)
	}
	return &g, nil
}

// GetGoal fetches one goal by id.
func (s *SQLiteStore) GetGoal(ctx context.Context, id string) (*goal.Goal, error) {
	return scanGoal(s.db.QueryRowContext(ctx, `SELECT data FROM goals WHERE id=?`, id))
}

// mutateGoal runs a read-modify-write of one goal inside a transaction so
// multi-field updates land atomically.
func (s *SQLiteStore) mutateGoal(ctx context.Context, id string, fn func(g *goal.Goal) error) (*goal.Goal, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	g, err := scanGoal(tx.QueryRowContext(ctx, `SELECT data FROM goals WHERE id=?`, id))
	if err != nil {
		return nil, err
	}
	if err := fn(g); err != nil {
		return nil, err
	}
	data, err := json.Marshal(g)
	if err != nil {
		return nil, fmt.Errorf("encode goal: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE goals SET status=?, tier=?, data=?, updated_at=? WHERE id=?`,
		string(g.Status), string(g.Tier), string(data), g.UpdatedAt, id); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return g, nil
}

// UpdateGoal applies a partial update atomically and returns the result.
func (s *SQLiteStore) UpdateGoal(ctx context.Context, id string, upd GoalUpdate) (*goal.Goal, error) {
	return s.mutateGoal(ctx, id, func(g *goal.Goal) error {
		return upd.apply(g, time.Now().UTC())
	})
}

func (s *SQLiteStore) queryGoals(ctx context.Context, query string, args ...any) ([]*goal.Goal, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []*goal.Goal
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var g goal.Goal
		if err := json.Unmarshal([]byte(data), &g); err != nil {
			return nil, fmt.Errorf("decode goal: %w", err)
		}
		res = append(res, &g)
	}
	return res, rows.Err()
}

// ActiveGoals returns every goal with status active.
func (s *SQLiteStore) ActiveGoals(ctx context.Context) ([]*goal.Goal, error) {
	return s.GoalsByStatus(ctx, goal.StatusActive)
}

// GoalsByStatus returns every goal in the given status, oldest first.
func (s *SQLiteStore) GoalsByStatus(ctx context.Context, status goal.Status) ([]*goal.Goal, error) {
	return s.queryGoals(ctx, `SELECT data FROM goals WHERE status=? ORDER BY created_at`, string(status))
}

// GoalsByTier returns every goal in the given tier, oldest first.
func (s *SQLiteStore) GoalsByTier(ctx context.Context, tier goal.Tier) ([]*goal.Goal, error) {
	return s.queryGoals(ctx, `SELECT data FROM goals WHERE tier=? ORDER BY created_at`, string(tier))
}

// AllGoals returns every stored goal, oldest first.
func (s *SQLiteStore) AllGoals(ctx context.Context) ([]*goal.Goal, error) {
	return s.queryGoals(ctx, `SELECT data FROM goals ORDER BY created_at`)
}

func (s *SQLiteStore) appendLog(ctx context.Context, id string, fn func(g *goal.Goal)) error {
	_, err := s.mutateGoal(ctx, id, func(g *goal.Goal) error {
		fn(g)
		g.UpdatedAt = time.Now().UTC()
		return nil
	})
	return err
}

// AddReflection appends a reflection to the goal's log.
func (s *SQLiteStore) AddReflection(ctx context.Context, id string, r goal.Reflection) error {
	return s.appendLog(ctx, id, func(g *goal.Goal) { g.Reflections = append(g.Reflections, r) })
}

// AddThought appends a thought to the goal's log.
func (s *SQLiteStore) AddThought(ctx context.Context, id string, th goal.Thought) error {
	return s.appendLog(ctx, id, func(g *goal.Goal) { g.Thoughts = append(g.Thoughts, th) })
}

// AddAction appends an action to the goal's log.
func (s *SQLiteStore) AddAction(ctx context.Context, id string, a goal.Action) error {
	return s.appendLog(ctx, id, func(g *goal.Goal) { g.Actions = append(g.Actions, a) })
}

// AddInteraction appends an agent interaction to the goal's log.
func (s *SQLiteStore) AddInteraction(ctx context.Context, id string, ia goal.AgentInteraction) error {
	return s.appendLog(ctx, id, func(g *goal.Goal) { g.Interactions = append(g.Interactions, ia) })
}

// PriorityQueue returns the last persisted queue snapshot.
func (s *SQLiteStore) PriorityQueue(ctx context.Context) ([]goal.QueueEntry, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM priority_queue WHERE id=1`).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var entries []goal.QueueEntry
	if err := json.Unmarshal([]byte(data), &entries); err != nil {
		return nil, fmt.Errorf("decode queue snapshot: %w", err)
	}
	return entries, nil
}

// UpdatePriorityQueue replaces the queue snapshot.
func (s *SQLiteStore) UpdatePriorityQueue(ctx context.Context, entries []goal.QueueEntry) error {
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("encode queue snapshot: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO priority_queue(id,data,updated_at) VALUES (1,?,?)
		 ON CONFLICT(id) DO UPDATE SET data=excluded.data, updated_at=excluded.updated_at`,
		string(data), time.Now().UTC())
	return err
}
