package canvasstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	_ "github.com/go-sql-driver/mysql"

	"github.com/flowcanvas/canvasengine/canvas"
)

// MySQLStore is a MySQL/MariaDB implementation of Store, for
// production deployments with multiple worker processes sharing one
// canvas store.
//
// DSN format (github.com/go-sql-driver/mysql):
//
//	user:password@tcp(host:3306)/dbname
//
// Security warning: never hardcode credentials; read the DSN from
// configuration or an environment variable.
//
// Schema and query shape follow SQLiteStore's — both drivers accept
// "?" placeholders and neither store needs an upsert — except that
// id-like columns are VARCHAR(191) rather than unbounded TEXT, since
// MySQL requires a bounded key length for indexed and unique columns;
// the tables declare no foreign-key REFERENCES clauses; and
// TryStartBatch's active-batch count query adds FOR UPDATE.
type MySQLStore struct {
	db        *sql.DB
	mu        sync.RWMutex
	closed    bool
	templates map[canvas.NodeType]canvas.NodeTemplate
}

// NewMySQLStore opens a MySQL connection pool and creates the schema
// if it does not already exist. templates seeds the static
// node-template registry; pass nil for an empty one.
func NewMySQLStore(dsn string, templates map[canvas.NodeType]canvas.NodeTemplate) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open mysql connection: %w", err)
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping mysql: %w", err)
	}

	if templates == nil {
		templates = make(map[canvas.NodeType]canvas.NodeTemplate)
	}
	store := &MySQLStore{db: db, templates: templates}
	if err := store.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return store, nil
}

func (s *MySQLStore) createTables(ctx context.Context) error {
	for _, stmt := range []string{
		`CREATE TABLE IF NOT EXISTS canvases (
			id VARCHAR(191) PRIMARY KEY,
			owner VARCHAR(191) NOT NULL,
			original_canvas_id VARCHAR(191) NOT NULL DEFAULT '',
			is_api_canvas TINYINT NOT NULL DEFAULT 0,
			version INT NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS nodes (
			id VARCHAR(191) PRIMARY KEY,
			canvas_id VARCHAR(191) NOT NULL,
			type VARCHAR(64) NOT NULL,
			name VARCHAR(255) NOT NULL DEFAULT '',
			pos_x DOUBLE NOT NULL DEFAULT 0,
			pos_y DOUBLE NOT NULL DEFAULT 0,
			width DOUBLE NOT NULL DEFAULT 0,
			height DOUBLE NOT NULL DEFAULT 0,
			template_id VARCHAR(191) NOT NULL DEFAULT '',
			config TEXT NOT NULL,
			result TEXT NOT NULL,
			original_node_id VARCHAR(191) NOT NULL DEFAULT '',
			INDEX idx_nodes_canvas_id (canvas_id)
		)`,
		`CREATE TABLE IF NOT EXISTS handles (
			id VARCHAR(191) PRIMARY KEY,
			node_id VARCHAR(191) NOT NULL,
			direction VARCHAR(16) NOT NULL,
			data_types TEXT NOT NULL,
			label VARCHAR(255) NOT NULL DEFAULT '',
			required TINYINT NOT NULL DEFAULT 0,
			order_idx INT NOT NULL DEFAULT 0,
			template_handle_id VARCHAR(191) NOT NULL DEFAULT '',
			INDEX idx_handles_node_id (node_id)
		)`,
		`CREATE TABLE IF NOT EXISTS edges (
			id VARCHAR(191) PRIMARY KEY,
			canvas_id VARCHAR(191) NOT NULL,
			source VARCHAR(191) NOT NULL,
			target VARCHAR(191) NOT NULL,
			source_handle_id VARCHAR(191) NOT NULL,
			target_handle_id VARCHAR(191) NOT NULL,
			INDEX idx_edges_canvas_id (canvas_id),
			UNIQUE KEY uq_edges_handles (source_handle_id, target_handle_id)
		)`,
		`CREATE TABLE IF NOT EXISTS task_batches (
			id VARCHAR(191) PRIMARY KEY,
			canvas_id VARCHAR(191) NOT NULL,
			created_at VARCHAR(64) NOT NULL,
			started_at VARCHAR(64),
			finished_at VARCHAR(64),
			pending_job_data TEXT,
			INDEX idx_batches_canvas_id (canvas_id)
		)`,
		`CREATE TABLE IF NOT EXISTS tasks (
			id VARCHAR(191) PRIMARY KEY,
			batch_id VARCHAR(191) NOT NULL,
			node_id VARCHAR(191) NOT NULL,
			name VARCHAR(255) NOT NULL DEFAULT '',
			status VARCHAR(32) NOT NULL,
			started_at VARCHAR(64),
			finished_at VARCHAR(64),
			duration_ms BIGINT NOT NULL DEFAULT 0,
			error_message TEXT,
			INDEX idx_tasks_batch_id (batch_id)
		)`,
		`CREATE TABLE IF NOT EXISTS file_assets (
			id VARCHAR(191) PRIMARY KEY,
			asset_key VARCHAR(255) NOT NULL,
			bucket VARCHAR(255) NOT NULL,
			mime_type VARCHAR(127) NOT NULL DEFAULT '',
			width INT NOT NULL DEFAULT 0,
			height INT NOT NULL DEFAULT 0,
			duration DOUBLE NOT NULL DEFAULT 0
		)`,
	} {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt, err)
		}
	}
	return nil
}

// Close closes the underlying connection pool. Safe to call more
// than once.
func (s *MySQLStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func (s *MySQLStore) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return fmt.Errorf("store is closed")
	}
	return nil
}

func (s *MySQLStore) GetCanvas(ctx context.Context, canvasID string) (canvas.Canvas, error) {
	if err := s.checkOpen(); err != nil {
		return canvas.Canvas{}, err
	}
	return scanCanvas(s.db.QueryRowContext(ctx, `
		SELECT id, owner, original_canvas_id, is_api_canvas, version
		FROM canvases WHERE id = ?`, canvasID))
}

func (s *MySQLStore) CreateCanvas(ctx context.Context, c canvas.Canvas) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO canvases (id, owner, original_canvas_id, is_api_canvas, version)
		VALUES (?, ?, ?, ?, ?)`,
		c.ID, c.Owner, c.OriginalCanvasID, boolToInt(c.IsAPICanvas), c.Version)
	if err != nil {
		return fmt.Errorf("insert canvas: %w", err)
	}
	return nil
}

func (s *MySQLStore) LoadSnapshot(ctx context.Context, canvasID string) (*canvas.Snapshot, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if _, err := s.GetCanvas(ctx, canvasID); err != nil {
		return nil, err
	}

	nodes, err := queryNodes(ctx, s.db, `SELECT id, canvas_id, type, name, pos_x, pos_y, width, height, template_id, config, result, original_node_id FROM nodes WHERE canvas_id = ?`, canvasID)
	if err != nil {
		return nil, fmt.Errorf("load nodes: %w", err)
	}
	handles, err := queryHandles(ctx, s.db, `
		SELECT h.id, h.node_id, h.direction, h.data_types, h.label, h.required, h.order_idx, h.template_handle_id
		FROM handles h JOIN nodes n ON n.id = h.node_id
		WHERE n.canvas_id = ?`, canvasID)
	if err != nil {
		return nil, fmt.Errorf("load handles: %w", err)
	}
	edges, err := queryEdges(ctx, s.db, `SELECT id, canvas_id, source, target, source_handle_id, target_handle_id FROM edges WHERE canvas_id = ?`, canvasID)
	if err != nil {
		return nil, fmt.Errorf("load edges: %w", err)
	}
	return canvas.NewSnapshot(canvasID, nodes, handles, edges), nil
}

func (s *MySQLStore) LoadTemplatesByType(_ context.Context, types []canvas.NodeType) (map[canvas.NodeType]canvas.NodeTemplate, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	out := make(map[canvas.NodeType]canvas.NodeTemplate, len(types))
	for _, t := range types {
		if tpl, ok := s.templates[t]; ok {
			out[t] = tpl
		}
	}
	return out, nil
}

func (s *MySQLStore) LoadNode(ctx context.Context, nodeID string) (canvas.Node, error) {
	if err := s.checkOpen(); err != nil {
		return canvas.Node{}, err
	}
	return scanNode(s.db.QueryRowContext(ctx, `
		SELECT id, canvas_id, type, name, pos_x, pos_y, width, height, template_id, config, result, original_node_id
		FROM nodes WHERE id = ?`, nodeID))
}

func (s *MySQLStore) UpdateNodeResult(ctx context.Context, nodeID string, result canvas.ResultEnvelope) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `UPDATE nodes SET result = ? WHERE id = ?`, string(data), nodeID)
	if err != nil {
		return fmt.Errorf("update node result: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// WithTransaction runs fn inside a real *sql.Tx, sharing sqlCanvasTx
// with SQLiteStore since both drivers accept identical statements.
func (s *MySQLStore) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx CanvasTx) error) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(ctx, &sqlCanvasTx{tx: sqlTx}); err != nil {
		_ = sqlTx.Rollback()
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (s *MySQLStore) CreateBatch(ctx context.Context, batch canvas.TaskBatch) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	pending, err := marshalPendingJobData(batch.PendingJobData)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO task_batches (id, canvas_id, created_at, started_at, finished_at, pending_job_data)
		VALUES (?, ?, ?, ?, ?, ?)`,
		batch.ID, batch.CanvasID, formatTime(&batch.CreatedAt), formatTime(batch.StartedAt), formatTime(batch.FinishedAt), pending)
	if err != nil {
		return fmt.Errorf("insert batch: %w", err)
	}
	return nil
}

func (s *MySQLStore) UpdateBatch(ctx context.Context, batch canvas.TaskBatch) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	pending, err := marshalPendingJobData(batch.PendingJobData)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE task_batches SET started_at = ?, finished_at = ?, pending_job_data = ?
		WHERE id = ?`,
		formatTime(batch.StartedAt), formatTime(batch.FinishedAt), pending, batch.ID)
	if err != nil {
		return fmt.Errorf("update batch: %w", err)
	}
	return nil
}

func (s *MySQLStore) GetBatch(ctx context.Context, batchID string) (canvas.TaskBatch, error) {
	if err := s.checkOpen(); err != nil {
		return canvas.TaskBatch{}, err
	}
	return scanBatch(s.db.QueryRowContext(ctx, `
		SELECT id, canvas_id, created_at, started_at, finished_at, pending_job_data
		FROM task_batches WHERE id = ?`, batchID))
}

func (s *MySQLStore) CreateTasks(ctx context.Context, tasks []canvas.Task) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	for _, t := range tasks {
		if err := insertTask(ctx, s.db, t); err != nil {
			return err
		}
	}
	return nil
}

func (s *MySQLStore) UpdateTask(ctx context.Context, task canvas.Task) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	errMsg := sql.NullString{}
	if task.Error != nil {
		errMsg = sql.NullString{String: task.Error.Message, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE tasks SET status = ?, started_at = ?, finished_at = ?, duration_ms = ?, error_message = ?
		WHERE id = ?`,
		string(task.Status), formatTime(task.StartedAt), formatTime(task.FinishedAt), task.DurationMs, errMsg, task.ID)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	return nil
}

func (s *MySQLStore) GetTask(ctx context.Context, taskID string) (canvas.Task, error) {
	if err := s.checkOpen(); err != nil {
		return canvas.Task{}, err
	}
	return scanTask(s.db.QueryRowContext(ctx, `
		SELECT id, batch_id, node_id, name, status, started_at, finished_at, duration_ms, error_message
		FROM tasks WHERE id = ?`, taskID))
}

func (s *MySQLStore) ListTasks(ctx context.Context, batchID string) ([]canvas.Task, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, batch_id, node_id, name, status, started_at, finished_at, duration_ms, error_message
		FROM tasks WHERE batch_id = ?`, batchID)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []canvas.Task
	for rows.Next() {
		t, err := scanTaskRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// TryStartBatch uses the same explicit-transaction pattern as
// SQLiteStore: the "another batch active?" check and the StartedAt
// write happen inside one *sql.Tx so MySQL's transaction isolation
// (not application-level locking) provides the exclusivity guarantee.
func (s *MySQLStore) TryStartBatch(ctx context.Context, canvasID, batchID string) (bool, error) {
	if err := s.checkOpen(); err != nil {
		return false, err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var activeCount int
	err = tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM task_batches
		WHERE canvas_id = ? AND id != ? AND started_at IS NOT NULL AND finished_at IS NULL FOR UPDATE`,
		canvasID, batchID).Scan(&activeCount)
	if err != nil {
		return false, fmt.Errorf("count active batches: %w", err)
	}
	if activeCount > 0 {
		return false, nil
	}

	now := nowFunc()
	res, err := tx.ExecContext(ctx, `
		UPDATE task_batches SET started_at = ?, pending_job_data = NULL WHERE id = ?`,
		formatTime(&now), batchID)
	if err != nil {
		return false, fmt.Errorf("mark batch started: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	} else if n == 0 {
		return false, ErrNotFound
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit transaction: %w", err)
	}
	return true, nil
}

func (s *MySQLStore) OldestPendingBatch(ctx context.Context, canvasID string) (*canvas.TaskBatch, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT id, canvas_id, created_at, started_at, finished_at, pending_job_data
		FROM task_batches
		WHERE canvas_id = ? AND pending_job_data IS NOT NULL
		ORDER BY created_at ASC LIMIT 1`, canvasID)
	batch, err := scanBatch(row)
	if err == ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &batch, nil
}

func (s *MySQLStore) ListUnfinishedBatches(ctx context.Context) ([]canvas.TaskBatch, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, canvas_id, created_at, started_at, finished_at, pending_job_data
		FROM task_batches WHERE finished_at IS NULL`)
	if err != nil {
		return nil, fmt.Errorf("query unfinished batches: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []canvas.TaskBatch
	for rows.Next() {
		b, err := scanBatchRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *MySQLStore) CreateFileAsset(ctx context.Context, asset canvas.FileAsset) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO file_assets (id, asset_key, bucket, mime_type, width, height, duration)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		asset.ID, asset.Key, asset.Bucket, asset.MimeType, asset.Width, asset.Height, asset.Duration)
	if err != nil {
		return fmt.Errorf("insert file asset: %w", err)
	}
	return nil
}

func (s *MySQLStore) GetFileAsset(ctx context.Context, assetID string) (canvas.FileAsset, error) {
	if err := s.checkOpen(); err != nil {
		return canvas.FileAsset{}, err
	}
	var a canvas.FileAsset
	err := s.db.QueryRowContext(ctx, `
		SELECT id, asset_key, bucket, mime_type, width, height, duration
		FROM file_assets WHERE id = ?`, assetID).Scan(&a.ID, &a.Key, &a.Bucket, &a.MimeType, &a.Width, &a.Height, &a.Duration)
	if err == sql.ErrNoRows {
		return canvas.FileAsset{}, ErrNotFound
	}
	if err != nil {
		return canvas.FileAsset{}, fmt.Errorf("load file asset: %w", err)
	}
	return a, nil
}
