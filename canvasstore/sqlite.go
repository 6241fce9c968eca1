package canvasstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/flowcanvas/canvasengine/canvas"
)

// SQLiteStore is a SQLite implementation of Store.
//
// Designed for:
//   - Development and testing with zero external setup
//   - Single-process deployments
//   - Prototyping before migrating to MySQLStore
//
// Schema:
//   - canvases, nodes, handles, edges: the canvas graph
//   - task_batches, tasks: the Workflow Processor's execution history
//   - file_assets: persisted binary assets referenced by FileReference
//
// Single-writer WAL mode, a busy_timeout, and a RWMutex-guarded closed
// flag keep concurrent access safe. Templates are kept as an in-memory
// map supplied at construction (as with MemStore) rather than a
// table, since NodeTemplate is compiled-in registry configuration, not
// data created through the API.
type SQLiteStore struct {
	db        *sql.DB
	mu        sync.RWMutex
	closed    bool
	path      string
	templates map[canvas.NodeType]canvas.NodeTemplate
}

// NewSQLiteStore opens (creating if necessary) a SQLite database at
// path, enables WAL mode and foreign keys, and creates the schema.
// templates seeds the static node-template registry; pass nil for
// an empty one.
func NewSQLiteStore(path string, templates map[canvas.NodeType]canvas.NodeTemplate) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite connection: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx := context.Background()
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}

	if templates == nil {
		templates = make(map[canvas.NodeType]canvas.NodeTemplate)
	}
	store := &SQLiteStore{db: db, path: path, templates: templates}
	if err := store.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) createTables(ctx context.Context) error {
	for _, stmt := range []string{
		`CREATE TABLE IF NOT EXISTS canvases (
			id TEXT PRIMARY KEY,
			owner TEXT NOT NULL,
			original_canvas_id TEXT NOT NULL DEFAULT '',
			is_api_canvas INTEGER NOT NULL DEFAULT 0,
			version INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS nodes (
			id TEXT PRIMARY KEY,
			canvas_id TEXT NOT NULL REFERENCES canvases(id),
			type TEXT NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			pos_x REAL NOT NULL DEFAULT 0,
			pos_y REAL NOT NULL DEFAULT 0,
			width REAL NOT NULL DEFAULT 0,
			height REAL NOT NULL DEFAULT 0,
			template_id TEXT NOT NULL DEFAULT '',
			config TEXT NOT NULL DEFAULT '{}',
			result TEXT NOT NULL DEFAULT '{"outputs":[],"selectedOutputIndex":0}',
			original_node_id TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_nodes_canvas_id ON nodes(canvas_id)`,
		`CREATE TABLE IF NOT EXISTS handles (
			id TEXT PRIMARY KEY,
			node_id TEXT NOT NULL REFERENCES nodes(id),
			direction TEXT NOT NULL,
			data_types TEXT NOT NULL DEFAULT '[]',
			label TEXT NOT NULL DEFAULT '',
			required INTEGER NOT NULL DEFAULT 0,
			order_idx INTEGER NOT NULL DEFAULT 0,
			template_handle_id TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_handles_node_id ON handles(node_id)`,
		`CREATE TABLE IF NOT EXISTS edges (
			id TEXT PRIMARY KEY,
			canvas_id TEXT NOT NULL REFERENCES canvases(id),
			source TEXT NOT NULL,
			target TEXT NOT NULL,
			source_handle_id TEXT NOT NULL,
			target_handle_id TEXT NOT NULL,
			UNIQUE(source_handle_id, target_handle_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_edges_canvas_id ON edges(canvas_id)`,
		`CREATE TABLE IF NOT EXISTS task_batches (
			id TEXT PRIMARY KEY,
			canvas_id TEXT NOT NULL REFERENCES canvases(id),
			created_at TEXT NOT NULL,
			started_at TEXT,
			finished_at TEXT,
			pending_job_data TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_batches_canvas_id ON task_batches(canvas_id)`,
		`CREATE TABLE IF NOT EXISTS tasks (
			id TEXT PRIMARY KEY,
			batch_id TEXT NOT NULL REFERENCES task_batches(id),
			node_id TEXT NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			started_at TEXT,
			finished_at TEXT,
			duration_ms INTEGER NOT NULL DEFAULT 0,
			error_message TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_batch_id ON tasks(batch_id)`,
		`CREATE TABLE IF NOT EXISTS file_assets (
			id TEXT PRIMARY KEY,
			asset_key TEXT NOT NULL,
			bucket TEXT NOT NULL,
			mime_type TEXT NOT NULL DEFAULT '',
			width INTEGER NOT NULL DEFAULT 0,
			height INTEGER NOT NULL DEFAULT 0,
			duration REAL NOT NULL DEFAULT 0
		)`,
	} {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt, err)
		}
	}
	return nil
}

// Close closes the underlying database connection. Safe to call more
// than once.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func (s *SQLiteStore) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return fmt.Errorf("store is closed")
	}
	return nil
}

func (s *SQLiteStore) GetCanvas(ctx context.Context, canvasID string) (canvas.Canvas, error) {
	if err := s.checkOpen(); err != nil {
		return canvas.Canvas{}, err
	}
	return scanCanvas(s.db.QueryRowContext(ctx, `
		SELECT id, owner, original_canvas_id, is_api_canvas, version
		FROM canvases WHERE id = ?`, canvasID))
}

func (s *SQLiteStore) CreateCanvas(ctx context.Context, c canvas.Canvas) error {
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

func (s *SQLiteStore) LoadSnapshot(ctx context.Context, canvasID string) (*canvas.Snapshot, error) {
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

func (s *SQLiteStore) LoadTemplatesByType(_ context.Context, types []canvas.NodeType) (map[canvas.NodeType]canvas.NodeTemplate, error) {
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

func (s *SQLiteStore) LoadNode(ctx context.Context, nodeID string) (canvas.Node, error) {
	if err := s.checkOpen(); err != nil {
		return canvas.Node{}, err
	}
	return scanNode(s.db.QueryRowContext(ctx, `
		SELECT id, canvas_id, type, name, pos_x, pos_y, width, height, template_id, config, result, original_node_id
		FROM nodes WHERE id = ?`, nodeID))
}

func (s *SQLiteStore) UpdateNodeResult(ctx context.Context, nodeID string, result canvas.ResultEnvelope) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `UPDATE nodes SET result = ? WHERE id = ?`, string(resultJSON), nodeID)
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

// WithTransaction runs fn inside a real *sql.Tx, committing only if
// fn returns nil. Unlike MemStore's copy-on-write maps, atomicity
// here comes from the database's own transaction isolation.
func (s *SQLiteStore) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx CanvasTx) error) error {
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

func (s *SQLiteStore) CreateBatch(ctx context.Context, batch canvas.TaskBatch) error {
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

func (s *SQLiteStore) UpdateBatch(ctx context.Context, batch canvas.TaskBatch) error {
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

func (s *SQLiteStore) GetBatch(ctx context.Context, batchID string) (canvas.TaskBatch, error) {
	if err := s.checkOpen(); err != nil {
		return canvas.TaskBatch{}, err
	}
	return scanBatch(s.db.QueryRowContext(ctx, `
		SELECT id, canvas_id, created_at, started_at, finished_at, pending_job_data
		FROM task_batches WHERE id = ?`, batchID))
}

func (s *SQLiteStore) CreateTasks(ctx context.Context, tasks []canvas.Task) error {
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

func (s *SQLiteStore) UpdateTask(ctx context.Context, task canvas.Task) error {
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

func (s *SQLiteStore) GetTask(ctx context.Context, taskID string) (canvas.Task, error) {
	if err := s.checkOpen(); err != nil {
		return canvas.Task{}, err
	}
	return scanTask(s.db.QueryRowContext(ctx, `
		SELECT id, batch_id, node_id, name, status, started_at, finished_at, duration_ms, error_message
		FROM tasks WHERE id = ?`, taskID))
}

func (s *SQLiteStore) ListTasks(ctx context.Context, batchID string) ([]canvas.Task, error) {
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

// TryStartBatch is implemented with an explicit transaction rather
// than a single statement so the "another batch active?" check and
// the StartedAt write happen atomically under the database's
// isolation, matching the exclusivity invariant MemStore enforces by
// holding its RWMutex across both steps.
func (s *SQLiteStore) TryStartBatch(ctx context.Context, canvasID, batchID string) (bool, error) {
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
		WHERE canvas_id = ? AND id != ? AND started_at IS NOT NULL AND finished_at IS NULL`,
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

func (s *SQLiteStore) OldestPendingBatch(ctx context.Context, canvasID string) (*canvas.TaskBatch, error) {
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

func (s *SQLiteStore) ListUnfinishedBatches(ctx context.Context) ([]canvas.TaskBatch, error) {
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

func (s *SQLiteStore) CreateFileAsset(ctx context.Context, asset canvas.FileAsset) error {
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

func (s *SQLiteStore) GetFileAsset(ctx context.Context, assetID string) (canvas.FileAsset, error) {
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

// sqlCanvasTx implements CanvasTx over a *sql.Tx, used by both
// SQLiteStore and MySQLStore since the statements involved are
// portable between the two drivers (both use "?" placeholders and
// neither call needs an upsert).
type sqlCanvasTx struct {
	tx *sql.Tx
}

func (t *sqlCanvasTx) CreateCanvas(ctx context.Context, c canvas.Canvas) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO canvases (id, owner, original_canvas_id, is_api_canvas, version)
		VALUES (?, ?, ?, ?, ?)`,
		c.ID, c.Owner, c.OriginalCanvasID, boolToInt(c.IsAPICanvas), c.Version)
	if err != nil {
		return fmt.Errorf("insert canvas: %w", err)
	}
	return nil
}

func (t *sqlCanvasTx) SourceSnapshot(ctx context.Context, canvasID string) (*canvas.Snapshot, error) {
	nodes, err := queryNodes(ctx, t.tx, `SELECT id, canvas_id, type, name, pos_x, pos_y, width, height, template_id, config, result, original_node_id FROM nodes WHERE canvas_id = ?`, canvasID)
	if err != nil {
		return nil, fmt.Errorf("load nodes: %w", err)
	}
	handles, err := queryHandles(ctx, t.tx, `
		SELECT h.id, h.node_id, h.direction, h.data_types, h.label, h.required, h.order_idx, h.template_handle_id
		FROM handles h JOIN nodes n ON n.id = h.node_id
		WHERE n.canvas_id = ?`, canvasID)
	if err != nil {
		return nil, fmt.Errorf("load handles: %w", err)
	}
	edges, err := queryEdges(ctx, t.tx, `SELECT id, canvas_id, source, target, source_handle_id, target_handle_id FROM edges WHERE canvas_id = ?`, canvasID)
	if err != nil {
		return nil, fmt.Errorf("load edges: %w", err)
	}
	return canvas.NewSnapshot(canvasID, nodes, handles, edges), nil
}

func (t *sqlCanvasTx) ExistingIDs(ctx context.Context, canvasID string) (EntityIDSets, error) {
	sets := EntityIDSets{NodeIDs: map[string]bool{}, HandleIDs: map[string]bool{}, EdgeIDs: map[string]bool{}}

	nodeRows, err := t.tx.QueryContext(ctx, `SELECT id FROM nodes WHERE canvas_id = ?`, canvasID)
	if err != nil {
		return sets, fmt.Errorf("query node ids: %w", err)
	}
	defer func() { _ = nodeRows.Close() }()
	for nodeRows.Next() {
		var id string
		if err := nodeRows.Scan(&id); err != nil {
			return sets, err
		}
		sets.NodeIDs[id] = true
	}
	if err := nodeRows.Err(); err != nil {
		return sets, err
	}

	handleRows, err := t.tx.QueryContext(ctx, `
		SELECT h.id FROM handles h JOIN nodes n ON n.id = h.node_id WHERE n.canvas_id = ?`, canvasID)
	if err != nil {
		return sets, fmt.Errorf("query handle ids: %w", err)
	}
	defer func() { _ = handleRows.Close() }()
	for handleRows.Next() {
		var id string
		if err := handleRows.Scan(&id); err != nil {
			return sets, err
		}
		sets.HandleIDs[id] = true
	}
	if err := handleRows.Err(); err != nil {
		return sets, err
	}

	edgeRows, err := t.tx.QueryContext(ctx, `SELECT id FROM edges WHERE canvas_id = ?`, canvasID)
	if err != nil {
		return sets, fmt.Errorf("query edge ids: %w", err)
	}
	defer func() { _ = edgeRows.Close() }()
	for edgeRows.Next() {
		var id string
		if err := edgeRows.Scan(&id); err != nil {
			return sets, err
		}
		sets.EdgeIDs[id] = true
	}
	return sets, edgeRows.Err()
}

func (t *sqlCanvasTx) DeleteEdges(ctx context.Context, ids []string) error {
	return execForEachID(ctx, t.tx, `DELETE FROM edges WHERE id = ?`, ids)
}

func (t *sqlCanvasTx) DeleteHandles(ctx context.Context, ids []string) error {
	return execForEachID(ctx, t.tx, `DELETE FROM handles WHERE id = ?`, ids)
}

func (t *sqlCanvasTx) DeleteNodes(ctx context.Context, ids []string) error {
	return execForEachID(ctx, t.tx, `DELETE FROM nodes WHERE id = ?`, ids)
}

func execForEachID(ctx context.Context, tx *sql.Tx, stmt string, ids []string) error {
	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, stmt, id); err != nil {
			return fmt.Errorf("exec %q for %s: %w", stmt, id, err)
		}
	}
	return nil
}

func (t *sqlCanvasTx) CreateNode(ctx context.Context, n canvas.Node) error {
	resultJSON, err := json.Marshal(n.Result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO nodes (id, canvas_id, type, name, pos_x, pos_y, width, height, template_id, config, result, original_node_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.CanvasID, string(n.Type), n.Name, n.Position.X, n.Position.Y, n.Width, n.Height, n.TemplateID, n.Config.String(), string(resultJSON), n.OriginalNodeID)
	if err != nil {
		return fmt.Errorf("insert node: %w", err)
	}
	return nil
}

func (t *sqlCanvasTx) UpdateNode(ctx context.Context, n canvas.Node) error {
	resultJSON, err := json.Marshal(n.Result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	_, err = t.tx.ExecContext(ctx, `
		UPDATE nodes SET type = ?, name = ?, pos_x = ?, pos_y = ?, width = ?, height = ?, template_id = ?, config = ?, result = ?, original_node_id = ?
		WHERE id = ?`,
		string(n.Type), n.Name, n.Position.X, n.Position.Y, n.Width, n.Height, n.TemplateID, n.Config.String(), string(resultJSON), n.OriginalNodeID, n.ID)
	if err != nil {
		return fmt.Errorf("update node: %w", err)
	}
	return nil
}

func (t *sqlCanvasTx) CreateHandle(ctx context.Context, h canvas.Handle) error {
	dataTypes, err := marshalDataTypes(h.DataTypes)
	if err != nil {
		return err
	}
	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO handles (id, node_id, direction, data_types, label, required, order_idx, template_handle_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		h.ID, h.NodeID, string(h.Type), dataTypes, h.Label, boolToInt(h.Required), h.Order, h.TemplateHandleID)
	if err != nil {
		return fmt.Errorf("insert handle: %w", err)
	}
	return nil
}

func (t *sqlCanvasTx) UpdateHandle(ctx context.Context, h canvas.Handle) error {
	dataTypes, err := marshalDataTypes(h.DataTypes)
	if err != nil {
		return err
	}
	_, err = t.tx.ExecContext(ctx, `
		UPDATE handles SET direction = ?, data_types = ?, label = ?, required = ?, order_idx = ?, template_handle_id = ?
		WHERE id = ?`,
		string(h.Type), dataTypes, h.Label, boolToInt(h.Required), h.Order, h.TemplateHandleID, h.ID)
	if err != nil {
		return fmt.Errorf("update handle: %w", err)
	}
	return nil
}

// CreateEdge silently skips an edge whose (source handle, target
// handle) pair already exists on the canvas, per spec.md §4.2 step 8.
// The UNIQUE(source_handle_id, target_handle_id) constraint on the
// edges table is a defense-in-depth backstop should this check ever
// race with another writer; the explicit SELECT keeps the no-op
// silent instead of surfacing a constraint-violation error.
func (t *sqlCanvasTx) CreateEdge(ctx context.Context, e canvas.Edge) error {
	var existing int
	err := t.tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM edges WHERE canvas_id = ? AND source_handle_id = ? AND target_handle_id = ?`,
		e.CanvasID, e.SourceHandleID, e.TargetHandleID).Scan(&existing)
	if err != nil {
		return fmt.Errorf("check duplicate edge: %w", err)
	}
	if existing > 0 {
		return nil
	}
	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO edges (id, canvas_id, source, target, source_handle_id, target_handle_id)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.CanvasID, e.Source, e.Target, e.SourceHandleID, e.TargetHandleID)
	if err != nil {
		return fmt.Errorf("insert edge: %w", err)
	}
	return nil
}

func (t *sqlCanvasTx) UpdateEdge(ctx context.Context, e canvas.Edge) error {
	_, err := t.tx.ExecContext(ctx, `
		UPDATE edges SET source = ?, target = ?, source_handle_id = ?, target_handle_id = ?
		WHERE id = ?`,
		e.Source, e.Target, e.SourceHandleID, e.TargetHandleID, e.ID)
	if err != nil {
		return fmt.Errorf("update edge: %w", err)
	}
	return nil
}

func (t *sqlCanvasTx) GetNode(ctx context.Context, id string) (canvas.Node, error) {
	return scanNode(t.tx.QueryRowContext(ctx, `
		SELECT id, canvas_id, type, name, pos_x, pos_y, width, height, template_id, config, result, original_node_id
		FROM nodes WHERE id = ?`, id))
}

func (t *sqlCanvasTx) BumpCanvasVersion(ctx context.Context, canvasID string) (int, error) {
	res, err := t.tx.ExecContext(ctx, `UPDATE canvases SET version = version + 1 WHERE id = ?`, canvasID)
	if err != nil {
		return 0, fmt.Errorf("bump canvas version: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	} else if n == 0 {
		return 0, ErrNotFound
	}

	var version int
	if err := t.tx.QueryRowContext(ctx, `SELECT version FROM canvases WHERE id = ?`, canvasID).Scan(&version); err != nil {
		return 0, fmt.Errorf("read bumped version: %w", err)
	}
	return version, nil
}

func insertTask(ctx context.Context, db *sql.DB, t canvas.Task) error {
	errMsg := sql.NullString{}
	if t.Error != nil {
		errMsg = sql.NullString{String: t.Error.Message, Valid: true}
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO tasks (id, batch_id, node_id, name, status, started_at, finished_at, duration_ms, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.BatchID, t.NodeID, t.Name, string(t.Status), formatTime(t.StartedAt), formatTime(t.FinishedAt), t.DurationMs, errMsg)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

// --- shared scan/marshal helpers, used by both SQLiteStore and MySQLStore ---

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCanvas(row rowScanner) (canvas.Canvas, error) {
	var c canvas.Canvas
	var isAPICanvas int
	err := row.Scan(&c.ID, &c.Owner, &c.OriginalCanvasID, &isAPICanvas, &c.Version)
	if err == sql.ErrNoRows {
		return canvas.Canvas{}, ErrNotFound
	}
	if err != nil {
		return canvas.Canvas{}, fmt.Errorf("scan canvas: %w", err)
	}
	c.IsAPICanvas = isAPICanvas != 0
	return c, nil
}

func scanNode(row rowScanner) (canvas.Node, error) {
	var n canvas.Node
	var nodeType, config, result string
	err := row.Scan(&n.ID, &n.CanvasID, &nodeType, &n.Name, &n.Position.X, &n.Position.Y, &n.Width, &n.Height, &n.TemplateID, &config, &result, &n.OriginalNodeID)
	if err == sql.ErrNoRows {
		return canvas.Node{}, ErrNotFound
	}
	if err != nil {
		return canvas.Node{}, fmt.Errorf("scan node: %w", err)
	}
	n.Type = canvas.NodeType(nodeType)
	n.Config = canvas.RawJSON(config)
	if err := json.Unmarshal([]byte(result), &n.Result); err != nil {
		return canvas.Node{}, fmt.Errorf("unmarshal node result: %w", err)
	}
	return n, nil
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func queryNodes(ctx context.Context, q queryer, query string, args ...any) ([]canvas.Node, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []canvas.Node
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func queryHandles(ctx context.Context, q queryer, query string, args ...any) ([]canvas.Handle, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []canvas.Handle
	for rows.Next() {
		var h canvas.Handle
		var direction, dataTypes string
		var required int
		if err := rows.Scan(&h.ID, &h.NodeID, &direction, &dataTypes, &h.Label, &required, &h.Order, &h.TemplateHandleID); err != nil {
			return nil, fmt.Errorf("scan handle: %w", err)
		}
		h.Type = canvas.HandleDirection(direction)
		h.Required = required != 0
		if err := json.Unmarshal([]byte(dataTypes), &h.DataTypes); err != nil {
			return nil, fmt.Errorf("unmarshal handle data types: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func queryEdges(ctx context.Context, q queryer, query string, args ...any) ([]canvas.Edge, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []canvas.Edge
	for rows.Next() {
		var e canvas.Edge
		if err := rows.Scan(&e.ID, &e.CanvasID, &e.Source, &e.Target, &e.SourceHandleID, &e.TargetHandleID); err != nil {
			return nil, fmt.Errorf("scan edge: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanBatch(row rowScanner) (canvas.TaskBatch, error) {
	var b canvas.TaskBatch
	var createdAt string
	var startedAt, finishedAt, pendingJobData sql.NullString
	err := row.Scan(&b.ID, &b.CanvasID, &createdAt, &startedAt, &finishedAt, &pendingJobData)
	if err == sql.ErrNoRows {
		return canvas.TaskBatch{}, ErrNotFound
	}
	if err != nil {
		return canvas.TaskBatch{}, fmt.Errorf("scan batch: %w", err)
	}

	created, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return canvas.TaskBatch{}, fmt.Errorf("parse created_at: %w", err)
	}
	b.CreatedAt = created
	b.StartedAt, err = parseNullTime(startedAt)
	if err != nil {
		return canvas.TaskBatch{}, fmt.Errorf("parse started_at: %w", err)
	}
	b.FinishedAt, err = parseNullTime(finishedAt)
	if err != nil {
		return canvas.TaskBatch{}, fmt.Errorf("parse finished_at: %w", err)
	}
	if pendingJobData.Valid {
		var envelope canvas.DispatchEnvelope
		if err := json.Unmarshal([]byte(pendingJobData.String), &envelope); err != nil {
			return canvas.TaskBatch{}, fmt.Errorf("unmarshal pending job data: %w", err)
		}
		b.PendingJobData = &envelope
	}
	return b, nil
}

func scanBatchRow(rows *sql.Rows) (canvas.TaskBatch, error) {
	return scanBatch(rows)
}

func scanTask(row rowScanner) (canvas.Task, error) {
	var t canvas.Task
	var status string
	var startedAt, finishedAt, errMsg sql.NullString
	err := row.Scan(&t.ID, &t.BatchID, &t.NodeID, &t.Name, &status, &startedAt, &finishedAt, &t.DurationMs, &errMsg)
	if err == sql.ErrNoRows {
		return canvas.Task{}, ErrNotFound
	}
	if err != nil {
		return canvas.Task{}, fmt.Errorf("scan task: %w", err)
	}
	t.Status = canvas.TaskStatus(status)
	t.StartedAt, err = parseNullTime(startedAt)
	if err != nil {
		return canvas.Task{}, fmt.Errorf("parse started_at: %w", err)
	}
	t.FinishedAt, err = parseNullTime(finishedAt)
	if err != nil {
		return canvas.Task{}, fmt.Errorf("parse finished_at: %w", err)
	}
	if errMsg.Valid {
		t.Error = &canvas.TaskError{Message: errMsg.String}
	}
	return t, nil
}

func scanTaskRow(rows *sql.Rows) (canvas.Task, error) {
	return scanTask(rows)
}

func formatTime(tm *time.Time) sql.NullString {
	if tm == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: tm.Format(time.RFC3339Nano), Valid: true}
}

func parseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func marshalPendingJobData(envelope *canvas.DispatchEnvelope) (sql.NullString, error) {
	if envelope == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(envelope)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("marshal pending job data: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func marshalDataTypes(types []canvas.DataType) (string, error) {
	if types == nil {
		types = []canvas.DataType{}
	}
	data, err := json.Marshal(types)
	if err != nil {
		return "", fmt.Errorf("marshal data types: %w", err)
	}
	return string(data), nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
