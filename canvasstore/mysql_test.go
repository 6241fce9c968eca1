package canvasstore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/flowcanvas/canvasengine/canvas"
)

// TestMySQLStoreIntegration validates MySQLStore against a real
// MySQL/MariaDB instance.
//
// Prerequisites:
//   - A MySQL server reachable at the TEST_MYSQL_DSN DSN.
//   - The connecting user has CREATE, INSERT, SELECT, UPDATE, DELETE.
//
// Example DSN: "user:password@tcp(localhost:3306)/canvasengine_test"
//
// To run:
//
//	export TEST_MYSQL_DSN="user:password@tcp(localhost:3306)/canvasengine_test"
//	go test -run TestMySQLStoreIntegration ./canvasstore
func TestMySQLStoreIntegration(t *testing.T) {
	dsn := os.Getenv("TEST_MYSQL_DSN")
	if dsn == "" {
		t.Skip("Skipping MySQL integration test: set TEST_MYSQL_DSN to run")
	}

	ctx := context.Background()
	store, err := NewMySQLStore(dsn, nil)
	if err != nil {
		t.Fatalf("NewMySQLStore: %v", err)
	}
	defer func() { _ = store.Close() }()

	canvasID := "integration-canvas"
	if err := store.CreateCanvas(ctx, canvas.Canvas{ID: canvasID, Owner: "integration-owner"}); err != nil {
		t.Fatalf("CreateCanvas: %v", err)
	}

	err = store.WithTransaction(ctx, func(ctx context.Context, tx CanvasTx) error {
		if err := tx.CreateNode(ctx, canvas.Node{ID: "integration-n1", CanvasID: canvasID, Type: canvas.NodeTypeText}); err != nil {
			return err
		}
		return tx.CreateNode(ctx, canvas.Node{ID: "integration-n2", CanvasID: canvasID, Type: canvas.NodeTypeExport})
	})
	if err != nil {
		t.Fatalf("WithTransaction: %v", err)
	}

	snap, err := store.LoadSnapshot(ctx, canvasID)
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	if len(snap.Nodes) != 2 {
		t.Fatalf("len(Nodes) = %d, want 2", len(snap.Nodes))
	}

	batchID := "integration-batch"
	if err := store.CreateBatch(ctx, canvas.TaskBatch{ID: batchID, CanvasID: canvasID, CreatedAt: time.Now()}); err != nil {
		t.Fatalf("CreateBatch: %v", err)
	}
	started, err := store.TryStartBatch(ctx, canvasID, batchID)
	if err != nil {
		t.Fatalf("TryStartBatch: %v", err)
	}
	if !started {
		t.Fatal("TryStartBatch = false, want true")
	}
}
