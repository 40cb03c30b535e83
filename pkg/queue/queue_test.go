package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/octopus-bim/octopus/pkg/models"
	"github.com/octopus-bim/octopus/pkg/store"
)

func TestMemoryQueueFIFO(t *testing.T) {
	q := NewMemoryQueue(4)
	defer q.Close()
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		if err := q.Enqueue(ctx, &JobEnvelope{JobID: id}); err != nil {
			t.Fatalf("Enqueue %s failed: %v", id, err)
		}
	}
	if q.Len() != 3 {
		t.Errorf("Expected 3 queued, got %d", q.Len())
	}
	for _, want := range []string{"a", "b", "c"} {
		env, err := q.Dequeue(ctx)
		if err != nil {
			t.Fatalf("Dequeue failed: %v", err)
		}
		if env.JobID != want {
			t.Errorf("Expected %s, got %s", want, env.JobID)
		}
	}
}

func TestMemoryQueueBlocking(t *testing.T) {
	q := NewMemoryQueue(1)
	defer q.Close()

	// Enqueue into a full queue respects context cancellation.
	if err := q.Enqueue(context.Background(), &JobEnvelope{JobID: "a"}); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := q.Enqueue(ctx, &JobEnvelope{JobID: "b"}); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected DeadlineExceeded, got %v", err)
	}

	// Dequeue on an empty queue respects context cancellation.
	if _, err := q.Dequeue(context.Background()); err != nil {
		t.Fatalf("Dequeue failed: %v", err)
	}
	ctx2, cancel2 := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel2()
	if _, err := q.Dequeue(ctx2); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected DeadlineExceeded, got %v", err)
	}
}

func TestMemoryQueueClose(t *testing.T) {
	q := NewMemoryQueue(2)
	ctx := context.Background()

	if err := q.Enqueue(ctx, &JobEnvelope{JobID: "a"}); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	q.Close()
	q.Close() // idempotent

	if err := q.Enqueue(ctx, &JobEnvelope{JobID: "b"}); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("Expected ErrQueueClosed on enqueue, got %v", err)
	}

	// Queued envelopes drain before closed surfaces.
	env, err := q.Dequeue(ctx)
	if err != nil {
		t.Fatalf("Dequeue after close failed: %v", err)
	}
	if env.JobID != "a" {
		t.Errorf("Expected a, got %s", env.JobID)
	}
	if _, err := q.Dequeue(ctx); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("Expected ErrQueueClosed after drain, got %v", err)
	}
}

func newDispatcherStore(t *testing.T) (*store.GORMStore, *models.ModelVersion) {
	t.Helper()
	st, err := store.New(&store.Config{
		Type:   store.DatabaseTypeSQLite,
		SQLite: store.SQLiteConfig{Path: ":memory:"},
	})
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	ctx := context.Background()
	owner, _ := st.GetOrCreateUserBySubject(ctx, "owner", "", "")
	ws := &models.Workspace{Name: "ws"}
	if _, err := st.CreateWorkspace(ctx, ws, owner.ID); err != nil {
		t.Fatalf("CreateWorkspace failed: %v", err)
	}
	project := &models.Project{WorkspaceID: ws.ID, Name: "p"}
	if _, err := st.CreateProject(ctx, project); err != nil {
		t.Fatalf("CreateProject failed: %v", err)
	}
	file := &models.File{
		ProjectID:       project.ID,
		Name:            "m.ifc",
		Kind:            models.FileKindSource,
		Category:        models.FileCategoryIfc,
		StorageProvider: "memory",
		StorageKey:      "k/m.ifc",
	}
	if _, err := st.CreateFile(ctx, file); err != nil {
		t.Fatalf("CreateFile failed: %v", err)
	}
	model := &models.Model{ProjectID: project.ID, Name: "m"}
	if _, err := st.CreateModel(ctx, model); err != nil {
		t.Fatalf("CreateModel failed: %v", err)
	}

	version := &models.ModelVersion{ModelID: model.ID, IfcFileID: file.ID, Status: models.VersionStatusPending}
	jobs := []*models.Job{
		{Type: models.JobTypeConvertWexBim, Payload: `{"model_version_id":"v"}`},
		{Type: models.JobTypeExtractProperties, Payload: `{"model_version_id":"v"}`},
	}
	created, err := st.CreateModelVersion(ctx, version, jobs)
	if err != nil {
		t.Fatalf("CreateModelVersion failed: %v", err)
	}
	return st, created
}

func TestDispatcherMovesDueJobs(t *testing.T) {
	st, _ := newDispatcherStore(t)
	q := NewMemoryQueue(8)
	defer q.Close()
	ctx := context.Background()

	d := NewDispatcher(st, q, DispatcherConfig{})
	d.dispatch(ctx)

	if q.Len() != 2 {
		t.Fatalf("Expected 2 enqueued jobs, got %d", q.Len())
	}
	env, err := q.Dequeue(ctx)
	if err != nil {
		t.Fatalf("Dequeue failed: %v", err)
	}
	if env.Type != models.JobTypeConvertWexBim && env.Type != models.JobTypeExtractProperties {
		t.Errorf("Unexpected job type %s", env.Type)
	}

	// Claimed rows are inflight; a second poll finds nothing new.
	d.dispatch(ctx)
	if q.Len() != 1 {
		t.Errorf("Expected no double dispatch, queue has %d", q.Len())
	}
}

func TestDispatcherRecover(t *testing.T) {
	st, _ := newDispatcherStore(t)
	q := NewMemoryQueue(8)
	defer q.Close()
	ctx := context.Background()

	d := NewDispatcher(st, q, DispatcherConfig{})
	d.dispatch(ctx)
	if q.Len() != 2 {
		t.Fatalf("Expected 2 enqueued jobs, got %d", q.Len())
	}

	// Simulate a crash: the queue is gone but the rows are inflight.
	if err := d.Recover(ctx); err != nil {
		t.Fatalf("Recover failed: %v", err)
	}
	d.dispatch(ctx)
	if q.Len() != 4 {
		t.Errorf("Expected redelivery after recover, queue has %d", q.Len())
	}
}
