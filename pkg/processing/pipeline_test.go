package processing

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/octopus-bim/octopus/pkg/bim"
	"github.com/octopus-bim/octopus/pkg/ifc"
	"github.com/octopus-bim/octopus/pkg/models"
	"github.com/octopus-bim/octopus/pkg/queue"
	"github.com/octopus-bim/octopus/pkg/registry"
	"github.com/octopus-bim/octopus/pkg/storage/memory"
	"github.com/octopus-bim/octopus/pkg/store"
)

const testIfc = `ISO-10303-21;
HEADER;
FILE_SCHEMA(('IFC4'));
ENDSEC;
DATA;
#1=IFCWALL('wallguid',$,'Wall 1',$,$,$,$,$,$);
#10=IFCPROPERTYSET('psetguid',$,'Pset_WallCommon',$,(#11));
#11=IFCPROPERTYSINGLEVALUE('IsExternal',$,IFCBOOLEAN(.T.),$);
#30=IFCRELDEFINESBYPROPERTIES('relguid',$,$,$,(#1),#10);
ENDSEC;
END-ISO-10303-21;
`

// collectNotifier records progress events for assertions.
type collectNotifier struct {
	mu     sync.Mutex
	events []Progress
}

func (c *collectNotifier) Notify(p Progress) {
	c.mu.Lock()
	c.events = append(c.events, p)
	c.mu.Unlock()
}

func (c *collectNotifier) last(t *testing.T) Progress {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.events) == 0 {
		t.Fatal("No progress events recorded")
	}
	return c.events[len(c.events)-1]
}

// fakeConverter writes fixed bytes to the output path.
type fakeConverter struct {
	output []byte
	err    error
}

func (f *fakeConverter) Convert(ctx context.Context, ifcPath, wexBimPath string) error {
	if f.err != nil {
		return f.err
	}
	if _, err := os.Stat(ifcPath); err != nil {
		return err
	}
	return os.WriteFile(wexBimPath, f.output, 0o644)
}

type pipelineEnv struct {
	store    *store.GORMStore
	provider *memory.Provider
	version  *models.ModelVersion
	jobs     map[models.JobType]*models.Job
}

func newPipelineEnv(t *testing.T) *pipelineEnv {
	t.Helper()

	st, err := store.New(&store.Config{
		Type:   store.DatabaseTypeSQLite,
		SQLite: store.SQLiteConfig{Path: ":memory:"},
	})
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	provider := memory.New()
	reg := registry.NewService(st, provider, registry.Config{})
	bimSvc := bim.NewService(st, reg)
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

	// Upload the IFC source through the registry.
	session, err := reg.Reserve(ctx, project.ID, "model.ifc", "application/x-step", nil)
	if err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}
	if _, err := reg.UploadContent(ctx, session.ID, strings.NewReader(testIfc)); err != nil {
		t.Fatalf("UploadContent failed: %v", err)
	}
	ifcFile, err := reg.Commit(ctx, session.ID, "")
	if err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	model, err := bimSvc.CreateModel(ctx, project.ID, "tower", "")
	if err != nil {
		t.Fatalf("CreateModel failed: %v", err)
	}
	version, err := bimSvc.CreateVersion(ctx, model.ID, ifcFile.ID)
	if err != nil {
		t.Fatalf("CreateVersion failed: %v", err)
	}

	claimed, err := st.ClaimDueJobs(ctx, time.Now(), 10)
	if err != nil {
		t.Fatalf("ClaimDueJobs failed: %v", err)
	}
	if len(claimed) != 2 {
		t.Fatalf("Expected 2 outbox jobs, got %d", len(claimed))
	}
	jobs := map[models.JobType]*models.Job{}
	for _, j := range claimed {
		jobs[j.Type] = j
	}
	return &pipelineEnv{store: st, provider: provider, version: version, jobs: jobs}
}

func (e *pipelineEnv) envelope(jobType models.JobType) *queue.JobEnvelope {
	job := e.jobs[jobType]
	return &queue.JobEnvelope{
		JobID:   job.ID,
		Type:    job.Type,
		Payload: job.Payload,
		Attempt: job.Attempt,
	}
}

func TestExtractPropertiesHandler(t *testing.T) {
	env := newPipelineEnv(t)
	notifier := &collectNotifier{}
	h := NewExtractPropertiesHandler(env.store, env.provider, notifier)
	ctx := context.Background()

	if err := h.Handle(ctx, env.envelope(models.JobTypeExtractProperties)); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}

	version, err := env.store.GetModelVersion(ctx, env.version.ID)
	if err != nil {
		t.Fatalf("GetModelVersion failed: %v", err)
	}
	if version.PropertiesFileID == nil {
		t.Fatal("Expected properties artifact to be attached")
	}
	if version.Status != models.VersionStatusProcessing {
		t.Errorf("Expected processing with one artifact, got %s", version.Status)
	}

	// The stored artifact is the extracted document.
	file, err := env.store.GetFile(ctx, *version.PropertiesFileID)
	if err != nil {
		t.Fatalf("GetFile failed: %v", err)
	}
	if file.Kind != models.FileKindArtifact || file.Category != models.FileCategoryProperties {
		t.Errorf("Unexpected artifact classification: %s/%s", file.Kind, file.Category)
	}
	r, err := env.provider.OpenRead(ctx, file.StorageKey)
	if err != nil {
		t.Fatalf("OpenRead failed: %v", err)
	}
	defer r.Close()
	var doc ifc.Document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		t.Fatalf("Artifact is not valid JSON: %v", err)
	}
	if doc.TotalElements != 1 || doc.Elements[0].GlobalID != "wallguid" {
		t.Errorf("Unexpected document: %+v", doc)
	}

	last := notifier.last(t)
	if !last.IsComplete || !last.IsSuccess {
		t.Errorf("Expected terminal success event, got %+v", last)
	}

	// Redelivery is idempotent.
	if err := h.Handle(ctx, env.envelope(models.JobTypeExtractProperties)); err != nil {
		t.Fatalf("Redelivered handle failed: %v", err)
	}
	after, _ := env.store.GetModelVersion(ctx, env.version.ID)
	if *after.PropertiesFileID != *version.PropertiesFileID {
		t.Error("Redelivery replaced the artifact")
	}
}

func TestConvertWexBimHandler(t *testing.T) {
	env := newPipelineEnv(t)
	notifier := &collectNotifier{}
	wexBytes := []byte("WEX\x01fake geometry")
	h := NewConvertWexBimHandler(env.store, env.provider, &fakeConverter{output: wexBytes}, notifier)
	h.TempDir = t.TempDir()
	ctx := context.Background()

	if err := h.Handle(ctx, env.envelope(models.JobTypeConvertWexBim)); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}

	version, err := env.store.GetModelVersion(ctx, env.version.ID)
	if err != nil {
		t.Fatalf("GetModelVersion failed: %v", err)
	}
	if version.WexBimFileID == nil {
		t.Fatal("Expected wexbim artifact to be attached")
	}
	file, err := env.store.GetFile(ctx, *version.WexBimFileID)
	if err != nil {
		t.Fatalf("GetFile failed: %v", err)
	}
	if file.Category != models.FileCategoryWexBim || file.SizeBytes != int64(len(wexBytes)) {
		t.Errorf("Unexpected artifact: %+v", file)
	}

	// The IFC source carries a lineage edge to the artifact.
	links, err := env.store.ListLinksTargeting(ctx, file.ID)
	if err != nil {
		t.Fatalf("ListLinksTargeting failed: %v", err)
	}
	if len(links) != 1 || links[0].LinkType != models.FileLinkDerivedFrom {
		t.Fatalf("Expected derived-from link, got %+v", links)
	}
	if links[0].SourceFileID != version.IfcFileID {
		t.Errorf("Expected link sourced at the IFC file, got %s", links[0].SourceFileID)
	}

	last := notifier.last(t)
	if !last.IsComplete || !last.IsSuccess {
		t.Errorf("Expected terminal success event, got %+v", last)
	}
}

func TestPipelineBothArtifactsReady(t *testing.T) {
	env := newPipelineEnv(t)
	ctx := context.Background()

	convert := NewConvertWexBimHandler(env.store, env.provider, &fakeConverter{output: []byte("wex")}, nil)
	convert.TempDir = t.TempDir()
	extract := NewExtractPropertiesHandler(env.store, env.provider, nil)

	if err := convert.Handle(ctx, env.envelope(models.JobTypeConvertWexBim)); err != nil {
		t.Fatalf("Convert failed: %v", err)
	}
	if err := extract.Handle(ctx, env.envelope(models.JobTypeExtractProperties)); err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	version, err := env.store.GetModelVersion(ctx, env.version.ID)
	if err != nil {
		t.Fatalf("GetModelVersion failed: %v", err)
	}
	if version.Status != models.VersionStatusReady {
		t.Errorf("Expected ready after both artifacts, got %s", version.Status)
	}
	if version.ProcessedAt == nil {
		t.Error("Expected ProcessedAt to be set")
	}
}

func TestPoolRetryThenTerminalFailure(t *testing.T) {
	env := newPipelineEnv(t)
	notifier := &collectNotifier{}
	q := queue.NewMemoryQueue(4)
	defer q.Close()

	boom := HandlerFunc(func(ctx context.Context, e *queue.JobEnvelope) error {
		return errors.New("converter exploded")
	})
	pool := NewPool(env.store, q, Registry{models.JobTypeConvertWexBim: boom}, notifier, PoolConfig{
		Workers:     1,
		MaxAttempts: 2,
		BackoffBase: time.Millisecond,
	})
	ctx := context.Background()

	// First delivery schedules a retry.
	env1 := env.envelope(models.JobTypeConvertWexBim)
	pool.process(ctx, env1)

	claimed, err := env.store.ClaimDueJobs(ctx, time.Now().Add(time.Second), 10)
	if err != nil {
		t.Fatalf("ClaimDueJobs failed: %v", err)
	}
	if len(claimed) != 1 || claimed[0].Attempt != 1 {
		t.Fatalf("Expected one requeued job at attempt 1, got %+v", claimed)
	}

	// Second delivery exhausts the budget and fails the version.
	env2 := env.envelope(models.JobTypeConvertWexBim)
	env2.Attempt = claimed[0].Attempt
	pool.process(ctx, env2)

	version, err := env.store.GetModelVersion(ctx, env.version.ID)
	if err != nil {
		t.Fatalf("GetModelVersion failed: %v", err)
	}
	if version.Status != models.VersionStatusFailed {
		t.Errorf("Expected failed version, got %s", version.Status)
	}
	last := notifier.last(t)
	if !last.IsComplete || last.IsSuccess || last.ErrorMessage == "" {
		t.Errorf("Expected terminal failure event, got %+v", last)
	}

	// The job row is terminally failed, never claimable again.
	left, err := env.store.ClaimDueJobs(ctx, time.Now().Add(time.Hour), 10)
	if err != nil {
		t.Fatalf("ClaimDueJobs failed: %v", err)
	}
	if len(left) != 0 {
		t.Errorf("Expected no claimable jobs, got %d", len(left))
	}
}

func TestPoolUnknownJobType(t *testing.T) {
	env := newPipelineEnv(t)
	q := queue.NewMemoryQueue(4)
	defer q.Close()
	pool := NewPool(env.store, q, Registry{}, nil, PoolConfig{Workers: 1})
	ctx := context.Background()

	pool.process(ctx, env.envelope(models.JobTypeExtractProperties))

	// Drained terminally, and the version failed with it.
	version, err := env.store.GetModelVersion(ctx, env.version.ID)
	if err != nil {
		t.Fatalf("GetModelVersion failed: %v", err)
	}
	if version.Status != models.VersionStatusFailed {
		t.Errorf("Expected failed version, got %s", version.Status)
	}
}

func TestPoolBackoff(t *testing.T) {
	pool := NewPool(nil, nil, nil, nil, PoolConfig{
		BackoffBase: time.Second,
		BackoffMax:  10 * time.Second,
	})
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 10 * time.Second},
		{9, 10 * time.Second},
	}
	for _, tc := range tests {
		if got := pool.backoff(tc.attempt); got != tc.want {
			t.Errorf("backoff(%d) = %v, want %v", tc.attempt, got, tc.want)
		}
	}
}

func TestBusFanOut(t *testing.T) {
	bus := NewBus()
	ch, cancel := bus.Subscribe("v1")
	other, cancelOther := bus.Subscribe("v2")
	defer cancelOther()

	bus.Notify(Progress{ModelVersionID: "v1", Stage: "convert", PercentComplete: 50})

	select {
	case p := <-ch:
		if p.Stage != "convert" || p.PercentComplete != 50 {
			t.Errorf("Unexpected event: %+v", p)
		}
	default:
		t.Fatal("Subscriber did not receive the event")
	}
	select {
	case p := <-other:
		t.Errorf("Wrong version received event: %+v", p)
	default:
	}

	// After cancel, events are no longer delivered.
	cancel()
	bus.Notify(Progress{ModelVersionID: "v1", Stage: "convert", PercentComplete: 100})
	select {
	case p, ok := <-ch:
		if ok {
			t.Errorf("Cancelled subscriber received event: %+v", p)
		}
	default:
	}
}
