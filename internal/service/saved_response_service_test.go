package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"careerkit-go/internal/model"
	"careerkit-go/internal/repository"
	"careerkit-go/pkg/events"
)

const storeKey = "savedResponses"

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.SavedResponseEvent
}

func (p *recordingPublisher) Publish(_ context.Context, e events.SavedResponseEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

// fixedClock 总是返回同一毫秒，用来验证 ID 不会冲突。
func fixedClock() func() time.Time {
	t := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time { return t }
}

func newTestStore(t *testing.T) (*savedResponseService, *repository.MemoryKVRepository, *recordingPublisher) {
	t.Helper()
	kv := repository.NewMemoryKVRepository()
	pub := &recordingPublisher{}
	s := newSavedResponseService(repository.NewSavedResponseRepository(kv, storeKey), pub, fixedClock())
	s.Load(context.Background())
	return s, kv, pub
}

func TestAdd_PrependsExactFields(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()
	s.Add(ctx, model.ToolAdvisor, "background", "Try community college")

	item, ok := s.Add(ctx, model.ToolResume, "Led team", "Great bullet!")
	if !ok {
		t.Fatal("Add rejected a valid record")
	}
	list := s.List()
	if len(list) != 2 {
		t.Fatalf("len = %d, want 2", len(list))
	}
	first := list[0]
	if first.Tool != model.ToolResume || first.Input != "Led team" || first.Output != "Great bullet!" {
		t.Errorf("first = %+v", first)
	}
	if first.ID != item.ID || first.ID == list[1].ID {
		t.Errorf("ids not unique: %d %d", first.ID, list[1].ID)
	}
}

func TestAdd_IDsUniqueWithinSameMillisecond(t *testing.T) {
	s, _, _ := newTestStore(t)
	seen := make(map[int64]bool)
	for i := 0; i < 50; i++ {
		item, ok := s.Add(context.Background(), model.ToolInterview, "", "q")
		if !ok {
			t.Fatal("Add rejected a valid record")
		}
		if seen[item.ID] {
			t.Fatalf("duplicate id %d", item.ID)
		}
		seen[item.ID] = true
	}
}

func TestAdd_RejectsBlankOutput(t *testing.T) {
	s, kv, pub := newTestStore(t)
	for _, out := range []string{"", "   ", "\n\t"} {
		if _, ok := s.Add(context.Background(), model.ToolResume, "in", out); ok {
			t.Errorf("Add(%q) accepted", out)
		}
	}
	if n := len(s.List()); n != 0 {
		t.Fatalf("len = %d, want 0", n)
	}
	if _, found, _ := kv.Get(context.Background(), storeKey); found {
		t.Error("rejected add must not persist")
	}
	if len(pub.events) != 0 {
		t.Error("rejected add must not publish")
	}
}

func TestAdd_RejectsUnknownTool(t *testing.T) {
	s, _, _ := newTestStore(t)
	if _, ok := s.Add(context.Background(), model.Tool("poetry"), "in", "out"); ok {
		t.Fatal("unknown tool accepted")
	}
}

func TestDelete(t *testing.T) {
	s, _, pub := newTestStore(t)
	ctx := context.Background()
	a, _ := s.Add(ctx, model.ToolResume, "a", "A")
	b, _ := s.Add(ctx, model.ToolAdvisor, "b", "B")
	c, _ := s.Add(ctx, model.ToolInterview, "c", "C")

	if s.Delete(ctx, 999) {
		t.Error("Delete of unknown id reported removal")
	}
	if len(s.List()) != 3 {
		t.Fatal("unknown id changed the collection")
	}

	if !s.Delete(ctx, b.ID) {
		t.Fatal("Delete of existing id reported no removal")
	}
	list := s.List()
	if len(list) != 2 || list[0].ID != c.ID || list[1].ID != a.ID {
		t.Fatalf("after delete: %+v", list)
	}

	last := pub.events[len(pub.events)-1]
	if last.Type != events.SavedResponseDeleted || last.ID != b.ID {
		t.Errorf("last event = %+v", last)
	}
}

func TestPersistThenReload(t *testing.T) {
	ctx := context.Background()
	s, kv, _ := newTestStore(t)
	s.Add(ctx, model.ToolResume, "a", "A")
	s.Add(ctx, model.ToolAdvisor, "b", "B")
	want := s.List()

	reloaded := newSavedResponseService(repository.NewSavedResponseRepository(kv, storeKey), nil, time.Now)
	reloaded.Load(ctx)
	got := reloaded.List()
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].ID != want[i].ID || got[i].Output != want[i].Output || !got[i].CreatedAt.Equal(want[i].CreatedAt) {
			t.Errorf("item %d = %+v, want %+v", i, got[i], want[i])
		}
	}

	// 重新加载后新 ID 仍然大于已有 ID
	item, _ := reloaded.Add(ctx, model.ToolInterview, "", "C")
	if item.ID <= want[0].ID {
		t.Errorf("new id %d not greater than %d", item.ID, want[0].ID)
	}
}

func TestLoad_CorruptDataYieldsEmpty(t *testing.T) {
	ctx := context.Background()
	kv := repository.NewMemoryKVRepository()
	_ = kv.Set(ctx, storeKey, "{corrupt")
	s := newSavedResponseService(repository.NewSavedResponseRepository(kv, storeKey), nil, time.Now)

	s.Load(ctx)
	if n := len(s.List()); n != 0 {
		t.Fatalf("len = %d, want 0", n)
	}
	if !s.Status().Persisted {
		t.Fatal("corrupt data must not disable persistence")
	}
	s.Add(ctx, model.ToolResume, "a", "A")
	raw, _, _ := kv.Get(ctx, storeKey)
	if !strings.HasPrefix(raw, "[{") {
		t.Errorf("corrupt value not replaced, got %q", raw)
	}
}

func TestLoad_ReadFailureKeepsStorageUntouched(t *testing.T) {
	ctx := context.Background()
	kv := repository.NewMemoryKVRepository()
	_ = kv.Set(ctx, storeKey, "[]")
	kv.FailReads = true
	s := newSavedResponseService(repository.NewSavedResponseRepository(kv, storeKey), nil, time.Now)

	s.Load(ctx)
	s.Add(ctx, model.ToolResume, "a", "A")
	if s.Status().Persisted {
		t.Fatal("store should be in-memory only after a read failure")
	}
	kv.FailReads = false
	raw, _, _ := kv.Get(ctx, storeKey)
	if raw != "[]" {
		t.Errorf("storage overwritten: %q", raw)
	}
	if len(s.List()) != 1 {
		t.Error("in-memory state must still accept mutations")
	}
}

func TestPersistFailure_DegradesToMemory(t *testing.T) {
	ctx := context.Background()
	s, kv, _ := newTestStore(t)
	kv.FailWrites = true

	if _, ok := s.Add(ctx, model.ToolResume, "a", "A"); !ok {
		t.Fatal("Add must succeed in memory even if persistence fails")
	}
	st := s.Status()
	if st.Persisted || st.Count != 1 {
		t.Fatalf("status = %+v", st)
	}
}

func TestRender_ScenarioAndListeners(t *testing.T) {
	s, _, _ := newTestStore(t)
	var fragments []string
	unsubscribe := s.Subscribe(func(f string) { fragments = append(fragments, f) })

	before := len(s.List())
	s.Add(context.Background(), model.ToolResume, "Led team", "Great bullet!")
	if len(s.List()) != before+1 {
		t.Fatal("collection length did not grow by one")
	}

	out := s.Render()
	if strings.Count(out, `class="saved-card"`) != 1 || !strings.Contains(out, "resume") || !strings.Contains(out, "Great bullet!") {
		t.Fatalf("render = %q", out)
	}
	if s.Render() != out {
		t.Fatal("Render is not idempotent")
	}
	if len(fragments) != 1 || fragments[0] != out {
		t.Fatalf("listener got %d fragments", len(fragments))
	}

	unsubscribe()
	s.Delete(context.Background(), 12345)
	if len(fragments) != 1 {
		t.Fatal("listener called after unsubscribe")
	}
}

func TestAdd_PublishesCreatedEvent(t *testing.T) {
	s, _, pub := newTestStore(t)
	item, _ := s.Add(context.Background(), model.ToolResume, "a", "A")
	if len(pub.events) != 1 {
		t.Fatalf("events = %d, want 1", len(pub.events))
	}
	e := pub.events[0]
	if e.Type != events.SavedResponseCreated || e.ID != item.ID || e.Record == nil || e.Record.Output != "A" {
		t.Errorf("event = %+v", e)
	}
}

// stuckPublisher 一直阻塞到 ctx 结束，模拟不可达的消息队列。
type stuckPublisher struct {
	err chan error
}

func (p *stuckPublisher) Publish(ctx context.Context, _ events.SavedResponseEvent) error {
	<-ctx.Done()
	p.err <- ctx.Err()
	return ctx.Err()
}

func TestAdd_PublishIsBounded(t *testing.T) {
	pub := &stuckPublisher{err: make(chan error, 1)}
	kv := repository.NewMemoryKVRepository()
	s := newSavedResponseService(repository.NewSavedResponseRepository(kv, storeKey), pub, fixedClock())
	s.publishTimeout = 20 * time.Millisecond
	s.Load(context.Background())

	// 请求本身已取消，发布仍使用独立的超时
	reqCtx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		s.Add(reqCtx, model.ToolResume, "a", "A")
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Add blocked on a stuck publisher")
	}
	if err := <-pub.err; err != context.DeadlineExceeded {
		t.Errorf("publish ctx err = %v, want deadline exceeded", err)
	}
	if len(s.List()) != 1 {
		t.Error("record not kept after publish failure")
	}
	if _, ok, _ := kv.Get(context.Background(), storeKey); !ok {
		t.Error("record not persisted before publishing")
	}
}
