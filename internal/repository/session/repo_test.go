package session

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/embedkit/ragchat/internal/domain"
)

func user(i int) domain.Turn {
	return domain.Turn{Role: domain.RoleUser, Content: fmt.Sprintf("q%d", i)}
}

func assistant(i int) domain.Turn {
	return domain.Turn{Role: domain.RoleAssistant, Content: fmt.Sprintf("a%d", i)}
}

func TestMemory_AppendAndTurns(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(4)

	if err := m.Append(ctx, "s1", user(1), assistant(1)); err != nil {
		t.Fatalf("append: %v", err)
	}
	turns, err := m.Turns(ctx, "s1")
	if err != nil {
		t.Fatalf("turns: %v", err)
	}
	if len(turns) != 2 || turns[0].Content != "q1" || turns[1].Content != "a1" {
		t.Errorf("unexpected history: %v", turns)
	}
}

func TestMemory_TrimsToCap(t *testing.T) {
	ctx := context.Background()
	maxTurns := 2
	m := NewMemory(maxTurns)

	if err := m.Append(ctx, "s1", domain.Turn{Role: domain.RoleSystem, Content: "sys"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	for i := 1; i <= 5; i++ {
		if err := m.Append(ctx, "s1", user(i), assistant(i)); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	turns, err := m.Turns(ctx, "s1")
	if err != nil {
		t.Fatalf("turns: %v", err)
	}
	if want := capFor(maxTurns); len(turns) != want {
		t.Fatalf("expected %d retained turns, got %d", want, len(turns))
	}
	// Oldest entries are dropped first, so the tail of the conversation
	// survives.
	if turns[len(turns)-1].Content != "a5" || turns[len(turns)-2].Content != "q5" {
		t.Errorf("expected most recent pair retained, got %v", turns)
	}
}

func TestMemory_SessionsIsolated(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(4)

	_ = m.Append(ctx, "a", user(1))
	_ = m.Append(ctx, "b", user(2))

	ta, _ := m.Turns(ctx, "a")
	tb, _ := m.Turns(ctx, "b")
	if len(ta) != 1 || len(tb) != 1 || ta[0].Content == tb[0].Content {
		t.Errorf("sessions leaked: a=%v b=%v", ta, tb)
	}
}

func TestMemory_Reset(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(4)

	_ = m.Append(ctx, "s1", user(1), assistant(1))
	if err := m.Reset(ctx, "s1"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	turns, err := m.Turns(ctx, "s1")
	if err != nil {
		t.Fatalf("turns: %v", err)
	}
	if len(turns) != 0 {
		t.Errorf("expected empty history after reset, got %v", turns)
	}
}

func TestMemory_TurnsReturnsCopy(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(4)
	_ = m.Append(ctx, "s1", user(1))

	turns, _ := m.Turns(ctx, "s1")
	turns[0].Content = "mutated"

	again, _ := m.Turns(ctx, "s1")
	if again[0].Content != "q1" {
		t.Error("Turns must return a copy, not the backing slice")
	}
}

func TestMemory_ConcurrentAppends(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(100)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = m.Append(ctx, "shared", user(i))
		}(i)
	}
	wg.Wait()

	turns, err := m.Turns(ctx, "shared")
	if err != nil {
		t.Fatalf("turns: %v", err)
	}
	if len(turns) != 20 {
		t.Errorf("expected 20 turns, got %d", len(turns))
	}
}

// --- Redis store ---

type fakeListStore struct {
	lists map[string][]string
}

func newFakeListStore() *fakeListStore {
	return &fakeListStore{lists: make(map[string][]string)}
}

func (f *fakeListStore) RPush(_ context.Context, key string, values ...string) error {
	f.lists[key] = append(f.lists[key], values...)
	return nil
}

func (f *fakeListStore) LRange(_ context.Context, key string) ([]string, error) {
	return f.lists[key], nil
}

func (f *fakeListStore) LTrimLast(_ context.Context, key string, n int) error {
	if l := f.lists[key]; len(l) > n {
		f.lists[key] = l[len(l)-n:]
	}
	return nil
}

func (f *fakeListStore) Del(_ context.Context, key string) error {
	delete(f.lists, key)
	return nil
}

func TestRedis_RoundTrip(t *testing.T) {
	ctx := context.Background()
	r := NewRedis(newFakeListStore(), 4)

	if err := r.Append(ctx, "s1", user(1), assistant(1)); err != nil {
		t.Fatalf("append: %v", err)
	}
	turns, err := r.Turns(ctx, "s1")
	if err != nil {
		t.Fatalf("turns: %v", err)
	}
	if len(turns) != 2 || turns[0] != user(1) || turns[1] != assistant(1) {
		t.Errorf("unexpected history: %v", turns)
	}
}

func TestRedis_TrimsToCap(t *testing.T) {
	ctx := context.Background()
	maxTurns := 2
	fake := newFakeListStore()
	r := NewRedis(fake, maxTurns)

	for i := 1; i <= 6; i++ {
		if err := r.Append(ctx, "s1", user(i), assistant(i)); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
	turns, err := r.Turns(ctx, "s1")
	if err != nil {
		t.Fatalf("turns: %v", err)
	}
	if want := capFor(maxTurns); len(turns) != want {
		t.Errorf("expected %d retained turns, got %d", want, len(turns))
	}
	if turns[len(turns)-1] != assistant(6) {
		t.Errorf("expected newest turn retained, got %v", turns[len(turns)-1])
	}
}

func TestRedis_Reset(t *testing.T) {
	ctx := context.Background()
	fake := newFakeListStore()
	r := NewRedis(fake, 4)

	_ = r.Append(ctx, "s1", user(1))
	if err := r.Reset(ctx, "s1"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	turns, _ := r.Turns(ctx, "s1")
	if len(turns) != 0 {
		t.Errorf("expected empty history after reset, got %v", turns)
	}
}

func TestRedis_AppendNothingIsNoop(t *testing.T) {
	fake := newFakeListStore()
	r := NewRedis(fake, 4)
	if err := r.Append(context.Background(), "s1"); err != nil {
		t.Fatalf("empty append: %v", err)
	}
	if len(fake.lists) != 0 {
		t.Error("empty append must not touch the store")
	}
}
