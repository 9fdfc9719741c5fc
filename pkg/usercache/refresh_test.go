package usercache

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"

	"shipboard/pkg/models"
)

// fakeAccounts is an in-memory AccountSource with error injection.
type fakeAccounts struct {
	mu   sync.Mutex
	rows map[string]models.Account
	fail bool
}

func (f *fakeAccounts) ReadAccount(id string) (models.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return models.Account{}, errors.New("durable store unreachable")
	}
	a, ok := f.rows[id]
	if !ok {
		return models.Account{}, errors.New("not found")
	}
	return a, nil
}

func (f *fakeAccounts) ListAccounts() ([]models.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return nil, errors.New("durable store unreachable")
	}
	out := make([]models.Account, 0, len(f.rows))
	for _, a := range f.rows {
		out = append(out, a)
	}
	return out, nil
}

func (f *fakeAccounts) set(a models.Account) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[a.ID] = a
}

// fakeDerived is an in-memory DerivedSource.
type fakeDerived struct {
	mu   sync.Mutex
	sets map[string]models.DerivedSets
	fail bool
}

func (f *fakeDerived) DerivedSets(id string) (models.DerivedSets, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return models.DerivedSets{}, errors.New("aux store unreachable")
	}
	return f.sets[id], nil
}

func (f *fakeDerived) set(id string, ds models.DerivedSets) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sets[id] = ds
}

func newFixture() (*Cache, *Refresher, *fakeAccounts, *fakeDerived) {
	acc := &fakeAccounts{rows: map[string]models.Account{}}
	der := &fakeDerived{sets: map[string]models.DerivedSets{}}
	c := New()
	return c, NewRefresher(c, acc, der), acc, der
}

func TestWarmPopulatesEveryAccount(t *testing.T) {
	c, ref, acc, _ := newFixture()
	for i := 0; i < 10; i++ {
		id := fmt.Sprintf("u%d", i)
		acc.set(models.Account{ID: id, Username: fmt.Sprintf("user%d", i), ProfileUpdatedTS: int64(i)})
	}
	if err := ref.Warm(context.Background()); err != nil {
		t.Fatalf("Warm: %v", err)
	}
	if c.Len() != 10 {
		t.Fatalf("expected 10 snapshots, got %d", c.Len())
	}
	for i := 0; i < 10; i++ {
		id := fmt.Sprintf("u%d", i)
		if _, ok := c.Get(id); !ok {
			t.Fatalf("expected %s cached after warm", id)
		}
	}
}

func TestWarmFailureReturnsError(t *testing.T) {
	_, ref, acc, _ := newFixture()
	acc.fail = true
	if err := ref.Warm(context.Background()); err == nil {
		t.Fatal("expected warm to fail when the durable store is down")
	}
}

func TestRefreshIdempotent(t *testing.T) {
	c, ref, acc, der := newFixture()
	acc.set(models.Account{ID: "u1", Username: "sam", DisplayName: "Sam", ProfileUpdatedTS: 42})
	der.set("u1", models.DerivedSets{BlockedIDs: []string{"u9"}, AlertWords: []string{"karaoke"}})

	if err := ref.Refresh(context.Background(), "u1"); err != nil {
		t.Fatalf("first refresh: %v", err)
	}
	first, _ := c.Get("u1")
	if err := ref.Refresh(context.Background(), "u1"); err != nil {
		t.Fatalf("second refresh: %v", err)
	}
	second, _ := c.Get("u1")

	if !reflect.DeepEqual(first, second) {
		t.Fatalf("refresh not idempotent:\nfirst:  %+v\nsecond: %+v", first, second)
	}
}

func TestRefreshFailureKeepsPriorSnapshot(t *testing.T) {
	c, ref, acc, der := newFixture()
	acc.set(models.Account{ID: "u1", Username: "sam"})
	if err := ref.Refresh(context.Background(), "u1"); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	der.fail = true
	if err := ref.Refresh(context.Background(), "u1"); err == nil {
		t.Fatal("expected refresh error when aux store is down")
	}
	// stale-but-available beats gone
	s, ok := c.Get("u1")
	if !ok || s.Username != "sam" {
		t.Fatalf("prior snapshot should survive a failed refresh, got %+v ok=%v", s, ok)
	}
}

func TestRefreshPicksUpBlock(t *testing.T) {
	c, ref, acc, der := newFixture()
	acc.set(models.Account{ID: "x", Username: "xavier"})
	acc.set(models.Account{ID: "y", Username: "yvonne"})
	if err := ref.RefreshMany(context.Background(), []string{"x", "y"}); err != nil {
		t.Fatalf("RefreshMany: %v", err)
	}

	der.set("x", models.DerivedSets{BlockedIDs: []string{"y"}})
	if err := ref.Refresh(context.Background(), "x"); err != nil {
		t.Fatalf("refresh after block: %v", err)
	}
	s, _ := c.Get("x")
	if !s.Blocks("y") {
		t.Fatal("expected x's snapshot to contain the block on y")
	}
}

func TestRefreshManyReportsErrors(t *testing.T) {
	_, ref, acc, _ := newFixture()
	acc.set(models.Account{ID: "u1", Username: "sam"})
	// u2 does not exist
	err := ref.RefreshMany(context.Background(), []string{"u1", "u2"})
	if err == nil {
		t.Fatal("expected joined error for the unknown id")
	}
}
