package store

import (
	"fmt"
	"testing"

	"shipboard/pkg/models"
)

func openTest(t *testing.T) {
	t.Helper()
	if err := Open(t.TempDir()); err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() {
		if err := Close(); err != nil {
			t.Errorf("close: %v", err)
		}
	})
}

func TestSaveAndGetAccount(t *testing.T) {
	openTest(t)
	in := models.Account{ID: "u1", Username: "sam", DisplayName: "Sam", ProfileUpdatedTS: 42, CreatedTS: 40}
	if err := SaveAccount(in); err != nil {
		t.Fatalf("save: %v", err)
	}
	out, err := GetAccount("u1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if out != in {
		t.Fatalf("round trip mismatch:\nin:  %+v\nout: %+v", in, out)
	}
	if _, err := GetAccount("nope"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSaveAccountRejectsMissingFields(t *testing.T) {
	openTest(t)
	if err := SaveAccount(models.Account{Username: "sam"}); err == nil {
		t.Fatal("expected error for missing id")
	}
	if err := SaveAccount(models.Account{ID: "u1"}); err == nil {
		t.Fatal("expected error for missing username")
	}
}

func TestUsernameIndexFollowsRename(t *testing.T) {
	openTest(t)
	if err := SaveAccount(models.Account{ID: "u1", Username: "Sam"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if id, err := LookupUsername("sam"); err != nil || id != "u1" {
		t.Fatalf("case-insensitive lookup: id=%q err=%v", id, err)
	}

	if err := SaveAccount(models.Account{ID: "u1", Username: "samwise"}); err != nil {
		t.Fatalf("rename: %v", err)
	}
	if _, err := LookupUsername("sam"); err != ErrNotFound {
		t.Fatalf("old name must be released after rename, got %v", err)
	}
	if id, err := LookupUsername("samwise"); err != nil || id != "u1" {
		t.Fatalf("new name lookup: id=%q err=%v", id, err)
	}
}

func TestListAccounts(t *testing.T) {
	openTest(t)
	for i := 0; i < 5; i++ {
		a := models.Account{ID: fmt.Sprintf("u%d", i), Username: fmt.Sprintf("user%d", i)}
		if err := SaveAccount(a); err != nil {
			t.Fatalf("save %d: %v", i, err)
		}
	}
	out, err := ListAccounts()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(out) != 5 {
		t.Fatalf("expected 5 accounts, got %d", len(out))
	}
}

func TestMessagesOrderedAndLimited(t *testing.T) {
	openTest(t)
	for i := 0; i < 6; i++ {
		m := models.Message{ID: fmt.Sprintf("m%d", i), Conversation: "c1", Author: "u1", Body: fmt.Sprintf("body %d", i)}
		if err := SaveMessage("c1", m); err != nil {
			t.Fatalf("save %d: %v", i, err)
		}
	}
	// also a message in another conversation; must not leak into c1
	if err := SaveMessage("c2", models.Message{ID: "other", Conversation: "c2", Author: "u1"}); err != nil {
		t.Fatalf("save other: %v", err)
	}

	all, err := ListMessages("c1", 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 6 {
		t.Fatalf("expected 6 messages, got %d", len(all))
	}
	for i, m := range all {
		if m.ID != fmt.Sprintf("m%d", i) {
			t.Fatalf("insertion order broken at %d: got %s", i, m.ID)
		}
	}

	last, err := ListMessages("c1", 2)
	if err != nil {
		t.Fatalf("list limited: %v", err)
	}
	if len(last) != 2 || last[0].ID != "m4" || last[1].ID != "m5" {
		t.Fatalf("limit must keep the most recent, got %+v", last)
	}
}
