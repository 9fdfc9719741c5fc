package auxstore

import (
	"testing"
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

func TestBlocksAreSymmetric(t *testing.T) {
	openTest(t)
	if err := AddBlock("x", "y"); err != nil {
		t.Fatalf("add block: %v", err)
	}
	dx, err := DerivedSets("x")
	if err != nil {
		t.Fatalf("derived x: %v", err)
	}
	dy, err := DerivedSets("y")
	if err != nil {
		t.Fatalf("derived y: %v", err)
	}
	if len(dx.BlockedIDs) != 1 || dx.BlockedIDs[0] != "y" {
		t.Fatalf("x should block y, got %v", dx.BlockedIDs)
	}
	if len(dy.BlockedIDs) != 1 || dy.BlockedIDs[0] != "x" {
		t.Fatalf("block must be written in both directions, got %v", dy.BlockedIDs)
	}

	if err := RemoveBlock("x", "y"); err != nil {
		t.Fatalf("remove block: %v", err)
	}
	dx, _ = DerivedSets("x")
	dy, _ = DerivedSets("y")
	if len(dx.BlockedIDs) != 0 || len(dy.BlockedIDs) != 0 {
		t.Fatalf("remove must clear both directions, got x=%v y=%v", dx.BlockedIDs, dy.BlockedIDs)
	}
}

func TestMutesAreOneWay(t *testing.T) {
	openTest(t)
	if err := AddMute("x", "y"); err != nil {
		t.Fatalf("add mute: %v", err)
	}
	dx, _ := DerivedSets("x")
	dy, _ := DerivedSets("y")
	if len(dx.MutedIDs) != 1 || dx.MutedIDs[0] != "y" {
		t.Fatalf("x should mute y, got %v", dx.MutedIDs)
	}
	if len(dy.MutedIDs) != 0 {
		t.Fatalf("mute must not be reflected back, got %v", dy.MutedIDs)
	}
}

func TestListAddIsIdempotent(t *testing.T) {
	openTest(t)
	for i := 0; i < 3; i++ {
		if err := AddAlertWord("u1", "karaoke"); err != nil {
			t.Fatalf("add %d: %v", i, err)
		}
	}
	ds, _ := DerivedSets("u1")
	if len(ds.AlertWords) != 1 {
		t.Fatalf("duplicate adds must collapse, got %v", ds.AlertWords)
	}
	if err := RemoveAlertWord("u1", "karaoke"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	ds, _ = DerivedSets("u1")
	if len(ds.AlertWords) != 0 {
		t.Fatalf("expected empty after remove, got %v", ds.AlertWords)
	}
}

func TestDerivedSetsOfUnknownAccountIsEmpty(t *testing.T) {
	openTest(t)
	ds, err := DerivedSets("ghost")
	if err != nil {
		t.Fatalf("derived: %v", err)
	}
	if len(ds.BlockedIDs)+len(ds.MutedIDs)+len(ds.MuteWords)+len(ds.AlertWords) != 0 {
		t.Fatalf("unknown id must read as empty sets, got %+v", ds)
	}
}

func TestInitAccountWritesEmptySets(t *testing.T) {
	openTest(t)
	if err := InitAccount("u1"); err != nil {
		t.Fatalf("init: %v", err)
	}
	ds, err := DerivedSets("u1")
	if err != nil {
		t.Fatalf("derived: %v", err)
	}
	if len(ds.BlockedIDs) != 0 || len(ds.MutedIDs) != 0 || len(ds.MuteWords) != 0 || len(ds.AlertWords) != 0 {
		t.Fatalf("fresh account must have empty sets, got %+v", ds)
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	openTest(t)
	if got, err := GetSetting("motd"); err != nil || got != "" {
		t.Fatalf("unset setting: got=%q err=%v", got, err)
	}
	if err := SetSetting("motd", "welcome aboard"); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err := GetSetting("motd")
	if err != nil || got != "welcome aboard" {
		t.Fatalf("get: got=%q err=%v", got, err)
	}
}

func TestCounterIncrements(t *testing.T) {
	openTest(t)
	for want := int64(1); want <= 3; want++ {
		got, err := IncrCounter("messages_posted")
		if err != nil {
			t.Fatalf("incr: %v", err)
		}
		if got != want {
			t.Fatalf("expected %d, got %d", want, got)
		}
	}
}
