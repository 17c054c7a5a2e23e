package pollable

import "testing"

func TestFDSetAddReadBumpsMax(t *testing.T) {
	var set FDSet
	set.AddRead(5)

	if set.Max != 6 {
		t.Errorf("expected Max=6, got %d", set.Max)
	}
	if !fdIsSet(&set.Read, 5) {
		t.Error("expected fd 5 to be set in Read")
	}
}

func TestFDSetAddWriteBumpsMax(t *testing.T) {
	var set FDSet
	set.AddWrite(12)

	if set.Max != 13 {
		t.Errorf("expected Max=13, got %d", set.Max)
	}
	if !fdIsSet(&set.Write, 12) {
		t.Error("expected fd 12 to be set in Write")
	}
}

func TestFDSetMaxTracksHighestFD(t *testing.T) {
	var set FDSet
	set.AddRead(3)
	set.AddRead(9)
	set.AddWrite(4)

	if set.Max != 10 {
		t.Errorf("expected Max=10, got %d", set.Max)
	}
}

func TestReadySetIsReadable(t *testing.T) {
	var set FDSet
	set.AddRead(7)

	ready := ReadySet{Read: &set.Read, Write: &set.Write}

	if !ready.IsReadable(7) {
		t.Error("expected fd 7 to be readable")
	}
	if ready.IsReadable(8) {
		t.Error("expected fd 8 to not be readable")
	}
}

func TestReadySetIsWritable(t *testing.T) {
	var set FDSet
	set.AddWrite(2)

	ready := ReadySet{Read: &set.Read, Write: &set.Write}

	if !ready.IsWritable(2) {
		t.Error("expected fd 2 to be writable")
	}
}

func TestReadySetNilSetsAreNotReady(t *testing.T) {
	var ready ReadySet

	if ready.IsReadable(0) || ready.IsWritable(0) {
		t.Error("expected nil ReadySet to report nothing ready")
	}
}

func TestTokenRemoveInvokesCallback(t *testing.T) {
	var removed uint64
	calls := 0
	tok := Token{id: 42, remove: func(id uint64) {
		removed = id
		calls++
	}}

	tok.Remove()
	tok.Remove()

	if removed != 42 {
		t.Errorf("expected removed id 42, got %d", removed)
	}
	if calls != 2 {
		t.Errorf("expected remove callback called twice, got %d", calls)
	}
}

func TestTokenRemoveNilFuncIsNoop(t *testing.T) {
	tok := Token{id: 1}
	tok.Remove() // must not panic
}
