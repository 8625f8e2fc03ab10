package whatsapp

import (
	"errors"
	"testing"
)

func TestRegistryConnectedClearsQR(t *testing.T) {
	r := NewRegistry()
	r.Insert("alice", nil)
	r.SetQR("alice", "code-1")
	if err := r.UpdateStatus("alice", StatusWaitingForScan); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if _, ok := r.GetQR("alice"); !ok {
		t.Fatal("QR should survive waiting_for_scan")
	}

	if err := r.UpdateStatus("alice", StatusConnected); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if _, ok := r.GetQR("alice"); ok {
		t.Error("connected device still has a pending QR")
	}
	rec, _ := r.Get("alice")
	if !rec.IsConnected {
		t.Error("IsConnected should follow status")
	}

	_ = r.UpdateStatus("alice", StatusDisconnected)
	rec, _ = r.Get("alice")
	if rec.IsConnected {
		t.Error("IsConnected should be false once disconnected")
	}
}

func TestRegistryUpdateMissing(t *testing.T) {
	r := NewRegistry()
	if err := r.UpdateStatus("ghost", StatusConnected); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("err = %v, want ErrDeviceNotFound", err)
	}
}

func TestRegistryGenerationGuards(t *testing.T) {
	r := NewRegistry()
	old := r.Insert("alice", nil)
	cur := r.Insert("alice", nil)
	if old.Generation == cur.Generation {
		t.Fatal("generations must differ")
	}
	if r.UpdateStatusIf("alice", old.Generation, StatusConnected) {
		t.Error("stale generation updated the record")
	}
	if r.RemoveIf("alice", old.Generation) {
		t.Error("stale generation removed the record")
	}
	if !r.RemoveIf("alice", cur.Generation) {
		t.Error("current generation should remove the record")
	}
	if _, ok := r.Get("alice"); ok {
		t.Error("record still present")
	}
}

func TestRegistryQRSignal(t *testing.T) {
	r := NewRegistry()
	sig := r.QRSignal("alice")
	select {
	case <-sig:
		t.Fatal("signal fired before SetQR")
	default:
	}
	r.SetQR("alice", "code")
	select {
	case <-sig:
	default:
		t.Fatal("signal not fired by SetQR")
	}
	if next := r.QRSignal("alice"); next == sig {
		t.Error("signal should be re-armed after firing")
	}
}

func TestRegistryRemoveDropsQRKeepsEpoch(t *testing.T) {
	r := NewRegistry()
	r.Insert("alice", nil)
	r.SetQR("alice", "code")
	e := r.BumpEpoch("alice")

	r.Remove("alice")
	r.Remove("alice")

	if _, ok := r.GetQR("alice"); ok {
		t.Error("QR survived Remove")
	}
	if got := r.Epoch("alice"); got != e {
		t.Errorf("epoch = %d, want %d", got, e)
	}
}

func TestRegistryRemoveReleasesQRSignal(t *testing.T) {
	r := NewRegistry()
	r.Insert("alice", nil)
	sig := r.QRSignal("alice")

	r.DropOrphanQRSignal("alice")
	select {
	case <-sig:
		t.Fatal("signal of a live record must be kept")
	default:
	}

	r.Remove("alice")
	select {
	case <-sig:
	default:
		t.Fatal("Remove did not wake QR waiters")
	}
	if n := len(r.qrSignals); n != 0 {
		t.Errorf("QR signals = %d after Remove, want 0", n)
	}

	r.QRSignal("bob")
	r.DropOrphanQRSignal("bob")
	if n := len(r.qrSignals); n != 0 {
		t.Errorf("QR signals = %d for a device without record, want 0", n)
	}
}

func TestRegistryListSorted(t *testing.T) {
	r := NewRegistry()
	for _, id := range []string{"carol", "alice", "bob"} {
		r.Insert(id, nil)
	}
	r.SetQR("bob", "code")

	list := r.List()
	if len(list) != 3 {
		t.Fatalf("len = %d, want 3", len(list))
	}
	want := []string{"alice", "bob", "carol"}
	for i, d := range list {
		if d.DeviceID != want[i] {
			t.Errorf("list[%d] = %s, want %s", i, d.DeviceID, want[i])
		}
		if d.Status != StatusConnecting {
			t.Errorf("list[%d].Status = %s", i, d.Status)
		}
	}
	if !list[1].HasQR || list[0].HasQR {
		t.Error("HasQR not reported per device")
	}
}
