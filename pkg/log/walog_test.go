package log

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

func TestWhatsAppLoggerFiltersBelowMinimum(t *testing.T) {
	hook := test.NewLocal(logger)
	defer hook.Reset()
	prev := logger.GetLevel()
	logger.SetLevel(logrus.DebugLevel)
	defer logger.SetLevel(prev)

	l := WhatsApp("Client", "WARN")
	l.Debugf("noise %d", 1)
	l.Infof("noise %d", 2)
	l.Warnf("keep %d", 3)
	l.Errorf("keep %d", 4)

	entries := hook.AllEntries()
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0].Message != "keep 3" || entries[0].Level != logrus.WarnLevel {
		t.Errorf("unexpected first entry: %q %v", entries[0].Message, entries[0].Level)
	}
}

func TestWhatsAppLoggerSubModule(t *testing.T) {
	hook := test.NewLocal(logger)
	defer hook.Reset()

	WhatsApp("Client", "ERROR").Sub("Socket").Errorf("boom")

	entry := hook.LastEntry()
	if entry == nil {
		t.Fatal("expected an entry")
	}
	if got := entry.Data["module"]; got != "Client/Socket" {
		t.Errorf("module = %v, want Client/Socket", got)
	}
}

func TestDeviceEntryCarriesID(t *testing.T) {
	if got := Device("alice").Data["device_id"]; got != "alice" {
		t.Errorf("device_id = %v, want alice", got)
	}
}
