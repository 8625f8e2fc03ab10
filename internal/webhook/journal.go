package webhook

import (
	"context"

	pkgWhatsApp "github.com/gdbrns/go-whatsapp-gateway/pkg/whatsapp"
)

// Journal forwards every appended status entry to the webhook engine after
// the wrapped journal has recorded it.
type Journal struct {
	pkgWhatsApp.StatusJournal
	engine *Engine
}

func NewJournal(inner pkgWhatsApp.StatusJournal, engine *Engine) *Journal {
	return &Journal{StatusJournal: inner, engine: engine}
}

func (j *Journal) Append(ctx context.Context, entry pkgWhatsApp.StatusEntry) error {
	err := j.StatusJournal.Append(ctx, entry)
	if evt, ok := EventFromEntry(entry); ok {
		j.engine.Dispatch(evt)
	}
	return err
}

func (j *Journal) Backend() string {
	return j.StatusJournal.Backend() + "+webhook"
}

func (j *Journal) Close() error {
	j.engine.Shutdown()
	return j.StatusJournal.Close()
}
