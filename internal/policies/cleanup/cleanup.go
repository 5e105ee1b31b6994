// Package cleanup deletes the command messages vcwarden sent once they have
// served their purpose.
package cleanup

import (
	"context"
	"log/slog"
	"time"

	"github.com/nextlevelbuilder/vcwarden/internal/bus"
	"github.com/nextlevelbuilder/vcwarden/internal/modules"
)

const Name = "cleanup"

const deleteTimeout = 10 * time.Second

type Module struct {
	modules.Base
	app *modules.Context
}

func New() *Module { return &Module{} }

func (m *Module) Name() string { return Name }

func (m *Module) Init(_ context.Context, app *modules.Context) error {
	m.app = app
	return nil
}

func taskKey(messageID string) string { return "cleanup:" + messageID }

func (m *Module) OnEvent(p bus.Payload) {
	ev, ok := p.(bus.ActionExecuted)
	if !ok || m.app == nil || ev.ReplyID == "" {
		return
	}
	secs := m.app.Config.Current().Cleanup.DeleteAfterSeconds
	if secs <= 0 {
		return
	}
	channelID, messageID := ev.ChannelID, ev.ReplyID
	m.app.Tasks.After(taskKey(messageID), time.Duration(secs)*time.Second, func() {
		ctx, cancel := context.WithTimeout(context.Background(), deleteTimeout)
		defer cancel()
		if err := m.app.Host.DeleteMessage(ctx, channelID, messageID); err != nil {
			slog.Warn("cleanup: delete failed", "channel_id", channelID, "message_id", messageID, "error", err)
			return
		}
		slog.Debug("cleanup: deleted", "channel_id", channelID, "message_id", messageID)
	})
}
