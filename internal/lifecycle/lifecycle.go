// Package lifecycle reacts to add-on install and uninstall events.
package lifecycle

import (
	"context"
	"fmt"

	"github.com/iskodirajga/sauce-hipchat-service/internal/hipchat"
	"github.com/iskodirajga/sauce-hipchat-service/internal/logx"
	"github.com/iskodirajga/sauce-hipchat-service/internal/settings"
)

type Manager struct {
	store     settings.Store
	chat      hipchat.Notifier
	addonName string
	log       logx.Logger
}

func New(store settings.Store, chat hipchat.Notifier, addonName string, log logx.Logger) *Manager {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Manager{store: store, chat: chat, addonName: addonName, log: log}
}

// OnInstalled persists the installation record and greets the
// installing room. Install events are unique per tenant, so no
// idempotency handling is needed here.
func (m *Manager) OnInstalled(ctx context.Context, clientKey string, ci hipchat.ClientInfo, roomID int64) error {
	ci.ClientKey = clientKey
	if roomID != 0 && !containsRoom(ci.RoomIDs, roomID) {
		ci.RoomIDs = append(ci.RoomIDs, roomID)
	}
	if err := settings.SetJSON(ctx, m.store, settings.ClientInfoName, ci, clientKey); err != nil {
		return err
	}
	m.log.Info("add-on installed", logx.String("client_key", clientKey), logx.Int64("room_id", roomID))

	welcome := fmt.Sprintf("The %s add-on has been installed in this room", m.addonName)
	if err := m.chat.SendMessage(ctx, ci, roomID, welcome, nil, nil); err != nil {
		// Installation already committed; the missed greeting is not
		// worth failing the platform callback over.
		m.log.Warn("welcome message failed", logx.String("client_key", clientKey), logx.Err(err))
	}
	return nil
}

// OnUninstalled deletes every settings key scoped to the tenant.
// Cascading cleanup, not a transaction: a failed delete is logged and
// the remaining keys are still attempted.
func (m *Manager) OnUninstalled(ctx context.Context, clientKey string) error {
	keys, err := m.store.ScanKeys(ctx, clientKey+":*")
	if err != nil {
		return err
	}
	for _, k := range keys {
		m.log.Info("removing key", logx.String("key", k))
		if err := m.store.Delete(ctx, k); err != nil {
			m.log.Warn("delete failed", logx.String("key", k), logx.Err(err))
		}
	}
	return nil
}

func containsRoom(rooms []int64, id int64) bool {
	for _, r := range rooms {
		if r == id {
			return true
		}
	}
	return false
}
