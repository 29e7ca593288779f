package transport

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"cardtable/server/game"
	"cardtable/server/table"
)

// serveTable upgrades the request, seats the caller and pumps commands until
// the socket closes. A closed socket is a disconnect, not a leave.
func (h *Hub) serveTable(reg *table.Registry, kind game.Kind, tableID string, w http.ResponseWriter, r *http.Request) {
	user, name := identity(r)
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade", zap.Error(err))
		return
	}
	c := h.register(ws)
	go h.writePump(c)

	log := h.log.With(zap.String("conn", c.id), zap.String("table", tableID), zap.String("user", user))
	if _, err := reg.Join(r.Context(), kind, tableID, user, name, c.id); err != nil {
		log.Info("join refused", zap.Error(err))
		h.Deliver(c.id, game.Event{Kind: game.EventError, Payload: game.ErrorPayload{Reason: err.Error()}})
		h.unregister(c)
		return
	}

	defer func() {
		reg.Disconnect(c.id)
		h.unregister(c)
	}()
	c.ws.SetReadLimit(4096)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			log.Debug("websocket closed", zap.Error(err))
			return
		}
		cmd, err := decode(data)
		if err != nil {
			h.Deliver(c.id, game.Event{Kind: game.EventError, Payload: game.ErrorPayload{Reason: "invalid json"}})
			continue
		}
		if cmd.Type == game.CmdLeaveTable {
			reg.Leave(tableID, c.id)
			return
		}
		if err := reg.Act(tableID, c.id, cmd); err != nil && !game.IsUserError(err) {
			log.Warn("command failed", zap.String("cmd", string(cmd.Type)), zap.Error(err))
		}
	}
}
