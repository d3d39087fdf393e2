package server

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"

	"tunetube/logger"
	"tunetube/session"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WebSocketHandler upgrades the connection and attaches it to the session
// hub. The current state is pushed immediately so new clients render
// without waiting for the next change.
func (h *APIHandler) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", logger.ErrorField(err))
		return
	}

	client := h.hub.NewClient(conn)
	h.hub.Register(client)

	go client.WritePump()
	go client.ReadPump(context.Background(), h.sync.HandleCommand)

	if err := client.SendMessage(session.MsgTypeState, h.sync.State()); err != nil {
		logger.Warn("send initial state failed", logger.ErrorField(err))
	}
}
