package api

import (
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/mayowaagbi/CampusHealthSystem-sub000/internal/auth"
	"github.com/mayowaagbi/CampusHealthSystem-sub000/internal/realtime"
)

// serveWS upgrades the request and joins the connection to the registry under
// the caller's subject. The handler goroutine owns the connection until it closes.
func (h *Handler) serveWS(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the handshake error.
		h.logger.WithError(err).Debug("websocket upgrade failed")
		return
	}

	ch := realtime.NewWSChannel(conn, h.wsOptions)
	log := h.logger.WithFields(logrus.Fields{"recipient_id": claims.Subject, "channel_id": ch.ID()})
	if err := h.registry.Join(claims.Subject, ch); err != nil {
		log.WithError(err).Warn("registry rejected channel")
		_ = ch.Close()
		return
	}

	log.Debug("live channel opened")
	ch.Run()
	log.Debug("live channel closed")
}
