package api

import (
	"net/http"

	"github.com/julienschmidt/httprouter"
)

// health handles GET /health (spec §6).
func (s *Server) health(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	dbStatus := "ok"
	if err := s.store.Ping(r.Context()); err != nil {
		dbStatus = "unreachable"
	}

	blocks := int64(0)
	if tip := s.store.Tip(); tip != nil {
		blocks = tip.BlockNumber
	}

	peers := 0
	if s.peers != nil {
		peers = s.peers.PeerCount()
	}

	status := "ok"
	httpStatus := http.StatusOK
	if dbStatus != "ok" {
		status = "degraded"
		httpStatus = http.StatusInternalServerError
	}

	writeJSON(w, httpStatus, map[string]interface{}{
		"status":    status,
		"database":  dbStatus,
		"blocks":    blocks,
		"p2p_peers": peers,
	})
}
