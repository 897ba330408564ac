package server

import (
	"net/http"

	"github.com/vango-dev/domcore/pkg/render"
)

// handleRender upgrades to a websocket and attaches a render bridge to the
// manager. A newer connection replaces the previous renderer, which is
// closed. The handler returns when the connection ends.
func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	m, err := s.manager(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied.
		s.logger.Warn("websocket upgrade failed", "manager_id", m.ID(), "error", err)
		return
	}

	bridge := render.NewBridge(conn, m, render.BridgeConfig{
		ReadTimeout:  s.config.BridgeReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		Logger:       s.logger.With("manager_id", m.ID()),
	})

	s.track(bridge)
	defer s.untrack(bridge)

	// Attach on the runner so the snapshot is ordered before any later
	// commit.
	err = m.PostTask(func() {
		if prev, ok := m.GetRenderManager(); ok {
			if old, ok := prev.(*render.Bridge); ok && old != bridge {
				go old.Close()
			}
		}
		m.SetRenderManager(bridge.Handle())
		if err := bridge.SendSnapshot(m.Capture()); err != nil {
			s.logger.Warn("initial snapshot failed", "manager_id", m.ID(), "error", err)
		}
	})
	if err != nil {
		s.logger.Warn("render attach rejected", "manager_id", m.ID(), "error", err)
		bridge.Close()
		return
	}

	s.logger.Info("renderer connected", "manager_id", m.ID(), "remote", r.RemoteAddr)

	bridge.ReadLoop()
	s.logger.Info("renderer disconnected", "manager_id", m.ID(), "frames_sent", bridge.FramesSent())
}
