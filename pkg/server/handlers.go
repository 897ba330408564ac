package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/vango-dev/domcore/pkg/dom"
)

// manager resolves the {id} path parameter.
func (s *Server) manager(r *http.Request) (*dom.Manager, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidManagerID, raw)
	}
	m, ok := s.directory.Find(int32(id))
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrManagerNotFound, id)
	}
	return m, nil
}

type managerInfo struct {
	ID     int32  `json:"id"`
	RootID uint32 `json:"root_id"`
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	ids := s.directory.IDs()
	if ids == nil {
		ids = []int32{}
	}
	writeJSON(w, http.StatusOK, map[string][]int32{"managers": ids})
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	if s.factory == nil {
		s.writeError(w, r, ErrNoFactory)
		return
	}
	m, err := s.factory()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.logger.Info("manager created", "manager_id", m.ID(), "root_id", m.GetRootID())
	writeJSON(w, http.StatusCreated, managerInfo{ID: m.ID(), RootID: m.GetRootID()})
}

func (s *Server) handleClose(w http.ResponseWriter, r *http.Request) {
	m, err := s.manager(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	m.Close()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	m, err := s.manager(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	snap, err := m.Snapshot(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleHTML(w http.ResponseWriter, r *http.Request) {
	m, err := s.manager(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	snap, err := m.Snapshot(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var buf bytes.Buffer
	if err := s.html.RenderPage(&buf, snap); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if s.exporter == nil {
		s.writeError(w, r, ErrNoExporter)
		return
	}
	m, err := s.manager(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	key, err := s.exporter.Export(r.Context(), m)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"key": key})
}

type sizeRequest struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// handleSize applies a root size change coming from the native side: the
// size is set, a layout pass requested and the batch committed. It responds
// once the commit has run.
func (s *Server) handleSize(w http.ResponseWriter, r *http.Request) {
	m, err := s.manager(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxBodyBytes)
	var req sizeRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		var maxBytes *http.MaxBytesError
		if !errors.As(err, &maxBytes) {
			err = fmt.Errorf("%w: %v", ErrInvalidBody, err)
		}
		s.writeError(w, r, err)
		return
	}

	if err := m.SetRootSize(req.Width, req.Height); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := m.DoLayout(); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := m.EndBatch(); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := m.Sync(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}

	width, height := m.GetRootSize()
	writeJSON(w, http.StatusOK, sizeRequest{Width: width, Height: height})
}
