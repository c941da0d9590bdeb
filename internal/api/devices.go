package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/sadp-fleet/internal/device"
)

// handleListDevices returns the registry in enumeration order.
// Query: activated=true|false filters by activation state.
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	records := s.registry.List()

	if v := r.URL.Query().Get("activated"); v != "" {
		want, err := strconv.ParseBool(v)
		if err != nil {
			writeBadRequest(w, "activated must be true or false")
			return
		}
		records = s.registry.Filter(func(rec device.Record) bool { return rec.Activated == want })
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"devices": records,
		"count":   len(records),
	})
}

// handleDeviceStats returns registry statistics.
func (s *Server) handleDeviceStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.GetStats())
}

// handleGetDevice returns one record by hardware address in any common
// notation (colons, dashes, upper or lower case).
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	mac := chi.URLParam(r, "mac")

	rec, err := s.registry.Get(mac)
	switch {
	case errors.Is(err, device.ErrInvalidHardwareAddress):
		writeBadRequest(w, "invalid hardware address")
	case errors.Is(err, device.ErrDeviceNotFound):
		writeNotFound(w, "device not found")
	case err != nil:
		writeInternalError(w, "failed to look up device")
	default:
		writeJSON(w, http.StatusOK, rec)
	}
}
