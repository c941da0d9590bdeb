package api

import (
	"net/http"
	"strconv"

	"github.com/nerrad567/sadp-fleet/internal/audit"
	"github.com/nerrad567/sadp-fleet/internal/device"
)

// handleListAudit returns one page of the activation and reconfiguration
// trail, newest first.
// Query: action, mac, success=true|false, limit, offset.
func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := audit.Filter{Action: q.Get("action")}

	switch filter.Action {
	case "", audit.ActionActivate, audit.ActionReconfigure:
	default:
		writeBadRequest(w, "action must be activate or reconfigure")
		return
	}

	if v := q.Get("mac"); v != "" {
		mac, err := device.CanonicalMAC(v)
		if err != nil {
			writeBadRequest(w, "invalid hardware address")
			return
		}
		filter.MAC = mac
	}
	if v := q.Get("success"); v != "" {
		ok, err := strconv.ParseBool(v)
		if err != nil {
			writeBadRequest(w, "success must be true or false")
			return
		}
		filter.Success = &ok
	}
	for name, dst := range map[string]*int{"limit": &filter.Limit, "offset": &filter.Offset} {
		v := q.Get(name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeBadRequest(w, name+" must be a non-negative integer")
			return
		}
		*dst = n
	}

	res, err := s.audit.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list audit entries", "error", err)
		writeInternalError(w, "failed to list audit entries")
		return
	}
	writeJSON(w, http.StatusOK, res)
}
