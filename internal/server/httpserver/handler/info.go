package handler

import "net/http"

// CodeUnavailable is returned when no statistics source is configured.
const CodeUnavailable = "EKV-SYS-5030"

func (h *Handler) handleInfo(w http.ResponseWriter, r *http.Request) {
	if h.info == nil {
		h.writeError(w, r, http.StatusServiceUnavailable, CodeUnavailable, "statistics unavailable")
		return
	}
	h.writeJSON(w, r, http.StatusOK, h.info.Info())
}
