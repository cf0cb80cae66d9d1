package handler

import (
	"net/http"

	"github.com/web3-frozen/ultrasound-monitor/internal/store"
)

func ListEvents(s *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		events, err := s.ListEvents(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to list events")
			return
		}
		if events == nil {
			events = []store.Event{}
		}
		writeJSON(w, http.StatusOK, events)
	}
}
