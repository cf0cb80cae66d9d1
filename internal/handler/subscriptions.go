package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/web3-frozen/ultrasound-monitor/internal/store"
)

func ListSubscriptions(s *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tgChatID, ok := chatIDParam(w, r)
		if !ok {
			return
		}

		subs, err := s.ListSubscriptions(r.Context(), tgChatID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to list subscriptions")
			return
		}
		if subs == nil {
			subs = []store.Subscription{}
		}
		writeJSON(w, http.StatusOK, subs)
	}
}

// Subscribe registers a linked chat for an event. report_hour is the UTC hour
// the supply report is delivered; it defaults to 0.
func Subscribe(s *store.Store) http.HandlerFunc {
	type request struct {
		TgChatID   int64 `json:"tg_chat_id"`
		EventID    int   `json:"event_id"`
		ReportHour *int  `json:"report_hour"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		if req.TgChatID == 0 || req.EventID == 0 {
			writeError(w, http.StatusBadRequest, "tg_chat_id and event_id required")
			return
		}

		hour := 0
		if req.ReportHour != nil {
			hour = *req.ReportHour
		}
		if hour < 0 || hour > 23 {
			writeError(w, http.StatusBadRequest, "report_hour must be between 0 and 23")
			return
		}

		sub, err := s.Subscribe(r.Context(), req.TgChatID, req.EventID, hour)
		if err != nil {
			status, msg := subscribeError(err)
			writeError(w, status, msg)
			return
		}
		writeJSON(w, http.StatusCreated, sub)
	}
}

// pgForeignKeyViolation is the SQLSTATE for a missing referenced row.
const pgForeignKeyViolation = "23503"

func subscribeError(err error) (int, string) {
	if errors.Is(err, pgx.ErrNoRows) {
		return http.StatusForbidden, "telegram account not linked"
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation {
		return http.StatusNotFound, "unknown event"
	}
	return http.StatusInternalServerError, "failed to subscribe"
}

func Unsubscribe(s *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid subscription id")
			return
		}

		if err := s.Unsubscribe(r.Context(), id); err != nil {
			writeError(w, http.StatusInternalServerError, "failed to unsubscribe")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
