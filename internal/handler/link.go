package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/web3-frozen/ultrasound-monitor/internal/store"
)

// LinkStatus checks whether a Telegram chat ID is linked.
func LinkStatus(s *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		chatID, ok := chatIDParam(w, r)
		if !ok {
			return
		}

		user, err := s.GetTelegramUser(r.Context(), chatID)
		if err != nil {
			writeJSON(w, http.StatusOK, map[string]bool{"linked": false})
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"linked": user.Linked})
	}
}

func LinkTelegram(s *store.Store) http.HandlerFunc {
	type request struct {
		Code string `json:"code"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.Code == "" {
			writeError(w, http.StatusBadRequest, "code required")
			return
		}

		user, err := s.LinkByCode(r.Context(), req.Code)
		if err != nil {
			writeError(w, http.StatusNotFound, "invalid or expired link code")
			return
		}
		writeJSON(w, http.StatusOK, user)
	}
}

func UnlinkTelegram(s *store.Store) http.HandlerFunc {
	type request struct {
		TgChatID int64 `json:"tg_chat_id"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.TgChatID == 0 {
			writeError(w, http.StatusBadRequest, "tg_chat_id required")
			return
		}

		if err := s.UnlinkTelegram(r.Context(), req.TgChatID); err != nil {
			writeError(w, http.StatusInternalServerError, "failed to unlink")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// chatIDParam reads tg_chat_id from the query string, writing a 400 when it
// is missing or malformed.
func chatIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := r.URL.Query().Get("tg_chat_id")
	if raw == "" {
		writeError(w, http.StatusBadRequest, "tg_chat_id required")
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid tg_chat_id")
		return 0, false
	}
	return id, true
}
