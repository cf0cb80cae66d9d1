package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/web3-frozen/ultrasound-monitor/internal/monitor"
	"github.com/web3-frozen/ultrasound-monitor/internal/store"
)

const (
	defaultHistoryLimit = 100
	maxHistoryLimit     = 1000
)

type supplyResponse struct {
	Source               string    `json:"source"`
	BlockNumber          uint64    `json:"block_number"`
	BeaconSlot           uint64    `json:"beacon_slot"`
	ExecutionBalancesWei string    `json:"execution_balances_wei"`
	BeaconBalancesWei    string    `json:"beacon_balances_wei"`
	BeaconDepositsWei    string    `json:"beacon_deposits_wei"`
	FetchedAt            time.Time `json:"fetched_at"`
}

// Supply returns the latest exact supply parts. Wei amounts are decimal
// strings so no precision is lost in JSON.
func Supply(engine *monitor.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		snap := engine.Latest()
		if snap == nil {
			writeError(w, http.StatusServiceUnavailable, "no data available yet")
			return
		}
		s := snap.Supply
		writeJSON(w, http.StatusOK, supplyResponse{
			Source:               snap.Source,
			BlockNumber:          s.ExecutionBalancesSum.BlockNumber,
			BeaconSlot:           s.BeaconBalancesSum.Slot,
			ExecutionBalancesWei: s.ExecutionBalancesSum.BalancesSum.String(),
			BeaconBalancesWei:    s.BeaconBalancesSum.BalancesSum.String(),
			BeaconDepositsWei:    s.BeaconDepositsSum.DepositsSum.String(),
			FetchedAt:            snap.FetchedAt,
		})
	}
}

// ImpreciseSupply returns the throttled ETH supply projection.
func ImpreciseSupply(engine *monitor.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		p, ok := engine.Projection()
		if !ok {
			writeError(w, http.StatusServiceUnavailable, "no data available yet")
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

// SupplyHistory lists persisted readings, newest first.
func SupplyHistory(s *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s == nil {
			writeError(w, http.StatusServiceUnavailable, "history storage not configured")
			return
		}

		limit := defaultHistoryLimit
		if v := r.URL.Query().Get("limit"); v != "" {
			l, err := strconv.Atoi(v)
			if err != nil || l <= 0 {
				writeError(w, http.StatusBadRequest, "invalid limit")
				return
			}
			limit = min(l, maxHistoryLimit)
		}

		records, err := s.ListSupplySnapshots(r.Context(), limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to list supply history")
			return
		}
		if records == nil {
			records = []store.SupplyRecord{}
		}
		writeJSON(w, http.StatusOK, records)
	}
}
