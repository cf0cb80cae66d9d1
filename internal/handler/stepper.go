package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/web3-frozen/ultrasound-monitor/internal/stepper"
)

// StepperProgress computes the percentage of the track covered at a scroll
// position.
func StepperProgress() http.HandlerFunc {
	type request struct {
		Points         []stepper.Point `json:"points"`
		ScrollY        float64         `json:"scroll_y"`
		ViewportHeight float64         `json:"viewport_height"`
		PageLoaded     bool            `json:"page_loaded"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		pos := stepper.TrackPosition(req.ScrollY, req.ViewportHeight)
		pct, err := stepper.ProgressPercent(req.Points, pos, req.PageLoaded)
		if err != nil {
			writeStepperError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]float64{"percent": pct, "track_position": pos})
	}
}

// StepperScrollTarget maps a dragged icon offset to a document scroll target.
func StepperScrollTarget() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in stepper.ScrollInput
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		target, err := stepper.ComputeScrollTarget(in)
		if err != nil {
			writeStepperError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, target)
	}
}

// StepperVisibility decides whether the sticky header should be shown.
func StepperVisibility() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in stepper.VisibilityInput
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		writeJSON(w, http.StatusOK, stepper.ComputeVisibility(in))
	}
}

func writeStepperError(w http.ResponseWriter, err error) {
	var invalid *stepper.InvalidInputError
	if errors.As(err, &invalid) {
		writeError(w, http.StatusBadRequest, invalid.Error())
		return
	}
	writeError(w, http.StatusInternalServerError, "stepper computation failed")
}
