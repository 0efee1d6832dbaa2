package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/AccelByte/extend-payplay-rewards/pkg/apperr"
	"github.com/AccelByte/extend-payplay-rewards/pkg/stats"
	"github.com/sirupsen/logrus"
)

type payoutStatusResponse struct {
	*stats.PayoutStatus
	Running bool `json:"running"`
}

// PayoutStatus serves GET /payouts/status.
func (a *API) PayoutStatus(w http.ResponseWriter, r *http.Request) {
	st, err := a.payouts.Status(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, payoutStatusResponse{PayoutStatus: st, Running: a.payouts.Running()})
}

// RunPayout serves POST /admin/run-payout. The cycle keeps running if the
// caller disconnects.
func (a *API) RunPayout(w http.ResponseWriter, r *http.Request) {
	res, err := a.payouts.TriggerNow(context.WithoutCancel(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// PayoutEvents streams payout notices as server-sent events until the client
// goes away or the broadcaster closes.
func (a *API) PayoutEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, r, apperr.New(apperr.CodeUnknown, "streaming unsupported"))
		return
	}

	sub := a.events.Subscribe()
	defer a.events.Unsubscribe(sub)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	ticker := time.NewTicker(a.cfg.Heartbeat)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.Write([]byte(": ping\n\n")); err != nil {
				return
			}
			flusher.Flush()
		case ev, ok := <-sub.C:
			if !ok {
				return
			}
			data, err := json.Marshal(ev.Data)
			if err != nil {
				logrus.Warnf("failed to encode %s event: %v", ev.Type, err)
				continue
			}
			if _, err := w.Write(formatSSE(ev.Type, data)); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
