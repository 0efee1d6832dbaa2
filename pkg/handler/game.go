package handler

import (
	"net/http"
	"strings"

	"github.com/AccelByte/extend-payplay-rewards/pkg/apperr"
	"github.com/AccelByte/extend-payplay-rewards/pkg/payment"
	"github.com/AccelByte/extend-payplay-rewards/pkg/stats"
)

type joinRequest struct {
	Signature string `json:"signature"`
	Wallet    string `json:"wallet"`
}

type submitScoreRequest struct {
	SessionID string `json:"sessionId"`
	Wallet    string `json:"wallet"`
	Score     *int64 `json:"score"`
}

type submitScoreResponse struct {
	Stats   *stats.PlayerStats `json:"stats"`
	Expired bool               `json:"expired"`
}

// Join verifies a payment proof and opens a paid session.
func (a *API) Join(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	adm, err := a.gate.Admit(r.Context(), payment.Proof{Signature: req.Signature, Wallet: req.Wallet})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, adm)
}

// SubmitScore credits the score to the session's payer and expires the
// session.
func (a *API) SubmitScore(w http.ResponseWriter, r *http.Request) {
	var req submitScoreRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.SessionID) == "" {
		writeError(w, r, apperr.Invalid("sessionId is required"))
		return
	}
	if err := payment.ValidateWallet(req.Wallet); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Score == nil {
		writeError(w, r, apperr.Invalid("score is required"))
		return
	}
	if *req.Score < 0 {
		writeError(w, r, apperr.Invalid("score must not be negative"))
		return
	}

	lifetime, err := a.sessions.Consume(r.Context(), req.SessionID, req.Wallet, *req.Score)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, submitScoreResponse{Stats: lifetime, Expired: true})
}
