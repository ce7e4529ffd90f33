package api

import (
	"errors"
	"net/http"

	"github.com/f2re/sale-photosession-bot/internal/generator"
	"github.com/f2re/sale-photosession-bot/internal/repos/users"
	"github.com/f2re/sale-photosession-bot/internal/services/generation"
)

type registerRequest struct {
	ID           uint64 `json:"id"`
	Username     string `json:"username"`
	ReferralCode string `json:"referralCode"`
}

type userResponse struct {
	ID            uint64  `json:"id"`
	Username      string  `json:"username"`
	Credits       int64   `json:"credits"`
	ReferralCode  string  `json:"referralCode"`
	ReferralCount int64   `json:"referralCount"`
	ReferredByID  *uint64 `json:"referredById,omitempty"`
	Referred      bool    `json:"referred"`
}

// RegisterHandler handles POST /users
func (h *HandlerProvider) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var req registerRequest

	err := decodeJSON(w, r, &req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if req.ID == 0 {
		writeError(w, http.StatusBadRequest, "id required")
		return
	}

	reg, err := h.svc.Accounts.Register(r.Context(), req.ID, req.Username, req.ReferralCode)
	if err != nil {
		writeInternal(w, r, err)
		return
	}

	status := http.StatusOK
	if reg.Created {
		status = http.StatusCreated
	}

	writeJSON(w, status, userResponse{
		ID:            reg.User.ID,
		Username:      reg.User.Username,
		Credits:       reg.User.Credits,
		ReferralCode:  reg.User.ReferralCode,
		ReferralCount: reg.User.ReferralCount,
		ReferredByID:  reg.User.ReferredByID,
		Referred:      reg.Referred,
	})
}

// GetBalanceHandler handles GET /users/{userId}/balance
func (h *HandlerProvider) GetBalanceHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := parseUserIDFromPath(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid userId in path")
		return
	}

	credits, err := h.svc.Balances.Balance(r.Context(), userID)
	if err != nil {
		if errors.Is(err, users.ErrUserNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}

		writeInternal(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"userId":  userID,
		"credits": credits,
	})
}

// GetReferralsHandler handles GET /users/{userId}/referrals
func (h *HandlerProvider) GetReferralsHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := parseUserIDFromPath(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid userId in path")
		return
	}

	stats, err := h.svc.Referrals.Stats(r.Context(), userID)
	if err != nil {
		if errors.Is(err, users.ErrUserNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}

		writeInternal(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"referralCode":    stats.ReferralCode,
		"referralCount":   stats.ReferralCount,
		"startCredits":    stats.StartCredits,
		"purchaseCredits": stats.PurchaseCredits,
		"totalCredits":    stats.TotalCredits,
	})
}

type generationRequest struct {
	ImageURL    string   `json:"imageUrl"`
	Styles      []string `json:"styles"`
	AspectRatio string   `json:"aspectRatio"`
}

// GenerateHandler handles POST /users/{userId}/generations
func (h *HandlerProvider) GenerateHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := parseUserIDFromPath(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid userId in path")
		return
	}

	var req generationRequest

	err = decodeJSON(w, r, &req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if req.ImageURL == "" {
		writeError(w, http.StatusBadRequest, "imageUrl required")
		return
	}

	res, err := h.svc.Generations.Generate(r.Context(), userID, generator.Request{
		ImageURL:    req.ImageURL,
		Styles:      req.Styles,
		AspectRatio: req.AspectRatio,
	})
	if err != nil {
		switch {
		case errors.Is(err, generation.ErrBusy):
			writeError(w, http.StatusConflict, "generation already in progress")
		case errors.Is(err, generation.ErrInsufficientCredits):
			writeError(w, http.StatusPaymentRequired, "insufficient credits")
		case errors.Is(err, users.ErrUserNotFound):
			writeError(w, http.StatusNotFound, "user not found")
		case errors.Is(err, generator.ErrBadRequest):
			writeError(w, http.StatusUnprocessableEntity, "generation request rejected")
		case errors.Is(err, generator.ErrFailed), errors.Is(err, generator.ErrUnavailable):
			writeError(w, http.StatusBadGateway, "generation failed, credit returned")
		default:
			writeInternal(w, r, err)
		}

		return
	}

	writeJSON(w, http.StatusOK, res)
}
