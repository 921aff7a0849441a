package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/zulelabs/marketd/internal/domain"
	"github.com/zulelabs/marketd/internal/service"
)

// FeeHandler serves the fee policy endpoints.
type FeeHandler struct {
	fees   *service.FeeService
	logger *slog.Logger
}

// NewFeeHandler creates a FeeHandler.
func NewFeeHandler(fees *service.FeeService, logger *slog.Logger) *FeeHandler {
	return &FeeHandler{
		fees:   fees,
		logger: logger.With(slog.String("handler", "fees")),
	}
}

type feeRecipientView struct {
	Address  string `json:"address"`
	ShareBps uint32 `json:"share_bps"`
}

type feePolicyView struct {
	RateBps    uint32             `json:"rate_bps"`
	Recipients []feeRecipientView `json:"recipients"`
	UpdatedAt  time.Time          `json:"updated_at"`
}

// Get returns the current fee policy.
// GET /api/fees
func (h *FeeHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, err := h.fees.CurrentFee(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	view := feePolicyView{RateBps: p.RateBps, UpdatedAt: p.UpdatedAt}
	for _, rec := range p.Recipients {
		view.Recipients = append(view.Recipients, feeRecipientView{
			Address:  rec.Address.Hex(),
			ShareBps: rec.ShareBps,
		})
	}
	writeJSON(w, http.StatusOK, view)
}

type setFeeBody struct {
	Caller     string             `json:"caller"`
	RateBps    uint32             `json:"rate_bps"`
	Recipients []feeRecipientView `json:"recipients"`
}

// Set replaces the fee policy. Admin only.
// PUT /api/fees
func (h *FeeHandler) Set(w http.ResponseWriter, r *http.Request) {
	var body setFeeBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	caller, ok := parseAddress(body.Caller)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid caller")
		return
	}

	recipients := make([]domain.FeeRecipient, 0, len(body.Recipients))
	for _, rec := range body.Recipients {
		addr, ok := parseAddress(rec.Address)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid recipient address "+rec.Address)
			return
		}
		recipients = append(recipients, domain.FeeRecipient{Address: addr, ShareBps: rec.ShareBps})
	}

	if err := h.fees.SetFee(r.Context(), caller, body.RateBps, recipients); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}
