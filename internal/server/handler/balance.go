package handler

import (
	"log/slog"
	"net/http"

	"github.com/zulelabs/marketd/internal/domain"
)

// BalanceHandler serves the deposited-balance endpoints. Deposits here model
// funds entering marketplace custody; a production gateway would credit them
// from confirmed on-chain transfers.
type BalanceHandler struct {
	ledger domain.BalanceLedger
	logger *slog.Logger
}

// NewBalanceHandler creates a BalanceHandler.
func NewBalanceHandler(ledger domain.BalanceLedger, logger *slog.Logger) *BalanceHandler {
	return &BalanceHandler{
		ledger: ledger,
		logger: logger.With(slog.String("handler", "balances")),
	}
}

// Get returns an account's deposited balance.
// GET /api/balances/{address}
func (h *BalanceHandler) Get(w http.ResponseWriter, r *http.Request) {
	account, ok := parseAddress(r.PathValue("address"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid address")
		return
	}

	b, err := h.ledger.Balance(r.Context(), account)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"address": account.Hex(),
		"balance": b.String(),
	})
}

type amountBody struct {
	Amount string `json:"amount"`
}

// Deposit credits an account.
// POST /api/balances/{address}/deposit
func (h *BalanceHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	account, ok := parseAddress(r.PathValue("address"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid address")
		return
	}
	var body amountBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	amount, ok := parseAmount(body.Amount)
	if !ok || amount.Sign() == 0 {
		writeError(w, http.StatusBadRequest, "invalid amount")
		return
	}

	if err := h.ledger.Deposit(r.Context(), account, amount); err != nil {
		writeDomainError(w, err)
		return
	}
	h.logger.InfoContext(r.Context(), "deposit",
		slog.String("address", account.Hex()),
		slog.String("amount", amount.String()),
	)
	writeJSON(w, http.StatusOK, map[string]string{"status": "deposited"})
}

// Withdraw debits an account.
// POST /api/balances/{address}/withdraw
func (h *BalanceHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	account, ok := parseAddress(r.PathValue("address"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid address")
		return
	}
	var body amountBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	amount, ok := parseAmount(body.Amount)
	if !ok || amount.Sign() == 0 {
		writeError(w, http.StatusBadRequest, "invalid amount")
		return
	}

	if err := h.ledger.Withdraw(r.Context(), account, amount); err != nil {
		writeDomainError(w, err)
		return
	}
	h.logger.InfoContext(r.Context(), "withdrawal",
		slog.String("address", account.Hex()),
		slog.String("amount", amount.String()),
	)
	writeJSON(w, http.StatusOK, map[string]string{"status": "withdrawn"})
}
