package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/zulelabs/marketd/internal/service"
)

// AdminHandler serves the administrative endpoints.
type AdminHandler struct {
	admin  *service.AdminService
	logger *slog.Logger
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(admin *service.AdminService, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		admin:  admin,
		logger: logger.With(slog.String("handler", "admin")),
	}
}

type adminStateView struct {
	Admin         string    `json:"admin"`
	ProposedAdmin *string   `json:"proposed_admin,omitempty"`
	Paused        bool      `json:"paused"`
	InitializedAt time.Time `json:"initialized_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// State returns the administrative record.
// GET /api/admin
func (h *AdminHandler) State(w http.ResponseWriter, r *http.Request) {
	st, err := h.admin.State(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	view := adminStateView{
		Admin:         st.Admin.Hex(),
		Paused:        st.Paused,
		InitializedAt: st.InitializedAt,
		UpdatedAt:     st.UpdatedAt,
	}
	if st.ProposedAdmin != nil {
		s := st.ProposedAdmin.Hex()
		view.ProposedAdmin = &s
	}
	writeJSON(w, http.StatusOK, view)
}

type initBody struct {
	Admin      string `json:"admin"`
	FeeRateBps uint32 `json:"fee_rate_bps"`
}

// Initialize performs the one-time marketplace setup.
// POST /api/admin/init
func (h *AdminHandler) Initialize(w http.ResponseWriter, r *http.Request) {
	var body initBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	admin, ok := parseAddress(body.Admin)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid admin address")
		return
	}

	if err := h.admin.Initialize(r.Context(), admin, body.FeeRateBps); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "initialized"})
}

type transferBody struct {
	Caller   string `json:"caller"`
	Proposed string `json:"proposed"`
}

// Transfer proposes a new admin.
// POST /api/admin/transfer
func (h *AdminHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	var body transferBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	caller, ok := parseAddress(body.Caller)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid caller")
		return
	}
	proposed, ok := parseAddress(body.Proposed)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid proposed address")
		return
	}

	if err := h.admin.TransferAdmin(r.Context(), caller, proposed); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "proposed"})
}

type acceptBody struct {
	Caller string `json:"caller"`
}

// Accept completes a pending admin transfer.
// POST /api/admin/accept
func (h *AdminHandler) Accept(w http.ResponseWriter, r *http.Request) {
	var body acceptBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	caller, ok := parseAddress(body.Caller)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid caller")
		return
	}

	if err := h.admin.AcceptAdmin(r.Context(), caller); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "accepted"})
}

type pauseBody struct {
	Caller string `json:"caller"`
	Paused bool   `json:"paused"`
}

// Pause flips the pause switch.
// POST /api/admin/pause
func (h *AdminHandler) Pause(w http.ResponseWriter, r *http.Request) {
	var body pauseBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	caller, ok := parseAddress(body.Caller)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid caller")
		return
	}

	if err := h.admin.SetPaused(r.Context(), caller, body.Paused); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"paused": body.Paused})
}
