package handler

import (
	"log/slog"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/zulelabs/marketd/internal/domain"
	"github.com/zulelabs/marketd/internal/service"
)

// listingView is the JSON shape of a listing. Wei amounts are rendered as
// base-10 strings so clients never round them through float64.
type listingView struct {
	ID            int64      `json:"id"`
	AssetContract string     `json:"asset_contract"`
	AssetID       string     `json:"asset_id"`
	Standard      string     `json:"standard"`
	Quantity      uint64     `json:"quantity"`
	Seller        string     `json:"seller"`
	Price         string     `json:"price"`
	State         string     `json:"state"`
	Buyer         *string    `json:"buyer,omitempty"`
	FeePaid       *string    `json:"fee_paid,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	SoldAt        *time.Time `json:"sold_at,omitempty"`
	CancelledAt   *time.Time `json:"cancelled_at,omitempty"`
}

func viewOf(l domain.Listing) listingView {
	v := listingView{
		ID:            l.ID,
		AssetContract: l.AssetContract.Hex(),
		AssetID:       l.AssetID.String(),
		Standard:      string(l.Standard),
		Quantity:      l.Quantity,
		Seller:        l.Seller.Hex(),
		Price:         l.Price.String(),
		State:         string(l.State),
		CreatedAt:     l.CreatedAt,
		SoldAt:        l.SoldAt,
		CancelledAt:   l.CancelledAt,
	}
	if l.Buyer != nil {
		s := l.Buyer.Hex()
		v.Buyer = &s
	}
	if l.FeePaid != nil {
		s := l.FeePaid.String()
		v.FeePaid = &s
	}
	return v
}

func viewsOf(ls []domain.Listing) []listingView {
	out := make([]listingView, len(ls))
	for i, l := range ls {
		out[i] = viewOf(l)
	}
	return out
}

// ListingHandler serves the listing and purchase endpoints.
type ListingHandler struct {
	listings    *service.ListingService
	settlements *service.SettlementService
	logger      *slog.Logger
}

// NewListingHandler creates a ListingHandler.
func NewListingHandler(listings *service.ListingService, settlements *service.SettlementService, logger *slog.Logger) *ListingHandler {
	return &ListingHandler{
		listings:    listings,
		settlements: settlements,
		logger:      logger.With(slog.String("handler", "listings")),
	}
}

// List returns active listings, or a seller's listings in any state when the
// seller query parameter is present.
// GET /api/listings?seller=0x..&limit=&offset=
func (h *ListingHandler) List(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	if s := r.URL.Query().Get("seller"); s != "" {
		seller, ok := parseAddress(s)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid seller address")
			return
		}
		ls, err := h.listings.ListBySeller(r.Context(), seller, opts)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"listings": viewsOf(ls)})
		return
	}

	ls, err := h.listings.ListActive(r.Context(), opts)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"listings": viewsOf(ls)})
}

// Get returns a single listing.
// GET /api/listings/{id}
func (h *ListingHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid listing id")
		return
	}
	l, err := h.listings.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(l))
}

type createListingBody struct {
	AssetContract string `json:"asset_contract"`
	AssetID       string `json:"asset_id"`
	Standard      string `json:"standard"`
	Quantity      uint64 `json:"quantity"`
	Seller        string `json:"seller"`
	Price         string `json:"price"`
}

// Create lists an asset for sale.
// POST /api/listings
func (h *ListingHandler) Create(w http.ResponseWriter, r *http.Request) {
	var body createListingBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	contract, ok := parseAddress(body.AssetContract)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid asset_contract")
		return
	}
	seller, ok := parseAddress(body.Seller)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid seller")
		return
	}
	assetID, ok := new(big.Int).SetString(body.AssetID, 10)
	if !ok || assetID.Sign() < 0 {
		writeError(w, http.StatusBadRequest, "invalid asset_id")
		return
	}
	price, ok := parseAmount(body.Price)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid price")
		return
	}

	l, err := h.listings.Create(r.Context(), service.CreateListingRequest{
		AssetContract: contract,
		AssetID:       assetID,
		Standard:      domain.AssetStandard(body.Standard),
		Quantity:      body.Quantity,
		Seller:        seller,
		Price:         price,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, viewOf(l))
}

// Cancel withdraws a listing. The caller query parameter names the seller or
// admin requesting the cancellation.
// DELETE /api/listings/{id}?caller=0x..
func (h *ListingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid listing id")
		return
	}
	caller, ok := parseAddress(r.URL.Query().Get("caller"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid caller address")
		return
	}

	if err := h.listings.Cancel(r.Context(), id, caller); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

type purchaseBody struct {
	Buyer   string `json:"buyer"`
	Payment string `json:"payment"`
}

// Purchase settles a listing for the buyer.
// POST /api/listings/{id}/purchase
func (h *ListingHandler) Purchase(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid listing id")
		return
	}

	var body purchaseBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	buyer, ok := parseAddress(body.Buyer)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid buyer")
		return
	}
	payment, ok := parseAmount(body.Payment)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid payment")
		return
	}

	l, err := h.settlements.Purchase(r.Context(), id, buyer, payment)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(l))
}

// pathID parses the {id} path parameter.
func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
