// Package handler wires the per-instance escrow operations to HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"rentvault/internal/escrow/models"
	id "rentvault/pkg/domain"
	dErrors "rentvault/pkg/domain-errors"
	"rentvault/pkg/platform/httputil"
	"rentvault/pkg/requestcontext"
)

// Service defines the escrow operations the handler needs.
type Service interface {
	Get(ctx context.Context, instanceID id.InstanceID) (*models.Instance, error)
	TimeToWithdraw(ctx context.Context, instanceID id.InstanceID) time.Time
	Fund(ctx context.Context, instanceID id.InstanceID, paidAmount uint64) error
	TriggerMaturityWithdrawal(ctx context.Context, instanceID id.InstanceID) error
	ProposeReturnAmount(ctx context.Context, instanceID id.InstanceID, amount uint64) error
	RejectProposedAmount(ctx context.Context, instanceID id.InstanceID) error
	AcceptProposedAmount(ctx context.Context, instanceID id.InstanceID) error
	ClaimRenterChunk(ctx context.Context, instanceID id.InstanceID) error
	ClaimOwnerChunk(ctx context.Context, instanceID id.InstanceID) error
}

// Handler wires instance endpoints to the escrow service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs an escrow handler with its dependencies.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts instance endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Route("/instances/{instanceID}", func(r chi.Router) {
		r.Get("/", h.HandleGet)
		r.Get("/time-to-withdraw", h.HandleTimeToWithdraw)
		r.Post("/fund", h.HandleFund)
		r.Post("/withdraw", h.HandleWithdraw)
		r.Put("/proposal", h.HandlePropose)
		r.Post("/proposal/accept", h.HandleAccept)
		r.Post("/proposal/reject", h.HandleReject)
		r.Post("/claims/renter", h.HandleClaimRenter)
		r.Post("/claims/owner", h.HandleClaimOwner)
	})
}

// FundRequest is the funding payload. Amount must equal the deposit exactly.
type FundRequest struct {
	Amount uint64 `json:"amount"`
}

// ProposeRequest is the owner's return-amount proposal payload.
type ProposeRequest struct {
	Amount uint64 `json:"amount"`
}

// InstanceResponse is the read model of a deposit instance.
type InstanceResponse struct {
	ID                   id.InstanceID `json:"id"`
	TemplateVersion      id.VersionID  `json:"template_version"`
	Status               models.Status `json:"status"`
	Owner                string        `json:"owner"`
	Renter               string        `json:"renter,omitempty"`
	Administrator        string        `json:"administrator"`
	DepositAmount        uint64        `json:"deposit_amount"`
	MaturityTime         time.Time     `json:"maturity_time"`
	Funded               bool          `json:"funded"`
	ProposedReturnAmount uint64        `json:"proposed_return_amount"`
	Accepted             bool          `json:"accepted"`
	RenterChunkClaimed   bool          `json:"renter_chunk_claimed"`
	OwnerChunkClaimed    bool          `json:"owner_chunk_claimed"`
}

// FromInstance builds the read model. The caller must not hold the instance
// lock already.
func FromInstance(inst *models.Instance) InstanceResponse {
	inst.Lock()
	defer inst.Unlock()
	return InstanceResponse{
		ID:                   inst.ID,
		TemplateVersion:      inst.TemplateVersion,
		Status:               inst.Status(),
		Owner:                inst.Owner.String(),
		Renter:               inst.Renter.String(),
		Administrator:        inst.Administrator.String(),
		DepositAmount:        inst.DepositAmount,
		MaturityTime:         inst.MaturityTime,
		Funded:               inst.Funded,
		ProposedReturnAmount: inst.ProposedReturnAmount,
		Accepted:             inst.Accepted,
		RenterChunkClaimed:   inst.RenterChunkClaimed,
		OwnerChunkClaimed:    inst.OwnerChunkClaimed,
	}
}

// HandleGet handles GET /instances/{instanceID}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	instanceID, ok := h.instanceID(w, r)
	if !ok {
		return
	}
	inst, err := h.service.Get(r.Context(), instanceID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromInstance(inst))
}

// HandleTimeToWithdraw handles GET /instances/{instanceID}/time-to-withdraw.
// Not-invested instances report a null maturity.
func (h *Handler) HandleTimeToWithdraw(w http.ResponseWriter, r *http.Request) {
	instanceID, ok := h.instanceID(w, r)
	if !ok {
		return
	}
	maturity := h.service.TimeToWithdraw(r.Context(), instanceID)
	resp := struct {
		TimeToWithdraw *time.Time `json:"time_to_withdraw"`
	}{}
	if !maturity.IsZero() {
		resp.TimeToWithdraw = &maturity
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

// HandleFund handles POST /instances/{instanceID}/fund.
func (h *Handler) HandleFund(w http.ResponseWriter, r *http.Request) {
	instanceID, ok := h.instanceID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.Decode[FundRequest](w, r, h.logger)
	if !ok {
		return
	}
	h.run(w, r, instanceID, "deposit funded", func(ctx context.Context) error {
		return h.service.Fund(ctx, instanceID, req.Amount)
	})
}

// HandleWithdraw handles POST /instances/{instanceID}/withdraw.
func (h *Handler) HandleWithdraw(w http.ResponseWriter, r *http.Request) {
	instanceID, ok := h.instanceID(w, r)
	if !ok {
		return
	}
	h.run(w, r, instanceID, "maturity withdrawal triggered", func(ctx context.Context) error {
		return h.service.TriggerMaturityWithdrawal(ctx, instanceID)
	})
}

// HandlePropose handles PUT /instances/{instanceID}/proposal.
func (h *Handler) HandlePropose(w http.ResponseWriter, r *http.Request) {
	instanceID, ok := h.instanceID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.Decode[ProposeRequest](w, r, h.logger)
	if !ok {
		return
	}
	h.run(w, r, instanceID, "return amount proposed", func(ctx context.Context) error {
		return h.service.ProposeReturnAmount(ctx, instanceID, req.Amount)
	})
}

// HandleAccept handles POST /instances/{instanceID}/proposal/accept.
func (h *Handler) HandleAccept(w http.ResponseWriter, r *http.Request) {
	instanceID, ok := h.instanceID(w, r)
	if !ok {
		return
	}
	h.run(w, r, instanceID, "return amount accepted", func(ctx context.Context) error {
		return h.service.AcceptProposedAmount(ctx, instanceID)
	})
}

// HandleReject handles POST /instances/{instanceID}/proposal/reject.
func (h *Handler) HandleReject(w http.ResponseWriter, r *http.Request) {
	instanceID, ok := h.instanceID(w, r)
	if !ok {
		return
	}
	h.run(w, r, instanceID, "return amount rejected", func(ctx context.Context) error {
		return h.service.RejectProposedAmount(ctx, instanceID)
	})
}

// HandleClaimRenter handles POST /instances/{instanceID}/claims/renter.
func (h *Handler) HandleClaimRenter(w http.ResponseWriter, r *http.Request) {
	instanceID, ok := h.instanceID(w, r)
	if !ok {
		return
	}
	h.run(w, r, instanceID, "renter chunk claimed", func(ctx context.Context) error {
		return h.service.ClaimRenterChunk(ctx, instanceID)
	})
}

// HandleClaimOwner handles POST /instances/{instanceID}/claims/owner.
func (h *Handler) HandleClaimOwner(w http.ResponseWriter, r *http.Request) {
	instanceID, ok := h.instanceID(w, r)
	if !ok {
		return
	}
	h.run(w, r, instanceID, "owner chunk claimed", func(ctx context.Context) error {
		return h.service.ClaimOwnerChunk(ctx, instanceID)
	})
}

// run executes a mutating operation and answers with the refreshed instance
// read model.
func (h *Handler) run(w http.ResponseWriter, r *http.Request, instanceID id.InstanceID, logMsg string, op func(ctx context.Context) error) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	if err := op(ctx); err != nil {
		h.logger.ErrorContext(ctx, logMsg+" rejected",
			"request_id", requestID,
			"instance_id", instanceID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, logMsg,
		"request_id", requestID,
		"instance_id", instanceID,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	inst, err := h.service.Get(ctx, instanceID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromInstance(inst))
}

func (h *Handler) instanceID(w http.ResponseWriter, r *http.Request) (id.InstanceID, bool) {
	instanceID, err := id.ParseInstanceID(chi.URLParam(r, "instanceID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid instance id"))
		return 0, false
	}
	return instanceID, true
}
