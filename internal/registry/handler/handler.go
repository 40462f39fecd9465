// Package handler wires the registry's factory and administration endpoints
// to HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	escrowhandler "rentvault/internal/escrow/handler"
	escrowmodels "rentvault/internal/escrow/models"
	"rentvault/internal/registry/models"
	"rentvault/internal/registry/service"
	id "rentvault/pkg/domain"
	dErrors "rentvault/pkg/domain-errors"
	"rentvault/pkg/platform/httputil"
	"rentvault/pkg/requestcontext"
)

// Service defines the registry operations the handler needs.
type Service interface {
	CreateInstance(ctx context.Context, params service.CreateParams) (*escrowmodels.Instance, error)
	ListInstances(ctx context.Context) ([]models.InstanceRecord, error)
	ListTemplateVersions(ctx context.Context) ([]models.TemplateVersionRecord, error)
	SetNewTemplateVersion(ctx context.Context, template *escrowmodels.Template) (models.TemplateVersionRecord, error)
	SetAdministrator(ctx context.Context, newAdmin id.Address) error
	Pause(ctx context.Context) error
	Unpause(ctx context.Context) error
	SweepFunds(ctx context.Context, to id.Address) (uint64, error)
}

// Handler wires registry endpoints to the registry service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs a registry handler with its dependencies.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts registry endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/instances", h.HandleCreate)
	r.Get("/instances", h.HandleList)
	r.Get("/template-versions", h.HandleListVersions)

	r.Route("/admin", func(r chi.Router) {
		r.Post("/template-versions", h.HandleSetTemplateVersion)
		r.Post("/pause", h.HandlePause)
		r.Post("/unpause", h.HandleUnpause)
		r.Post("/administrator", h.HandleSetAdministrator)
		r.Post("/sweep", h.HandleSweep)
	})
}

// CreateRequest carries the terms for a new deposit instance. Renter is
// optional; when absent the first funder is bound as renter.
type CreateRequest struct {
	DepositAmount uint64    `json:"deposit_amount"`
	Renter        string    `json:"renter,omitempty"`
	MaturityTime  time.Time `json:"maturity_time"`
}

// TemplateVersionRequest names the template to append as the next version.
type TemplateVersionRequest struct {
	TemplateHandle string `json:"template_handle"`
}

// AdministratorRequest names the new registry administrator.
type AdministratorRequest struct {
	Administrator string `json:"administrator"`
}

// SweepRequest names the destination for the accrued fee balance.
type SweepRequest struct {
	To string `json:"to"`
}

// InstanceRecordResponse is the read model of one creation-log entry.
type InstanceRecordResponse struct {
	InstanceID      id.InstanceID `json:"instance_id"`
	TemplateVersion id.VersionID  `json:"template_version"`
	Creator         string        `json:"creator"`
	InstanceHandle  string        `json:"instance_handle"`
	CreatedAt       time.Time     `json:"created_at"`
}

// TemplateVersionResponse is the read model of one version-log entry.
type TemplateVersionResponse struct {
	VersionID      id.VersionID `json:"version_id"`
	TemplateHandle string       `json:"template_handle"`
	CreatedAt      time.Time    `json:"created_at"`
}

// HandleCreate handles POST /instances.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	req, ok := httputil.Decode[CreateRequest](w, r, h.logger)
	if !ok {
		return
	}

	params := service.CreateParams{
		DepositAmount: req.DepositAmount,
		MaturityTime:  req.MaturityTime,
	}
	if req.Renter != "" {
		renter, err := id.ParseAddress(req.Renter)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		params.Renter = renter
	}

	inst, err := h.service.CreateInstance(ctx, params)
	if err != nil {
		h.logger.ErrorContext(ctx, "instance creation rejected",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "instance created",
		"request_id", requestID,
		"instance_id", inst.ID,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusCreated, escrowhandler.FromInstance(inst))
}

// HandleList handles GET /instances.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	records, err := h.service.ListInstances(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	out := make([]InstanceRecordResponse, len(records))
	for i, rec := range records {
		out[i] = InstanceRecordResponse{
			InstanceID:      rec.InstanceID,
			TemplateVersion: rec.VersionID,
			Creator:         rec.Creator.String(),
			InstanceHandle:  rec.InstanceHandle.String(),
			CreatedAt:       rec.CreatedAt,
		}
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

// HandleListVersions handles GET /template-versions.
func (h *Handler) HandleListVersions(w http.ResponseWriter, r *http.Request) {
	records, err := h.service.ListTemplateVersions(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	out := make([]TemplateVersionResponse, len(records))
	for i, rec := range records {
		out[i] = TemplateVersionResponse{
			VersionID:      rec.VersionID,
			TemplateHandle: rec.TemplateHandle.String(),
			CreatedAt:      rec.CreatedAt,
		}
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

// HandleSetTemplateVersion handles POST /admin/template-versions.
func (h *Handler) HandleSetTemplateVersion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.Decode[TemplateVersionRequest](w, r, h.logger)
	if !ok {
		return
	}
	handle, err := id.ParseAddress(req.TemplateHandle)
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "A template handle is required"))
		return
	}

	record, err := h.service.SetNewTemplateVersion(ctx, escrowmodels.NewTemplate(handle))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.logger.InfoContext(ctx, "template version appended",
		"request_id", requestcontext.RequestID(ctx),
		"version_id", record.VersionID,
	)
	httputil.WriteJSON(w, http.StatusCreated, TemplateVersionResponse{
		VersionID:      record.VersionID,
		TemplateHandle: record.TemplateHandle.String(),
		CreatedAt:      record.CreatedAt,
	})
}

// HandlePause handles POST /admin/pause.
func (h *Handler) HandlePause(w http.ResponseWriter, r *http.Request) {
	h.runAdmin(w, r, "registry paused", h.service.Pause)
}

// HandleUnpause handles POST /admin/unpause.
func (h *Handler) HandleUnpause(w http.ResponseWriter, r *http.Request) {
	h.runAdmin(w, r, "registry unpaused", h.service.Unpause)
}

// HandleSetAdministrator handles POST /admin/administrator.
func (h *Handler) HandleSetAdministrator(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.Decode[AdministratorRequest](w, r, h.logger)
	if !ok {
		return
	}
	newAdmin, err := id.ParseAddress(req.Administrator)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.service.SetAdministrator(ctx, newAdmin); err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.logger.InfoContext(ctx, "administrator rotated",
		"request_id", requestcontext.RequestID(ctx),
		"administrator", newAdmin,
	)
	w.WriteHeader(http.StatusNoContent)
}

// HandleSweep handles POST /admin/sweep.
func (h *Handler) HandleSweep(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.Decode[SweepRequest](w, r, h.logger)
	if !ok {
		return
	}
	to, err := id.ParseAddress(req.To)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	swept, err := h.service.SweepFunds(ctx, to)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.logger.InfoContext(ctx, "fee balance swept",
		"request_id", requestcontext.RequestID(ctx),
		"to", to,
		"amount", swept,
	)
	httputil.WriteJSON(w, http.StatusOK, map[string]uint64{"swept": swept})
}

func (h *Handler) runAdmin(w http.ResponseWriter, r *http.Request, logMsg string, op func(ctx context.Context) error) {
	ctx := r.Context()
	if err := op(ctx); err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.logger.InfoContext(ctx, logMsg,
		"request_id", requestcontext.RequestID(ctx),
	)
	w.WriteHeader(http.StatusNoContent)
}
