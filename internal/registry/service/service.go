// Package service implements the instance registry: the factory that stamps
// out deposit instances from the current template version, keeps the
// append-only instance and version logs, and administers pause, template
// rotation and fee sweep.
package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"rentvault/internal/custody"
	escrowmodels "rentvault/internal/escrow/models"
	escrowservice "rentvault/internal/escrow/service"
	"rentvault/internal/platform/metrics"
	"rentvault/internal/registry/models"
	"rentvault/internal/registry/store"
	"rentvault/internal/schedule"
	id "rentvault/pkg/domain"
	dErrors "rentvault/pkg/domain-errors"
	"rentvault/pkg/platform/events"
	"rentvault/pkg/platform/sentinel"
	"rentvault/pkg/requestcontext"
)

// FeeAccount is the registry's own custody account. Yield surplus accrues
// here; SweepFunds withdraws it.
const FeeAccount = id.Address("registry:fees")

// Handle names the registry itself on the event stream.
const Handle = id.Address("registry:main")

// Service is the clone factory and version-control surface.
type Service struct {
	records   store.RecordStore
	instances escrowservice.InstanceStore
	ledger    custody.Ledger
	sched     *schedule.Registry

	// mu guards administrator, paused, templates and id assignment;
	// creation is serialized so record ids stay dense and monotonic.
	// authority mints schedule grants; fixed at construction even when the
	// administrator is later rotated.
	authority id.Address

	mu            sync.Mutex
	administrator id.Address
	paused        bool
	templates     map[id.VersionID]*escrowmodels.Template
	latestVersion id.VersionID

	logger    *slog.Logger
	publisher events.Publisher
	metrics   *metrics.Metrics
	tracer    trace.Tracer
}

// Option configures the Service.
type Option func(*Service)

// WithLogger sets a structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithPublisher sets the event stream publisher.
func WithPublisher(p events.Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// New constructs the registry around an initial template. On an empty
// version log the template is recorded as version 0; over a log with
// persisted versions (a restart) it carries on as the latest recorded
// version instead of being re-appended. The administrator controls template
// rotation, pause and fee sweep, and becomes the administrator of every
// cloned instance.
func New(ctx context.Context, records store.RecordStore, instances escrowservice.InstanceStore, ledger custody.Ledger, sched *schedule.Registry, administrator id.Address, template *escrowmodels.Template, opts ...Option) (*Service, error) {
	s := &Service{
		records:       records,
		instances:     instances,
		ledger:        ledger,
		sched:         sched,
		authority:     administrator,
		administrator: administrator,
		templates:     make(map[id.VersionID]*escrowmodels.Template),
		tracer:        otel.Tracer("rentvault/registry"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if template == nil || template.Handle.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "A template is required")
	}
	count, err := records.CountTemplateVersions(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "version log count failed")
	}
	if count == 0 {
		if _, err := s.appendTemplateVersion(ctx, template); err != nil {
			return nil, err
		}
	} else {
		s.latestVersion = id.VersionID(count - 1)
		s.templates[s.latestVersion] = template
	}
	return s, nil
}

// CreateParams carries the terms for a new deposit instance.
type CreateParams struct {
	DepositAmount uint64
	// Renter may be the zero address; the first funder is then bound as the
	// renter of record.
	Renter       id.Address
	MaturityTime time.Time
}

// CreateInstance clones the current template version, initializes the clone
// with the caller as property owner, appends its record and delegates the
// schedule-manager capability. Callable by anyone unless the registry is
// paused.
func (s *Service) CreateInstance(ctx context.Context, params CreateParams) (*escrowmodels.Instance, error) {
	ctx, span := s.tracer.Start(ctx, "registry.CreateInstance")
	defer span.End()

	owner := requestcontext.Actor(ctx)
	now := requestcontext.Now(ctx)
	if owner.IsZero() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "A caller identity is required")
	}
	if params.DepositAmount == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "Deposit amount must be positive")
	}
	if !params.MaturityTime.After(now) {
		return nil, dErrors.New(dErrors.CodeValidation, "Maturity must be in the future")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.paused {
		return nil, dErrors.New(dErrors.CodePaused, "Instance creation is paused")
	}

	versionID, template := s.latestTemplateLocked()

	nextID, err := s.records.CountInstances(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "instance id assignment failed")
	}
	instanceID := id.InstanceID(nextID)

	inst := template.Clone(instanceID, versionID)
	if err := inst.Initialize(escrowmodels.InitParams{
		Administrator: s.administrator,
		Owner:         owner,
		Renter:        params.Renter,
		MaturityTime:  params.MaturityTime,
		DepositAmount: params.DepositAmount,
	}); err != nil {
		return nil, err
	}

	grant, err := s.sched.GrantManager(ctx, s.authority, instanceID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "schedule delegation failed")
	}
	inst.AttachGrant(grant)

	if err := s.instances.Save(ctx, inst); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "instance save failed")
	}
	record := models.InstanceRecord{
		InstanceID:     instanceID,
		VersionID:      versionID,
		Creator:        owner,
		InstanceHandle: instanceID.EscrowAccount(),
		CreatedAt:      now,
	}
	if err := s.records.AppendInstance(ctx, record); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "instance record append failed")
	}

	if s.metrics != nil {
		s.metrics.InstancesCreated.Inc()
	}
	s.emit(ctx, events.Event{
		Kind:           events.KindInstanceCreated,
		InstanceID:     instanceID,
		VersionID:      versionID,
		Administrator:  s.administrator,
		RegistryHandle: Handle,
		Owner:          owner,
		Renter:         params.Renter,
		MaturityTime:   params.MaturityTime,
		DepositAmount:  params.DepositAmount,
	})
	return inst, nil
}

// SetNewTemplateVersion appends a new template version; future creations use
// it, prior clones are unaffected. Administrator only.
func (s *Service) SetNewTemplateVersion(ctx context.Context, template *escrowmodels.Template) (models.TemplateVersionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireAdminLocked(ctx); err != nil {
		return models.TemplateVersionRecord{}, err
	}
	return s.appendTemplateVersion(ctx, template)
}

// ListInstances returns all instance records in creation order.
func (s *Service) ListInstances(ctx context.Context) ([]models.InstanceRecord, error) {
	records, err := s.records.ListInstances(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "instance enumeration failed")
	}
	return records, nil
}

// ListTemplateVersions returns the version log in append order.
func (s *Service) ListTemplateVersions(ctx context.Context) ([]models.TemplateVersionRecord, error) {
	records, err := s.records.ListTemplateVersions(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "version enumeration failed")
	}
	return records, nil
}

// SetAdministrator transfers registry administration. Administrator only.
func (s *Service) SetAdministrator(ctx context.Context, newAdmin id.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireAdminLocked(ctx); err != nil {
		return err
	}
	if newAdmin.IsZero() {
		return dErrors.New(dErrors.CodeInvalidInput, "Administrator address cannot be empty")
	}
	s.administrator = newAdmin
	return nil
}

// Pause blocks instance creation. Administrator only.
func (s *Service) Pause(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireAdminLocked(ctx); err != nil {
		return err
	}
	s.paused = true
	return nil
}

// Unpause re-enables instance creation. Administrator only.
func (s *Service) Unpause(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireAdminLocked(ctx); err != nil {
		return err
	}
	s.paused = false
	return nil
}

// SweepFunds withdraws the registry's accrued fee balance to the given
// account. Administrator only; distinct from per-instance custody.
func (s *Service) SweepFunds(ctx context.Context, to id.Address) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireAdminLocked(ctx); err != nil {
		return 0, err
	}
	if to.IsZero() {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "Destination address cannot be empty")
	}
	balance, err := s.ledger.Balance(ctx, FeeAccount)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "fee balance lookup failed")
	}
	if balance == 0 {
		return 0, nil
	}
	if err := s.ledger.Transfer(ctx, FeeAccount, to, balance); err != nil {
		if errors.Is(err, sentinel.ErrInsufficientFunds) {
			return 0, dErrors.New(dErrors.CodeConflict, "Fee balance changed concurrently")
		}
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "fee sweep failed")
	}
	return balance, nil
}

// Administrator reports the current administrator.
func (s *Service) Administrator() id.Address {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.administrator
}

// Paused reports whether instance creation is blocked.
func (s *Service) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

func (s *Service) requireAdminLocked(ctx context.Context) error {
	if requestcontext.Actor(ctx) != s.administrator {
		return dErrors.New(dErrors.CodeUnauthorized, "Caller is not the admin")
	}
	return nil
}

// latestTemplateLocked returns the newest version id and its template.
func (s *Service) latestTemplateLocked() (id.VersionID, *escrowmodels.Template) {
	return s.latestVersion, s.templates[s.latestVersion]
}

// appendTemplateVersion assigns the next version id from the persisted log,
// so ids stay monotonic across restarts.
func (s *Service) appendTemplateVersion(ctx context.Context, template *escrowmodels.Template) (models.TemplateVersionRecord, error) {
	if template == nil || template.Handle.IsZero() {
		return models.TemplateVersionRecord{}, dErrors.New(dErrors.CodeInvalidInput, "A template is required")
	}
	count, err := s.records.CountTemplateVersions(ctx)
	if err != nil {
		return models.TemplateVersionRecord{}, dErrors.Wrap(err, dErrors.CodeInternal, "version log count failed")
	}
	record := models.TemplateVersionRecord{
		VersionID:      id.VersionID(count),
		TemplateHandle: template.Handle,
		CreatedAt:      requestcontext.Now(ctx),
	}
	if err := s.records.AppendTemplateVersion(ctx, record); err != nil {
		return models.TemplateVersionRecord{}, dErrors.Wrap(err, dErrors.CodeInternal, "version record append failed")
	}
	s.templates[record.VersionID] = template
	s.latestVersion = record.VersionID
	return record, nil
}

func (s *Service) emit(ctx context.Context, event events.Event) {
	if s.publisher == nil {
		return
	}
	event.Timestamp = requestcontext.Now(ctx)
	event.RequestID = requestcontext.RequestID(ctx)
	if err := s.publisher.Emit(ctx, event); err != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "event emission failed",
			"kind", event.Kind,
			"instance_id", event.InstanceID,
			"error", err,
		)
	}
}
