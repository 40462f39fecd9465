// Package service orchestrates the per-deposit escrow lifecycle: funding,
// yield investment, maturity withdrawal, return-amount negotiation and final
// distribution. Preconditions live on the model; this layer sequences custody
// movement, venue calls and schedule registration so that any failure leaves
// the instance unchanged.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"rentvault/internal/custody"
	"rentvault/internal/escrow/models"
	"rentvault/internal/platform/metrics"
	"rentvault/internal/schedule"
	"rentvault/internal/yield"
	id "rentvault/pkg/domain"
	dErrors "rentvault/pkg/domain-errors"
	"rentvault/pkg/platform/events"
	"rentvault/pkg/platform/sentinel"
	"rentvault/pkg/requestcontext"
)

// InstanceStore resolves live instances by id.
type InstanceStore interface {
	Save(ctx context.Context, inst *models.Instance) error
	FindByID(ctx context.Context, instanceID id.InstanceID) (*models.Instance, error)
}

// Service executes escrow operations against live instances.
type Service struct {
	instances InstanceStore
	ledger    custody.Ledger
	router    yield.Router
	sched     *schedule.Registry

	// feeAccount receives yield recovered beyond the principal.
	feeAccount id.Address

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

// New constructs the escrow service. feeAccount is the registry account that
// collects yield surplus at divestment.
func New(instances InstanceStore, ledger custody.Ledger, router yield.Router, sched *schedule.Registry, feeAccount id.Address, opts ...Option) *Service {
	s := &Service{
		instances:  instances,
		ledger:     ledger,
		router:     router,
		sched:      sched,
		feeAccount: feeAccount,
		tracer:     otel.Tracer("rentvault/escrow"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the live instance for the read surface.
func (s *Service) Get(ctx context.Context, instanceID id.InstanceID) (*models.Instance, error) {
	inst, err := s.instances.FindByID(ctx, instanceID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "unknown instance")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "instance lookup failed")
	}
	return inst, nil
}

// TimeToWithdraw reports the instance's schedule entry, or the zero time when
// it is not currently invested.
func (s *Service) TimeToWithdraw(ctx context.Context, instanceID id.InstanceID) time.Time {
	return s.sched.TimeToWithdraw(ctx, instanceID)
}

// Fund stores the renter's deposit and routes it into the yield position.
// The request itself is the inbound payment: paidAmount is minted onto the
// instance's escrow account, and on any later failure in the sequence it is
// refunded to the caller's account. The caller must be the designated
// renter; when none was designated, the first funder becomes the renter of
// record. paidAmount must equal the deposit exactly.
func (s *Service) Fund(ctx context.Context, instanceID id.InstanceID, paidAmount uint64) error {
	ctx, span := s.tracer.Start(ctx, "escrow.Fund")
	defer span.End()

	inst, err := s.Get(ctx, instanceID)
	if err != nil {
		return err
	}
	caller := requestcontext.Actor(ctx)

	inst.Lock()
	defer inst.Unlock()

	if err := inst.CanFund(caller, paidAmount); err != nil {
		return err
	}

	// The fund request is the inbound payment; credit it straight to the
	// escrow account.
	account := inst.EscrowAccount()
	if err := s.ledger.Mint(ctx, account, paidAmount); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "deposit intake failed")
	}

	position, err := s.router.Invest(ctx, account, paidAmount)
	if err != nil {
		// Refund the payment so a venue outage leaves no partial transition.
		if rbErr := s.ledger.Transfer(ctx, account, caller, paidAmount); rbErr != nil {
			s.logError(ctx, "deposit refund failed", instanceID, rbErr)
		}
		return dErrors.Wrap(err, dErrors.CodeExternalVenue, "The yield venue rejected the investment")
	}

	if err := s.sched.Register(ctx, inst.Grant(), inst.MaturityTime); err != nil {
		if _, dvErr := s.router.Divest(ctx, account, position); dvErr != nil {
			s.logError(ctx, "investment rollback failed", instanceID, dvErr)
		} else if rbErr := s.ledger.Transfer(ctx, account, caller, paidAmount); rbErr != nil {
			s.logError(ctx, "deposit refund failed", instanceID, rbErr)
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "schedule registration failed")
	}

	inst.ApplyFund(caller, position)

	if s.metrics != nil {
		s.metrics.DepositsFunded.Inc()
		s.metrics.ScheduleSize.Set(float64(s.sched.Len()))
	}
	s.emit(ctx, events.Event{
		Kind:          events.KindDepositFunded,
		InstanceID:    inst.ID,
		Owner:         inst.Owner,
		Renter:        inst.Renter,
		DepositAmount: inst.DepositAmount,
		Amount:        paidAmount,
	})
	return nil
}

// TriggerMaturityWithdrawal divests a matured instance from the yield
// position and removes it from the schedule. Callable by anyone; the
// automation keeper is the intended caller.
func (s *Service) TriggerMaturityWithdrawal(ctx context.Context, instanceID id.InstanceID) error {
	ctx, span := s.tracer.Start(ctx, "escrow.TriggerMaturityWithdrawal")
	defer span.End()

	inst, err := s.Get(ctx, instanceID)
	if err != nil {
		return err
	}
	now := requestcontext.Now(ctx)

	inst.Lock()
	defer inst.Unlock()

	if err := inst.CanTriggerWithdrawal(now); err != nil {
		return err
	}

	account := inst.EscrowAccount()
	recovered, err := s.router.Divest(ctx, account, inst.Position)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeExternalVenue, "The yield venue rejected the divestment")
	}

	// Yield beyond the principal is the protocol's fee.
	if recovered > inst.DepositAmount {
		surplus := recovered - inst.DepositAmount
		if err := s.ledger.Transfer(ctx, account, s.feeAccount, surplus); err != nil {
			s.logError(ctx, "yield surplus sweep failed", instanceID, err)
		}
	}

	inst.ApplyWithdrawal()
	// Idempotent: a manual removal may already have raced us out of the
	// schedule.
	if err := s.sched.Deregister(ctx, inst.Grant()); err != nil {
		s.logError(ctx, "schedule deregistration failed", instanceID, err)
	}

	if s.metrics != nil {
		s.metrics.WithdrawalsTriggered.Inc()
		s.metrics.ScheduleSize.Set(float64(s.sched.Len()))
	}
	s.emit(ctx, events.Event{
		Kind:       events.KindMaturityWithdrawalTriggered,
		InstanceID: inst.ID,
		Owner:      inst.Owner,
		Renter:     inst.Renter,
		Amount:     recovered,
	})
	return nil
}

// ProposeReturnAmount records the owner's proposal for the renter's share.
// Repeat calls supersede an unaccepted proposal.
func (s *Service) ProposeReturnAmount(ctx context.Context, instanceID id.InstanceID, amount uint64) error {
	ctx, span := s.tracer.Start(ctx, "escrow.ProposeReturnAmount")
	defer span.End()

	inst, err := s.Get(ctx, instanceID)
	if err != nil {
		return err
	}
	caller := requestcontext.Actor(ctx)
	now := requestcontext.Now(ctx)

	inst.Lock()
	defer inst.Unlock()

	if err := inst.CanPropose(caller, amount, now); err != nil {
		return err
	}
	previous := inst.ApplyProposal(amount)

	s.emit(ctx, events.Event{
		Kind:           events.KindReturnAmountProposed,
		InstanceID:     inst.ID,
		Owner:          inst.Owner,
		Renter:         inst.Renter,
		Amount:         amount,
		PreviousAmount: previous,
	})
	return nil
}

// RejectProposedAmount records the renter's rejection. The proposal value is
// kept; the owner may propose again.
func (s *Service) RejectProposedAmount(ctx context.Context, instanceID id.InstanceID) error {
	ctx, span := s.tracer.Start(ctx, "escrow.RejectProposedAmount")
	defer span.End()

	inst, err := s.Get(ctx, instanceID)
	if err != nil {
		return err
	}
	caller := requestcontext.Actor(ctx)

	inst.Lock()
	defer inst.Unlock()

	if err := inst.CanRespond(caller); err != nil {
		return err
	}

	s.emit(ctx, events.Event{
		Kind:       events.KindReturnAmountRejected,
		InstanceID: inst.ID,
		Owner:      inst.Owner,
		Renter:     inst.Renter,
		Amount:     inst.ProposedReturnAmount,
	})
	return nil
}

// AcceptProposedAmount records the renter's acceptance. Irreversible; the
// proposal can no longer change.
func (s *Service) AcceptProposedAmount(ctx context.Context, instanceID id.InstanceID) error {
	ctx, span := s.tracer.Start(ctx, "escrow.AcceptProposedAmount")
	defer span.End()

	inst, err := s.Get(ctx, instanceID)
	if err != nil {
		return err
	}
	caller := requestcontext.Actor(ctx)

	inst.Lock()
	defer inst.Unlock()

	if err := inst.CanAccept(caller); err != nil {
		return err
	}
	inst.ApplyAcceptance()

	s.emit(ctx, events.Event{
		Kind:       events.KindReturnAmountAccepted,
		InstanceID: inst.ID,
		Owner:      inst.Owner,
		Renter:     inst.Renter,
		Amount:     inst.ProposedReturnAmount,
	})
	return nil
}

// ClaimRenterChunk pays the accepted return amount out to the renter.
func (s *Service) ClaimRenterChunk(ctx context.Context, instanceID id.InstanceID) error {
	return s.claim(ctx, instanceID, models.PartyRenter)
}

// ClaimOwnerChunk pays the complement of the accepted amount out to the
// owner.
func (s *Service) ClaimOwnerChunk(ctx context.Context, instanceID id.InstanceID) error {
	return s.claim(ctx, instanceID, models.PartyOwner)
}

func (s *Service) claim(ctx context.Context, instanceID id.InstanceID, party models.Party) error {
	ctx, span := s.tracer.Start(ctx, "escrow.Claim")
	defer span.End()

	inst, err := s.Get(ctx, instanceID)
	if err != nil {
		return err
	}
	caller := requestcontext.Actor(ctx)

	inst.Lock()
	defer inst.Unlock()

	if err := inst.CanClaim(caller, party); err != nil {
		return err
	}

	amount := inst.ChunkAmount(party)
	if amount > 0 {
		if err := s.ledger.Transfer(ctx, inst.EscrowAccount(), caller, amount); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "chunk payout failed")
		}
	}
	settled := inst.ApplyClaim(party)

	if s.metrics != nil {
		s.metrics.ChunksClaimed.WithLabelValues(string(party)).Inc()
		if settled {
			s.metrics.InstancesSettled.Inc()
		}
	}
	kind := events.KindRenterChunkClaimed
	if party == models.PartyOwner {
		kind = events.KindOwnerChunkClaimed
	}
	s.emit(ctx, events.Event{
		Kind:       kind,
		InstanceID: inst.ID,
		Owner:      inst.Owner,
		Renter:     inst.Renter,
		Amount:     amount,
	})
	return nil
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

func (s *Service) logError(ctx context.Context, msg string, instanceID id.InstanceID, err error) {
	if s.logger == nil {
		return
	}
	s.logger.ErrorContext(ctx, msg, "instance_id", instanceID, "error", err)
}
