package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"rentvault/internal/custody"
	"rentvault/internal/escrow/models"
	escrowstore "rentvault/internal/escrow/store"
	"rentvault/internal/schedule"
	"rentvault/internal/yield"
	id "rentvault/pkg/domain"
	dErrors "rentvault/pkg/domain-errors"
	"rentvault/pkg/platform/events"
	"rentvault/pkg/platform/events/publisher"
	"rentvault/pkg/requestcontext"
)

// =============================================================================
// Escrow Service Test Suite
// =============================================================================
// Justification for unit tests: the escrow lifecycle couples custody movement,
// venue calls and schedule membership. Exercising failure injection and clock
// control precisely is impractical through the HTTP surface.

const (
	admin   = id.Address("admin")
	owner   = id.Address("owner-1")
	renter  = id.Address("renter-1")
	feeAcct = id.Address("registry:fees")

	depositAmount = uint64(100)
	yieldBps      = uint64(200)
)

type ServiceSuite struct {
	suite.Suite
	ledger    *custody.InMemoryLedger
	instances *escrowstore.InMemory
	sched     *schedule.Registry
	venue     *yield.SimulatedVenue
	publisher *publisher.Memory
	service   *Service

	maturity time.Time
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ledger = custody.NewInMemoryLedger()
	s.instances = escrowstore.NewInMemory()
	s.sched = schedule.New(admin)
	s.venue = yield.NewSimulatedVenue(s.ledger, yieldBps)
	s.publisher = publisher.NewMemory(nil)
	s.service = New(s.instances, s.ledger, s.venue, s.sched, feeAcct,
		WithPublisher(s.publisher),
	)
	s.maturity = time.Now().Add(7 * 24 * time.Hour)
}

// newInstance clones, initializes and stores an instance the way the registry
// does, bound to the designated renter unless zero.
func (s *ServiceSuite) newInstance(instanceID id.InstanceID, designatedRenter id.Address) *models.Instance {
	ctx := context.Background()
	inst := models.NewTemplate("template:test").Clone(instanceID, 0)
	s.Require().NoError(inst.Initialize(models.InitParams{
		Administrator: admin,
		Owner:         owner,
		Renter:        designatedRenter,
		MaturityTime:  s.maturity,
		DepositAmount: depositAmount,
	}))
	grant, err := s.sched.GrantManager(ctx, admin, instanceID)
	s.Require().NoError(err)
	inst.AttachGrant(grant)
	s.Require().NoError(s.instances.Save(ctx, inst))
	return inst
}

func (s *ServiceSuite) as(actor id.Address) context.Context {
	return requestcontext.WithActor(context.Background(), actor)
}

func (s *ServiceSuite) asAt(actor id.Address, now time.Time) context.Context {
	return requestcontext.WithTime(s.as(actor), now)
}

func (s *ServiceSuite) balance(account id.Address) uint64 {
	balance, err := s.ledger.Balance(context.Background(), account)
	s.Require().NoError(err)
	return balance
}

// =============================================================================
// Full Lifecycle
// =============================================================================

func (s *ServiceSuite) TestFullLifecycle() {
	inst := s.newInstance(1, renter)
	afterMaturity := s.maturity.Add(time.Second)

	s.Run("fund moves the deposit into the yield position", func() {
		s.Require().NoError(s.service.Fund(s.as(renter), 1, depositAmount))
		s.Equal(uint64(0), s.balance(renter))
		s.Equal(uint64(0), s.balance(inst.EscrowAccount()))
		s.Equal(models.StatusInvested, inst.Status())
		s.Equal(s.maturity, s.service.TimeToWithdraw(context.Background(), 1))
	})

	s.Run("withdrawal at maturity recovers principal and sweeps surplus", func() {
		s.Require().NoError(s.service.TriggerMaturityWithdrawal(s.asAt(admin, afterMaturity), 1))
		s.Equal(depositAmount, s.balance(inst.EscrowAccount()))
		s.Equal(uint64(2), s.balance(feeAcct))
		s.True(s.service.TimeToWithdraw(context.Background(), 1).IsZero())
	})

	s.Run("propose and accept fifty-fifty", func() {
		s.Require().NoError(s.service.ProposeReturnAmount(s.asAt(owner, afterMaturity), 1, 50))
		s.Require().NoError(s.service.AcceptProposedAmount(s.as(renter), 1))
		s.Equal(models.StatusNegotiating, inst.Status())
	})

	s.Run("both chunks pay out and settle the instance", func() {
		s.Require().NoError(s.service.ClaimRenterChunk(s.as(renter), 1))
		s.Equal(uint64(50), s.balance(renter))

		s.Require().NoError(s.service.ClaimOwnerChunk(s.as(owner), 1))
		s.Equal(uint64(50), s.balance(owner))
		s.Equal(uint64(0), s.balance(inst.EscrowAccount()))
		s.Equal(models.StatusSettled, inst.Status())
	})

	s.Run("settled instance rejects every further mutating call", func() {
		err := s.service.ProposeReturnAmount(s.asAt(owner, afterMaturity), 1, 10)
		s.True(dErrors.HasCode(err, dErrors.CodeTerminated))

		err = s.service.Fund(s.as(renter), 1, depositAmount)
		s.True(dErrors.HasCode(err, dErrors.CodeTerminated))

		err = s.service.ClaimOwnerChunk(s.as(owner), 1)
		s.True(dErrors.HasCode(err, dErrors.CodeTerminated))
	})

	s.Run("lifecycle emitted the full event sequence", func() {
		kinds := make([]events.Kind, 0)
		for _, e := range s.publisher.Events() {
			kinds = append(kinds, e.Kind)
		}
		s.Equal([]events.Kind{
			events.KindDepositFunded,
			events.KindMaturityWithdrawalTriggered,
			events.KindReturnAmountProposed,
			events.KindReturnAmountAccepted,
			events.KindRenterChunkClaimed,
			events.KindOwnerChunkClaimed,
		}, kinds)
	})
}

// =============================================================================
// Fund Tests
// =============================================================================

func (s *ServiceSuite) TestFund() {
	s.Run("second fund fails as already stored", func() {
		s.newInstance(1, renter)
		s.Require().NoError(s.service.Fund(s.as(renter), 1, depositAmount))

		err := s.service.Fund(s.as(renter), 1, depositAmount)
		s.True(dErrors.HasCode(err, dErrors.CodeAlreadyDone))
		s.Contains(err.Error(), "The deposit is already stored")
	})

	s.Run("wrong caller is rejected", func() {
		s.newInstance(2, renter)
		stranger := id.Address("stranger")

		err := s.service.Fund(s.as(stranger), 2, depositAmount)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
		s.Contains(err.Error(), "The caller is not the property renter")
	})

	s.Run("wrong amount is rejected", func() {
		s.newInstance(3, renter)
		err := s.service.Fund(s.as(renter), 3, depositAmount-1)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
		s.Contains(err.Error(), "Incorrect amount sent")
	})

	s.Run("payment is credited on intake, no prior ledger balance needed", func() {
		inst := s.newInstance(4, renter)
		s.Require().NoError(s.service.Fund(s.as(renter), 4, depositAmount))

		s.True(inst.Funded)
		s.Equal(uint64(0), s.balance(renter))
	})

	s.Run("open instance binds the first funder as renter", func() {
		inst := s.newInstance(5, id.ZeroAddress)
		s.Require().NoError(s.service.Fund(s.as(id.Address("walk-in")), 5, depositAmount))
		s.Equal(id.Address("walk-in"), inst.Renter)
	})

	s.Run("unknown instance reports not found", func() {
		err := s.service.Fund(s.as(renter), 99, depositAmount)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *ServiceSuite) TestFund_VenueOutage() {
	inst := s.newInstance(1, renter)
	s.venue.FailNextInvest()

	err := s.service.Fund(s.as(renter), 1, depositAmount)
	s.True(dErrors.HasCode(err, dErrors.CodeExternalVenue))

	// The failed attempt refunded the payment to the renter.
	s.Equal(depositAmount, s.balance(renter))
	s.Equal(uint64(0), s.balance(inst.EscrowAccount()))
	s.False(inst.Funded)
	s.Equal(0, s.sched.Len())

	// The instance is still fundable afterwards; the refund stays with the
	// renter since the retry is a fresh payment.
	s.Require().NoError(s.service.Fund(s.as(renter), 1, depositAmount))
	s.True(inst.Funded)
	s.Equal(depositAmount, s.balance(renter))
}

// =============================================================================
// Withdrawal Tests
// =============================================================================

func (s *ServiceSuite) TestTriggerMaturityWithdrawal() {
	s.newInstance(1, renter)
	s.Require().NoError(s.service.Fund(s.as(renter), 1, depositAmount))

	s.Run("before maturity fails", func() {
		err := s.service.TriggerMaturityWithdrawal(s.asAt(admin, s.maturity.Add(-time.Hour)), 1)
		s.True(dErrors.HasCode(err, dErrors.CodeNotYetMatured))
		s.Equal(s.maturity, s.service.TimeToWithdraw(context.Background(), 1))
	})

	s.Run("venue outage leaves the position and schedule intact", func() {
		s.venue.FailNextDivest()
		err := s.service.TriggerMaturityWithdrawal(s.asAt(admin, s.maturity.Add(time.Second)), 1)
		s.True(dErrors.HasCode(err, dErrors.CodeExternalVenue))
		s.Equal(1, s.sched.Len())
	})

	s.Run("at maturity succeeds and clears the schedule entry", func() {
		s.Require().NoError(s.service.TriggerMaturityWithdrawal(s.asAt(admin, s.maturity.Add(time.Second)), 1))
		s.True(s.service.TimeToWithdraw(context.Background(), 1).IsZero())
		s.Equal(0, s.sched.Len())
	})

	s.Run("repeat trigger fails without an active position", func() {
		err := s.service.TriggerMaturityWithdrawal(s.asAt(admin, s.maturity.Add(time.Minute)), 1)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	})
}

// =============================================================================
// Negotiation Tests
// =============================================================================

func (s *ServiceSuite) matured(instanceID id.InstanceID) time.Time {
	s.Require().NoError(s.service.Fund(s.as(renter), instanceID, depositAmount))
	after := s.maturity.Add(time.Second)
	s.Require().NoError(s.service.TriggerMaturityWithdrawal(s.asAt(admin, after), instanceID))
	return after
}

func (s *ServiceSuite) TestProposeReturnAmount() {
	s.newInstance(1, renter)
	after := s.matured(1)

	s.Run("non-owner is rejected", func() {
		err := s.service.ProposeReturnAmount(s.asAt(renter, after), 1, 50)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
		s.Contains(err.Error(), "The caller is not the property owner")
	})

	s.Run("zero amount is rejected", func() {
		err := s.service.ProposeReturnAmount(s.asAt(owner, after), 1, 0)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("amount above the deposit is rejected", func() {
		err := s.service.ProposeReturnAmount(s.asAt(owner, after), 1, depositAmount+1)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("proposal records the amount and the superseded one", func() {
		s.Require().NoError(s.service.ProposeReturnAmount(s.asAt(owner, after), 1, 30))
		s.Require().NoError(s.service.ProposeReturnAmount(s.asAt(owner, after), 1, 70))

		proposed := s.publisher.ByKind(events.KindReturnAmountProposed)
		s.Require().Len(proposed, 2)
		s.Equal(uint64(30), proposed[0].Amount)
		s.Equal(uint64(0), proposed[0].PreviousAmount)
		s.Equal(uint64(70), proposed[1].Amount)
		s.Equal(uint64(30), proposed[1].PreviousAmount)
	})

	s.Run("after acceptance no further proposal is possible", func() {
		s.Require().NoError(s.service.AcceptProposedAmount(s.as(renter), 1))
		err := s.service.ProposeReturnAmount(s.asAt(owner, after), 1, 10)
		s.True(dErrors.HasCode(err, dErrors.CodeAlreadyDone))
	})
}

func (s *ServiceSuite) TestRejectThenRepropose() {
	inst := s.newInstance(1, renter)
	after := s.matured(1)

	// Owner proposes 30, renter rejects, owner proposes 70, renter accepts.
	s.Require().NoError(s.service.ProposeReturnAmount(s.asAt(owner, after), 1, 30))
	s.Require().NoError(s.service.RejectProposedAmount(s.as(renter), 1))
	s.Equal(uint64(30), inst.ProposedReturnAmount)

	s.Require().NoError(s.service.ProposeReturnAmount(s.asAt(owner, after), 1, 70))
	s.Require().NoError(s.service.AcceptProposedAmount(s.as(renter), 1))

	// The final split follows the accepted 70, not the rejected 30.
	s.Require().NoError(s.service.ClaimRenterChunk(s.as(renter), 1))
	s.Require().NoError(s.service.ClaimOwnerChunk(s.as(owner), 1))
	s.Equal(uint64(70), s.balance(renter))
	s.Equal(uint64(30), s.balance(owner))
}

func (s *ServiceSuite) TestRespond() {
	s.newInstance(1, renter)
	after := s.matured(1)

	s.Run("responding without a proposal fails", func() {
		err := s.service.AcceptProposedAmount(s.as(renter), 1)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	})

	s.Run("only the renter may respond", func() {
		s.Require().NoError(s.service.ProposeReturnAmount(s.asAt(owner, after), 1, 50))
		err := s.service.AcceptProposedAmount(s.as(owner), 1)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("second acceptance fails", func() {
		s.Require().NoError(s.service.AcceptProposedAmount(s.as(renter), 1))
		err := s.service.AcceptProposedAmount(s.as(renter), 1)
		s.True(dErrors.HasCode(err, dErrors.CodeAlreadyDone))
	})
}

// =============================================================================
// Claim Tests
// =============================================================================

func (s *ServiceSuite) TestClaims() {
	s.Run("claim while still invested fails", func() {
		s.newInstance(1, renter)
		s.Require().NoError(s.service.Fund(s.as(renter), 1, depositAmount))

		err := s.service.ClaimRenterChunk(s.as(renter), 1)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	})

	s.Run("claim before acceptance fails", func() {
		s.newInstance(2, renter)
		after := s.maturity.Add(time.Second)
		s.Require().NoError(s.service.Fund(s.as(renter), 2, depositAmount))
		s.Require().NoError(s.service.TriggerMaturityWithdrawal(s.asAt(admin, after), 2))

		err := s.service.ClaimOwnerChunk(s.as(owner), 2)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	})

	s.Run("double claim of one chunk fails", func() {
		s.newInstance(3, renter)
		after := s.maturity.Add(time.Second)
		s.Require().NoError(s.service.Fund(s.as(renter), 3, depositAmount))
		s.Require().NoError(s.service.TriggerMaturityWithdrawal(s.asAt(admin, after), 3))
		s.Require().NoError(s.service.ProposeReturnAmount(s.asAt(owner, after), 3, 40))
		s.Require().NoError(s.service.AcceptProposedAmount(s.as(renter), 3))

		s.Require().NoError(s.service.ClaimRenterChunk(s.as(renter), 3))
		err := s.service.ClaimRenterChunk(s.as(renter), 3)
		s.True(dErrors.HasCode(err, dErrors.CodeAlreadyDone))
	})
}

// =============================================================================
// Conservation
// =============================================================================

func (s *ServiceSuite) TestConservation() {
	// Across the whole lifecycle the two chunks sum exactly to the deposit;
	// the venue's surplus lands on the fee account and nowhere else.
	inst := s.newInstance(1, renter)
	after := s.matured(1)

	s.Require().NoError(s.service.ProposeReturnAmount(s.asAt(owner, after), 1, 33))
	s.Require().NoError(s.service.AcceptProposedAmount(s.as(renter), 1))
	s.Require().NoError(s.service.ClaimRenterChunk(s.as(renter), 1))
	s.Require().NoError(s.service.ClaimOwnerChunk(s.as(owner), 1))

	s.Equal(depositAmount, s.balance(renter)+s.balance(owner))
	s.Equal(uint64(33), s.balance(renter))
	s.Equal(uint64(67), s.balance(owner))
	s.Equal(depositAmount*yieldBps/10_000, s.balance(feeAcct))
	s.Equal(uint64(0), s.balance(inst.EscrowAccount()))
}
