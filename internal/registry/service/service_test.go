package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"rentvault/internal/custody"
	escrowmodels "rentvault/internal/escrow/models"
	escrowstore "rentvault/internal/escrow/store"
	"rentvault/internal/registry/store"
	"rentvault/internal/schedule"
	id "rentvault/pkg/domain"
	dErrors "rentvault/pkg/domain-errors"
	"rentvault/pkg/platform/events"
	"rentvault/pkg/platform/events/publisher"
	"rentvault/pkg/requestcontext"
)

// =============================================================================
// Instance Registry Test Suite
// =============================================================================

const (
	admin = id.Address("admin")
	owner = id.Address("owner-1")
)

type ServiceSuite struct {
	suite.Suite
	records   *store.InMemory
	instances *escrowstore.InMemory
	ledger    *custody.InMemoryLedger
	sched     *schedule.Registry
	publisher *publisher.Memory
	service   *Service

	maturity time.Time
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.records = store.NewInMemory()
	s.instances = escrowstore.NewInMemory()
	s.ledger = custody.NewInMemoryLedger()
	s.sched = schedule.New(admin)
	s.publisher = publisher.NewMemory(nil)
	s.maturity = time.Now().Add(30 * 24 * time.Hour)

	var err error
	s.service, err = New(context.Background(), s.records, s.instances, s.ledger, s.sched, admin,
		escrowmodels.NewTemplate("template:v0"),
		WithPublisher(s.publisher),
	)
	s.Require().NoError(err)
}

func (s *ServiceSuite) as(actor id.Address) context.Context {
	return requestcontext.WithActor(context.Background(), actor)
}

func (s *ServiceSuite) create(actor id.Address) (*escrowmodels.Instance, error) {
	return s.service.CreateInstance(s.as(actor), CreateParams{
		DepositAmount: 100,
		Renter:        id.Address("renter-1"),
		MaturityTime:  s.maturity,
	})
}

// =============================================================================
// CreateInstance Tests
// =============================================================================

func (s *ServiceSuite) TestCreateInstance() {
	s.Run("clone is initialized with dense monotonic ids", func() {
		first, err := s.create(owner)
		s.Require().NoError(err)
		second, err := s.create(owner)
		s.Require().NoError(err)

		s.Equal(id.InstanceID(0), first.ID)
		s.Equal(id.InstanceID(1), second.ID)
		s.Equal(id.VersionID(0), first.TemplateVersion)
		s.Equal(owner, first.Owner)
		s.Equal(admin, first.Administrator)
		s.Equal(escrowmodels.StatusFunding, first.Status())
	})

	s.Run("creation is recorded in the append-only log", func() {
		records, err := s.service.ListInstances(context.Background())
		s.Require().NoError(err)
		s.Require().Len(records, 2)
		s.Equal(id.InstanceID(0), records[0].InstanceID)
		s.Equal(owner, records[0].Creator)
	})

	s.Run("creation emits the full terms", func() {
		created := s.publisher.ByKind(events.KindInstanceCreated)
		s.Require().Len(created, 2)
		s.Equal(admin, created[0].Administrator)
		s.Equal(owner, created[0].Owner)
		s.Equal(id.Address("renter-1"), created[0].Renter)
		s.Equal(uint64(100), created[0].DepositAmount)
		s.Equal(s.maturity, created[0].MaturityTime)
	})

	s.Run("anonymous caller is rejected", func() {
		_, err := s.service.CreateInstance(context.Background(), CreateParams{
			DepositAmount: 100,
			MaturityTime:  s.maturity,
		})
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("zero deposit is rejected", func() {
		_, err := s.service.CreateInstance(s.as(owner), CreateParams{
			MaturityTime: s.maturity,
		})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("past maturity is rejected", func() {
		_, err := s.service.CreateInstance(s.as(owner), CreateParams{
			DepositAmount: 100,
			MaturityTime:  time.Now().Add(-time.Hour),
		})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func (s *ServiceSuite) TestCreateInstance_Paused() {
	s.Require().NoError(s.service.Pause(s.as(admin)))

	_, err := s.create(owner)
	s.True(dErrors.HasCode(err, dErrors.CodePaused))

	s.Require().NoError(s.service.Unpause(s.as(admin)))
	_, err = s.create(owner)
	s.NoError(err)
}

// =============================================================================
// Template Tests
// =============================================================================

func (s *ServiceSuite) TestTemplates() {
	s.Run("the template prototype refuses initialization", func() {
		prototype := escrowmodels.NewTemplate("template:v0").Prototype()
		err := prototype.Initialize(escrowmodels.InitParams{
			Administrator: admin,
			Owner:         owner,
			MaturityTime:  s.maturity,
			DepositAmount: 100,
		})
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
		s.Contains(err.Error(), "The template itself can't be initialized")
	})

	s.Run("a clone initializes exactly once", func() {
		inst, err := s.create(owner)
		s.Require().NoError(err)
		err = inst.Initialize(escrowmodels.InitParams{
			Administrator: admin,
			Owner:         owner,
			MaturityTime:  s.maturity,
			DepositAmount: 100,
		})
		s.True(dErrors.HasCode(err, dErrors.CodeAlreadyDone))
	})

	s.Run("rotation only affects later clones", func() {
		before, err := s.create(owner)
		s.Require().NoError(err)

		record, err := s.service.SetNewTemplateVersion(s.as(admin), escrowmodels.NewTemplate("template:v1"))
		s.Require().NoError(err)
		s.Equal(id.VersionID(1), record.VersionID)

		after, err := s.create(owner)
		s.Require().NoError(err)
		s.Equal(id.VersionID(0), before.TemplateVersion)
		s.Equal(id.VersionID(1), after.TemplateVersion)
	})

	s.Run("rotation is admin-only", func() {
		_, err := s.service.SetNewTemplateVersion(s.as(owner), escrowmodels.NewTemplate("template:v2"))
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
		s.Contains(err.Error(), "Caller is not the admin")
	})

	s.Run("the version log keeps every build", func() {
		versions, err := s.service.ListTemplateVersions(context.Background())
		s.Require().NoError(err)
		s.Require().Len(versions, 2)
		s.Equal(id.Address("template:v0"), versions[0].TemplateHandle)
		s.Equal(id.Address("template:v1"), versions[1].TemplateHandle)
	})
}

func (s *ServiceSuite) TestRestartOverPersistedRecords() {
	ctx := context.Background()

	_, err := s.create(owner)
	s.Require().NoError(err)
	_, err = s.service.SetNewTemplateVersion(s.as(admin), escrowmodels.NewTemplate("template:v1"))
	s.Require().NoError(err)

	// A second construction over the same record store is a process restart.
	restarted, err := New(ctx, s.records, escrowstore.NewInMemory(), s.ledger, schedule.New(admin), admin,
		escrowmodels.NewTemplate("template:v1"),
	)
	s.Require().NoError(err)

	s.Run("boot does not re-append version zero", func() {
		versions, err := restarted.ListTemplateVersions(ctx)
		s.Require().NoError(err)
		s.Require().Len(versions, 2)
		s.Equal(id.VersionID(0), versions[0].VersionID)
		s.Equal(id.VersionID(1), versions[1].VersionID)
	})

	s.Run("the boot template carries on as the latest recorded version", func() {
		inst, err := restarted.CreateInstance(s.as(owner), CreateParams{
			DepositAmount: 100,
			Renter:        id.Address("renter-1"),
			MaturityTime:  s.maturity,
		})
		s.Require().NoError(err)
		s.Equal(id.VersionID(1), inst.TemplateVersion)
		s.Equal(id.InstanceID(1), inst.ID)
	})

	s.Run("rotation after restart stays monotonic", func() {
		record, err := restarted.SetNewTemplateVersion(s.as(admin), escrowmodels.NewTemplate("template:v2"))
		s.Require().NoError(err)
		s.Equal(id.VersionID(2), record.VersionID)
	})
}

// =============================================================================
// Administration Tests
// =============================================================================

func (s *ServiceSuite) TestSetAdministrator() {
	successor := id.Address("admin-2")

	s.Run("rotation is admin-only", func() {
		err := s.service.SetAdministrator(s.as(owner), successor)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("successor takes over administration", func() {
		s.Require().NoError(s.service.SetAdministrator(s.as(admin), successor))
		s.Equal(successor, s.service.Administrator())

		// The previous admin lost access, the successor gained it.
		s.True(dErrors.HasCode(s.service.Pause(s.as(admin)), dErrors.CodeUnauthorized))
		s.NoError(s.service.Pause(s.as(successor)))
	})

	s.Run("creation still works after rotation", func() {
		s.Require().NoError(s.service.Unpause(s.as(successor)))
		inst, err := s.create(owner)
		s.Require().NoError(err)
		s.Equal(successor, inst.Administrator)
	})
}

func (s *ServiceSuite) TestSweepFunds() {
	treasury := id.Address("treasury")

	s.Run("sweep is admin-only", func() {
		_, err := s.service.SweepFunds(s.as(owner), treasury)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("empty fee balance sweeps zero", func() {
		swept, err := s.service.SweepFunds(s.as(admin), treasury)
		s.NoError(err)
		s.Equal(uint64(0), swept)
	})

	s.Run("accrued fees move to the destination", func() {
		s.Require().NoError(s.ledger.Mint(context.Background(), FeeAccount, 42))

		swept, err := s.service.SweepFunds(s.as(admin), treasury)
		s.NoError(err)
		s.Equal(uint64(42), swept)

		balance, err := s.ledger.Balance(context.Background(), treasury)
		s.Require().NoError(err)
		s.Equal(uint64(42), balance)
	})
}
