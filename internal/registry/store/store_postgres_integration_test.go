//go:build integration

package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"rentvault/internal/registry/models"
	"rentvault/internal/registry/store"
	id "rentvault/pkg/domain"
	"rentvault/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.Postgres
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.NewPostgresContainer(s.T())
	s.store = store.NewPostgres(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	ctx := context.Background()
	s.Require().NoError(s.postgres.TruncateTables(ctx, "instance_records", "template_version_records"))
}

func (s *PostgresStoreSuite) TestInstanceRecords() {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	count, err := s.store.CountInstances(ctx)
	s.Require().NoError(err)
	s.Equal(uint64(0), count)

	for i := 0; i < 3; i++ {
		s.Require().NoError(s.store.AppendInstance(ctx, models.InstanceRecord{
			InstanceID:     id.InstanceID(i),
			VersionID:      0,
			Creator:        "owner-1",
			InstanceHandle: id.InstanceID(i).EscrowAccount(),
			CreatedAt:      now.Add(time.Duration(i) * time.Second),
		}))
	}

	count, err = s.store.CountInstances(ctx)
	s.Require().NoError(err)
	s.Equal(uint64(3), count)

	records, err := s.store.ListInstances(ctx)
	s.Require().NoError(err)
	s.Require().Len(records, 3)
	s.Equal(id.InstanceID(0), records[0].InstanceID)
	s.Equal(id.InstanceID(2), records[2].InstanceID)
	s.Equal(id.Address("owner-1"), records[0].Creator)
	s.Equal(now, records[0].CreatedAt)
}

func (s *PostgresStoreSuite) TestTemplateVersionRecords() {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	s.Require().NoError(s.store.AppendTemplateVersion(ctx, models.TemplateVersionRecord{
		VersionID:      0,
		TemplateHandle: "template:v0",
		CreatedAt:      now,
	}))
	s.Require().NoError(s.store.AppendTemplateVersion(ctx, models.TemplateVersionRecord{
		VersionID:      1,
		TemplateHandle: "template:v1",
		CreatedAt:      now.Add(time.Hour),
	}))

	count, err := s.store.CountTemplateVersions(ctx)
	s.Require().NoError(err)
	s.Equal(uint64(2), count)

	records, err := s.store.ListTemplateVersions(ctx)
	s.Require().NoError(err)
	s.Require().Len(records, 2)
	s.Equal(id.Address("template:v0"), records[0].TemplateHandle)
	s.Equal(id.Address("template:v1"), records[1].TemplateHandle)
}
