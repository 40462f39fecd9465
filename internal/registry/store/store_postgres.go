package store

import (
	"context"
	"database/sql"
	"fmt"

	// Registers the postgres driver for database/sql.
	_ "github.com/lib/pq"

	"rentvault/internal/registry/models"
	id "rentvault/pkg/domain"
)

// Postgres persists the registry's append-only sequences.
//
// Schema:
//
//	CREATE TABLE instance_records (
//	    instance_id BIGINT PRIMARY KEY,
//	    version_id  BIGINT NOT NULL,
//	    creator     TEXT NOT NULL,
//	    handle      TEXT NOT NULL,
//	    created_at  TIMESTAMPTZ NOT NULL
//	);
//	CREATE TABLE template_version_records (
//	    version_id BIGINT PRIMARY KEY,
//	    handle     TEXT NOT NULL,
//	    created_at TIMESTAMPTZ NOT NULL
//	);
type Postgres struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed record store.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (s *Postgres) AppendInstance(ctx context.Context, record models.InstanceRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO instance_records (instance_id, version_id, creator, handle, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, int64(record.InstanceID), int64(record.VersionID), record.Creator.String(), record.InstanceHandle.String(), record.CreatedAt)
	if err != nil {
		return fmt.Errorf("append instance record: %w", err)
	}
	return nil
}

func (s *Postgres) ListInstances(ctx context.Context) ([]models.InstanceRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT instance_id, version_id, creator, handle, created_at
		FROM instance_records
		ORDER BY instance_id
	`)
	if err != nil {
		return nil, fmt.Errorf("list instance records: %w", err)
	}
	defer rows.Close()

	var out []models.InstanceRecord
	for rows.Next() {
		var (
			rec                 models.InstanceRecord
			instanceID, version int64
			creator, handle     string
		)
		if err := rows.Scan(&instanceID, &version, &creator, &handle, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan instance record: %w", err)
		}
		rec.InstanceID = id.InstanceID(instanceID)
		rec.VersionID = id.VersionID(version)
		rec.Creator = id.Address(creator)
		rec.InstanceHandle = id.Address(handle)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Postgres) CountInstances(ctx context.Context) (uint64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM instance_records`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count instance records: %w", err)
	}
	return uint64(n), nil
}

func (s *Postgres) AppendTemplateVersion(ctx context.Context, record models.TemplateVersionRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO template_version_records (version_id, handle, created_at)
		VALUES ($1, $2, $3)
	`, int64(record.VersionID), record.TemplateHandle.String(), record.CreatedAt)
	if err != nil {
		return fmt.Errorf("append template version record: %w", err)
	}
	return nil
}

func (s *Postgres) ListTemplateVersions(ctx context.Context) ([]models.TemplateVersionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT version_id, handle, created_at
		FROM template_version_records
		ORDER BY version_id
	`)
	if err != nil {
		return nil, fmt.Errorf("list template version records: %w", err)
	}
	defer rows.Close()

	var out []models.TemplateVersionRecord
	for rows.Next() {
		var (
			rec     models.TemplateVersionRecord
			version int64
			handle  string
		)
		if err := rows.Scan(&version, &handle, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan template version record: %w", err)
		}
		rec.VersionID = id.VersionID(version)
		rec.TemplateHandle = id.Address(handle)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Postgres) CountTemplateVersions(ctx context.Context) (uint64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM template_version_records`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count template version records: %w", err)
	}
	return uint64(n), nil
}
