package postgres

import (
	"context"
	"database/sql"

	"patient-records-access/internal/domain/accessgrants"
	"patient-records-access/internal/domain/audit"
	"patient-records-access/internal/domain/emergency"
	"patient-records-access/internal/domain/temporaryaccess"
)

// Store agrupa los repos sobre un mismo *sql.DB.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) AccessGrants() accessgrants.Repository { return NewAccessGrantsRepo(s.db) }
func (s *Store) Temporary() temporaryaccess.Repository { return NewTemporaryRepo(s.db) }
func (s *Store) Emergency() emergency.Repository       { return NewEmergencyRepo(s.db) }
func (s *Store) Audit() audit.Repository               { return NewAuditRepo(s.db) }

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }
func (s *Store) Close() error                   { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }
