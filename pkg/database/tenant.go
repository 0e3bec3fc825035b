package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// projectSetting is the session variable the row-level-security policies on
// the decision tables compare against.
const projectSetting = "app.current_project_id"

type tenantScopeKey struct{}

// TenantScope is a pooled connection pinned to one project. Every query made
// through Conn sees only that project's rows.
type TenantScope struct {
	Conn      *pgxpool.Conn
	ProjectID uuid.UUID
}

// GetTenantScope returns the scope stored by SetTenantScope, if any.
func GetTenantScope(ctx context.Context) (*TenantScope, bool) {
	scope, ok := ctx.Value(tenantScopeKey{}).(*TenantScope)
	return scope, ok && scope != nil
}

// SetTenantScope returns a copy of ctx carrying scope.
func SetTenantScope(ctx context.Context, scope *TenantScope) context.Context {
	return context.WithValue(ctx, tenantScopeKey{}, scope)
}

// WithTenant acquires a connection and pins it to projectID.
// Callers must Close the scope.
func (db *DB) WithTenant(ctx context.Context, projectID uuid.UUID) (*TenantScope, error) {
	conn, err := db.Pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection for project %s: %w", projectID, err)
	}

	if _, err := conn.Exec(ctx, "SELECT set_config($1, $2, false)", projectSetting, projectID.String()); err != nil {
		conn.Release()
		return nil, fmt.Errorf("set tenant for project %s: %w", projectID, err)
	}

	return &TenantScope{Conn: conn, ProjectID: projectID}, nil
}

// Close clears the project setting and returns the connection to the pool.
// The reset uses a fresh context so a cancelled request still cleans up.
func (s *TenantScope) Close() {
	if s == nil || s.Conn == nil {
		return
	}
	_, _ = s.Conn.Exec(context.Background(), "RESET "+projectSetting)
	s.Conn.Release()
	s.Conn = nil
}

// ReadSnapshot runs fn inside a REPEATABLE READ, READ ONLY transaction so
// every read in fn sees the same committed state.
func (s *TenantScope) ReadSnapshot(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := s.Conn.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.RepeatableRead,
		AccessMode: pgx.ReadOnly,
	})
	if err != nil {
		return fmt.Errorf("begin snapshot transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit snapshot transaction: %w", err)
	}
	return nil
}

// TenantScopeProvider opens scopes for callers outside the HTTP middleware,
// such as MCP tools that receive the project id as an argument.
type TenantScopeProvider struct {
	db *DB
}

func NewTenantScopeProvider(db *DB) *TenantScopeProvider {
	return &TenantScopeProvider{db: db}
}

// WithTenantScope returns ctx carrying a scope for projectID and the func that closes it.
func (p *TenantScopeProvider) WithTenantScope(ctx context.Context, projectID uuid.UUID) (context.Context, func(), error) {
	scope, err := p.db.WithTenant(ctx, projectID)
	if err != nil {
		return nil, nil, err
	}
	return SetTenantScope(ctx, scope), scope.Close, nil
}
