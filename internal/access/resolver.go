// Package access derives the caller's role from configuration and the
// on-chain organizer registry.
package access

import (
	"context"
	"log/slog"

	"github.com/vietddude/ticketchain/internal/core/domain"
	"github.com/vietddude/ticketchain/internal/snapshot"
)

// Identity reports the address currently acting, or nil when no wallet is connected.
type Identity interface {
	CurrentCaller(ctx context.Context) (*domain.Address, error)
}

// Config names the privileged addresses. Empty values disable the check.
type Config struct {
	AccessControl domain.Address
	Admin         domain.Address
	Staff         domain.Address
}

// Resolver computes roles. Results are never stored; every call re-reads
// organizer membership through the reader.
type Resolver struct {
	reader snapshot.Reader
	cfg    Config
	log    *slog.Logger
}

// NewResolver creates a role resolver.
func NewResolver(r snapshot.Reader, cfg Config, log *slog.Logger) *Resolver {
	if log == nil {
		log = slog.Default()
	}
	return &Resolver{reader: r, cfg: cfg, log: log}
}

// Resolve returns the role of caller. Precedence is admin, organizer,
// staff, buyer; a nil caller is unauthenticated.
func (r *Resolver) Resolve(ctx context.Context, caller *domain.Address) (domain.Role, error) {
	if caller == nil || *caller == "" {
		return domain.RoleUnauthenticated, nil
	}
	addr, err := domain.ParseAddress(string(*caller))
	if err != nil {
		return domain.RoleUnauthenticated, err
	}

	if r.cfg.Admin != "" && addr.Equal(r.cfg.Admin) {
		return domain.RoleAdmin, nil
	}

	if r.cfg.AccessControl != "" {
		ok, err := snapshot.ReadBool(ctx, r.reader, domain.Call{
			From:     addr,
			To:       r.cfg.AccessControl,
			Contract: domain.ContractAccessControl,
			Method:   "authorizedOrganizers",
			Args:     []any{addr},
		})
		if err != nil {
			return "", err
		}
		if ok {
			return domain.RoleOrganizer, nil
		}
	}

	if r.cfg.Staff != "" && addr.Equal(r.cfg.Staff) {
		return domain.RoleStaff, nil
	}

	r.log.Debug("caller resolved as buyer", "caller", addr)
	return domain.RoleBuyer, nil
}

// ResolveCurrent resolves the role of whoever id reports as caller.
func (r *Resolver) ResolveCurrent(ctx context.Context, id Identity) (domain.Role, *domain.Address, error) {
	caller, err := id.CurrentCaller(ctx)
	if err != nil {
		return "", nil, err
	}
	role, err := r.Resolve(ctx, caller)
	return role, caller, err
}
