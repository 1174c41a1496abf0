package auth

import (
	"context"
	"log/slog"
)

// Strategy is one way of deciding whether a principal is an administrator.
// Detect returns (verdict, ok); ok=false means this strategy could not
// produce an answer and the next one should be tried. Strategies never
// return errors — any internal failure reads as not-ok.
type Strategy interface {
	Name() string
	Detect(ctx context.Context, p Principal) (bool, bool)
}

// AdminLister is an existence check against the administrator allow-list
// table. Implemented by the Postgres store.
type AdminLister interface {
	IsAdminListed(ctx context.Context, userID string) (bool, error)
}

// Detector runs an ordered chain of strategies; the first one that
// produces an answer wins. If the whole chain comes up empty the principal
// is not an admin. This path never fails a request.
type Detector struct {
	strategies []Strategy
}

// NewDetector builds the standard chain: the provider RPC with an explicit
// subject, the same RPC on the ambient credential, then the allow-list
// table.
func NewDetector(provider *Provider, lister AdminLister) *Detector {
	return &Detector{strategies: []Strategy{
		rpcSubjectStrategy{provider: provider},
		rpcAmbientStrategy{provider: provider},
		allowlistStrategy{lister: lister},
	}}
}

// NewDetectorWith builds a detector over an explicit strategy list, in
// order. Used by tests.
func NewDetectorWith(strategies ...Strategy) *Detector {
	return &Detector{strategies: strategies}
}

// IsAdmin resolves the principal's admin flag. A role claim already on the
// principal short-circuits the chain.
func (d *Detector) IsAdmin(ctx context.Context, p Principal) bool {
	if p.Role == RoleAdmin {
		return true
	}
	for _, s := range d.strategies {
		verdict, ok := s.Detect(ctx, p)
		if ok {
			return verdict
		}
	}
	return false
}

type rpcSubjectStrategy struct {
	provider *Provider
}

func (rpcSubjectStrategy) Name() string { return "rpc-subject" }

func (s rpcSubjectStrategy) Detect(ctx context.Context, p Principal) (bool, bool) {
	verdict, err := s.provider.CheckAdmin(ctx, p.ID, p.Token)
	if err != nil {
		// Swallowed deliberately: a failing detector must degrade to
		// "not admin", never to a request failure.
		slog.Debug("admin detection strategy failed", "strategy", s.Name(), "error", err)
		return false, false
	}
	return verdict, true
}

type rpcAmbientStrategy struct {
	provider *Provider
}

func (rpcAmbientStrategy) Name() string { return "rpc-ambient" }

func (s rpcAmbientStrategy) Detect(ctx context.Context, p Principal) (bool, bool) {
	verdict, err := s.provider.CheckAdmin(ctx, "", p.Token)
	if err != nil {
		// Swallowed deliberately, same as above.
		slog.Debug("admin detection strategy failed", "strategy", s.Name(), "error", err)
		return false, false
	}
	return verdict, true
}

type allowlistStrategy struct {
	lister AdminLister
}

func (allowlistStrategy) Name() string { return "allowlist" }

func (s allowlistStrategy) Detect(ctx context.Context, p Principal) (bool, bool) {
	if s.lister == nil {
		return false, false
	}
	listed, err := s.lister.IsAdminListed(ctx, p.ID)
	if err != nil {
		// Swallowed deliberately, same as above.
		slog.Debug("admin detection strategy failed", "strategy", s.Name(), "error", err)
		return false, false
	}
	return listed, true
}
