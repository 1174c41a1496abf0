// Package api serves the resource delivery endpoints. Every handler runs
// the same strictly ordered pipeline: structural validation, principal
// resolution, admin detection, resource location, policy evaluation, and
// only then signed-URL issuance.
package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/classforge/filegate/internal/audit"
	"github.com/classforge/filegate/internal/auth"
	"github.com/classforge/filegate/internal/resource"
)

// IdentityProvider exchanges a bearer credential for a principal.
type IdentityProvider interface {
	ResolvePrincipal(ctx context.Context, token string) (auth.Principal, error)
}

// AdminDetector resolves a principal's admin flag. It never fails; an
// undetectable state reads as not-admin.
type AdminDetector interface {
	IsAdmin(ctx context.Context, p auth.Principal) bool
}

// URLSigner mints a short-lived signed URL for an already-authorized
// (bucket, path) pair.
type URLSigner interface {
	SignURL(ctx context.Context, bucket, path string) (string, error)
}

// Catalog extends the locator's table views with the by-id lookups the
// download endpoints need.
type Catalog interface {
	resource.Catalog
	ResearchDocumentByID(ctx context.Context, id string) (*resource.ResearchDocument, error)
	ResourceByID(ctx context.Context, id string) (*resource.Resource, error)
}

// Auditor receives decision events, best-effort.
type Auditor interface {
	Record(ev audit.Event)
}

// DecisionMetrics counts decision outcomes.
type DecisionMetrics interface {
	RecordDecision(outcome string)
}

// Handler serves the delivery API.
type Handler struct {
	idp     IdentityProvider
	admins  AdminDetector
	catalog Catalog
	locator *resource.Locator
	signer  URLSigner
	auditor Auditor
	metrics DecisionMetrics
	cookie  string
}

func NewHandler(idp IdentityProvider, admins AdminDetector, catalog Catalog, signer URLSigner, sessionCookie string) *Handler {
	if sessionCookie == "" {
		sessionCookie = auth.DefaultSessionCookie
	}
	return &Handler{
		idp:     idp,
		admins:  admins,
		catalog: catalog,
		locator: resource.NewLocator(catalog),
		signer:  signer,
		cookie:  sessionCookie,
	}
}

// SetAuditor wires the fire-and-forget decision sink.
func (h *Handler) SetAuditor(a Auditor) { h.auditor = a }

// SetMetrics wires the decision counters.
func (h *Handler) SetMetrics(m DecisionMetrics) { h.metrics = m }

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimSuffix(r.URL.Path, "/")

	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	switch {
	case path == "/files/signed":
		h.handleSignedFile(w, r)

	case strings.HasPrefix(path, "/resources/") && strings.HasSuffix(path, "/download"):
		id := strings.TrimSuffix(strings.TrimPrefix(path, "/resources/"), "/download")
		if id == "" || strings.Contains(id, "/") {
			writeError(w, http.StatusNotFound, "not found")
			return
		}
		h.handleResourceDownload(w, r, id)

	case strings.HasPrefix(path, "/research/documents/") && strings.HasSuffix(path, "/download"):
		id := strings.TrimSuffix(strings.TrimPrefix(path, "/research/documents/"), "/download")
		if id == "" || strings.Contains(id, "/") {
			writeError(w, http.StatusNotFound, "not found")
			return
		}
		h.handleDocumentDownload(w, r, id)

	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

// authenticate runs principal resolution and admin detection for a
// request. The bool result is false when no principal could be resolved;
// the caller must stop with 401.
func (h *Handler) authenticate(r *http.Request) (auth.Principal, bool, bool) {
	token := auth.TokenFromRequest(r, h.cookie)
	if token == "" {
		return auth.Principal{}, false, false
	}
	principal, err := h.idp.ResolvePrincipal(r.Context(), token)
	if err != nil {
		return auth.Principal{}, false, false
	}
	return principal, h.admins.IsAdmin(r.Context(), principal), true
}

func (h *Handler) recordDecision(outcome string) {
	if h.metrics != nil {
		h.metrics.RecordDecision(outcome)
	}
}

func (h *Handler) recordAudit(ev audit.Event) {
	if h.auditor != nil {
		h.auditor.Record(ev)
	}
}
