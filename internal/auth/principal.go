package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// DefaultSessionCookie is the cookie consulted when no Authorization
// header is present. Browser download links cannot set headers.
const DefaultSessionCookie = "fg_session"

// RoleAdmin is the role claim value that short-circuits admin detection.
const RoleAdmin = "admin"

// Principal is the authenticated caller. Token is the raw bearer
// credential it was resolved from, kept so the ambient admin RPC can reuse
// it.
type Principal struct {
	ID    string
	Role  string
	Token string
}

// TokenFromRequest extracts the bearer credential: Authorization header
// first, then the named session cookie. Empty string means no credential.
func TokenFromRequest(r *http.Request, cookieName string) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		token := strings.TrimPrefix(auth, "Bearer ")
		if token != auth {
			return strings.TrimSpace(token)
		}
		return ""
	}
	if cookieName == "" {
		cookieName = DefaultSessionCookie
	}
	if c, err := r.Cookie(cookieName); err == nil {
		return c.Value
	}
	return ""
}

// ProviderConfig holds identity-provider connection settings.
type ProviderConfig struct {
	URL        string        `json:"url" yaml:"url"`
	ServiceKey string        `json:"service_key" yaml:"service_key"`
	AdminRPC   string        `json:"admin_rpc" yaml:"admin_rpc"`
	Timeout    time.Duration `json:"timeout" yaml:"timeout"`
}

// Provider exchanges bearer credentials with the external identity
// provider. One round trip per call, no retries, fail-closed.
type Provider struct {
	cfg    ProviderConfig
	client *http.Client
}

func NewProvider(cfg ProviderConfig) *Provider {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	if cfg.AdminRPC == "" {
		cfg.AdminRPC = "is_admin"
	}
	return &Provider{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

type userResponse struct {
	ID   string `json:"id"`
	Role string `json:"role"`
}

// ResolvePrincipal verifies the token with the provider and returns the
// principal it identifies.
func (p *Provider) ResolvePrincipal(ctx context.Context, token string) (Principal, error) {
	if token == "" {
		return Principal{}, fmt.Errorf("missing bearer credential")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.URL+"/user", nil)
	if err != nil {
		return Principal{}, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if p.cfg.ServiceKey != "" {
		req.Header.Set("apikey", p.cfg.ServiceKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return Principal{}, fmt.Errorf("identity provider error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Principal{}, fmt.Errorf("identity provider returned %d", resp.StatusCode)
	}

	var user userResponse
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return Principal{}, fmt.Errorf("identity provider invalid response: %w", err)
	}
	if user.ID == "" {
		return Principal{}, fmt.Errorf("identity provider returned no user")
	}

	return Principal{ID: user.ID, Role: user.Role, Token: token}, nil
}

// CheckAdmin invokes the provider's admin decision RPC. With a non-empty
// subject the check is explicit; with an empty subject the provider infers
// the subject from the bearer credential.
func (p *Provider) CheckAdmin(ctx context.Context, subjectID, token string) (bool, error) {
	payload := "{}"
	if subjectID != "" {
		payload = fmt.Sprintf(`{"user_id":%q}`, subjectID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.URL+"/rpc/"+p.cfg.AdminRPC, strings.NewReader(payload))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	if p.cfg.ServiceKey != "" {
		req.Header.Set("apikey", p.cfg.ServiceKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("admin rpc error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("admin rpc returned %d", resp.StatusCode)
	}

	// Providers answer either a bare boolean or {"is_admin": bool}.
	var raw json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return false, fmt.Errorf("admin rpc invalid response: %w", err)
	}
	var flag bool
	if err := json.Unmarshal(raw, &flag); err == nil {
		return flag, nil
	}
	var wrapped struct {
		IsAdmin *bool `json:"is_admin"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil && wrapped.IsAdmin != nil {
		return *wrapped.IsAdmin, nil
	}
	return false, fmt.Errorf("admin rpc returned non-boolean payload")
}
