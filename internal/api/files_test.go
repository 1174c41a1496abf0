package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/classforge/filegate/internal/audit"
	"github.com/classforge/filegate/internal/auth"
	"github.com/classforge/filegate/internal/resource"
)

// --- fakes ---

type fakeIDP struct {
	users map[string]auth.Principal // token -> principal
}

func (f *fakeIDP) ResolvePrincipal(_ context.Context, token string) (auth.Principal, error) {
	p, ok := f.users[token]
	if !ok {
		return auth.Principal{}, errors.New("unknown token")
	}
	p.Token = token
	return p, nil
}

type fakeAdmins struct {
	admins map[string]bool
}

func (f *fakeAdmins) IsAdmin(_ context.Context, p auth.Principal) bool {
	return p.Role == auth.RoleAdmin || f.admins[p.ID]
}

type fakeCatalog struct {
	exports      map[string]*resource.LessonPlanExport
	docs         map[string]*resource.ResearchDocument
	docsByID     map[string]*resource.ResearchDocument
	subs         map[string]*resource.ResearchSubmission
	projects     map[string]*resource.ResearchProject
	participants map[string]bool
	resources    map[string]*resource.Resource
	err          error
}

func (f *fakeCatalog) LessonPlanExportByPath(_ context.Context, path string) (*resource.LessonPlanExport, error) {
	return f.exports[path], f.err
}

func (f *fakeCatalog) ResearchDocumentByPath(_ context.Context, path string) (*resource.ResearchDocument, error) {
	return f.docs[path], f.err
}

func (f *fakeCatalog) ResearchSubmissionByPath(_ context.Context, path string) (*resource.ResearchSubmission, error) {
	return f.subs[path], f.err
}

func (f *fakeCatalog) ResearchProjectByID(_ context.Context, id string) (*resource.ResearchProject, error) {
	return f.projects[id], f.err
}

func (f *fakeCatalog) IsParticipant(_ context.Context, projectID, userID string) (bool, error) {
	return f.participants[projectID+"/"+userID], f.err
}

func (f *fakeCatalog) ResearchDocumentByID(_ context.Context, id string) (*resource.ResearchDocument, error) {
	return f.docsByID[id], f.err
}

func (f *fakeCatalog) ResourceByID(_ context.Context, id string) (*resource.Resource, error) {
	return f.resources[id], f.err
}

type fakeSigner struct {
	fail  bool
	calls int
}

func (f *fakeSigner) SignURL(_ context.Context, bucket, path string) (string, error) {
	f.calls++
	if f.fail {
		return "", errors.New("store unavailable")
	}
	return fmt.Sprintf("https://store.example/%s/%s?sig=%d", bucket, path, f.calls), nil
}

type fakeAuditor struct {
	events []audit.Event
}

func (f *fakeAuditor) Record(ev audit.Event) {
	f.events = append(f.events, ev)
}

// --- fixtures ---

func newTestHandler(t *testing.T) (*Handler, *fakeSigner, *fakeAuditor) {
	t.Helper()

	idp := &fakeIDP{users: map[string]auth.Principal{
		"tok-user-1": {ID: "user-1"},
		"tok-user-2": {ID: "user-2"},
		"tok-user-3": {ID: "user-3"},
		"tok-owner":  {ID: "owner"},
		"tok-admin":  {ID: "root", Role: auth.RoleAdmin},
	}}
	admins := &fakeAdmins{admins: map[string]bool{}}

	catalog := &fakeCatalog{
		exports: map[string]*resource.LessonPlanExport{
			"exports/plan.pdf": {ID: "lp-1", OwnerID: "user-1", ExportPath: "exports/plan.pdf"},
		},
		docs: map[string]*resource.ResearchDocument{
			"proj/file.pdf": {ID: "doc-1", ProjectID: "proj-1", StoragePath: "proj/file.pdf", Status: "draft"},
		},
		docsByID: map[string]*resource.ResearchDocument{
			"doc-1":      {ID: "doc-1", ProjectID: "proj-1", StoragePath: "proj/file.pdf", Status: "draft"},
			"doc-public": {ID: "doc-public", ProjectID: "proj-1", StoragePath: "pub/doc.pdf", Status: "public"},
			"doc-nopath": {ID: "doc-nopath", ProjectID: "proj-1", Status: "draft"},
		},
		subs: map[string]*resource.ResearchSubmission{
			"proj/submission.pdf": {ID: "sub-1", ProjectID: "proj-1", ParticipantID: "user-2", StoragePath: "proj/submission.pdf"},
		},
		projects: map[string]*resource.ResearchProject{
			"proj-1": {ID: "proj-1", CreatedBy: "owner"},
		},
		// user-1 and user-3 are enrolled; user-2 is an author with no
		// standing participant row.
		participants: map[string]bool{
			"proj-1/user-1": true,
			"proj-1/user-3": true,
		},
		resources: map[string]*resource.Resource{
			"res-1":       {ID: "res-1", Status: "approved", IsActive: true, StoragePath: "res/worksheet.pdf"},
			"res-ext":     {ID: "res-ext", Status: "approved", IsActive: true, ExternalURL: "https://example.com/w.pdf"},
			"res-pending": {ID: "res-pending", Status: "pending", IsActive: true, StoragePath: "res/p.pdf"},
			"res-off":     {ID: "res-off", Status: "approved", IsActive: false, StoragePath: "res/o.pdf"},
			"res-empty":   {ID: "res-empty", Status: "approved", IsActive: true},
		},
	}

	signer := &fakeSigner{}
	auditor := &fakeAuditor{}

	h := NewHandler(idp, admins, catalog, signer, "")
	h.SetAuditor(auditor)
	return h, signer, auditor
}

func doGet(h http.Handler, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func signedURL(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var resp signedFileResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.URL == "" {
		t.Fatal("expected non-empty url")
	}
	return resp.URL
}

// --- /files/signed validation ---

func TestSignedFileValidationBeforeAuth(t *testing.T) {
	h, signer, _ := newTestHandler(t)

	tests := []struct {
		name  string
		path  string
		token string
		want  int
	}{
		{"missing bucket", "/files/signed?path=x.pdf", "", http.StatusBadRequest},
		{"missing bucket with valid auth", "/files/signed?path=x.pdf", "tok-user-1", http.StatusBadRequest},
		{"empty bucket", "/files/signed?bucket=&path=x.pdf", "tok-user-1", http.StatusBadRequest},
		{"missing path", "/files/signed?bucket=research", "tok-user-1", http.StatusBadRequest},
		{"unknown bucket", "/files/signed?bucket=uploads&path=x.pdf", "tok-user-1", http.StatusBadRequest},
		{"unknown bucket without auth", "/files/signed?bucket=uploads&path=x.pdf", "", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := doGet(h, tt.path, tt.token)
			if rr.Code != tt.want {
				t.Errorf("status = %d, want %d: %s", rr.Code, tt.want, rr.Body.String())
			}
		})
	}

	if signer.calls != 0 {
		t.Error("no URL may be signed for invalid requests")
	}
}

func TestSignedFileRequiresAuth(t *testing.T) {
	h, _, _ := newTestHandler(t)

	rr := doGet(h, "/files/signed?bucket=lesson-plans&path=exports/plan.pdf", "")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rr.Code)
	}

	rr = doGet(h, "/files/signed?bucket=lesson-plans&path=exports/plan.pdf", "bogus")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401 for unknown token", rr.Code)
	}
}

func TestSignedFileSessionCookieFallback(t *testing.T) {
	h, _, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/files/signed?bucket=lesson-plans&path=exports/plan.pdf", nil)
	req.AddCookie(&http.Cookie{Name: auth.DefaultSessionCookie, Value: "tok-user-1"})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rr.Code, rr.Body.String())
	}
}

// --- lesson-plan family ---

func TestSignedFileLessonPlans(t *testing.T) {
	tests := []struct {
		name  string
		token string
		want  int
	}{
		{"owner", "tok-user-1", http.StatusOK},
		{"other user", "tok-user-2", http.StatusForbidden},
		{"admin override", "tok-admin", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _, _ := newTestHandler(t)
			rr := doGet(h, "/files/signed?bucket=lesson-plans&path=exports/plan.pdf", tt.token)
			if rr.Code != tt.want {
				t.Fatalf("status = %d, want %d: %s", rr.Code, tt.want, rr.Body.String())
			}
			if tt.want == http.StatusOK {
				signedURL(t, rr)
			}
		})
	}
}

func TestSignedFileLessonPlanUnknownPath(t *testing.T) {
	h, _, _ := newTestHandler(t)
	rr := doGet(h, "/files/signed?bucket=lesson-plans&path=exports/missing.pdf", "tok-user-1")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rr.Code)
	}
}

// --- research document family ---

func TestSignedFileResearchDocument(t *testing.T) {
	tests := []struct {
		name  string
		token string
		want  int
	}{
		{"enrolled participant", "tok-user-1", http.StatusOK},
		{"project creator without participant row", "tok-owner", http.StatusOK},
		{"stranger", "tok-user-2", http.StatusForbidden},
		{"admin override", "tok-admin", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _, _ := newTestHandler(t)
			rr := doGet(h, "/files/signed?bucket=research&path=proj/file.pdf", tt.token)
			if rr.Code != tt.want {
				t.Fatalf("status = %d, want %d: %s", rr.Code, tt.want, rr.Body.String())
			}
		})
	}
}

// --- research submission family ---

func TestSignedFileResearchSubmission(t *testing.T) {
	tests := []struct {
		name  string
		token string
		want  int
	}{
		// The author holds no participant row and is still granted.
		{"author without participant row", "tok-user-2", http.StatusOK},
		// An enrolled sibling participant is denied: submissions are not
		// peer-visible.
		{"sibling participant", "tok-user-3", http.StatusForbidden},
		{"project creator", "tok-owner", http.StatusOK},
		{"admin override", "tok-admin", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _, _ := newTestHandler(t)
			rr := doGet(h, "/files/signed?bucket=research&path=proj/submission.pdf", tt.token)
			if rr.Code != tt.want {
				t.Fatalf("status = %d, want %d: %s", rr.Code, tt.want, rr.Body.String())
			}
		})
	}
}

func TestSignedFileResearchUnknownPath(t *testing.T) {
	h, _, _ := newTestHandler(t)
	rr := doGet(h, "/files/signed?bucket=research&path=missing.pdf", "tok-user-1")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rr.Code)
	}
}

// --- issuance behavior ---

func TestSignedFileDistinctURLsPerRequest(t *testing.T) {
	h, _, _ := newTestHandler(t)

	rr1 := doGet(h, "/files/signed?bucket=lesson-plans&path=exports/plan.pdf", "tok-user-1")
	rr2 := doGet(h, "/files/signed?bucket=lesson-plans&path=exports/plan.pdf", "tok-user-1")
	if rr1.Code != http.StatusOK || rr2.Code != http.StatusOK {
		t.Fatalf("statuses = %d, %d", rr1.Code, rr2.Code)
	}
	if signedURL(t, rr1) == signedURL(t, rr2) {
		t.Error("repeated requests must mint distinct signed URLs")
	}
}

func TestSignedFileNoSigningOnDeny(t *testing.T) {
	h, signer, _ := newTestHandler(t)

	doGet(h, "/files/signed?bucket=lesson-plans&path=exports/plan.pdf", "tok-user-2")
	doGet(h, "/files/signed?bucket=research&path=missing.pdf", "tok-user-1")
	if signer.calls != 0 {
		t.Fatal("signer invoked without a grant")
	}
}

func TestSignedFileStoreFailure(t *testing.T) {
	h, signer, _ := newTestHandler(t)
	signer.fail = true

	rr := doGet(h, "/files/signed?bucket=lesson-plans&path=exports/plan.pdf", "tok-user-1")
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rr.Code)
	}
}

func TestSignedFileAuditTrail(t *testing.T) {
	h, _, auditor := newTestHandler(t)

	doGet(h, "/files/signed?bucket=lesson-plans&path=exports/plan.pdf", "tok-user-1")
	doGet(h, "/files/signed?bucket=lesson-plans&path=exports/plan.pdf", "tok-user-2")

	if len(auditor.events) != 2 {
		t.Fatalf("audit events = %d, want 2", len(auditor.events))
	}
	if auditor.events[0].Decision != audit.DecisionGranted || auditor.events[0].Principal != "user-1" {
		t.Errorf("unexpected grant event: %+v", auditor.events[0])
	}
	if auditor.events[1].Decision != audit.DecisionDenied || auditor.events[1].Principal != "user-2" {
		t.Errorf("unexpected deny event: %+v", auditor.events[1])
	}
}

// --- /resources/{id}/download ---

func TestResourceDownload(t *testing.T) {
	tests := []struct {
		name         string
		id           string
		token        string
		want         int
		wantLocation string
	}{
		{"no auth", "res-1", "", http.StatusUnauthorized, ""},
		{"storage-backed", "res-1", "tok-user-1", http.StatusFound, "https://store.example/resources/res/worksheet.pdf?sig=1"},
		{"external url", "res-ext", "tok-user-1", http.StatusFound, "https://example.com/w.pdf"},
		{"not approved", "res-pending", "tok-user-1", http.StatusNotFound, ""},
		{"inactive", "res-off", "tok-user-1", http.StatusNotFound, ""},
		{"nothing to deliver", "res-empty", "tok-user-1", http.StatusNotFound, ""},
		{"unknown id", "res-missing", "tok-user-1", http.StatusNotFound, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _, _ := newTestHandler(t)
			rr := doGet(h, "/resources/"+tt.id+"/download", tt.token)
			if rr.Code != tt.want {
				t.Fatalf("status = %d, want %d: %s", rr.Code, tt.want, rr.Body.String())
			}
			if tt.wantLocation != "" && rr.Header().Get("Location") != tt.wantLocation {
				t.Errorf("location = %q, want %q", rr.Header().Get("Location"), tt.wantLocation)
			}
		})
	}
}

func TestResourceDownloadSigningFailure(t *testing.T) {
	h, signer, _ := newTestHandler(t)
	signer.fail = true

	rr := doGet(h, "/resources/res-1/download", "tok-user-1")
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rr.Code)
	}
}

// --- /research/documents/{id}/download ---

func TestDocumentDownload(t *testing.T) {
	tests := []struct {
		name  string
		id    string
		token string
		want  int
	}{
		{"no auth", "doc-public", "", http.StatusUnauthorized},
		{"public open to any principal", "doc-public", "tok-user-2", http.StatusFound},
		{"participant on non-public", "doc-1", "tok-user-1", http.StatusFound},
		{"non-participant on non-public", "doc-1", "tok-user-2", http.StatusForbidden},
		{"no storage path", "doc-nopath", "tok-user-1", http.StatusNotFound},
		{"unknown id", "doc-missing", "tok-user-1", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _, _ := newTestHandler(t)
			rr := doGet(h, "/research/documents/"+tt.id+"/download", tt.token)
			if rr.Code != tt.want {
				t.Fatalf("status = %d, want %d: %s", rr.Code, tt.want, rr.Body.String())
			}
		})
	}
}

// --- routing ---

func TestUnknownRoute(t *testing.T) {
	h, _, _ := newTestHandler(t)
	rr := doGet(h, "/files/other", "tok-user-1")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rr.Code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	h, _, _ := newTestHandler(t)
	req := httptest.NewRequest(http.MethodPost, "/files/signed?bucket=research&path=x", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rr.Code)
	}
}

func TestLookupFailureIsUpstream(t *testing.T) {
	idp := &fakeIDP{users: map[string]auth.Principal{"tok": {ID: "user-1"}}}
	catalog := &fakeCatalog{err: errors.New("connection refused")}
	h := NewHandler(idp, &fakeAdmins{}, catalog, &fakeSigner{}, "")

	rr := doGet(h, "/files/signed?bucket=research&path=proj/file.pdf", "tok")
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rr.Code)
	}
}
