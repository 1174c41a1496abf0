package api

import (
	"net/http"

	"github.com/classforge/filegate/internal/audit"
	"github.com/classforge/filegate/internal/policy"
	"github.com/classforge/filegate/internal/resource"
)

// Decision outcome labels for metrics.
const (
	outcomeGranted    = "granted"
	outcomeDenied     = "denied"
	outcomeNotFound   = "not_found"
	outcomeAuthFailed = "auth_failed"
	outcomeBadRequest = "validation_error"
	outcomeUpstream   = "upstream_error"
)

// resourcesBucket holds generic platform resources. It is not reachable
// through /files/signed, whose allow-list is fixed to two buckets.
const resourcesBucket = "resources"

type signedFileResponse struct {
	URL string `json:"url"`
}

// handleSignedFile serves GET /files/signed?bucket=&path=.
//
// Validation runs before authentication so malformed requests never cost
// an identity-provider round trip.
func (h *Handler) handleSignedFile(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	bucketName := q.Get("bucket")
	if bucketName == "" {
		h.recordDecision(outcomeBadRequest)
		writeError(w, http.StatusBadRequest, "bucket is required")
		return
	}
	path := q.Get("path")
	if path == "" {
		h.recordDecision(outcomeBadRequest)
		writeError(w, http.StatusBadRequest, "path is required")
		return
	}
	bucket, err := resource.ParseBucket(bucketName)
	if err != nil {
		h.recordDecision(outcomeBadRequest)
		writeError(w, http.StatusBadRequest, "unknown bucket")
		return
	}

	principal, admin, ok := h.authenticate(r)
	if !ok {
		h.recordDecision(outcomeAuthFailed)
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	ctx := r.Context()
	match, err := h.locator.Locate(ctx, bucket, path)
	if err != nil {
		h.recordDecision(outcomeUpstream)
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}

	var dec policy.Decision
	switch match.Kind {
	case resource.NoMatch:
		h.recordDecision(outcomeNotFound)
		h.recordAudit(audit.Event{
			Endpoint: "files.signed", Principal: principal.ID, Admin: admin,
			Bucket: bucketName, Path: path, Decision: audit.DecisionNotFound,
		})
		writeError(w, http.StatusNotFound, "not found")
		return

	case resource.LessonPlanMatch:
		dec = policy.LessonPlanExport(match.LessonPlan, principal.ID, admin)

	case resource.DocumentMatch:
		var access resource.ProjectAccess
		if !admin {
			access, err = h.locator.ProjectAccessFor(ctx, match.Document.ProjectID, principal.ID)
			if err != nil {
				h.recordDecision(outcomeUpstream)
				writeError(w, http.StatusInternalServerError, "lookup failed")
				return
			}
		}
		dec = policy.ResearchDocument(access, admin)

	case resource.SubmissionMatch:
		var access resource.ProjectAccess
		if !admin && match.Submission.ParticipantID != principal.ID {
			access, err = h.locator.ProjectAccessFor(ctx, match.Submission.ProjectID, principal.ID)
			if err != nil {
				h.recordDecision(outcomeUpstream)
				writeError(w, http.StatusInternalServerError, "lookup failed")
				return
			}
		}
		dec = policy.ResearchSubmission(match.Submission, access, principal.ID, admin)
	}

	if !dec.Granted {
		h.recordDecision(outcomeDenied)
		h.recordAudit(audit.Event{
			Endpoint: "files.signed", Principal: principal.ID, Admin: admin,
			Bucket: bucketName, Path: path, Decision: audit.DecisionDenied, Reason: dec.Reason,
		})
		writeError(w, http.StatusForbidden, "access denied")
		return
	}

	url, err := h.signer.SignURL(ctx, bucketName, path)
	if err != nil {
		h.recordDecision(outcomeUpstream)
		writeError(w, http.StatusInternalServerError, "failed to sign url")
		return
	}

	h.recordDecision(outcomeGranted)
	h.recordAudit(audit.Event{
		Endpoint: "files.signed", Principal: principal.ID, Admin: admin,
		Bucket: bucketName, Path: path, Decision: audit.DecisionGranted, Reason: dec.Reason,
	})
	writeJSON(w, http.StatusOK, signedFileResponse{URL: url})
}

// handleResourceDownload serves GET /resources/{id}/download. Approved,
// active resources are downloadable by any authenticated caller; anything
// else reads as absent.
func (h *Handler) handleResourceDownload(w http.ResponseWriter, r *http.Request, id string) {
	principal, admin, ok := h.authenticate(r)
	if !ok {
		h.recordDecision(outcomeAuthFailed)
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	ctx := r.Context()
	rec, err := h.catalog.ResourceByID(ctx, id)
	if err != nil {
		h.recordDecision(outcomeUpstream)
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	if !policy.Downloadable(rec) {
		h.recordDecision(outcomeNotFound)
		h.recordAudit(audit.Event{
			Endpoint: "resources.download", Principal: principal.ID, Admin: admin,
			Resource: id, Decision: audit.DecisionNotFound,
		})
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	var target string
	switch {
	case rec.StoragePath != "":
		target, err = h.signer.SignURL(ctx, resourcesBucket, rec.StoragePath)
		if err != nil {
			h.recordDecision(outcomeUpstream)
			writeError(w, http.StatusInternalServerError, "failed to sign url")
			return
		}
	case rec.ExternalURL != "":
		target = rec.ExternalURL
	default:
		h.recordDecision(outcomeNotFound)
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	h.recordDecision(outcomeGranted)
	h.recordAudit(audit.Event{
		Endpoint: "resources.download", Principal: principal.ID, Admin: admin,
		Resource: id, Decision: audit.DecisionGranted,
	})
	http.Redirect(w, r, target, http.StatusFound)
}

// handleDocumentDownload serves GET /research/documents/{id}/download.
// Public documents are open to any authenticated caller; everything else
// requires enrollment in the owning project.
func (h *Handler) handleDocumentDownload(w http.ResponseWriter, r *http.Request, id string) {
	principal, admin, ok := h.authenticate(r)
	if !ok {
		h.recordDecision(outcomeAuthFailed)
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	ctx := r.Context()
	doc, err := h.catalog.ResearchDocumentByID(ctx, id)
	if err != nil {
		h.recordDecision(outcomeUpstream)
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	if doc == nil || doc.StoragePath == "" {
		h.recordDecision(outcomeNotFound)
		h.recordAudit(audit.Event{
			Endpoint: "research.documents.download", Principal: principal.ID, Admin: admin,
			Resource: id, Decision: audit.DecisionNotFound,
		})
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	if !policy.PublicDocument(doc) {
		member, err := h.catalog.IsParticipant(ctx, doc.ProjectID, principal.ID)
		if err != nil {
			h.recordDecision(outcomeUpstream)
			writeError(w, http.StatusInternalServerError, "lookup failed")
			return
		}
		if !member {
			h.recordDecision(outcomeDenied)
			h.recordAudit(audit.Event{
				Endpoint: "research.documents.download", Principal: principal.ID, Admin: admin,
				Resource: id, Decision: audit.DecisionDenied, Reason: "not a project participant",
			})
			writeError(w, http.StatusForbidden, "access denied")
			return
		}
	}

	target, err := h.signer.SignURL(ctx, resource.BucketResearch.String(), doc.StoragePath)
	if err != nil {
		h.recordDecision(outcomeUpstream)
		writeError(w, http.StatusInternalServerError, "failed to sign url")
		return
	}

	h.recordDecision(outcomeGranted)
	h.recordAudit(audit.Event{
		Endpoint: "research.documents.download", Principal: principal.ID, Admin: admin,
		Resource: id, Decision: audit.DecisionGranted,
	})
	http.Redirect(w, r, target, http.StatusFound)
}
