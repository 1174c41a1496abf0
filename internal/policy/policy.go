// Package policy holds the pure access decisions for each resource family.
// Every function here maps already-loaded records plus the caller's identity
// to grant/deny; no I/O happens in this package, and anything unresolved
// denies.
package policy

import "github.com/classforge/filegate/internal/resource"

// Decision is the outcome of evaluating one request against one record.
type Decision struct {
	Granted bool
	Reason  string
}

func grant(reason string) Decision { return Decision{Granted: true, Reason: reason} }
func deny(reason string) Decision  { return Decision{Granted: false, Reason: reason} }

// LessonPlanExport grants the export's owner and administrators.
func LessonPlanExport(rec *resource.LessonPlanExport, principalID string, admin bool) Decision {
	if admin {
		return grant("admin")
	}
	if rec.OwnerID == principalID {
		return grant("owner")
	}
	return deny("not the export owner")
}

// ResearchDocument grants anyone with document-level standing in the
// owning project: the creator, an enrolled participant, or an admin.
func ResearchDocument(access resource.ProjectAccess, admin bool) Decision {
	if admin {
		return grant("admin")
	}
	if access.Creator {
		return grant("project creator")
	}
	if access.Documents() {
		return grant("project participant")
	}
	return deny("no project access")
}

// ResearchSubmission grants the submission's author unconditionally, then
// falls back to project-level submission standing. Submissions are not
// peer-visible: an enrolled participant who is not the author is denied,
// only the project creator (or an admin) may read others' submissions.
func ResearchSubmission(rec *resource.ResearchSubmission, access resource.ProjectAccess, principalID string, admin bool) Decision {
	if admin {
		return grant("admin")
	}
	if rec.ParticipantID == principalID {
		return grant("submission author")
	}
	if access.Submissions() {
		return grant("project creator")
	}
	return deny("submissions are not peer-visible")
}

// Downloadable reports whether a generic resource is in a broadly
// downloadable state. There is no ownership check on this path: any
// authenticated caller may fetch an approved, active resource, and
// anything else reads as absent rather than forbidden.
func Downloadable(rec *resource.Resource) bool {
	return rec != nil && rec.Status == "approved" && rec.IsActive
}

// PublicDocument reports whether a research document is readable without
// project membership.
func PublicDocument(rec *resource.ResearchDocument) bool {
	return rec != nil && rec.Status == "public"
}
