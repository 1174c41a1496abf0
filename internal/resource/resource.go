package resource

import (
	"context"
	"fmt"
)

// Bucket is a closed enumeration of the object-store partitions this
// service delivers from.
type Bucket int

const (
	BucketLessonPlans Bucket = iota
	BucketResearch
)

// ParseBucket maps the wire name of a bucket onto the enum. Unknown names
// are rejected; the allow-list is exactly the two values below.
func ParseBucket(name string) (Bucket, error) {
	switch name {
	case "lesson-plans":
		return BucketLessonPlans, nil
	case "research":
		return BucketResearch, nil
	}
	return 0, fmt.Errorf("unknown bucket %q", name)
}

func (b Bucket) String() string {
	switch b {
	case BucketLessonPlans:
		return "lesson-plans"
	case BucketResearch:
		return "research"
	}
	return fmt.Sprintf("bucket(%d)", int(b))
}

// LessonPlanExport is the latest rendered export of a lesson plan. Keyed by
// its export path within the lesson-plans bucket.
type LessonPlanExport struct {
	ID         string
	OwnerID    string
	ExportPath string
}

// ResearchDocument is a project-scoped document in the research bucket.
type ResearchDocument struct {
	ID          string
	ProjectID   string
	StoragePath string
	Status      string
}

// ResearchSubmission is a participant's upload to a research project.
type ResearchSubmission struct {
	ID            string
	ProjectID     string
	ParticipantID string
	StoragePath   string
}

// ResearchProject carries the one field access decisions need.
type ResearchProject struct {
	ID        string
	CreatedBy string
}

// Resource is a generic downloadable platform resource. Either StoragePath
// or ExternalURL may be set; both empty means nothing to deliver.
type Resource struct {
	ID          string
	Status      string
	IsActive    bool
	StoragePath string
	ExternalURL string
}

// MatchKind tags which resource family claimed a path, if any.
type MatchKind int

const (
	NoMatch MatchKind = iota
	LessonPlanMatch
	DocumentMatch
	SubmissionMatch
)

// Match is the outcome of probing the resource-family tables for a
// (bucket, path) pair. Exactly one record pointer is set for a non-NoMatch
// kind.
type Match struct {
	Kind       MatchKind
	LessonPlan *LessonPlanExport
	Document   *ResearchDocument
	Submission *ResearchSubmission
}

// ProjectAccess is the caller's standing within a research project.
// Creators see everything in the project; enrolled participants see
// documents but not sibling submissions.
type ProjectAccess struct {
	Creator     bool
	Participant bool
}

// Documents reports whether project-level document access is held.
func (a ProjectAccess) Documents() bool { return a.Creator || a.Participant }

// Submissions reports whether project-level submission access is held.
// True only for the creator; participants never see each other's work.
func (a ProjectAccess) Submissions() bool { return a.Creator }

// Catalog is the read-only view over the resource-family tables that the
// locator needs. Implemented by the Postgres store; tests supply fakes.
type Catalog interface {
	LessonPlanExportByPath(ctx context.Context, path string) (*LessonPlanExport, error)
	ResearchDocumentByPath(ctx context.Context, path string) (*ResearchDocument, error)
	ResearchSubmissionByPath(ctx context.Context, path string) (*ResearchSubmission, error)
	ResearchProjectByID(ctx context.Context, id string) (*ResearchProject, error)
	IsParticipant(ctx context.Context, projectID, userID string) (bool, error)
}

// Locator resolves a (bucket, path) pair to at most one owning record.
type Locator struct {
	catalog Catalog
}

func NewLocator(c Catalog) *Locator {
	return &Locator{catalog: c}
}

// Locate probes the resource families that can own paths in the given
// bucket. Probe order is fixed: within the research bucket, documents are
// checked before submissions, and the first family match wins.
func (l *Locator) Locate(ctx context.Context, bucket Bucket, path string) (Match, error) {
	switch bucket {
	case BucketLessonPlans:
		rec, err := l.catalog.LessonPlanExportByPath(ctx, path)
		if err != nil {
			return Match{}, fmt.Errorf("locate lesson plan export: %w", err)
		}
		if rec == nil {
			return Match{Kind: NoMatch}, nil
		}
		return Match{Kind: LessonPlanMatch, LessonPlan: rec}, nil

	case BucketResearch:
		doc, err := l.catalog.ResearchDocumentByPath(ctx, path)
		if err != nil {
			return Match{}, fmt.Errorf("locate research document: %w", err)
		}
		if doc != nil {
			return Match{Kind: DocumentMatch, Document: doc}, nil
		}
		sub, err := l.catalog.ResearchSubmissionByPath(ctx, path)
		if err != nil {
			return Match{}, fmt.Errorf("locate research submission: %w", err)
		}
		if sub != nil {
			return Match{Kind: SubmissionMatch, Submission: sub}, nil
		}
		return Match{Kind: NoMatch}, nil
	}
	return Match{}, fmt.Errorf("unhandled bucket %v", bucket)
}

// ProjectAccessFor resolves the caller's standing within a project: the
// creator check first, then a membership existence lookup.
func (l *Locator) ProjectAccessFor(ctx context.Context, projectID, userID string) (ProjectAccess, error) {
	proj, err := l.catalog.ResearchProjectByID(ctx, projectID)
	if err != nil {
		return ProjectAccess{}, fmt.Errorf("load project: %w", err)
	}
	if proj != nil && proj.CreatedBy == userID {
		return ProjectAccess{Creator: true}, nil
	}
	member, err := l.catalog.IsParticipant(ctx, projectID, userID)
	if err != nil {
		return ProjectAccess{}, fmt.Errorf("check participant: %w", err)
	}
	return ProjectAccess{Participant: member}, nil
}
