package policy

import (
	"testing"

	"github.com/classforge/filegate/internal/resource"
)

func TestLessonPlanExport(t *testing.T) {
	rec := &resource.LessonPlanExport{ID: "lp-1", OwnerID: "user-1", ExportPath: "exports/plan.pdf"}

	tests := []struct {
		name      string
		principal string
		admin     bool
		want      bool
	}{
		{"owner", "user-1", false, true},
		{"other user", "user-2", false, false},
		{"admin override", "user-2", true, true},
		{"empty principal", "", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dec := LessonPlanExport(rec, tt.principal, tt.admin)
			if dec.Granted != tt.want {
				t.Errorf("granted = %v, want %v (reason %q)", dec.Granted, tt.want, dec.Reason)
			}
		})
	}
}

func TestResearchDocument(t *testing.T) {
	tests := []struct {
		name   string
		access resource.ProjectAccess
		admin  bool
		want   bool
	}{
		{"creator", resource.ProjectAccess{Creator: true}, false, true},
		{"participant", resource.ProjectAccess{Participant: true}, false, true},
		{"no standing", resource.ProjectAccess{}, false, false},
		{"admin without standing", resource.ProjectAccess{}, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dec := ResearchDocument(tt.access, tt.admin)
			if dec.Granted != tt.want {
				t.Errorf("granted = %v, want %v (reason %q)", dec.Granted, tt.want, dec.Reason)
			}
		})
	}
}

func TestResearchSubmission(t *testing.T) {
	rec := &resource.ResearchSubmission{ID: "sub-1", ProjectID: "proj-1", ParticipantID: "user-2"}

	tests := []struct {
		name      string
		access    resource.ProjectAccess
		principal string
		admin     bool
		want      bool
	}{
		// The author always reads their own submission, with or without
		// a standing participant row.
		{"author without participant row", resource.ProjectAccess{}, "user-2", false, true},
		{"author with participant row", resource.ProjectAccess{Participant: true}, "user-2", false, true},
		// Enrolled sibling participants are denied: submissions are not
		// peer-visible.
		{"sibling participant", resource.ProjectAccess{Participant: true}, "user-3", false, false},
		{"project creator", resource.ProjectAccess{Creator: true}, "owner", false, true},
		{"stranger", resource.ProjectAccess{}, "user-9", false, false},
		{"admin override", resource.ProjectAccess{}, "user-9", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dec := ResearchSubmission(rec, tt.access, tt.principal, tt.admin)
			if dec.Granted != tt.want {
				t.Errorf("granted = %v, want %v (reason %q)", dec.Granted, tt.want, dec.Reason)
			}
		})
	}
}

func TestDownloadable(t *testing.T) {
	tests := []struct {
		name string
		rec  *resource.Resource
		want bool
	}{
		{"approved active", &resource.Resource{Status: "approved", IsActive: true}, true},
		{"approved inactive", &resource.Resource{Status: "approved", IsActive: false}, false},
		{"pending active", &resource.Resource{Status: "pending", IsActive: true}, false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Downloadable(tt.rec); got != tt.want {
				t.Errorf("Downloadable = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPublicDocument(t *testing.T) {
	if !PublicDocument(&resource.ResearchDocument{Status: "public"}) {
		t.Error("public document should be public")
	}
	if PublicDocument(&resource.ResearchDocument{Status: "draft"}) {
		t.Error("draft document should not be public")
	}
	if PublicDocument(nil) {
		t.Error("nil document should not be public")
	}
}
