// Package store provides read-only Postgres views over the platform tables
// that access decisions depend on. The CRUD subsystems own these tables;
// this service only ever selects from them.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/classforge/filegate/internal/resource"
)

type Store struct {
	db *sql.DB
}

// Open connects to Postgres and verifies the connection.
func Open(dsn string, maxOpenConns int) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}
	if maxOpenConns > 0 {
		db.SetMaxOpenConns(maxOpenConns)
	}
	db.SetConnMaxIdleTime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Ping reports database reachability for the readiness probe.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// LessonPlanExportByPath returns the export owning the path, or nil if no
// export claims it.
func (s *Store) LessonPlanExportByPath(ctx context.Context, path string) (*resource.LessonPlanExport, error) {
	var rec resource.LessonPlanExport
	err := s.db.QueryRowContext(ctx,
		`SELECT id, owner_id, latest_export_path
		 FROM lesson_plan_exports WHERE latest_export_path = $1`,
		path,
	).Scan(&rec.ID, &rec.OwnerID, &rec.ExportPath)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query lesson plan export: %w", err)
	}
	return &rec, nil
}

// ResearchDocumentByPath returns the document stored at the path, or nil.
func (s *Store) ResearchDocumentByPath(ctx context.Context, path string) (*resource.ResearchDocument, error) {
	var rec resource.ResearchDocument
	err := s.db.QueryRowContext(ctx,
		`SELECT id, project_id, storage_path, status
		 FROM research_documents WHERE storage_path = $1`,
		path,
	).Scan(&rec.ID, &rec.ProjectID, &rec.StoragePath, &rec.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query research document: %w", err)
	}
	return &rec, nil
}

// ResearchSubmissionByPath returns the submission stored at the path, or nil.
func (s *Store) ResearchSubmissionByPath(ctx context.Context, path string) (*resource.ResearchSubmission, error) {
	var rec resource.ResearchSubmission
	err := s.db.QueryRowContext(ctx,
		`SELECT id, project_id, participant_id, storage_path
		 FROM research_submissions WHERE storage_path = $1`,
		path,
	).Scan(&rec.ID, &rec.ProjectID, &rec.ParticipantID, &rec.StoragePath)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query research submission: %w", err)
	}
	return &rec, nil
}

// ResearchDocumentByID returns the document with the given id, or nil.
func (s *Store) ResearchDocumentByID(ctx context.Context, id string) (*resource.ResearchDocument, error) {
	var rec resource.ResearchDocument
	err := s.db.QueryRowContext(ctx,
		`SELECT id, project_id, COALESCE(storage_path, ''), status
		 FROM research_documents WHERE id = $1`,
		id,
	).Scan(&rec.ID, &rec.ProjectID, &rec.StoragePath, &rec.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query research document: %w", err)
	}
	return &rec, nil
}

// ResearchProjectByID returns the project, or nil if it does not exist.
func (s *Store) ResearchProjectByID(ctx context.Context, id string) (*resource.ResearchProject, error) {
	var rec resource.ResearchProject
	err := s.db.QueryRowContext(ctx,
		`SELECT id, created_by FROM research_projects WHERE id = $1`,
		id,
	).Scan(&rec.ID, &rec.CreatedBy)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query research project: %w", err)
	}
	return &rec, nil
}

// IsParticipant reports whether an enrollment row exists for the user in
// the project.
func (s *Store) IsParticipant(ctx context.Context, projectID, userID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(
		   SELECT 1 FROM research_participants WHERE project_id = $1 AND user_id = $2
		 )`,
		projectID, userID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("query research participant: %w", err)
	}
	return exists, nil
}

// IsAdminListed reports whether the user appears in the administrator
// allow-list table.
func (s *Store) IsAdminListed(ctx context.Context, userID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM admin_users WHERE user_id = $1)`,
		userID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("query admin allow-list: %w", err)
	}
	return exists, nil
}

// ResourceByID returns the generic resource with the given id, or nil.
func (s *Store) ResourceByID(ctx context.Context, id string) (*resource.Resource, error) {
	var rec resource.Resource
	err := s.db.QueryRowContext(ctx,
		`SELECT id, status, is_active, COALESCE(storage_path, ''), COALESCE(external_url, '')
		 FROM resources WHERE id = $1`,
		id,
	).Scan(&rec.ID, &rec.Status, &rec.IsActive, &rec.StoragePath, &rec.ExternalURL)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query resource: %w", err)
	}
	return &rec, nil
}
