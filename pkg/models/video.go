package models

import (
	"time"

	"github.com/google/uuid"
)

// Video is the owning entity for analysis jobs. Video and project records are
// created by the upload pipeline; this service only reads them for ownership
// checks and analyzer payloads.
type Video struct {
	ID           uuid.UUID `db:"id"            json:"id"`
	ProjectID    uuid.UUID `db:"project_id"    json:"project_id"`
	OriginalName string    `db:"original_name" json:"original_name"`
	FilePath     string    `db:"file_path"     json:"file_path"`
	CreatedAt    time.Time `db:"created_at"    json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"    json:"updated_at"`
}
