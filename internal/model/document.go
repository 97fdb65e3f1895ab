package model

import "time"

// Visibility levels for a document. Retrieval must never surface a passage
// whose visibility excludes the requester.
const (
	VisibilityPublic   = "public"
	VisibilityInternal = "internal"
	VisibilityPrivate  = "private"
)

// Document is an organizational document owned by the surrounding HR
// application. The retrieval core treats its content as read-only input.
type Document struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Namespace  string    `gorm:"size:64;not null;index" json:"namespace"`
	Title      string    `gorm:"size:256;not null" json:"title"`
	Content    string    `gorm:"type:mediumtext;not null" json:"-"`
	SourceType string    `gorm:"size:32;not null;default:text" json:"source_type"`
	Visibility string    `gorm:"size:16;not null;default:internal" json:"visibility"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
