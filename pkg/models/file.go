package models

import (
	"path/filepath"
	"strings"
	"time"
)

// FileKind distinguishes uploaded sources from processor-produced artifacts.
type FileKind string

const (
	FileKindSource   FileKind = "source"
	FileKindArtifact FileKind = "artifact"
)

// IsValid checks if the kind is a known FileKind.
func (k FileKind) IsValid() bool {
	return k == FileKindSource || k == FileKindArtifact
}

// FileCategory classifies file content.
type FileCategory string

const (
	FileCategoryIfc        FileCategory = "ifc"
	FileCategoryWexBim     FileCategory = "wexbim"
	FileCategoryProperties FileCategory = "properties"
	FileCategoryThumbnail  FileCategory = "thumbnail"
	FileCategoryLog        FileCategory = "log"
	FileCategoryOther      FileCategory = "other"
)

// IsValid checks if the category is a known FileCategory.
func (c FileCategory) IsValid() bool {
	switch c {
	case FileCategoryIfc, FileCategoryWexBim, FileCategoryProperties,
		FileCategoryThumbnail, FileCategoryLog, FileCategoryOther:
		return true
	}
	return false
}

// InferCategory classifies a file from its name and content type.
// Used at commit time; kind is always Source for uploads.
func InferCategory(fileName, contentType string) FileCategory {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".ifc", ".ifczip", ".ifcxml":
		return FileCategoryIfc
	case ".wexbim":
		return FileCategoryWexBim
	case ".png", ".jpg", ".jpeg", ".gif", ".webp":
		return FileCategoryThumbnail
	case ".log":
		return FileCategoryLog
	}
	if strings.HasPrefix(contentType, "image/") {
		return FileCategoryThumbnail
	}
	return FileCategoryOther
}

// File is a row in the content-addressable file registry.
//
// StorageProvider and StorageKey together uniquely resolve the bytes. When
// IsDeleted is set the bytes may be reclaimed asynchronously, but the row is
// retained for lineage.
type File struct {
	ID              string       `gorm:"primaryKey;size:36" json:"id"`
	ProjectID       string       `gorm:"not null;size:36;index" json:"project_id"`
	Name            string       `gorm:"not null;size:1024" json:"name"`
	ContentType     string       `gorm:"size:255" json:"content_type,omitempty"`
	SizeBytes       int64        `gorm:"not null" json:"size_bytes"`
	Checksum        string       `gorm:"size:128" json:"checksum,omitempty"`
	Kind            FileKind     `gorm:"not null;size:20" json:"kind"`
	Category        FileCategory `gorm:"not null;size:20" json:"category"`
	StorageProvider string       `gorm:"not null;size:64;uniqueIndex:idx_storage_location" json:"storage_provider"`
	StorageKey      string       `gorm:"not null;size:1024;uniqueIndex:idx_storage_location" json:"storage_key"`
	IsDeleted       bool         `gorm:"not null;default:false;index" json:"is_deleted"`
	CreatedAt       time.Time    `gorm:"autoCreateTime" json:"created_at"`
	DeletedAt       *time.Time   `json:"deleted_at,omitempty"`
}

// TableName returns the table name for File.
func (File) TableName() string {
	return "files"
}

// FileLinkType labels a directed edge between two files.
type FileLinkType string

const (
	FileLinkDerivedFrom  FileLinkType = "derived_from"
	FileLinkThumbnailOf  FileLinkType = "thumbnail_of"
	FileLinkPropertiesOf FileLinkType = "properties_of"
	FileLinkLogOf        FileLinkType = "log_of"
)

// IsValid checks if the link type is known.
func (t FileLinkType) IsValid() bool {
	switch t {
	case FileLinkDerivedFrom, FileLinkThumbnailOf, FileLinkPropertiesOf, FileLinkLogOf:
		return true
	}
	return false
}

// FileLink is a directed edge between two files of the same project, from a
// source file to what was produced from it: ifc -> wexbim, ifc -> properties.
// The set of links forms a DAG; inserts that would close a cycle are refused.
// Deleting a file that any non-deleted file links to is blocked.
type FileLink struct {
	ID           string       `gorm:"primaryKey;size:36" json:"id"`
	SourceFileID string       `gorm:"not null;size:36;uniqueIndex:idx_file_link" json:"source_file_id"`
	TargetFileID string       `gorm:"not null;size:36;uniqueIndex:idx_file_link;index" json:"target_file_id"`
	LinkType     FileLinkType `gorm:"not null;size:32;uniqueIndex:idx_file_link" json:"link_type"`
	CreatedAt    time.Time    `gorm:"autoCreateTime" json:"created_at"`
}

// TableName returns the table name for FileLink.
func (FileLink) TableName() string {
	return "file_links"
}
