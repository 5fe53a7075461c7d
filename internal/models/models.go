package models

import (
	"fmt"
	"strings"
	"time"
)

// ParentType names an entity that owns images. The value doubles as the
// URL segment and the parent table name.
type ParentType string

const (
	Products   ParentType = "products"
	Categories ParentType = "categories"
	Suppliers  ParentType = "suppliers"
)

var ParentTypes = []ParentType{Products, Categories, Suppliers}

func ParseParentType(s string) (ParentType, error) {
	for _, pt := range ParentTypes {
		if string(pt) == s {
			return pt, nil
		}
	}
	return "", fmt.Errorf("unknown parent type %q", s)
}

// Table is the parent entity table.
func (p ParentType) Table() string { return string(p) }

// ImageTable is the attachment table, e.g. product_images.
func (p ParentType) ImageTable() string { return p.singular() + "_images" }

// ForeignKey is the attachment table column referencing the parent.
func (p ParentType) ForeignKey() string { return p.singular() + "_id" }

// Label is the human name used in messages, e.g. "Product".
func (p ParentType) Label() string {
	s := p.singular()
	if s == "" {
		return "Entity"
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func (p ParentType) singular() string {
	switch p {
	case Products:
		return "product"
	case Categories:
		return "category"
	case Suppliers:
		return "supplier"
	}
	return ""
}

type ImageRecord struct {
	ID            int64     `json:"id" db:"id"`
	ParentID      int64     `json:"parent_id" db:"parent_id"`
	ImagePath     string    `json:"image_path" db:"image_path"`
	ThumbnailPath string    `json:"thumbnail_path" db:"thumbnail_path"`
	DisplayOrder  int       `json:"display_order" db:"display_order"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

// UploadedFile is a transient upload written by the ingestion middleware.
// TempPath is relative to the storage root.
type UploadedFile struct {
	OriginalName string
	MimeType     string
	TempPath     string
	Size         int64
}

type FileError struct {
	File  string `json:"file"`
	Error string `json:"error"`
}

type AttachResult struct {
	Created []ImageRecord
	Errors  []FileError
}
