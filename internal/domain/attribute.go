package domain

import (
	"fmt"
	"time"
)

// RecordStatus represents the lifecycle state of an attribute record.
// Values include RecordStatusPending, RecordStatusComplete, and RecordStatusFailed.
type RecordStatus string

const (
	RecordStatusPending  RecordStatus = "pending"
	RecordStatusComplete RecordStatus = "complete"
	RecordStatusFailed   RecordStatus = "failed"
)

// IsTerminal reports whether no further transition is allowed from s.
func (s RecordStatus) IsTerminal() bool {
	return s == RecordStatusComplete || s == RecordStatusFailed
}

// Valid reports whether s is a known status.
func (s RecordStatus) Valid() bool {
	switch s {
	case RecordStatusPending, RecordStatusComplete, RecordStatusFailed:
		return true
	}
	return false
}

// Attribute keys as they appear in model output and in stored documents.
const (
	AttrClothingType = "clothing_type"
	AttrColor        = "color"
	AttrStyle        = "style"
	AttrMaterial     = "material"
	AttrOccasion     = "occasion"
)

// AttributeKeys lists the five extracted attributes in their canonical order.
var AttributeKeys = []string{AttrClothingType, AttrColor, AttrStyle, AttrMaterial, AttrOccasion}

// Attributes holds the five descriptive fields extracted from a clothing image.
// A field the model did not supply is the empty string.
type Attributes struct {
	ClothingType string `gorm:"type:text;index:idx_attribute_records_type" json:"clothing_type"`
	Color        string `gorm:"type:text" json:"color"`
	Style        string `gorm:"type:text" json:"style"`
	Material     string `gorm:"type:text" json:"material"`
	Occasion     string `gorm:"type:text" json:"occasion"`
}

// Get returns the attribute stored under key, or "" for unknown keys.
func (a Attributes) Get(key string) string {
	switch key {
	case AttrClothingType:
		return a.ClothingType
	case AttrColor:
		return a.Color
	case AttrStyle:
		return a.Style
	case AttrMaterial:
		return a.Material
	case AttrOccasion:
		return a.Occasion
	}
	return ""
}

// Set assigns value to key. Unknown keys are ignored.
func (a *Attributes) Set(key, value string) {
	switch key {
	case AttrClothingType:
		a.ClothingType = value
	case AttrColor:
		a.Color = value
	case AttrStyle:
		a.Style = value
	case AttrMaterial:
		a.Material = value
	case AttrOccasion:
		a.Occasion = value
	}
}

// Map returns the attributes keyed by their document names.
func (a Attributes) Map() map[string]string {
	m := make(map[string]string, len(AttributeKeys))
	for _, k := range AttributeKeys {
		m[k] = a.Get(k)
	}
	return m
}

// IsEmpty reports whether every field is blank.
func (a Attributes) IsEmpty() bool {
	for _, k := range AttributeKeys {
		if a.Get(k) != "" {
			return false
		}
	}
	return true
}

// AttributeRecord is the metadata document persisted for one analysis attempt of an image.
// At most one non-failed record exists per ImageID; failed records are kept as history.
type AttributeRecord struct {
	ID             string       `gorm:"type:text;primaryKey" json:"id"`
	ImageID        string       `gorm:"type:text;not null;uniqueIndex:idx_attribute_records_active,where:status <> 'failed';index:idx_attribute_records_image" json:"image_id"`
	StorageKey     string       `gorm:"type:text;not null" json:"storage_key"`
	ImageURL       string       `gorm:"type:text" json:"image_url"`
	Attributes     `gorm:"embedded"`
	RawModelOutput *string      `gorm:"type:text" json:"raw_model_output"`
	Status         RecordStatus `gorm:"type:text;index:idx_attribute_records_status;default:pending" json:"status"`
	ErrorKind      string       `gorm:"type:text" json:"error_kind,omitempty"`
	ErrorMessage   string       `gorm:"type:text" json:"error_message,omitempty"`
	Attempts       int          `gorm:"default:0" json:"attempts"`
	Model          string       `gorm:"type:text" json:"model,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
	CompletedAt    *time.Time   `json:"completed_at,omitempty"`
}

// TableName returns the database table name for AttributeRecord.
func (AttributeRecord) TableName() string {
	return "attribute_records"
}

// NewPendingRecord creates an in-memory record for a fresh analysis attempt.
func NewPendingRecord(id string, asset *ImageAsset, model string, now time.Time) *AttributeRecord {
	return &AttributeRecord{
		ID:         id,
		ImageID:    asset.ID,
		StorageKey: asset.StorageKey,
		ImageURL:   asset.StorageAddress,
		Status:     RecordStatusPending,
		Model:      model,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Complete moves a pending record to complete with the parsed attributes
// and the raw text they were parsed from.
func (r *AttributeRecord) Complete(attrs Attributes, raw string, now time.Time) error {
	if r.Status != RecordStatusPending {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.Status, RecordStatusComplete)
	}
	r.Attributes = attrs
	r.RawModelOutput = &raw
	r.Status = RecordStatusComplete
	r.ErrorKind = ""
	r.ErrorMessage = ""
	r.UpdatedAt = now
	r.CompletedAt = &now
	return nil
}

// Fail moves a pending record to failed. raw is kept when the model answered
// but the answer could not be parsed.
func (r *AttributeRecord) Fail(cause error, raw *string, now time.Time) error {
	if r.Status != RecordStatusPending {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.Status, RecordStatusFailed)
	}
	r.Status = RecordStatusFailed
	r.RawModelOutput = raw
	r.ErrorKind = ErrorKindOf(cause)
	if cause != nil {
		r.ErrorMessage = cause.Error()
	}
	r.UpdatedAt = now
	r.CompletedAt = &now
	return nil
}

// IsActive reports whether the record blocks another record for the same image.
func (r *AttributeRecord) IsActive() bool {
	return r.Status != RecordStatusFailed
}
