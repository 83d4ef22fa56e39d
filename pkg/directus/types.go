package directus

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/reise69/directus-go-sdk/pkg/core/query"
)

// Item is one row of a user collection.
type Item = query.Item

// User is a directus_users record.
type User struct {
	ID          string     `json:"id,omitempty"`
	FirstName   string     `json:"first_name,omitempty"`
	LastName    string     `json:"last_name,omitempty"`
	Email       string     `json:"email,omitempty"`
	Password    string     `json:"password,omitempty"`
	Title       string     `json:"title,omitempty"`
	Description string     `json:"description,omitempty"`
	Language    string     `json:"language,omitempty"`
	Status      string     `json:"status,omitempty"`
	Role        any        `json:"role,omitempty"`
	LastAccess  *time.Time `json:"last_access,omitempty"`
}

// File is a directus_files record.
type File struct {
	ID               string         `json:"id,omitempty"`
	Storage          string         `json:"storage,omitempty"`
	FilenameDisk     string         `json:"filename_disk,omitempty"`
	FilenameDownload string         `json:"filename_download,omitempty"`
	Title            string         `json:"title,omitempty"`
	Type             string         `json:"type,omitempty"`
	Folder           any            `json:"folder,omitempty"`
	UploadedBy       any            `json:"uploaded_by,omitempty"`
	UploadedOn       *time.Time     `json:"uploaded_on,omitempty"`
	Filesize         json.Number    `json:"filesize,omitempty"`
	Width            *int           `json:"width,omitempty"`
	Height           *int           `json:"height,omitempty"`
	Description      string         `json:"description,omitempty"`
	Location         string         `json:"location,omitempty"`
	Tags             []string       `json:"tags,omitempty"`
	Metadata         map[string]any `json:"metadata,omitempty"`
}

// Collection is a directus_collections record. Meta and Schema are kept as
// maps so a collection can be copied without losing settings.
type Collection struct {
	Collection string         `json:"collection"`
	Meta       map[string]any `json:"meta,omitempty"`
	Schema     map[string]any `json:"schema,omitempty"`
	Fields     []Field        `json:"fields,omitempty"`
}

// IsSystem reports whether c belongs to Directus itself.
func (c Collection) IsSystem() bool {
	return strings.HasPrefix(c.Collection, "directus_")
}

// Field is a directus_fields record.
type Field struct {
	Collection string         `json:"collection,omitempty"`
	Field      string         `json:"field"`
	Type       string         `json:"type,omitempty"`
	Meta       map[string]any `json:"meta,omitempty"`
	Schema     map[string]any `json:"schema,omitempty"`
}

// IsPrimaryKey reports schema.is_primary_key.
func (f Field) IsPrimaryKey() bool {
	v, _ := f.Schema["is_primary_key"].(bool)
	return v
}

// ForeignKeyTable returns schema.foreign_key_table, "" when the field is not
// a foreign key.
func (f Field) ForeignKeyTable() string {
	v, _ := f.Schema["foreign_key_table"].(string)
	return v
}

// Relation links a field of Collection to RelatedCollection.
type Relation struct {
	Collection        string         `json:"collection"`
	Field             string         `json:"field"`
	RelatedCollection string         `json:"related_collection"`
	Meta              map[string]any `json:"meta,omitempty"`
	Schema            map[string]any `json:"schema,omitempty"`
}
