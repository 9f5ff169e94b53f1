package reconcile

import "time"

// Resource is the external side of a pair. Nil timestamps are unknown.
type Resource struct {
	FullName        string            `json:"full_name"`
	ExternalID      string            `json:"external_id"`
	Name            string            `json:"name"`
	ParentKey       string            `json:"parent_key"`
	Comment         *string           `json:"comment,omitempty"`
	StorageLocation *string           `json:"storage_location,omitempty"`
	VolumeType      string            `json:"volume_type,omitempty"`
	Properties      map[string]string `json:"properties,omitempty"`
	CreatedAt       *time.Time        `json:"created_at,omitempty"`
	UpdatedAt       *time.Time        `json:"updated_at,omitempty"`
}

// effectiveTime is UpdatedAt, falling back to CreatedAt.
func (r *Resource) effectiveTime() *time.Time {
	if r.UpdatedAt != nil {
		return r.UpdatedAt
	}
	return r.CreatedAt
}

// ResourceSpec is what a create or update sends to the external catalog.
type ResourceSpec struct {
	Name            string
	ParentKey       string
	FullName        string
	Comment         *string
	StorageLocation *string
	VolumeType      string
	Properties      map[string]string
}

// EntityProperties are the synchronized properties of a local entity. Nil
// pointers are unset; a pointer to "" is an explicitly cleared value.
type EntityProperties struct {
	Name               string            `json:"name"`
	FullName           string            `json:"full_name"`
	Description        *string           `json:"description,omitempty"`
	StoragePath        *string           `json:"storage_path,omitempty"`
	VolumeType         string            `json:"volume_type,omitempty"`
	Properties         map[string]string `json:"properties,omitempty"`
	ImplementationType string            `json:"implementation_type,omitempty"`
}

// Correlation is the persisted link between a local entity and an external
// resource as it stood at the last confirmed sync.
type Correlation struct {
	ExternalKey       string
	ExternalID        string
	ExternalCreatedAt *time.Time
	ExternalUpdatedAt *time.Time
	LocalSyncedAt     *time.Time
}

func (c *Correlation) recordedTime() *time.Time {
	if c.ExternalUpdatedAt != nil {
		return c.ExternalUpdatedAt
	}
	return c.ExternalCreatedAt
}

// Member is the local side of a pair. Correlation is nil for an entity that was
// never linked to the external catalog.
type Member struct {
	GUID          string
	TypeName      string
	QualifiedName string
	FullName      string
	Properties    EntityProperties
	UpdatedAt     time.Time
	Correlation   *Correlation
}

func (m *Member) linked() bool {
	return m != nil && m.Correlation != nil
}

type MemberQuery struct {
	TypeName   string
	ParentGUID string
}

// Page is a keyset cursor. After is opaque to the caller; "" is the first page.
type Page struct {
	After string
	Size  int
}

type EntityRequest struct {
	TypeName         string
	QualifiedName    string
	ParentGUID       string
	RelationshipType string
	TemplateGUID     string
	Properties       EntityProperties
}

// LinkedResource is a resource that exists locally once its target's passes are
// done. Children of a target are built from these.
type LinkedResource struct {
	FullName string
	Name     string
	GUID     string
}
