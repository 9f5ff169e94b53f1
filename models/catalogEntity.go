package models

import (
	"errors"
	"time"
)

const (
	EntityTypeCatalog = "Catalog"
	EntityTypeSchema  = "DeployedDatabaseSchema"
	EntityTypeVolume  = "DataFolder"
)

const (
	RelationshipCatalogSchema = "CatalogSchema"
	RelationshipSchemaVolume  = "SchemaVolume"
	RelationshipSourcedFrom   = "SourcedFrom"
)

var (
	ErrEntityNotFound = errors.New("catalog entity not found")
	ErrEntityExists   = errors.New("catalog entity with this qualified name already exists")
	ErrInvalidEntity  = errors.New("invalid catalog entity")
)

// CatalogEntity is one element of the local metadata repository. UpdatedAt is the
// entity's version time and only moves when its properties change.
type CatalogEntity struct {
	ID                 uint      `gorm:"primary_key" json:"id"`
	GUID               string    `gorm:"uniqueIndex;size:36;not null" json:"guid"`
	TypeName           string    `gorm:"index:idx_catalog_entity_type_parent,priority:1;size:100;not null" json:"type_name"`
	ParentGUID         string    `gorm:"index:idx_catalog_entity_type_parent,priority:2;size:36" json:"parent_guid"`
	QualifiedName      string    `gorm:"uniqueIndex;size:512;not null" json:"qualified_name"`
	Name               string    `gorm:"size:255;not null" json:"name"`
	FullName           string    `gorm:"index;size:512" json:"full_name"`
	Description        *string   `gorm:"type:text" json:"description"`
	StoragePath        *string   `gorm:"type:text" json:"storage_path"`
	VolumeType         string    `gorm:"size:50" json:"volume_type"`
	PropertiesJSON     []byte    `gorm:"type:json" json:"properties"`
	ImplementationType string    `gorm:"size:100" json:"implementation_type"`
	IsTemplate         bool      `gorm:"not null;default:false" json:"is_template"`
	CreatedAt          time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type EntityClassification struct {
	ID             uint      `gorm:"primary_key" json:"id"`
	EntityGUID     string    `gorm:"index;size:36;not null" json:"entity_guid"`
	Name           string    `gorm:"size:100;not null" json:"name"`
	PropertiesJSON []byte    `gorm:"type:json" json:"properties"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
}

type EntityRelationship struct {
	ID        uint      `gorm:"primary_key" json:"id"`
	TypeName  string    `gorm:"size:100;not null" json:"type_name"`
	End1GUID  string    `gorm:"index;size:36;not null" json:"end1_guid"`
	End2GUID  string    `gorm:"index;size:36;not null" json:"end2_guid"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// CorrelationRecord links a local entity to its counterpart in one external catalog
// connection. The external timestamps are the values observed at the last sync and
// LocalSyncedAt is the entity version time that sync settled on.
type CorrelationRecord struct {
	ID                uint       `gorm:"primary_key" json:"id"`
	ConnectionId      uint       `gorm:"uniqueIndex:idx_correlation_entity,priority:1;index:idx_correlation_key,priority:1;not null" json:"connection_id"`
	EntityGUID        string     `gorm:"uniqueIndex:idx_correlation_entity,priority:2;size:36;not null" json:"entity_guid"`
	ExternalKey       string     `gorm:"index:idx_correlation_key,priority:2;size:512;not null" json:"external_key"`
	ExternalId        string     `gorm:"size:128" json:"external_id"`
	ExternalCreatedAt *time.Time `json:"external_created_at"`
	ExternalUpdatedAt *time.Time `json:"external_updated_at"`
	LocalSyncedAt     *time.Time `json:"local_synced_at"`
	LastConfirmedAt   *time.Time `json:"last_confirmed_at"`
	CreatedAt         time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// NewCatalogEntity is the input of a bare or template-based create.
type NewCatalogEntity struct {
	TypeName           string            `json:"typeName" binding:"required"`
	QualifiedName      string            `json:"qualifiedName" binding:"required"`
	Name               string            `json:"name" binding:"required"`
	FullName           string            `json:"fullName"`
	Description        *string           `json:"description"`
	StoragePath        *string           `json:"storagePath"`
	VolumeType         string            `json:"volumeType"`
	Properties         map[string]string `json:"properties"`
	ImplementationType string            `json:"implementationType"`
	ParentGUID         string            `json:"parentGuid"`
	RelationshipType   string            `json:"relationshipType"`
	TemplateGUID       string            `json:"templateGuid"`
	IsTemplate         bool              `json:"isTemplate"`
}

// CatalogEntityUpdate carries optional fields. For a merge update nil means "leave
// as is" and a pointer to "" clears the value; a replace update writes every field.
type CatalogEntityUpdate struct {
	Name               *string           `json:"name"`
	FullName           *string           `json:"fullName"`
	Description        *string           `json:"description"`
	StoragePath        *string           `json:"storagePath"`
	VolumeType         *string           `json:"volumeType"`
	Properties         map[string]string `json:"properties"`
	ImplementationType *string           `json:"implementationType"`
}

type CatalogEntityFilter struct {
	TypeName   string
	ParentGUID string
	After      uint
	Limit      int
}
