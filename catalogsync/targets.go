package catalogsync

import (
	"github.com/mmdatafocus/catalogsync_backend/models"
	"github.com/mmdatafocus/catalogsync_backend/reconcile"
)

const (
	KindSchema = "schema"
	KindVolume = "volume"
)

const (
	CatalogQualifiedNamePrefix = "UnityCatalog.Catalog"
	SchemaQualifiedNamePrefix  = "UnityCatalog.Schema"
	VolumeQualifiedNamePrefix  = "UnityCatalog.Volume"
)

const (
	schemaImplementationType = "Unity Catalog Schema"
	volumeImplementationType = "Unity Catalog Volume"
)

type TargetSpec struct {
	Endpoint    string
	CatalogName string
	CatalogGUID string
	Settings    SyncSettings
	Schemas     reconcile.ExternalCatalog
	Volumes     reconcile.ExternalCatalog
}

// BuildTarget returns the schema target of one catalog. Each schema that exists
// locally once the schema passes are done gets a volume child target.
func BuildTarget(spec TargetSpec) *reconcile.Target {
	root := &reconcile.Target{
		Kind:                KindSchema,
		TypeName:            models.EntityTypeSchema,
		RelationshipType:    models.RelationshipCatalogSchema,
		ParentKey:           spec.CatalogName,
		ParentGUID:          spec.CatalogGUID,
		TemplateGUID:        spec.Settings.SchemaTemplateGUID,
		ImplementationType:  schemaImplementationType,
		QualifiedNamePrefix: SchemaQualifiedNamePrefix,
		Endpoint:            spec.Endpoint,
		External:            spec.Schemas,
		PageSize:            spec.Settings.PageSize,
	}
	if !spec.Settings.IncludeVolumes || spec.Volumes == nil {
		return root
	}
	root.Children = func(schema reconcile.LinkedResource) *reconcile.Target {
		return &reconcile.Target{
			Kind:                KindVolume,
			TypeName:            models.EntityTypeVolume,
			RelationshipType:    models.RelationshipSchemaVolume,
			ParentKey:           schema.FullName,
			ParentGUID:          schema.GUID,
			TemplateGUID:        spec.Settings.VolumeTemplateGUID,
			ImplementationType:  volumeImplementationType,
			QualifiedNamePrefix: VolumeQualifiedNamePrefix,
			Endpoint:            spec.Endpoint,
			External:            spec.Volumes,
			PageSize:            spec.Settings.PageSize,
		}
	}
	return root
}
