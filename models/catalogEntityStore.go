package models

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mmdatafocus/catalogsync_backend/utils"
	"gorm.io/gorm"
)

var ErrCorrelationNotFound = errors.New("correlation record not found")

func (input *NewCatalogEntity) validate() error {
	if strings.TrimSpace(input.TypeName) == "" {
		return fmt.Errorf("%w: type name is required", ErrInvalidEntity)
	}
	if strings.TrimSpace(input.QualifiedName) == "" {
		return fmt.Errorf("%w: qualified name is required", ErrInvalidEntity)
	}
	if strings.TrimSpace(input.Name) == "" && input.TemplateGUID == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidEntity)
	}
	if input.ParentGUID != "" && input.RelationshipType == "" {
		return fmt.Errorf("%w: relationship type is required with a parent", ErrInvalidEntity)
	}
	return nil
}

// CreateCatalogEntity creates a bare entity, or a copy of a template when
// TemplateGUID is set. A template contributes its properties (overridden by the
// input), classifications and relationships. The entity is attached to its parent
// with a RelationshipType edge.
func CreateCatalogEntity(ctx context.Context, db *gorm.DB, input *NewCatalogEntity) (*CatalogEntity, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}

	existing, err := FindCatalogEntityByQualifiedName(ctx, db, "", input.QualifiedName)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: %s", ErrEntityExists, input.QualifiedName)
	}

	entity := CatalogEntity{
		GUID:               uuid.NewString(),
		TypeName:           input.TypeName,
		ParentGUID:         input.ParentGUID,
		QualifiedName:      input.QualifiedName,
		Name:               input.Name,
		FullName:           input.FullName,
		Description:        input.Description,
		StoragePath:        input.StoragePath,
		VolumeType:         input.VolumeType,
		PropertiesJSON:     utils.EncodeStringMap(input.Properties),
		ImplementationType: input.ImplementationType,
		IsTemplate:         input.IsTemplate,
	}

	var template *CatalogEntity
	if input.TemplateGUID != "" {
		template, err = GetCatalogEntity(ctx, db, input.TemplateGUID)
		if err != nil {
			return nil, fmt.Errorf("template %s: %w", input.TemplateGUID, err)
		}
		applyTemplate(&entity, template, input)
	}

	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&entity).Error; err != nil {
			return err
		}
		if template != nil {
			if err := copyTemplateEdges(tx, template.GUID, entity.GUID); err != nil {
				return err
			}
		}
		if input.ParentGUID != "" {
			edge := EntityRelationship{
				TypeName: input.RelationshipType,
				End1GUID: input.ParentGUID,
				End2GUID: entity.GUID,
			}
			if err := tx.Create(&edge).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &entity, nil
}

func applyTemplate(entity *CatalogEntity, template *CatalogEntity, input *NewCatalogEntity) {
	if entity.Name == "" {
		entity.Name = template.Name
	}
	if entity.Description == nil {
		entity.Description = template.Description
	}
	if entity.StoragePath == nil {
		entity.StoragePath = template.StoragePath
	}
	if entity.VolumeType == "" {
		entity.VolumeType = template.VolumeType
	}
	if entity.ImplementationType == "" {
		entity.ImplementationType = template.ImplementationType
	}
	props := utils.DecodeStringMap(template.PropertiesJSON)
	if len(props) > 0 {
		for k, v := range input.Properties {
			props[k] = v
		}
		entity.PropertiesJSON = utils.EncodeStringMap(props)
	}
	entity.IsTemplate = false
}

func copyTemplateEdges(tx *gorm.DB, templateGUID string, guid string) error {
	var classifications []EntityClassification
	if err := tx.Where("entity_guid = ?", templateGUID).Order("id").Find(&classifications).Error; err != nil {
		return err
	}
	for _, c := range classifications {
		copied := EntityClassification{EntityGUID: guid, Name: c.Name, PropertiesJSON: c.PropertiesJSON}
		if err := tx.Create(&copied).Error; err != nil {
			return err
		}
	}

	var edges []EntityRelationship
	if err := tx.Where("end1_guid = ? OR end2_guid = ?", templateGUID, templateGUID).Order("id").Find(&edges).Error; err != nil {
		return err
	}
	for _, e := range edges {
		copied := EntityRelationship{TypeName: e.TypeName, End1GUID: e.End1GUID, End2GUID: e.End2GUID}
		if copied.End1GUID == templateGUID {
			copied.End1GUID = guid
		}
		if copied.End2GUID == templateGUID {
			copied.End2GUID = guid
		}
		if err := tx.Create(&copied).Error; err != nil {
			return err
		}
	}
	return nil
}

func GetCatalogEntity(ctx context.Context, db *gorm.DB, guid string) (*CatalogEntity, error) {
	var entity CatalogEntity
	if err := db.WithContext(ctx).Where("guid = ?", guid).Take(&entity).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEntityNotFound
		}
		return nil, err
	}
	return &entity, nil
}

// FindCatalogEntityByQualifiedName returns nil, nil when no entity has the name.
// An empty typeName matches any type.
func FindCatalogEntityByQualifiedName(ctx context.Context, db *gorm.DB, typeName string, qualifiedName string) (*CatalogEntity, error) {
	var entity CatalogEntity
	query := db.WithContext(ctx).Where("qualified_name = ?", qualifiedName)
	if typeName != "" {
		query = query.Where("type_name = ?", typeName)
	}
	if err := query.Take(&entity).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &entity, nil
}

// ListCatalogEntities is keyset-paginated on id so pages stay stable while earlier
// rows are deleted. Templates are never listed.
func ListCatalogEntities(ctx context.Context, db *gorm.DB, filter CatalogEntityFilter) ([]CatalogEntity, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	query := db.WithContext(ctx).Where("is_template = ?", false)
	if filter.TypeName != "" {
		query = query.Where("type_name = ?", filter.TypeName)
	}
	if filter.ParentGUID != "" {
		query = query.Where("parent_guid = ?", filter.ParentGUID)
	}
	if filter.After > 0 {
		query = query.Where("id > ?", filter.After)
	}
	var results []CatalogEntity
	if err := query.Order("id").Limit(limit).Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// ReplaceCatalogEntity overwrites every updatable field. Nil pointers and a nil
// property map are written as NULL.
func ReplaceCatalogEntity(ctx context.Context, db *gorm.DB, guid string, input *CatalogEntityUpdate) (*CatalogEntity, error) {
	if input.Name == nil || strings.TrimSpace(*input.Name) == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidEntity)
	}
	entity, err := GetCatalogEntity(ctx, db, guid)
	if err != nil {
		return nil, err
	}
	update := map[string]interface{}{
		"name":                *input.Name,
		"full_name":           stringOrEmpty(input.FullName),
		"description":         input.Description,
		"storage_path":        input.StoragePath,
		"volume_type":         stringOrEmpty(input.VolumeType),
		"properties_json":     utils.EncodeStringMap(input.Properties),
		"implementation_type": stringOrEmpty(input.ImplementationType),
	}
	if err := db.WithContext(ctx).Model(entity).Updates(update).Error; err != nil {
		return nil, err
	}
	return GetCatalogEntity(ctx, db, guid)
}

// MergeCatalogEntity writes only the fields that are set. A pointer to "" clears a
// nullable column.
func MergeCatalogEntity(ctx context.Context, db *gorm.DB, guid string, input *CatalogEntityUpdate) (*CatalogEntity, error) {
	entity, err := GetCatalogEntity(ctx, db, guid)
	if err != nil {
		return nil, err
	}
	update := map[string]interface{}{}
	if input.Name != nil {
		if strings.TrimSpace(*input.Name) == "" {
			return nil, fmt.Errorf("%w: name cannot be cleared", ErrInvalidEntity)
		}
		update["name"] = *input.Name
	}
	if input.FullName != nil {
		update["full_name"] = *input.FullName
	}
	if input.Description != nil {
		update["description"] = nullIfEmpty(*input.Description)
	}
	if input.StoragePath != nil {
		update["storage_path"] = nullIfEmpty(*input.StoragePath)
	}
	if input.VolumeType != nil {
		update["volume_type"] = *input.VolumeType
	}
	if input.ImplementationType != nil {
		update["implementation_type"] = *input.ImplementationType
	}
	if input.Properties != nil {
		merged := utils.DecodeStringMap(entity.PropertiesJSON)
		if merged == nil {
			merged = map[string]string{}
		}
		for k, v := range input.Properties {
			merged[k] = v
		}
		update["properties_json"] = utils.EncodeStringMap(merged)
	}
	if len(update) == 0 {
		return entity, nil
	}
	if err := db.WithContext(ctx).Model(entity).Updates(update).Error; err != nil {
		return nil, err
	}
	return GetCatalogEntity(ctx, db, guid)
}

// DeleteCatalogEntity removes the entity together with its own edges,
// classifications and correlation rows. Child entities are left in place.
func DeleteCatalogEntity(ctx context.Context, db *gorm.DB, guid string) error {
	entity, err := GetCatalogEntity(ctx, db, guid)
	if err != nil {
		return err
	}
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("end1_guid = ? OR end2_guid = ?", guid, guid).Delete(&EntityRelationship{}).Error; err != nil {
			return err
		}
		if err := tx.Where("entity_guid = ?", guid).Delete(&EntityClassification{}).Error; err != nil {
			return err
		}
		if err := tx.Where("entity_guid = ?", guid).Delete(&CorrelationRecord{}).Error; err != nil {
			return err
		}
		return tx.Delete(entity).Error
	})
}

func GetEntityClassifications(ctx context.Context, db *gorm.DB, guid string) ([]EntityClassification, error) {
	var results []EntityClassification
	if err := db.WithContext(ctx).Where("entity_guid = ?", guid).Order("id").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func GetEntityRelationships(ctx context.Context, db *gorm.DB, guid string) ([]EntityRelationship, error) {
	var results []EntityRelationship
	if err := db.WithContext(ctx).Where("end1_guid = ? OR end2_guid = ?", guid, guid).Order("id").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// AddEntityClassification attaches a named classification to an existing entity.
// Entities created from a template inherit the template's classifications.
func AddEntityClassification(ctx context.Context, db *gorm.DB, guid string, name string, props map[string]string) (*EntityClassification, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: classification name is required", ErrInvalidEntity)
	}
	if _, err := GetCatalogEntity(ctx, db, guid); err != nil {
		return nil, err
	}
	c := EntityClassification{EntityGUID: guid, Name: name, PropertiesJSON: utils.EncodeStringMap(props)}
	if err := db.WithContext(ctx).Create(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// GetCorrelation returns nil, nil when the entity was never linked on this connection.
func GetCorrelation(ctx context.Context, db *gorm.DB, connectionId uint, guid string) (*CorrelationRecord, error) {
	var rec CorrelationRecord
	if err := db.WithContext(ctx).Where("connection_id = ? AND entity_guid = ?", connectionId, guid).Take(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

func GetCorrelations(ctx context.Context, db *gorm.DB, connectionId uint, guids []string) (map[string]CorrelationRecord, error) {
	out := make(map[string]CorrelationRecord, len(guids))
	if len(guids) == 0 {
		return out, nil
	}
	var recs []CorrelationRecord
	if err := db.WithContext(ctx).Where("connection_id = ? AND entity_guid IN ?", connectionId, guids).Find(&recs).Error; err != nil {
		return nil, err
	}
	for _, rec := range recs {
		out[rec.EntityGUID] = rec
	}
	return out, nil
}

// UpsertCorrelation writes the external identity and timestamps of a link, leaving
// LocalSyncedAt to ConfirmCorrelation.
func UpsertCorrelation(ctx context.Context, db *gorm.DB, rec CorrelationRecord) error {
	if rec.ConnectionId == 0 || rec.EntityGUID == "" {
		return fmt.Errorf("%w: correlation needs a connection and an entity", ErrInvalidEntity)
	}
	existing, err := GetCorrelation(ctx, db, rec.ConnectionId, rec.EntityGUID)
	if err != nil {
		return err
	}
	if existing == nil {
		return db.WithContext(ctx).Create(&rec).Error
	}
	return db.WithContext(ctx).Model(existing).Updates(map[string]interface{}{
		"external_key":        rec.ExternalKey,
		"external_id":         rec.ExternalId,
		"external_created_at": rec.ExternalCreatedAt,
		"external_updated_at": rec.ExternalUpdatedAt,
	}).Error
}

// ConfirmCorrelation settles the link at the entity's current version time.
func ConfirmCorrelation(ctx context.Context, db *gorm.DB, connectionId uint, guid string) error {
	entity, err := GetCatalogEntity(ctx, db, guid)
	if err != nil {
		return err
	}
	existing, err := GetCorrelation(ctx, db, connectionId, guid)
	if err != nil {
		return err
	}
	if existing == nil {
		return fmt.Errorf("%w: entity %s", ErrCorrelationNotFound, guid)
	}
	syncedAt := entity.UpdatedAt
	now := time.Now()
	return db.WithContext(ctx).Model(existing).Updates(map[string]interface{}{
		"local_synced_at":   &syncedAt,
		"last_confirmed_at": &now,
	}).Error
}

func stringOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
