package catalogsync

import (
	"context"
	"errors"
	"fmt"

	"github.com/mmdatafocus/catalogsync_backend/models"
	"github.com/mmdatafocus/catalogsync_backend/reconcile"
	"github.com/mmdatafocus/catalogsync_backend/utils"
	"gorm.io/gorm"
)

const maxPageSize = 1000

// Store is the metadata repository of one catalog connection seen as a
// reconcile.LocalStore. Correlation rows are scoped to the connection.
type Store struct {
	db           *gorm.DB
	connectionId uint
}

func NewStore(db *gorm.DB, connectionId uint) *Store {
	return &Store{db: db, connectionId: connectionId}
}

func (s *Store) ListMembers(ctx context.Context, query reconcile.MemberQuery, page reconcile.Page) ([]reconcile.Member, string, error) {
	after, err := models.DecodeIDCursor(page.After)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", reconcile.ErrInvalidParameter, err)
	}
	limit := page.Size
	if limit <= 0 || limit > maxPageSize {
		limit = 100
	}

	entities, err := models.ListCatalogEntities(ctx, s.db, models.CatalogEntityFilter{
		TypeName:   query.TypeName,
		ParentGUID: query.ParentGUID,
		After:      after,
		Limit:      limit,
	})
	if err != nil {
		return nil, "", err
	}
	if len(entities) == 0 {
		return nil, "", nil
	}

	guids := make([]string, 0, len(entities))
	for _, e := range entities {
		guids = append(guids, e.GUID)
	}
	correlations, err := models.GetCorrelations(ctx, s.db, s.connectionId, guids)
	if err != nil {
		return nil, "", err
	}

	members := make([]reconcile.Member, 0, len(entities))
	for _, e := range entities {
		var corr *models.CorrelationRecord
		if rec, ok := correlations[e.GUID]; ok {
			corr = &rec
		}
		members = append(members, memberFromEntity(e, corr))
	}

	next := ""
	if len(entities) == limit {
		next = models.EncodeIDCursor(entities[len(entities)-1].ID)
	}
	return members, next, nil
}

func (s *Store) GetMemberByName(ctx context.Context, typeName string, qualifiedName string) (*reconcile.Member, error) {
	entity, err := models.FindCatalogEntityByQualifiedName(ctx, s.db, typeName, qualifiedName)
	if err != nil {
		return nil, err
	}
	if entity == nil || entity.IsTemplate {
		return nil, nil
	}
	corr, err := models.GetCorrelation(ctx, s.db, s.connectionId, entity.GUID)
	if err != nil {
		return nil, err
	}
	member := memberFromEntity(*entity, corr)
	return &member, nil
}

func (s *Store) CreateEntity(ctx context.Context, req reconcile.EntityRequest) (string, error) {
	props := req.Properties
	entity, err := models.CreateCatalogEntity(ctx, s.db, &models.NewCatalogEntity{
		TypeName:           req.TypeName,
		QualifiedName:      req.QualifiedName,
		Name:               props.Name,
		FullName:           props.FullName,
		Description:        props.Description,
		StoragePath:        props.StoragePath,
		VolumeType:         props.VolumeType,
		Properties:         props.Properties,
		ImplementationType: props.ImplementationType,
		ParentGUID:         req.ParentGUID,
		RelationshipType:   req.RelationshipType,
		TemplateGUID:       req.TemplateGUID,
	})
	if err != nil {
		if errors.Is(err, models.ErrEntityExists) {
			return "", fmt.Errorf("%w: %v", reconcile.ErrDuplicateEntity, err)
		}
		return "", err
	}
	return entity.GUID, nil
}

func (s *Store) UpdateEntity(ctx context.Context, guid string, props reconcile.EntityProperties) error {
	_, err := models.ReplaceCatalogEntity(ctx, s.db, guid, &models.CatalogEntityUpdate{
		Name:               &props.Name,
		FullName:           &props.FullName,
		Description:        props.Description,
		StoragePath:        props.StoragePath,
		VolumeType:         &props.VolumeType,
		Properties:         props.Properties,
		ImplementationType: &props.ImplementationType,
	})
	return err
}

// DeleteEntity treats an entity that is already gone as deleted.
func (s *Store) DeleteEntity(ctx context.Context, guid string) error {
	if err := models.DeleteCatalogEntity(ctx, s.db, guid); err != nil && !errors.Is(err, models.ErrEntityNotFound) {
		return err
	}
	return nil
}

func (s *Store) RecordExternalIdentifier(ctx context.Context, guid string, correlation reconcile.Correlation) error {
	return models.UpsertCorrelation(ctx, s.db, models.CorrelationRecord{
		ConnectionId:      s.connectionId,
		EntityGUID:        guid,
		ExternalKey:       correlation.ExternalKey,
		ExternalId:        correlation.ExternalID,
		ExternalCreatedAt: correlation.ExternalCreatedAt,
		ExternalUpdatedAt: correlation.ExternalUpdatedAt,
	})
}

func (s *Store) ConfirmSync(ctx context.Context, guid string) error {
	return models.ConfirmCorrelation(ctx, s.db, s.connectionId, guid)
}

func memberFromEntity(e models.CatalogEntity, corr *models.CorrelationRecord) reconcile.Member {
	m := reconcile.Member{
		GUID:          e.GUID,
		TypeName:      e.TypeName,
		QualifiedName: e.QualifiedName,
		FullName:      e.FullName,
		Properties: reconcile.EntityProperties{
			Name:               e.Name,
			FullName:           e.FullName,
			Description:        e.Description,
			StoragePath:        e.StoragePath,
			VolumeType:         e.VolumeType,
			Properties:         utils.DecodeStringMap(e.PropertiesJSON),
			ImplementationType: e.ImplementationType,
		},
		UpdatedAt: e.UpdatedAt,
	}
	if corr != nil {
		m.Correlation = &reconcile.Correlation{
			ExternalKey:       corr.ExternalKey,
			ExternalID:        corr.ExternalId,
			ExternalCreatedAt: corr.ExternalCreatedAt,
			ExternalUpdatedAt: corr.ExternalUpdatedAt,
			LocalSyncedAt:     corr.LocalSyncedAt,
		}
	}
	return m
}
