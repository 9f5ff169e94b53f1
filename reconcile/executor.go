package reconcile

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"
)

// execution is the state one handler works on. guid is the local entity of the
// pair once the action is applied, "" when there is none. unapplied names the
// local values an external update did not take.
type execution struct {
	local     LocalStore
	target    *Target
	ids       *IdentifierMap
	member    *Member
	resource  *Resource
	guid      string
	unapplied []string
}

type actionHandler func(ctx context.Context, x *execution) error

var actionHandlers = map[Action]actionHandler{
	NoAction:       func(context.Context, *execution) error { return nil },
	CreateLocal:    createLocal,
	UpdateLocal:    updateLocal,
	DeleteLocal:    deleteLocal,
	CreateExternal: createExternal,
	UpdateExternal: updateExternal,
	DeleteExternal: deleteExternal,
}

func execute(ctx context.Context, action Action, x *execution) error {
	handler, ok := actionHandlers[action]
	if !ok {
		return fmt.Errorf("%w: no handler for action %q", ErrInvalidParameter, action)
	}
	return handler(ctx, x)
}

func createLocal(ctx context.Context, x *execution) error {
	res := x.resource
	if guid, ok := x.ids.Lookup(res.FullName); ok {
		x.guid = guid
		return nil
	}
	if x.target.RelationshipType != "" && x.target.ParentGUID == "" {
		return ErrParentNotResolved
	}

	guid, err := x.local.CreateEntity(ctx, EntityRequest{
		TypeName:         x.target.TypeName,
		QualifiedName:    x.target.qualifiedName(res.FullName),
		ParentGUID:       x.target.ParentGUID,
		RelationshipType: x.target.RelationshipType,
		TemplateGUID:     x.target.TemplateGUID,
		Properties:       propertiesFromResource(res, x.target),
	})
	if err != nil {
		return fmt.Errorf("create entity: %w", err)
	}
	x.ids.Record(res.FullName, guid)
	x.guid = guid
	return link(ctx, x.local, guid, res)
}

func updateLocal(ctx context.Context, x *execution) error {
	if err := x.local.UpdateEntity(ctx, x.member.GUID, propertiesFromResource(x.resource, x.target)); err != nil {
		return fmt.Errorf("update entity: %w", err)
	}
	return link(ctx, x.local, x.member.GUID, x.resource)
}

func deleteLocal(ctx context.Context, x *execution) error {
	if err := x.local.DeleteEntity(ctx, x.member.GUID); err != nil {
		return fmt.Errorf("delete entity: %w", err)
	}
	x.guid = ""
	return nil
}

func createExternal(ctx context.Context, x *execution) error {
	m := x.member
	if guid, ok := x.ids.Lookup(m.FullName); ok && guid != m.GUID {
		return fmt.Errorf("%w: %s is already held by %s", ErrDuplicateEntity, m.FullName, guid)
	}
	created, err := x.target.External.Create(ctx, specFromMember(m, x.target))
	if err != nil {
		return fmt.Errorf("create external: %w", err)
	}
	if created == nil {
		return errors.New("create external: no resource returned")
	}
	x.ids.Record(m.FullName, m.GUID)
	return link(ctx, x.local, m.GUID, created)
}

func updateExternal(ctx context.Context, x *execution) error {
	m := x.member
	spec := specFromMember(m, x.target)
	updated, err := x.target.External.Update(ctx, m.FullName, spec)
	if err != nil {
		return fmt.Errorf("update external: %w", err)
	}
	if updated == nil {
		return errors.New("update external: no resource returned")
	}
	x.unapplied = unappliedFields(spec, updated)
	return link(ctx, x.local, m.GUID, updated)
}

// unappliedFields compares an update request with the resource the external
// catalog returned. Unity Catalog cannot change a volume's type or storage
// location, and a PATCH omits cleared comments and properties, so those values
// stay behind. A nil storage location or empty volume type is no request.
func unappliedFields(spec ResourceSpec, got *Resource) []string {
	var fields []string
	if stringValue(spec.Comment) != stringValue(got.Comment) {
		fields = append(fields, "comment")
	}
	if spec.StorageLocation != nil && *spec.StorageLocation != stringValue(got.StorageLocation) {
		fields = append(fields, "storage_location")
	}
	if spec.VolumeType != "" && !strings.EqualFold(spec.VolumeType, got.VolumeType) {
		fields = append(fields, "volume_type")
	}
	if !maps.Equal(spec.Properties, got.Properties) {
		fields = append(fields, "properties")
	}
	return fields
}

func stringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func deleteExternal(ctx context.Context, x *execution) error {
	if err := x.target.External.Delete(ctx, x.resource.FullName); err != nil {
		return fmt.Errorf("delete external: %w", err)
	}
	x.guid = ""
	return nil
}

// link writes the correlation of guid to res and settles it.
func link(ctx context.Context, local LocalStore, guid string, res *Resource) error {
	correlation := Correlation{
		ExternalKey:       res.FullName,
		ExternalID:        res.ExternalID,
		ExternalCreatedAt: res.CreatedAt,
		ExternalUpdatedAt: res.UpdatedAt,
	}
	if err := local.RecordExternalIdentifier(ctx, guid, correlation); err != nil {
		return fmt.Errorf("record external identifier: %w", err)
	}
	if err := local.ConfirmSync(ctx, guid); err != nil {
		return fmt.Errorf("confirm sync: %w", err)
	}
	return nil
}

func propertiesFromResource(res *Resource, t *Target) EntityProperties {
	name := res.Name
	if name == "" {
		name = res.FullName[strings.LastIndex(res.FullName, ".")+1:]
	}
	return EntityProperties{
		Name:               name,
		FullName:           res.FullName,
		Description:        res.Comment,
		StoragePath:        res.StorageLocation,
		VolumeType:         res.VolumeType,
		Properties:         res.Properties,
		ImplementationType: t.ImplementationType,
	}
}

func specFromMember(m *Member, t *Target) ResourceSpec {
	name := m.Properties.Name
	if name == "" {
		name = m.FullName[strings.LastIndex(m.FullName, ".")+1:]
	}
	return ResourceSpec{
		Name:            name,
		ParentKey:       t.ParentKey,
		FullName:        m.FullName,
		Comment:         m.Properties.Description,
		StorageLocation: m.Properties.StoragePath,
		VolumeType:      m.Properties.VolumeType,
		Properties:      m.Properties.Properties,
	}
}
