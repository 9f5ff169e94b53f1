package reconcile

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActionHandlersCoverEveryAction(t *testing.T) {
	for _, action := range Actions {
		_, ok := actionHandlers[action]
		assert.True(t, ok, "no handler for %s", action)
	}
	assert.Len(t, actionHandlers, len(Actions))

	err := execute(context.Background(), Action("RENAME_LOCAL"), &execution{})
	assert.ErrorIs(t, err, ErrInvalidParameter)
}

func TestCreateLocalReusesMappedEntity(t *testing.T) {
	fx := newFixture()
	ids := NewIdentifierMap()
	ids.Record("catalog1.schema1", "guid-existing")

	x := &execution{
		local:    fx.local,
		target:   fx.schemaTarget(),
		ids:      ids,
		resource: &Resource{FullName: "catalog1.schema1", ExternalID: "schema1", Name: "schema1"},
	}
	require.NoError(t, execute(context.Background(), CreateLocal, x))
	assert.Equal(t, "guid-existing", x.guid)
	assert.Empty(t, fx.local.entities)
	assert.Empty(t, fx.local.calls)
}

func TestCreateExternalRefusesNameHeldByAnotherEntity(t *testing.T) {
	fx := newFixture()
	guid := fx.unlinkedSchema("schema1")
	ids := NewIdentifierMap()
	ids.Record("catalog1.schema1", "guid-other")

	member := snapshot(fx.local.find(guid))
	x := &execution{local: fx.local, target: fx.schemaTarget(), ids: ids, member: &member, guid: guid}
	err := execute(context.Background(), CreateExternal, x)
	assert.ErrorIs(t, err, ErrDuplicateEntity)
	assert.Empty(t, fx.schemas.created)
}

func TestCreateLocalNeedsResolvedParent(t *testing.T) {
	fx := newFixture()
	target := fx.schemaTarget()
	target.ParentGUID = ""
	x := &execution{
		local:    fx.local,
		target:   target,
		ids:      NewIdentifierMap(),
		resource: &Resource{FullName: "catalog1.schema1", Name: "schema1"},
	}
	err := execute(context.Background(), CreateLocal, x)
	assert.ErrorIs(t, err, ErrParentNotResolved)
	assert.Empty(t, fx.local.entities)
}

func TestCreateLocalUsesTemplate(t *testing.T) {
	fx := newFixture()
	target := fx.schemaTarget()
	target.TemplateGUID = "template-guid"
	x := &execution{
		local:    fx.local,
		target:   target,
		ids:      NewIdentifierMap(),
		resource: &Resource{FullName: "catalog1.schema1", ExternalID: "schema1"},
	}
	require.NoError(t, execute(context.Background(), CreateLocal, x))
	e := fx.local.find(x.guid)
	require.NotNil(t, e)
	assert.Equal(t, "template-guid", e.template)
	assert.Equal(t, "schema1", e.member.Properties.Name)
	guid, ok := x.ids.Lookup("catalog1.schema1")
	assert.True(t, ok)
	assert.Equal(t, x.guid, guid)
}

func TestReviewRemoteSkipsMappedNames(t *testing.T) {
	fx := newFixture()
	t1 := fx.clock.Now()
	fx.schemas.put(Resource{FullName: "catalog1.schema1", ExternalID: "schema1", Name: "schema1", ParentKey: "catalog1", CreatedAt: &t1})

	ids := NewIdentifierMap()
	ids.Record("catalog1.schema1", "guid-1")
	report := newReport(BothDirections, false)
	d := fx.driver(BothDirections)
	p := newTargetPass(d, fx.schemaTarget(), ids, report, d.logger().WithField("kind", "schema"))

	require.NoError(t, p.reviewRemote(context.Background()))
	assert.Empty(t, report.Items)
	assert.Empty(t, fx.local.calls)
}

func TestUnappliedFields(t *testing.T) {
	path := "s3://bucket/files"
	tests := []struct {
		name string
		spec ResourceSpec
		got  Resource
		want []string
	}{
		{name: "all taken", spec: ResourceSpec{Comment: strPtr("c"), Properties: map[string]string{"a": "1"}}, got: Resource{Comment: strPtr("c"), Properties: map[string]string{"a": "1"}}},
		{name: "nil and empty comment agree", spec: ResourceSpec{Comment: strPtr("")}, got: Resource{}},
		{name: "cleared comment kept", spec: ResourceSpec{}, got: Resource{Comment: strPtr("old")}, want: []string{"comment"}},
		{name: "cleared properties kept", spec: ResourceSpec{}, got: Resource{Properties: map[string]string{"a": "1"}}, want: []string{"properties"}},
		{name: "storage location unchanged", spec: ResourceSpec{StorageLocation: &path}, got: Resource{StorageLocation: strPtr("s3://bucket/old")}, want: []string{"storage_location"}},
		{name: "no storage location requested", spec: ResourceSpec{}, got: Resource{StorageLocation: &path}},
		{name: "volume type unchanged", spec: ResourceSpec{VolumeType: "EXTERNAL"}, got: Resource{VolumeType: "MANAGED"}, want: []string{"volume_type"}},
		{name: "volume type case", spec: ResourceSpec{VolumeType: "managed"}, got: Resource{VolumeType: "MANAGED"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.got
			assert.Equal(t, tt.want, unappliedFields(tt.spec, &got))
		})
	}
}
