package unitycatalog

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mmdatafocus/catalogsync_backend/reconcile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := NewClient(srv.URL+"/", "secret-token", WithHTTPClient(srv.Client()), WithRateLimit(1000), WithPageSize(2))
	require.NoError(t, err)
	return c
}

func TestNewClientRejectsBadEndpoint(t *testing.T) {
	_, err := NewClient("", "t")
	assert.ErrorIs(t, err, reconcile.ErrInvalidParameter)

	_, err = NewClient("not a url", "t")
	assert.ErrorIs(t, err, reconcile.ErrInvalidParameter)

	c, err := NewClient("http://uc.local:8080/", "t")
	require.NoError(t, err)
	assert.Equal(t, "http://uc.local:8080", c.Endpoint())
}

func TestSchemaListFollowsPageTokens(t *testing.T) {
	var tokens []string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret-token", r.Header.Get("Authorization"))
		assert.Equal(t, "/api/2.1/unity-catalog/schemas", r.URL.Path)
		assert.Equal(t, "unity", r.URL.Query().Get("catalog_name"))
		assert.Equal(t, "2", r.URL.Query().Get("max_results"))
		tokens = append(tokens, r.URL.Query().Get("page_token"))

		created := int64(1700000000000)
		switch r.URL.Query().Get("page_token") {
		case "":
			json.NewEncoder(w).Encode(listSchemasResponse{
				Schemas: []SchemaInfo{
					{Name: "default", CatalogName: "unity", FullName: "unity.default", SchemaID: "s-1", CreatedAt: &created},
					{Name: "sales", CatalogName: "unity", SchemaID: "s-2"},
				},
				NextPageToken: "p2",
			})
		default:
			json.NewEncoder(w).Encode(listSchemasResponse{
				Schemas: []SchemaInfo{{Name: "ops", CatalogName: "unity", FullName: "unity.ops", SchemaID: "s-3"}},
			})
		}
	})

	got, err := NewSchemaCatalog(c).List(context.Background(), "unity")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"", "p2"}, tokens)
	assert.Equal(t, "unity.default", got[0].FullName)
	assert.Equal(t, "unity", got[0].ParentKey)
	require.NotNil(t, got[0].CreatedAt)
	assert.Equal(t, int64(1700000000000), got[0].CreatedAt.UnixMilli())
	assert.Nil(t, got[0].UpdatedAt)
	assert.Equal(t, "unity.sales", got[1].FullName)
	assert.Equal(t, "s-3", got[2].ExternalID)
}

func TestGetMapsNotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		io.WriteString(w, `{"error_code":"SCHEMA_DOES_NOT_EXIST","message":"Schema not found: unity.gone"}`)
	})

	_, err := NewSchemaCatalog(c).Get(context.Background(), "unity.gone")
	require.Error(t, err)
	assert.True(t, errors.Is(err, reconcile.ErrResourceNotFound))
	assert.Contains(t, err.Error(), "unity.gone")

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "SCHEMA_DOES_NOT_EXIST", apiErr.ErrorCode)
}

func TestServerErrorIsNotNotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, "boom")
	})

	_, err := NewVolumeCatalog(c).Get(context.Background(), "unity.default.v")
	require.Error(t, err)
	assert.False(t, errors.Is(err, reconcile.ErrResourceNotFound))

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
	assert.Equal(t, "boom", apiErr.Message)
}

func TestSchemaCreateSendsBody(t *testing.T) {
	comment := "raw events"
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var body createSchemaRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "events", body.Name)
		assert.Equal(t, "unity", body.CatalogName)
		require.NotNil(t, body.Comment)
		assert.Equal(t, comment, *body.Comment)
		assert.Equal(t, map[string]string{"owner": "data"}, body.Properties)

		json.NewEncoder(w).Encode(SchemaInfo{Name: body.Name, CatalogName: body.CatalogName, FullName: "unity.events", SchemaID: "s-9", Comment: body.Comment})
	})

	res, err := NewSchemaCatalog(c).Create(context.Background(), reconcile.ResourceSpec{
		Name:       "events",
		ParentKey:  "unity",
		Comment:    &comment,
		Properties: map[string]string{"owner": "data"},
	})
	require.NoError(t, err)
	assert.Equal(t, "unity.events", res.FullName)
	assert.Equal(t, "s-9", res.ExternalID)
}

func TestSchemaDeleteEscapesName(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/api/2.1/unity-catalog/schemas/unity.default", r.URL.Path)
		assert.Empty(t, r.URL.Query().Get("force"))
		w.WriteHeader(http.StatusOK)
	})

	require.NoError(t, NewSchemaCatalog(c).Delete(context.Background(), "unity.default"))
}

func TestVolumeListSplitsParentKey(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "unity", r.URL.Query().Get("catalog_name"))
		assert.Equal(t, "default", r.URL.Query().Get("schema_name"))
		json.NewEncoder(w).Encode(listVolumesResponse{
			Volumes: []VolumeInfo{{CatalogName: "unity", SchemaName: "default", Name: "files", VolumeID: "v-1", VolumeType: VolumeTypeManaged}},
		})
	})

	got, err := NewVolumeCatalog(c).List(context.Background(), "unity.default")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "unity.default.files", got[0].FullName)
	assert.Equal(t, "unity.default", got[0].ParentKey)
	assert.Equal(t, VolumeTypeManaged, got[0].VolumeType)
}

func TestVolumeListRejectsBadParent(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request %s", r.URL.Path)
	})

	_, err := NewVolumeCatalog(c).List(context.Background(), "unity")
	assert.ErrorIs(t, err, reconcile.ErrInvalidParameter)
}

func TestVolumeCreatePicksType(t *testing.T) {
	var types []string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body createVolumeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		types = append(types, body.VolumeType)
		json.NewEncoder(w).Encode(VolumeInfo{
			CatalogName:     body.CatalogName,
			SchemaName:      body.SchemaName,
			Name:            body.Name,
			VolumeType:      body.VolumeType,
			StorageLocation: body.StorageLocation,
		})
	})
	vc := NewVolumeCatalog(c)

	_, err := vc.Create(context.Background(), reconcile.ResourceSpec{Name: "a", ParentKey: "unity.default"})
	require.NoError(t, err)

	loc := "s3://bucket/b"
	res, err := vc.Create(context.Background(), reconcile.ResourceSpec{Name: "b", ParentKey: "unity.default", StorageLocation: &loc})
	require.NoError(t, err)
	require.NotNil(t, res.StorageLocation)
	assert.Equal(t, loc, *res.StorageLocation)

	assert.Equal(t, []string{VolumeTypeManaged, VolumeTypeExternal}, types)
}

func TestVolumeUpdateSendsComment(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/api/2.1/unity-catalog/volumes/unity.default.files", r.URL.Path)
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, map[string]interface{}{"comment": "landing"}, body)
		json.NewEncoder(w).Encode(VolumeInfo{CatalogName: "unity", SchemaName: "default", Name: "files"})
	})

	comment := "landing"
	res, err := NewVolumeCatalog(c).Update(context.Background(), "unity.default.files", reconcile.ResourceSpec{Comment: &comment, VolumeType: VolumeTypeManaged})
	require.NoError(t, err)
	assert.Equal(t, "unity.default.files", res.FullName)
}

func TestCanceledContextStopsBeforeRequest(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request %s", r.URL.Path)
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.GetCatalog(ctx, "unity")
	assert.Error(t, err)
}
