package unitycatalog

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/mmdatafocus/catalogsync_backend/reconcile"
)

const (
	VolumeTypeManaged  = "MANAGED"
	VolumeTypeExternal = "EXTERNAL"
)

type VolumeInfo struct {
	CatalogName     string  `json:"catalog_name"`
	SchemaName      string  `json:"schema_name"`
	Name            string  `json:"name"`
	Comment         *string `json:"comment,omitempty"`
	CreatedAt       *int64  `json:"created_at,omitempty"`
	UpdatedAt       *int64  `json:"updated_at,omitempty"`
	VolumeID        string  `json:"volume_id"`
	VolumeType      string  `json:"volume_type"`
	StorageLocation *string `json:"storage_location,omitempty"`
	FullName        string  `json:"full_name"`
}

type listVolumesResponse struct {
	Volumes       []VolumeInfo `json:"volumes"`
	NextPageToken string       `json:"next_page_token"`
}

type createVolumeRequest struct {
	CatalogName     string  `json:"catalog_name"`
	SchemaName      string  `json:"schema_name"`
	Name            string  `json:"name"`
	VolumeType      string  `json:"volume_type"`
	Comment         *string `json:"comment,omitempty"`
	StorageLocation *string `json:"storage_location,omitempty"`
}

type updateVolumeRequest struct {
	Comment *string `json:"comment,omitempty"`
}

func (v VolumeInfo) resource() reconcile.Resource {
	parent := reconcile.JoinFullName(v.CatalogName, v.SchemaName)
	fullName := v.FullName
	if fullName == "" {
		fullName = reconcile.JoinFullName(parent, v.Name)
	}
	return reconcile.Resource{
		FullName:        fullName,
		ExternalID:      v.VolumeID,
		Name:            v.Name,
		ParentKey:       parent,
		Comment:         v.Comment,
		StorageLocation: v.StorageLocation,
		VolumeType:      v.VolumeType,
		CreatedAt:       millisToTime(v.CreatedAt),
		UpdatedAt:       millisToTime(v.UpdatedAt),
	}
}

// VolumeCatalog exposes the volumes of Unity Catalog as a reconcile.ExternalCatalog.
// The parent key of a volume is its schema's full name, catalog.schema.
type VolumeCatalog struct {
	client *Client
}

func NewVolumeCatalog(c *Client) *VolumeCatalog {
	return &VolumeCatalog{client: c}
}

func (v *VolumeCatalog) Get(ctx context.Context, fullName string) (*reconcile.Resource, error) {
	var out VolumeInfo
	if err := v.client.do(ctx, http.MethodGet, resourcePath("volumes", fullName), nil, nil, &out); err != nil {
		return nil, fmt.Errorf("get volume %s: %w", fullName, err)
	}
	res := out.resource()
	return &res, nil
}

func (v *VolumeCatalog) List(ctx context.Context, schemaFullName string) ([]reconcile.Resource, error) {
	catalogName, schemaName, err := splitSchemaKey(schemaFullName)
	if err != nil {
		return nil, err
	}
	var out []reconcile.Resource
	token := ""
	for {
		query := url.Values{}
		query.Set("catalog_name", catalogName)
		query.Set("schema_name", schemaName)
		query.Set("max_results", strconv.Itoa(v.client.pageSize))
		if token != "" {
			query.Set("page_token", token)
		}
		var page listVolumesResponse
		if err := v.client.do(ctx, http.MethodGet, "/volumes", query, nil, &page); err != nil {
			return nil, fmt.Errorf("list volumes of %s: %w", schemaFullName, err)
		}
		for _, volume := range page.Volumes {
			out = append(out, volume.resource())
		}
		if page.NextPageToken == "" || page.NextPageToken == token {
			return out, nil
		}
		token = page.NextPageToken
	}
}

// Create makes an EXTERNAL volume when a storage location is given and a MANAGED
// one otherwise, unless the caller names the type.
func (v *VolumeCatalog) Create(ctx context.Context, spec reconcile.ResourceSpec) (*reconcile.Resource, error) {
	if spec.Name == "" {
		return nil, fmt.Errorf("create volume: %w", errEmptyName)
	}
	catalogName, schemaName, err := splitSchemaKey(spec.ParentKey)
	if err != nil {
		return nil, err
	}
	volumeType := spec.VolumeType
	if volumeType == "" {
		volumeType = VolumeTypeManaged
		if spec.StorageLocation != nil && *spec.StorageLocation != "" {
			volumeType = VolumeTypeExternal
		}
	}
	body := createVolumeRequest{
		CatalogName:     catalogName,
		SchemaName:      schemaName,
		Name:            spec.Name,
		VolumeType:      volumeType,
		Comment:         spec.Comment,
		StorageLocation: spec.StorageLocation,
	}
	var out VolumeInfo
	if err := v.client.do(ctx, http.MethodPost, "/volumes", nil, body, &out); err != nil {
		return nil, fmt.Errorf("create volume %s.%s: %w", spec.ParentKey, spec.Name, err)
	}
	res := out.resource()
	return &res, nil
}

// Update only carries the comment; the server does not let volume type or
// storage location change.
func (v *VolumeCatalog) Update(ctx context.Context, fullName string, spec reconcile.ResourceSpec) (*reconcile.Resource, error) {
	var out VolumeInfo
	if err := v.client.do(ctx, http.MethodPatch, resourcePath("volumes", fullName), nil, updateVolumeRequest{Comment: spec.Comment}, &out); err != nil {
		return nil, fmt.Errorf("update volume %s: %w", fullName, err)
	}
	res := out.resource()
	return &res, nil
}

func (v *VolumeCatalog) Delete(ctx context.Context, fullName string) error {
	if err := v.client.do(ctx, http.MethodDelete, resourcePath("volumes", fullName), nil, nil, nil); err != nil {
		return fmt.Errorf("delete volume %s: %w", fullName, err)
	}
	return nil
}
