package unitycatalog

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/mmdatafocus/catalogsync_backend/reconcile"
)

type SchemaInfo struct {
	Name        string            `json:"name"`
	CatalogName string            `json:"catalog_name"`
	Comment     *string           `json:"comment,omitempty"`
	Properties  map[string]string `json:"properties,omitempty"`
	FullName    string            `json:"full_name"`
	CreatedAt   *int64            `json:"created_at,omitempty"`
	UpdatedAt   *int64            `json:"updated_at,omitempty"`
	SchemaID    string            `json:"schema_id"`
}

type listSchemasResponse struct {
	Schemas       []SchemaInfo `json:"schemas"`
	NextPageToken string       `json:"next_page_token"`
}

type createSchemaRequest struct {
	Name        string            `json:"name"`
	CatalogName string            `json:"catalog_name"`
	Comment     *string           `json:"comment,omitempty"`
	Properties  map[string]string `json:"properties,omitempty"`
}

type updateSchemaRequest struct {
	Comment    *string           `json:"comment,omitempty"`
	Properties map[string]string `json:"properties,omitempty"`
}

func (s SchemaInfo) resource() reconcile.Resource {
	fullName := s.FullName
	if fullName == "" {
		fullName = reconcile.JoinFullName(s.CatalogName, s.Name)
	}
	return reconcile.Resource{
		FullName:   fullName,
		ExternalID: s.SchemaID,
		Name:       s.Name,
		ParentKey:  s.CatalogName,
		Comment:    s.Comment,
		Properties: s.Properties,
		CreatedAt:  millisToTime(s.CreatedAt),
		UpdatedAt:  millisToTime(s.UpdatedAt),
	}
}

// SchemaCatalog exposes the schemas of Unity Catalog as a reconcile.ExternalCatalog.
// The parent key of a schema is its catalog name.
type SchemaCatalog struct {
	client *Client
}

func NewSchemaCatalog(c *Client) *SchemaCatalog {
	return &SchemaCatalog{client: c}
}

func (s *SchemaCatalog) Get(ctx context.Context, fullName string) (*reconcile.Resource, error) {
	var out SchemaInfo
	if err := s.client.do(ctx, http.MethodGet, resourcePath("schemas", fullName), nil, nil, &out); err != nil {
		return nil, fmt.Errorf("get schema %s: %w", fullName, err)
	}
	res := out.resource()
	return &res, nil
}

func (s *SchemaCatalog) List(ctx context.Context, catalogName string) ([]reconcile.Resource, error) {
	var out []reconcile.Resource
	token := ""
	for {
		query := url.Values{}
		query.Set("catalog_name", catalogName)
		query.Set("max_results", strconv.Itoa(s.client.pageSize))
		if token != "" {
			query.Set("page_token", token)
		}
		var page listSchemasResponse
		if err := s.client.do(ctx, http.MethodGet, "/schemas", query, nil, &page); err != nil {
			return nil, fmt.Errorf("list schemas of %s: %w", catalogName, err)
		}
		for _, schema := range page.Schemas {
			out = append(out, schema.resource())
		}
		if page.NextPageToken == "" || page.NextPageToken == token {
			return out, nil
		}
		token = page.NextPageToken
	}
}

func (s *SchemaCatalog) Create(ctx context.Context, spec reconcile.ResourceSpec) (*reconcile.Resource, error) {
	if spec.Name == "" {
		return nil, fmt.Errorf("create schema: %w", errEmptyName)
	}
	body := createSchemaRequest{
		Name:        spec.Name,
		CatalogName: spec.ParentKey,
		Comment:     spec.Comment,
		Properties:  spec.Properties,
	}
	var out SchemaInfo
	if err := s.client.do(ctx, http.MethodPost, "/schemas", nil, body, &out); err != nil {
		return nil, fmt.Errorf("create schema %s.%s: %w", spec.ParentKey, spec.Name, err)
	}
	res := out.resource()
	return &res, nil
}

func (s *SchemaCatalog) Update(ctx context.Context, fullName string, spec reconcile.ResourceSpec) (*reconcile.Resource, error) {
	body := updateSchemaRequest{Comment: spec.Comment, Properties: spec.Properties}
	var out SchemaInfo
	if err := s.client.do(ctx, http.MethodPatch, resourcePath("schemas", fullName), nil, body, &out); err != nil {
		return nil, fmt.Errorf("update schema %s: %w", fullName, err)
	}
	res := out.resource()
	return &res, nil
}

// Delete never forces, so a schema that still holds volumes is refused by the server.
func (s *SchemaCatalog) Delete(ctx context.Context, fullName string) error {
	if err := s.client.do(ctx, http.MethodDelete, resourcePath("schemas", fullName), nil, nil, nil); err != nil {
		return fmt.Errorf("delete schema %s: %w", fullName, err)
	}
	return nil
}
