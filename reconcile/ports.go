package reconcile

import "context"

// LocalStore is the metadata repository side of a reconciliation.
type LocalStore interface {
	// ListMembers returns one page and the cursor of the next; "" ends the walk.
	ListMembers(ctx context.Context, query MemberQuery, page Page) ([]Member, string, error)
	// GetMemberByName returns nil, nil when no entity has the qualified name.
	GetMemberByName(ctx context.Context, typeName string, qualifiedName string) (*Member, error)
	CreateEntity(ctx context.Context, req EntityRequest) (string, error)
	// UpdateEntity replaces the entity's properties.
	UpdateEntity(ctx context.Context, guid string, props EntityProperties) error
	DeleteEntity(ctx context.Context, guid string) error
	RecordExternalIdentifier(ctx context.Context, guid string, correlation Correlation) error
	// ConfirmSync marks the entity's current version as settled.
	ConfirmSync(ctx context.Context, guid string) error
}

// ExternalCatalog is one collection type (schemas, volumes) of the external system.
type ExternalCatalog interface {
	// Get returns an error wrapping ErrResourceNotFound when the resource is absent.
	Get(ctx context.Context, fullName string) (*Resource, error)
	// List returns every resource under parentKey, across all pages.
	List(ctx context.Context, parentKey string) ([]Resource, error)
	Create(ctx context.Context, spec ResourceSpec) (*Resource, error)
	Update(ctx context.Context, fullName string, spec ResourceSpec) (*Resource, error)
	Delete(ctx context.Context, fullName string) error
}
