package reconcile

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

const defaultPageSize = 100

var validate = validator.New()

// Target is one collection to reconcile, such as the schemas of a catalog or the
// volumes of one schema.
type Target struct {
	Kind                string `validate:"required"`
	TypeName            string `validate:"required"`
	RelationshipType    string
	ParentKey           string `validate:"required"`
	ParentGUID          string
	TemplateGUID        string
	ImplementationType  string
	QualifiedNamePrefix string          `validate:"required"`
	Endpoint            string          `validate:"required"`
	External            ExternalCatalog `validate:"required"`
	PageSize            int             `validate:"gte=0,lte=1000"`
	// Children returns the child target of a resource that exists locally once
	// this target is done, or nil when the resource has no children to sync.
	Children func(parent LinkedResource) *Target `validate:"-"`
}

func (t *Target) validate() error {
	if t == nil {
		return fmt.Errorf("%w: target is required", ErrInvalidParameter)
	}
	if err := validate.Struct(t); err != nil {
		return fmt.Errorf("%w: %s target: %v", ErrInvalidParameter, t.Kind, err)
	}
	if t.RelationshipType != "" && t.ParentGUID == "" {
		return fmt.Errorf("%w: %s under %s", ErrParentNotResolved, t.Kind, t.ParentKey)
	}
	return nil
}

func (t *Target) pageSize() int {
	if t.PageSize <= 0 {
		return defaultPageSize
	}
	return t.PageSize
}

func (t *Target) qualifiedName(fullName string) string {
	return QualifiedName(t.QualifiedNamePrefix, t.Endpoint, fullName)
}
