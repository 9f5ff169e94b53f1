package reconcile

import "strings"

// QualifiedName builds the local unique name of a resource from its type prefix,
// the external server endpoint and the resource path. It is a pure function.
func QualifiedName(typePrefix string, endpoint string, path ...string) string {
	parts := make([]string, 0, len(path))
	for _, p := range path {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return typePrefix + "::" + strings.TrimRight(endpoint, "/") + "::" + strings.Join(parts, ".")
}

// JoinFullName appends a name to a parent key: "catalog1" + "schema1" is
// "catalog1.schema1".
func JoinFullName(parentKey string, name string) string {
	if parentKey == "" {
		return name
	}
	if name == "" {
		return parentKey
	}
	return parentKey + "." + name
}
