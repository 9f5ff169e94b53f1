package reconcile

// IdentifierMap maps external full names to local GUIDs for one run. The Driver
// owns it and hands the same map to every target of the run.
type IdentifierMap struct {
	guids map[string]string
}

func NewIdentifierMap() *IdentifierMap {
	return &IdentifierMap{guids: map[string]string{}}
}

func (m *IdentifierMap) Lookup(fullName string) (string, bool) {
	guid, ok := m.guids[fullName]
	return guid, ok
}

func (m *IdentifierMap) Record(fullName string, guid string) {
	m.guids[fullName] = guid
}

func (m *IdentifierMap) Len() int {
	return len(m.guids)
}
