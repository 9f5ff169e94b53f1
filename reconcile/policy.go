package reconcile

import (
	"fmt"
	"strings"
)

type Policy int

const (
	// BothDirections copies changes whichever side made them.
	BothDirections Policy = iota
	// FromExternal treats the external catalog as home.
	FromExternal
	// ToExternal treats the local store as home.
	ToExternal
)

func (p Policy) String() string {
	switch p {
	case BothDirections:
		return "bidirectional"
	case FromExternal:
		return "external"
	case ToExternal:
		return "local"
	default:
		return fmt.Sprintf("Policy(%d)", int(p))
	}
}

func (p Policy) valid() bool {
	return p == BothDirections || p == FromExternal || p == ToExternal
}

func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "bidirectional", "both", "":
		return BothDirections, nil
	case "external", "from_external", "external_is_home":
		return FromExternal, nil
	case "local", "to_external", "local_is_home":
		return ToExternal, nil
	default:
		return 0, fmt.Errorf("%w: unknown sync policy %q", ErrInvalidParameter, s)
	}
}

func (p Policy) MarshalText() ([]byte, error) {
	if !p.valid() {
		return nil, fmt.Errorf("%w: unknown sync policy %d", ErrInvalidParameter, int(p))
	}
	return []byte(p.String()), nil
}

func (p *Policy) UnmarshalText(text []byte) error {
	parsed, err := ParsePolicy(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
