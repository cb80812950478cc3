package tenant

import "time"

// Kind identifies which component a factory instance runs.
type Kind string

const (
	KindRegistry     Kind = "registry"
	KindCertificates Kind = "certificates"
	KindCompliance   Kind = "compliance"
)

// Valid reports whether k is a recognized instance kind.
func (k Kind) Valid() bool {
	switch k {
	case KindRegistry, KindCertificates, KindCompliance:
		return true
	}
	return false
}

// Instance is a factory record of one deployed, isolated component namespace.
type Instance struct {
	Handle     string
	Kind       Kind
	Org        string
	Key        string
	Metadata   map[string]string
	Active     bool
	RuleCount  int64
	CheckCount int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Stats are factory-level aggregates, maintained O(1).
type Stats struct {
	Instances   int64
	Active      int64
	Rules       int64
	Checks      int64
	GeneratedAt time.Time
}
