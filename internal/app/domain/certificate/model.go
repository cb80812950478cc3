package certificate

import "time"

// Type tags the certificate slot a product can hold.
type Type string

const (
	TypeAuthenticity Type = "authenticity"
	TypeCompliance   Type = "compliance"
	TypeQuality      Type = "quality"
)

// Valid reports whether t is a recognized certificate type.
func (t Type) Valid() bool {
	switch t {
	case TypeAuthenticity, TypeCompliance, TypeQuality:
		return true
	}
	return false
}

// Certificate is a unique, ownable attestation bound to a product.
// Invalidation is monotonic; expiry is evaluated at read time.
type Certificate struct {
	ID               uint64
	ProductID        uint64
	Type             Type
	Owner            string
	Issuer           string
	Standards        []string
	IssuedAt         time.Time
	ExpiresAt        time.Time
	MetadataURI      string
	VerificationCode string
	Valid            bool
}

// Verification is the read-time validity result.
type Verification struct {
	CertificateID uint64
	Valid         bool
	Reason        string
}
