package product

import "time"

// Product is one traced supply-chain item. Products are never physically
// deleted; Active toggles soft deactivation.
type Product struct {
	ID              uint64
	Name            string
	Type            string
	BatchNumber     string
	ManufactureDate time.Time
	ExpiryDate      time.Time
	RawMaterials    []string
	Manufacturer    string
	Active          bool
	MetadataURI     string
	Stakeholders    []string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// HasStakeholder reports whether account is a registered stakeholder.
func (p Product) HasStakeholder(account string) bool {
	for _, s := range p.Stakeholders {
		if s == account {
			return true
		}
	}
	return false
}

// Checkpoint is one milestone event on a product's trace history.
// Checkpoints are append-only; entries may be amended, never removed.
type Checkpoint struct {
	Seq         int
	ProductID   uint64
	Timestamp   time.Time
	Location    string
	Actor       string
	Status      string
	Environment map[string]string
	Data        string
	RecordedAt  time.Time
	AmendedAt   time.Time
}

// Input carries caller-supplied fields for product registration.
type Input struct {
	Name            string
	Type            string
	BatchNumber     string
	ManufactureDate time.Time
	ExpiryDate      time.Time
	RawMaterials    []string
	MetadataURI     string
}

// CheckpointInput carries caller-supplied fields for a checkpoint.
type CheckpointInput struct {
	ProductID   uint64
	Timestamp   time.Time
	Location    string
	Status      string
	Environment map[string]string
	Data        string
}

// Update carries mutable product fields; nil pointers leave fields untouched.
type Update struct {
	Name         *string
	Type         *string
	ExpiryDate   *time.Time
	RawMaterials []string
	MetadataURI  *string
}
