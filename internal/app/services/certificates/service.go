// Package certificates implements the certificate registry: minting against
// products, ownership transfer, monotonic invalidation, and read-time
// verification by code.
package certificates

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/TraceChain-Network/ledger_layer/internal/app/core"
	"github.com/TraceChain-Network/ledger_layer/internal/app/domain/access"
	"github.com/TraceChain-Network/ledger_layer/internal/app/domain/certificate"
	"github.com/TraceChain-Network/ledger_layer/internal/app/domain/product"
	"github.com/TraceChain-Network/ledger_layer/internal/app/events"
	"github.com/TraceChain-Network/ledger_layer/internal/app/metrics"
	"github.com/TraceChain-Network/ledger_layer/internal/app/services/accessctrl"
	"github.com/TraceChain-Network/ledger_layer/internal/app/storage"
	"github.com/TraceChain-Network/ledger_layer/pkg/logger"
)

const serviceName = "certificates"

// ProductReader resolves products for mint-time validation. A nil reader
// skips product checks; factory-deployed certificate instances reference
// products registered elsewhere.
type ProductReader interface {
	GetProduct(ctx context.Context, id uint64) (product.Product, error)
}

// Service is the certificate registry component.
type Service struct {
	store    storage.CertificateStore
	acl      *accessctrl.Service
	products ProductReader
	events   events.Logger
	logger   *logger.Logger
	guard    core.Guard
	tenant   string

	now func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithTenant tags every emitted event with a tenant handle.
func WithTenant(handle string) Option {
	return func(s *Service) { s.tenant = handle }
}

// New creates the certificate service.
func New(store storage.CertificateStore, acl *accessctrl.Service, products ProductReader, eventLog events.Logger, log *logger.Logger, opts ...Option) (*Service, error) {
	if acl == nil {
		return nil, core.RequiredError("access control")
	}
	if log == nil {
		log = logger.NewDefault(serviceName)
	}
	s := &Service{
		store:    store,
		acl:      acl,
		products: products,
		events:   events.OrNoOp(eventLog),
		logger:   log,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Service) reject(err error) error {
	metrics.OperationRejected(serviceName, core.Kind(err))
	return err
}

func (s *Service) emit(eventType events.Type, actor string, pairs ...string) {
	ev := events.New(eventType, actor, pairs...)
	ev.Tenant = s.tenant
	s.events.Emit(ev)
}

// MintInput carries caller-supplied certificate fields. An empty
// VerificationCode is generated.
type MintInput struct {
	ProductID        uint64
	Type             certificate.Type
	Owner            string
	Standards        []string
	ExpiresAt        time.Time
	MetadataURI      string
	VerificationCode string
}

// Mint issues a certificate. Caller must hold the minter role; a product can
// hold only one live certificate per type.
func (s *Service) Mint(ctx context.Context, caller string, in MintInput) (certificate.Certificate, error) {
	if err := s.guard.Enter(); err != nil {
		return certificate.Certificate{}, err
	}
	defer s.guard.Exit()

	if err := s.acl.RequireActive(ctx); err != nil {
		return certificate.Certificate{}, s.reject(err)
	}
	if err := s.acl.RequireRole(ctx, access.RoleMinter, caller); err != nil {
		return certificate.Certificate{}, s.reject(err)
	}
	if !in.Type.Valid() {
		return certificate.Certificate{}, s.reject(core.NewValidationError("type",
			fmt.Sprintf("unknown certificate type %q", in.Type)))
	}
	if in.Owner == "" {
		return certificate.Certificate{}, s.reject(core.RequiredError("owner"))
	}
	if !in.ExpiresAt.IsZero() && !in.ExpiresAt.After(s.now()) {
		return certificate.Certificate{}, s.reject(core.NewValidationError("expires at", "must be in the future"))
	}
	if s.products != nil {
		p, err := s.products.GetProduct(ctx, in.ProductID)
		if err != nil {
			return certificate.Certificate{}, s.reject(err)
		}
		if !p.Active {
			return certificate.Certificate{}, s.reject(core.NewConflictError("product",
				fmt.Sprint(in.ProductID), "product is deactivated"))
		}
	}

	code := in.VerificationCode
	if code == "" {
		code = newVerificationCode()
	}

	created, err := s.store.CreateCertificate(ctx, certificate.Certificate{
		ProductID:        in.ProductID,
		Type:             in.Type,
		Owner:            in.Owner,
		Issuer:           caller,
		Standards:        in.Standards,
		ExpiresAt:        in.ExpiresAt,
		MetadataURI:      in.MetadataURI,
		VerificationCode: code,
		Valid:            true,
	})
	if err != nil {
		return certificate.Certificate{}, s.reject(err)
	}

	metrics.CertificateMinted()
	s.emit(events.CertificateMinted, caller,
		"certificate_id", fmt.Sprint(created.ID),
		"product_id", fmt.Sprint(created.ProductID),
		"type", string(created.Type))
	s.logger.WithField("certificate_id", created.ID).WithField("type", created.Type).Info("certificate minted")
	return created, nil
}

func newVerificationCode() string {
	return "CERT-" + strings.ToUpper(uuid.NewString()[:18])
}

// Invalidate permanently voids a certificate. Current owner or admin only;
// invalidation never reverses.
func (s *Service) Invalidate(ctx context.Context, caller string, id uint64, reason string) error {
	if err := s.guard.Enter(); err != nil {
		return err
	}
	defer s.guard.Exit()

	if err := s.acl.RequireActive(ctx); err != nil {
		return s.reject(err)
	}
	cert, err := s.store.GetCertificate(ctx, id)
	if err != nil {
		return s.reject(err)
	}
	if caller != cert.Owner {
		if err := s.acl.RequireRole(ctx, access.RoleAdmin, caller); err != nil {
			return s.reject(err)
		}
	}
	if !cert.Valid {
		return s.reject(core.NewConflictError("certificate", fmt.Sprint(id), "already invalidated"))
	}

	cert.Valid = false
	if _, err := s.store.UpdateCertificate(ctx, cert); err != nil {
		return s.reject(err)
	}
	s.emit(events.CertificateInvalidated, caller,
		"certificate_id", fmt.Sprint(id), "reason", reason)
	return nil
}

// Transfer moves certificate ownership. Current owner only; dead
// certificates do not transfer.
func (s *Service) Transfer(ctx context.Context, caller string, id uint64, newOwner string) error {
	if err := s.guard.Enter(); err != nil {
		return err
	}
	defer s.guard.Exit()

	if err := s.acl.RequireActive(ctx); err != nil {
		return s.reject(err)
	}
	if newOwner == "" {
		return s.reject(core.RequiredError("new owner"))
	}
	cert, err := s.store.GetCertificate(ctx, id)
	if err != nil {
		return s.reject(err)
	}
	if caller != cert.Owner {
		return s.reject(core.NewAccessDeniedError("certificate", fmt.Sprint(id), caller))
	}
	if v := s.verification(cert); !v.Valid {
		return s.reject(core.NewConflictError("certificate", fmt.Sprint(id), v.Reason))
	}
	if newOwner == cert.Owner {
		return s.reject(core.NewValidationError("new owner", "self transfer"))
	}

	cert.Owner = newOwner
	if _, err := s.store.UpdateCertificate(ctx, cert); err != nil {
		return s.reject(err)
	}
	s.emit(events.CertificateTransferred, caller,
		"certificate_id", fmt.Sprint(id), "to", newOwner)
	return nil
}

// Verify resolves a verification code and evaluates validity at read time.
// Unknown codes report invalid rather than erroring.
func (s *Service) Verify(ctx context.Context, code string) (certificate.Verification, error) {
	cert, err := s.store.GetCertificateByCode(ctx, code)
	if err != nil {
		if core.IsNotFound(err) {
			return certificate.Verification{Valid: false, Reason: "unknown verification code"}, nil
		}
		return certificate.Verification{}, err
	}
	return s.verification(cert), nil
}

// VerifyByID evaluates one certificate's validity at read time.
func (s *Service) VerifyByID(ctx context.Context, id uint64) (certificate.Verification, error) {
	cert, err := s.store.GetCertificate(ctx, id)
	if err != nil {
		return certificate.Verification{}, err
	}
	return s.verification(cert), nil
}

func (s *Service) verification(cert certificate.Certificate) certificate.Verification {
	v := certificate.Verification{CertificateID: cert.ID}
	switch {
	case !cert.Valid:
		v.Reason = "invalidated"
	case !cert.ExpiresAt.IsZero() && !cert.ExpiresAt.After(s.now()):
		v.Reason = "expired"
	default:
		v.Valid = true
	}
	return v
}

// Certificate returns one certificate by id.
func (s *Service) Certificate(ctx context.Context, id uint64) (certificate.Certificate, error) {
	return s.store.GetCertificate(ctx, id)
}

// ByProduct lists every certificate ever issued for a product.
func (s *Service) ByProduct(ctx context.Context, productID uint64) ([]certificate.Certificate, error) {
	return s.store.ListCertificatesByProduct(ctx, productID)
}
