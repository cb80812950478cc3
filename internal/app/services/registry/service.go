// Package registry implements the product registry: registration, soft
// deactivation, stakeholder management, and the append-only checkpoint trail.
package registry

import (
	"context"
	"fmt"

	"github.com/TraceChain-Network/ledger_layer/internal/app/core"
	"github.com/TraceChain-Network/ledger_layer/internal/app/domain/access"
	"github.com/TraceChain-Network/ledger_layer/internal/app/domain/product"
	"github.com/TraceChain-Network/ledger_layer/internal/app/events"
	"github.com/TraceChain-Network/ledger_layer/internal/app/metrics"
	"github.com/TraceChain-Network/ledger_layer/internal/app/services/accessctrl"
	"github.com/TraceChain-Network/ledger_layer/internal/app/storage"
	"github.com/TraceChain-Network/ledger_layer/pkg/logger"
)

const serviceName = "registry"

// maxBatch bounds a single batch registration call.
const maxBatch = 50

// Service is the product registry component.
type Service struct {
	store  storage.ProductStore
	acl    *accessctrl.Service
	events events.Logger
	logger *logger.Logger
	guard  core.Guard
	tenant string
}

// Option configures a Service.
type Option func(*Service)

// WithTenant tags every emitted event with a tenant handle. Used by factory
// deployments.
func WithTenant(handle string) Option {
	return func(s *Service) { s.tenant = handle }
}

// New creates the registry service.
func New(store storage.ProductStore, acl *accessctrl.Service, eventLog events.Logger, log *logger.Logger, opts ...Option) (*Service, error) {
	if acl == nil {
		return nil, core.RequiredError("access control")
	}
	if log == nil {
		log = logger.NewDefault(serviceName)
	}
	s := &Service{
		store:  store,
		acl:    acl,
		events: events.OrNoOp(eventLog),
		logger: log,
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

func validateInput(in product.Input) error {
	if in.Name == "" {
		return core.RequiredError("name")
	}
	if in.BatchNumber == "" {
		return core.RequiredError("batch number")
	}
	if !in.ExpiryDate.IsZero() && !in.ManufactureDate.IsZero() && !in.ExpiryDate.After(in.ManufactureDate) {
		return core.NewValidationError("expiry date", "must be after manufacture date")
	}
	return nil
}

func fromInput(in product.Input, manufacturer string) product.Product {
	return product.Product{
		Name:            in.Name,
		Type:            in.Type,
		BatchNumber:     in.BatchNumber,
		ManufactureDate: in.ManufactureDate,
		ExpiryDate:      in.ExpiryDate,
		RawMaterials:    in.RawMaterials,
		Manufacturer:    manufacturer,
		Active:          true,
		MetadataURI:     in.MetadataURI,
		Stakeholders:    []string{manufacturer},
	}
}

// Register records a new product. Caller must hold the processor role and
// becomes the product's manufacturer and first stakeholder.
func (s *Service) Register(ctx context.Context, caller string, in product.Input) (product.Product, error) {
	if err := s.guard.Enter(); err != nil {
		return product.Product{}, err
	}
	defer s.guard.Exit()

	if err := s.acl.RequireActive(ctx); err != nil {
		return product.Product{}, s.reject(err)
	}
	if err := s.acl.RequireRole(ctx, access.RoleProcessor, caller); err != nil {
		return product.Product{}, s.reject(err)
	}
	if err := validateInput(in); err != nil {
		return product.Product{}, s.reject(err)
	}

	created, err := s.store.CreateProduct(ctx, fromInput(in, caller))
	if err != nil {
		return product.Product{}, s.reject(err)
	}

	metrics.ProductRegistered()
	s.emit(events.ProductRegistered, caller,
		"product_id", fmt.Sprint(created.ID), "batch", created.BatchNumber)
	s.logger.WithField("product_id", created.ID).WithField("batch", created.BatchNumber).Info("product registered")
	return created, nil
}

// RegisterBatch records up to maxBatch products atomically. One invalid
// entry aborts the whole batch.
func (s *Service) RegisterBatch(ctx context.Context, caller string, ins []product.Input) ([]product.Product, error) {
	if err := s.guard.Enter(); err != nil {
		return nil, err
	}
	defer s.guard.Exit()

	if err := s.acl.RequireActive(ctx); err != nil {
		return nil, s.reject(err)
	}
	if err := s.acl.RequireRole(ctx, access.RoleProcessor, caller); err != nil {
		return nil, s.reject(err)
	}
	if len(ins) == 0 {
		return nil, s.reject(core.RequiredError("products"))
	}
	if len(ins) > maxBatch {
		return nil, s.reject(core.NewLimitError("batch size",
			fmt.Sprintf("%d products exceed the maximum %d", len(ins), maxBatch)))
	}

	batch := make([]product.Product, 0, len(ins))
	for _, in := range ins {
		if err := validateInput(in); err != nil {
			return nil, s.reject(err)
		}
		batch = append(batch, fromInput(in, caller))
	}

	created, err := s.store.CreateProductBatch(ctx, batch)
	if err != nil {
		return nil, s.reject(err)
	}

	for _, p := range created {
		metrics.ProductRegistered()
		s.emit(events.ProductRegistered, caller,
			"product_id", fmt.Sprint(p.ID), "batch", p.BatchNumber)
	}
	return created, nil
}

// Update amends mutable product fields. Manufacturer or admin only; the
// product must be active.
func (s *Service) Update(ctx context.Context, caller string, id uint64, update product.Update) (product.Product, error) {
	if err := s.guard.Enter(); err != nil {
		return product.Product{}, err
	}
	defer s.guard.Exit()

	if err := s.acl.RequireActive(ctx); err != nil {
		return product.Product{}, s.reject(err)
	}
	p, err := s.store.GetProduct(ctx, id)
	if err != nil {
		return product.Product{}, s.reject(err)
	}
	if caller != p.Manufacturer {
		if err := s.acl.RequireRole(ctx, access.RoleAdmin, caller); err != nil {
			return product.Product{}, s.reject(err)
		}
	}
	if !p.Active {
		return product.Product{}, s.reject(core.NewConflictError("product", fmt.Sprint(id), "product is deactivated"))
	}

	if update.Name != nil {
		if *update.Name == "" {
			return product.Product{}, s.reject(core.RequiredError("name"))
		}
		p.Name = *update.Name
	}
	if update.Type != nil {
		p.Type = *update.Type
	}
	if update.ExpiryDate != nil {
		p.ExpiryDate = *update.ExpiryDate
	}
	if update.RawMaterials != nil {
		p.RawMaterials = update.RawMaterials
	}
	if update.MetadataURI != nil {
		p.MetadataURI = *update.MetadataURI
	}

	updated, err := s.store.UpdateProduct(ctx, p)
	if err != nil {
		return product.Product{}, s.reject(err)
	}
	s.emit(events.ProductUpdated, caller, "product_id", fmt.Sprint(id))
	return updated, nil
}

// Deactivate soft-deletes a product. Manufacturer or admin only.
func (s *Service) Deactivate(ctx context.Context, caller string, id uint64) error {
	return s.setActive(ctx, caller, id, false)
}

// Reactivate restores a deactivated product. Manufacturer or admin only.
func (s *Service) Reactivate(ctx context.Context, caller string, id uint64) error {
	return s.setActive(ctx, caller, id, true)
}

func (s *Service) setActive(ctx context.Context, caller string, id uint64, active bool) error {
	if err := s.guard.Enter(); err != nil {
		return err
	}
	defer s.guard.Exit()

	if err := s.acl.RequireActive(ctx); err != nil {
		return s.reject(err)
	}
	p, err := s.store.GetProduct(ctx, id)
	if err != nil {
		return s.reject(err)
	}
	if caller != p.Manufacturer {
		if err := s.acl.RequireRole(ctx, access.RoleAdmin, caller); err != nil {
			return s.reject(err)
		}
	}
	if p.Active == active {
		reason := "already active"
		if !active {
			reason = "already deactivated"
		}
		return s.reject(core.NewConflictError("product", fmt.Sprint(id), reason))
	}

	p.Active = active
	if _, err := s.store.UpdateProduct(ctx, p); err != nil {
		return s.reject(err)
	}

	eventType := events.ProductDeactivated
	if active {
		eventType = events.ProductReactivated
	}
	s.emit(eventType, caller, "product_id", fmt.Sprint(id))
	return nil
}

// AddStakeholder registers account on the product. Manufacturer only.
func (s *Service) AddStakeholder(ctx context.Context, caller string, id uint64, account string) error {
	if err := s.guard.Enter(); err != nil {
		return err
	}
	defer s.guard.Exit()

	if err := s.acl.RequireActive(ctx); err != nil {
		return s.reject(err)
	}
	if account == "" {
		return s.reject(core.RequiredError("account"))
	}
	p, err := s.store.GetProduct(ctx, id)
	if err != nil {
		return s.reject(err)
	}
	if caller != p.Manufacturer {
		return s.reject(core.NewAccessDeniedError("product", fmt.Sprint(id), caller))
	}
	if p.HasStakeholder(account) {
		return s.reject(core.NewConflictError("product", fmt.Sprint(id),
			fmt.Sprintf("%s is already a stakeholder", account)))
	}

	p.Stakeholders = append(p.Stakeholders, account)
	if _, err := s.store.UpdateProduct(ctx, p); err != nil {
		return s.reject(err)
	}
	s.emit(events.StakeholderAdded, caller, "product_id", fmt.Sprint(id), "account", account)
	return nil
}

// RemoveStakeholder removes account from the product. Manufacturer only; the
// manufacturer itself cannot be removed.
func (s *Service) RemoveStakeholder(ctx context.Context, caller string, id uint64, account string) error {
	if err := s.guard.Enter(); err != nil {
		return err
	}
	defer s.guard.Exit()

	if err := s.acl.RequireActive(ctx); err != nil {
		return s.reject(err)
	}
	p, err := s.store.GetProduct(ctx, id)
	if err != nil {
		return s.reject(err)
	}
	if caller != p.Manufacturer {
		return s.reject(core.NewAccessDeniedError("product", fmt.Sprint(id), caller))
	}
	if account == p.Manufacturer {
		return s.reject(core.NewConflictError("product", fmt.Sprint(id), "manufacturer cannot be removed"))
	}
	if !p.HasStakeholder(account) {
		return s.reject(core.NewNotFoundError("stakeholder", account))
	}

	kept := p.Stakeholders[:0]
	for _, sh := range p.Stakeholders {
		if sh != account {
			kept = append(kept, sh)
		}
	}
	p.Stakeholders = kept
	if _, err := s.store.UpdateProduct(ctx, p); err != nil {
		return s.reject(err)
	}
	s.emit(events.StakeholderRemoved, caller, "product_id", fmt.Sprint(id), "account", account)
	return nil
}

// AddCheckpoint appends a trace checkpoint. Caller must be a stakeholder of
// an active product.
func (s *Service) AddCheckpoint(ctx context.Context, caller string, in product.CheckpointInput) (product.Checkpoint, error) {
	if err := s.guard.Enter(); err != nil {
		return product.Checkpoint{}, err
	}
	defer s.guard.Exit()

	if err := s.acl.RequireActive(ctx); err != nil {
		return product.Checkpoint{}, s.reject(err)
	}
	cp, err := s.validateCheckpoint(ctx, caller, in)
	if err != nil {
		return product.Checkpoint{}, s.reject(err)
	}

	appended, err := s.store.AppendCheckpoint(ctx, cp)
	if err != nil {
		return product.Checkpoint{}, s.reject(err)
	}

	metrics.CheckpointAdded()
	s.emit(events.CheckpointAdded, caller,
		"product_id", fmt.Sprint(in.ProductID), "seq", fmt.Sprint(appended.Seq))
	return appended, nil
}

// AddCheckpointBatch appends up to maxBatch checkpoints atomically.
func (s *Service) AddCheckpointBatch(ctx context.Context, caller string, ins []product.CheckpointInput) ([]product.Checkpoint, error) {
	if err := s.guard.Enter(); err != nil {
		return nil, err
	}
	defer s.guard.Exit()

	if err := s.acl.RequireActive(ctx); err != nil {
		return nil, s.reject(err)
	}
	if len(ins) == 0 {
		return nil, s.reject(core.RequiredError("checkpoints"))
	}
	if len(ins) > maxBatch {
		return nil, s.reject(core.NewLimitError("batch size",
			fmt.Sprintf("%d checkpoints exceed the maximum %d", len(ins), maxBatch)))
	}

	batch := make([]product.Checkpoint, 0, len(ins))
	for _, in := range ins {
		cp, err := s.validateCheckpoint(ctx, caller, in)
		if err != nil {
			return nil, s.reject(err)
		}
		batch = append(batch, cp)
	}

	appended, err := s.store.AppendCheckpointBatch(ctx, batch)
	if err != nil {
		return nil, s.reject(err)
	}
	for _, cp := range appended {
		metrics.CheckpointAdded()
		s.emit(events.CheckpointAdded, caller,
			"product_id", fmt.Sprint(cp.ProductID), "seq", fmt.Sprint(cp.Seq))
	}
	return appended, nil
}

func (s *Service) validateCheckpoint(ctx context.Context, caller string, in product.CheckpointInput) (product.Checkpoint, error) {
	if in.Location == "" {
		return product.Checkpoint{}, core.RequiredError("location")
	}
	p, err := s.store.GetProduct(ctx, in.ProductID)
	if err != nil {
		return product.Checkpoint{}, err
	}
	if !p.Active {
		return product.Checkpoint{}, core.NewConflictError("product", fmt.Sprint(in.ProductID), "product is deactivated")
	}
	if !p.HasStakeholder(caller) {
		return product.Checkpoint{}, core.NewAccessDeniedError("product", fmt.Sprint(in.ProductID), caller)
	}
	return product.Checkpoint{
		ProductID:   in.ProductID,
		Timestamp:   in.Timestamp,
		Location:    in.Location,
		Actor:       caller,
		Status:      in.Status,
		Environment: in.Environment,
		Data:        in.Data,
	}, nil
}

// AmendCheckpoint corrects an existing checkpoint. Recording actor or admin
// only, and only mutable fields change; the trail itself never shrinks.
func (s *Service) AmendCheckpoint(ctx context.Context, caller string, productID uint64, seq int, in product.CheckpointInput) (product.Checkpoint, error) {
	if err := s.guard.Enter(); err != nil {
		return product.Checkpoint{}, err
	}
	defer s.guard.Exit()

	if err := s.acl.RequireActive(ctx); err != nil {
		return product.Checkpoint{}, s.reject(err)
	}
	trail, err := s.store.ListCheckpoints(ctx, productID)
	if err != nil {
		return product.Checkpoint{}, s.reject(err)
	}
	if seq < 0 || seq >= len(trail) {
		return product.Checkpoint{}, s.reject(core.NewNotFoundError("checkpoint", fmt.Sprintf("%d/%d", productID, seq)))
	}
	original := trail[seq]
	if original.Actor != caller {
		if err := s.acl.RequireRole(ctx, access.RoleAdmin, caller); err != nil {
			return product.Checkpoint{}, s.reject(err)
		}
	}
	if in.Location == "" {
		return product.Checkpoint{}, s.reject(core.RequiredError("location"))
	}

	original.Timestamp = in.Timestamp
	original.Location = in.Location
	original.Status = in.Status
	original.Environment = in.Environment
	original.Data = in.Data

	amended, err := s.store.UpdateCheckpoint(ctx, original)
	if err != nil {
		return product.Checkpoint{}, s.reject(err)
	}
	s.emit(events.CheckpointUpdated, caller,
		"product_id", fmt.Sprint(productID), "seq", fmt.Sprint(seq))
	return amended, nil
}

// Product returns one product by id.
func (s *Service) Product(ctx context.Context, id uint64) (product.Product, error) {
	return s.store.GetProduct(ctx, id)
}

// ProductByBatch resolves a batch number.
func (s *Service) ProductByBatch(ctx context.Context, batchNumber string) (product.Product, error) {
	return s.store.GetProductByBatch(ctx, batchNumber)
}

// Products lists every registered product.
func (s *Service) Products(ctx context.Context) ([]product.Product, error) {
	return s.store.ListProducts(ctx)
}

// Trail returns a product's checkpoint history in sequence order.
func (s *Service) Trail(ctx context.Context, productID uint64) ([]product.Checkpoint, error) {
	return s.store.ListCheckpoints(ctx, productID)
}
