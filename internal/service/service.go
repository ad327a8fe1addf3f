// Package service implements the customer operations on top of a Store and exposes them through a
// gin router.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gitlab.com/dirk.krummacker/customers-service/internal/apperr"
	"gitlab.com/dirk.krummacker/customers-service/internal/mapping"
	"gitlab.com/dirk.krummacker/customers-service/internal/model"
	"gitlab.com/dirk.krummacker/customers-service/internal/patch"
	"gitlab.com/dirk.krummacker/customers-service/internal/store"
	"go.uber.org/zap"
)

// Store is the persistence the service works on. Absence is reported as store.ErrNotFound and a
// violated name uniqueness as store.ErrDuplicateName.
type Store interface {
	Get(ctx context.Context, id int64) (model.Customer, error)
	GetAll(ctx context.Context) ([]model.Customer, error)
	FindByNameFold(ctx context.Context, name string) (model.Customer, error)
	Insert(ctx context.Context, c model.Customer) (model.Customer, error)
	Overwrite(ctx context.Context, id int64, c model.Customer) error
	Delete(ctx context.Context, id int64) error
}

// Service holds the customer operations. Every operation is independent; the service keeps no
// state between calls.
type Service struct {
	store Store
	log   *zap.Logger
	now   func() time.Time
}

// New creates a service. A nil logger disables logging.
func New(s Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: s, log: logger, now: now}
}

// now returns the current time as stored by all supported databases.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// List returns all customers.
func (s *Service) List(ctx context.Context) ([]model.CustomerRead, error) {
	customers, err := s.store.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	return mapping.ToReadAll(customers), nil
}

// Get returns the customer with the given id.
func (s *Service) Get(ctx context.Context, id int64) (model.CustomerRead, error) {
	if id <= 0 {
		return model.CustomerRead{}, invalidIdentifier(id)
	}
	c, err := s.load(ctx, id)
	if err != nil {
		return model.CustomerRead{}, err
	}
	return mapping.ToRead(c), nil
}

// Create stores a new customer and returns it with its assigned id.
func (s *Service) Create(ctx context.Context, shape *model.CustomerCreate) (model.CustomerRead, error) {
	if shape == nil {
		return model.CustomerRead{}, apperr.New(apperr.ValidationFailed, "customer is missing")
	}
	if err := model.Validate(shape); err != nil {
		return model.CustomerRead{}, err
	}
	taken, err := nameTaken(ctx, s.store, shape.Name, 0)
	if err != nil {
		return model.CustomerRead{}, err
	}
	if taken {
		return model.CustomerRead{}, duplicateName(shape.Name)
	}

	c := mapping.FromCreate(*shape)
	c.CreatedAt = s.now()
	c.UpdatedAt = c.CreatedAt
	c, err = s.store.Insert(ctx, c)
	if errors.Is(err, store.ErrDuplicateName) {
		return model.CustomerRead{}, duplicateName(shape.Name)
	}
	if err != nil {
		return model.CustomerRead{}, err
	}
	s.log.Info("Customer created", zap.Int64("id", c.Id), zap.String("name", c.Name))
	return mapping.ToRead(c), nil
}

// Replace overwrites every field of an existing customer. The id in the shape must match id.
func (s *Service) Replace(ctx context.Context, id int64, shape *model.CustomerUpdate) error {
	if id <= 0 {
		return invalidIdentifier(id)
	}
	if shape == nil {
		return apperr.New(apperr.ValidationFailed, "customer is missing")
	}
	if shape.Id != id {
		return apperr.New(apperr.IdentifierMismatch, "body id %d does not match path id %d", shape.Id, id)
	}
	if err := model.Validate(shape); err != nil {
		return err
	}
	current, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if err := s.write(ctx, current, *shape); err != nil {
		return err
	}
	s.log.Info("Customer replaced", zap.Int64("id", id))
	return nil
}

// Patch applies a list of edit operations to an existing customer. Either all operations are
// applied and the result is stored, or nothing is stored.
func (s *Service) Patch(ctx context.Context, id int64, ops []patch.Operation) error {
	if id <= 0 {
		return apperr.New(apperr.InvalidPatchRequest, "invalid customer id %d", id)
	}
	if len(ops) == 0 {
		return apperr.New(apperr.InvalidPatchRequest, "no operations")
	}
	current, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	patched, _, err := patch.Apply(mapping.ToUpdate(current), ops)
	if err != nil {
		return err
	}
	if err := model.Validate(patched); err != nil {
		return err
	}
	patched.Id = id
	if err := s.write(ctx, current, patched); err != nil {
		return err
	}
	s.log.Info("Customer patched", zap.Int64("id", id), zap.Int("operations", len(ops)))
	return nil
}

// Delete removes the customer with the given id.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if id <= 0 {
		return invalidIdentifier(id)
	}
	if _, err := s.load(ctx, id); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return notFound(err, id)
	}
	s.log.Info("Customer deleted", zap.Int64("id", id))
	return nil
}

// Ping reports whether the store is reachable, if the store supports it.
func (s *Service) Ping(ctx context.Context) error {
	if p, ok := s.store.(interface{ Ping(context.Context) error }); ok {
		return p.Ping(ctx)
	}
	return nil
}

func (s *Service) load(ctx context.Context, id int64) (model.Customer, error) {
	c, err := s.store.Get(ctx, id)
	if err != nil {
		return model.Customer{}, notFound(err, id)
	}
	return c, nil
}

// write stores shape over current. The name is checked against the other customers if it changed
// by more than case; the creation time is kept.
func (s *Service) write(ctx context.Context, current model.Customer, shape model.CustomerUpdate) error {
	if model.FoldName(shape.Name) != model.FoldName(current.Name) {
		taken, err := nameTaken(ctx, s.store, shape.Name, current.Id)
		if err != nil {
			return err
		}
		if taken {
			return duplicateName(shape.Name)
		}
	}
	c := mapping.FromUpdate(shape)
	c.CreatedAt = current.CreatedAt
	c.UpdatedAt = s.now()
	err := s.store.Overwrite(ctx, current.Id, c)
	if errors.Is(err, store.ErrDuplicateName) {
		return duplicateName(shape.Name)
	}
	return notFound(err, current.Id)
}

// notFound converts store.ErrNotFound into the client error. Other errors pass through.
func notFound(err error, id int64) error {
	if errors.Is(err, store.ErrNotFound) {
		return apperr.Wrap(apperr.NotFound, err, "customer %d", id)
	}
	if err != nil {
		return fmt.Errorf("customer %d: %w", id, err)
	}
	return nil
}

func invalidIdentifier(id int64) error {
	return apperr.New(apperr.InvalidIdentifier, "invalid customer id %d", id)
}

func duplicateName(name string) error {
	return apperr.New(apperr.DuplicateName, "a customer named %q already exists", name)
}
