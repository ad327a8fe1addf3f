package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"gitlab.com/dirk.krummacker/customers-service/internal/model"
)

const customerColumns = "id, email, name, phone, address, notes, created_at, updated_at"

// queries holds the statements of the store, already rebound for the driver.
type queries struct {
	selectAll       string
	selectWhereId   string
	selectWhereFold string
	insert          string
	updateWhereId   string
	deleteWhereId   string
}

func newQueries(db *sqlx.DB, returning bool) queries {
	insert := "INSERT INTO customers" +
		" (email, name, name_fold, phone, address, notes, created_at, updated_at)" +
		" VALUES (?, ?, ?, ?, ?, ?, ?, ?)"
	if returning {
		insert += " RETURNING id"
	}
	update := "UPDATE customers" +
		" SET email = ?, name = ?, name_fold = ?, phone = ?, address = ?, notes = ?, updated_at = ?" +
		" WHERE id = ?"
	return queries{
		selectAll:       db.Rebind("SELECT " + customerColumns + " FROM customers ORDER BY id"),
		selectWhereId:   db.Rebind("SELECT " + customerColumns + " FROM customers WHERE id = ?"),
		selectWhereFold: db.Rebind("SELECT " + customerColumns + " FROM customers WHERE name_fold = ?"),
		insert:          db.Rebind(insert),
		updateWhereId:   db.Rebind(update),
		deleteWhereId:   db.Rebind("DELETE FROM customers WHERE id = ?"),
	}
}

// Get returns the customer with the given id, or ErrNotFound.
func (s *Store) Get(ctx context.Context, id int64) (model.Customer, error) {
	var c model.Customer
	err := s.db.GetContext(ctx, &c, s.q.selectWhereId, id)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Customer{}, ErrNotFound
	}
	if err != nil {
		return model.Customer{}, fmt.Errorf("select customer %d: %w", id, err)
	}
	return c, nil
}

// GetAll returns all customers ordered by id.
func (s *Store) GetAll(ctx context.Context) ([]model.Customer, error) {
	customers := []model.Customer{}
	if err := s.db.SelectContext(ctx, &customers, s.q.selectAll); err != nil {
		return nil, fmt.Errorf("select customers: %w", err)
	}
	return customers, nil
}

// FindByNameFold returns the customer whose name equals name after case folding, or ErrNotFound.
func (s *Store) FindByNameFold(ctx context.Context, name string) (model.Customer, error) {
	var c model.Customer
	err := s.db.GetContext(ctx, &c, s.q.selectWhereFold, model.FoldName(name))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Customer{}, ErrNotFound
	}
	if err != nil {
		return model.Customer{}, fmt.Errorf("select customer by name: %w", err)
	}
	return c, nil
}

// Insert stores a new customer and returns it with the id assigned by the database. The Id field
// of c is ignored.
func (s *Store) Insert(ctx context.Context, c model.Customer) (model.Customer, error) {
	args := []any{c.Email, c.Name, model.FoldName(c.Name), c.Phone, c.Address, c.Notes, c.CreatedAt, c.UpdatedAt}
	if s.returning {
		var id int64
		if err := s.db.QueryRowxContext(ctx, s.q.insert, args...).Scan(&id); err != nil {
			return model.Customer{}, translate(err, "insert customer")
		}
		c.Id = id
		return c, nil
	}
	result, err := s.db.ExecContext(ctx, s.q.insert, args...)
	if err != nil {
		return model.Customer{}, translate(err, "insert customer")
	}
	id, err := result.LastInsertId()
	if err != nil {
		return model.Customer{}, fmt.Errorf("insert customer: %w", err)
	}
	c.Id = id
	return c, nil
}

// Overwrite replaces every mutable column of the customer with the given id. CreatedAt is never
// written. It returns ErrNotFound if no such customer exists; a deleted customer is not recreated.
func (s *Store) Overwrite(ctx context.Context, id int64, c model.Customer) error {
	result, err := s.db.ExecContext(ctx, s.q.updateWhereId,
		c.Email, c.Name, model.FoldName(c.Name), c.Phone, c.Address, c.Notes, c.UpdatedAt, id)
	if err != nil {
		return translate(err, fmt.Sprintf("update customer %d", id))
	}
	return expectOneRow(result, fmt.Sprintf("update customer %d", id))
}

// Delete removes the customer with the given id, or returns ErrNotFound.
func (s *Store) Delete(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, s.q.deleteWhereId, id)
	if err != nil {
		return fmt.Errorf("delete customer %d: %w", id, err)
	}
	return expectOneRow(result, fmt.Sprintf("delete customer %d", id))
}

func expectOneRow(result sql.Result, op string) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
