package service

import (
	"context"
	"sync"

	"gitlab.com/dirk.krummacker/customers-service/internal/model"
	"gitlab.com/dirk.krummacker/customers-service/internal/store"
)

// memStore is an in-memory Store for tests. It counts the calls made to it so that tests can assert
// that an operation was rejected before the store was touched.
type memStore struct {
	mu        sync.Mutex
	customers map[int64]model.Customer
	nextID    int64
	reads     int
	writes    int
	failWith  error
}

func newMemStore(customers ...model.Customer) *memStore {
	m := &memStore{customers: map[int64]model.Customer{}, nextID: 1}
	for _, c := range customers {
		m.customers[c.Id] = c
		if c.Id >= m.nextID {
			m.nextID = c.Id + 1
		}
	}
	return m
}

func (m *memStore) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reads + m.writes
}

func (m *memStore) Get(_ context.Context, id int64) (model.Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads++
	if m.failWith != nil {
		return model.Customer{}, m.failWith
	}
	c, ok := m.customers[id]
	if !ok {
		return model.Customer{}, store.ErrNotFound
	}
	return c, nil
}

func (m *memStore) GetAll(_ context.Context) ([]model.Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads++
	if m.failWith != nil {
		return nil, m.failWith
	}
	result := []model.Customer{}
	for id := int64(1); id < m.nextID; id++ {
		if c, ok := m.customers[id]; ok {
			result = append(result, c)
		}
	}
	return result, nil
}

func (m *memStore) FindByNameFold(_ context.Context, name string) (model.Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads++
	fold := model.FoldName(name)
	for _, c := range m.customers {
		if model.FoldName(c.Name) == fold {
			return c, nil
		}
	}
	return model.Customer{}, store.ErrNotFound
}

func (m *memStore) Insert(_ context.Context, c model.Customer) (model.Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	c.Id = m.nextID
	m.nextID++
	m.customers[c.Id] = c
	return c, nil
}

func (m *memStore) Overwrite(_ context.Context, id int64, c model.Customer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	if _, ok := m.customers[id]; !ok {
		return store.ErrNotFound
	}
	c.Id = id
	m.customers[id] = c
	return nil
}

func (m *memStore) Delete(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	if _, ok := m.customers[id]; !ok {
		return store.ErrNotFound
	}
	delete(m.customers, id)
	return nil
}

// stored returns the customer with the given id without counting the access.
func (m *memStore) stored(id int64) (model.Customer, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.customers[id]
	return c, ok
}
