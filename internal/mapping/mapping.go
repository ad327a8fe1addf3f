// Package mapping translates between the persisted customer and the shapes exchanged with API
// callers. The translations are plain field copies; they never fail.
package mapping

import "gitlab.com/dirk.krummacker/customers-service/internal/model"

// ToRead projects a stored customer into the shape returned by the API.
func ToRead(c model.Customer) model.CustomerRead {
	return model.CustomerRead{
		Id:      c.Id,
		Email:   c.Email,
		Name:    c.Name,
		Phone:   c.Phone,
		Address: c.Address,
		Notes:   c.Notes,
	}
}

// ToReadAll projects a list of stored customers. The result is never nil.
func ToReadAll(customers []model.Customer) []model.CustomerRead {
	result := make([]model.CustomerRead, 0, len(customers))
	for _, c := range customers {
		result = append(result, ToRead(c))
	}
	return result
}

// ToUpdate projects a stored customer into the shape that patch operations are applied to. The
// identifier is carried over.
func ToUpdate(c model.Customer) model.CustomerUpdate {
	return model.CustomerUpdate{
		Id:      c.Id,
		Email:   c.Email,
		Name:    c.Name,
		Phone:   c.Phone,
		Address: c.Address,
		Notes:   c.Notes,
	}
}

// FromCreate builds a new customer from a create request. The identifier and the timestamps are
// left unset for the store to fill in.
func FromCreate(s model.CustomerCreate) model.Customer {
	return model.Customer{
		Email:   s.Email,
		Name:    s.Name,
		Phone:   s.Phone,
		Address: s.Address,
		Notes:   s.Notes,
	}
}

// FromUpdate builds a customer from an update shape. The timestamps are left unset.
func FromUpdate(s model.CustomerUpdate) model.Customer {
	return model.Customer{
		Id:      s.Id,
		Email:   s.Email,
		Name:    s.Name,
		Phone:   s.Phone,
		Address: s.Address,
		Notes:   s.Notes,
	}
}
