package model

import "time"

// MaxNameLength is the maximum number of characters in a customer name.
const MaxNameLength = 225

// Customer is the persisted customer record. The Id is assigned by the store on insert and never
// changes afterwards.
type Customer struct {
	Id        int64     `db:"id"`
	Email     string    `db:"email"`
	Name      string    `db:"name"`
	Phone     int64     `db:"phone"`
	Address   string    `db:"address"`
	Notes     string    `db:"notes"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// CustomerRead is the shape returned to API callers.
type CustomerRead struct {
	Id      int64  `json:"id"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Phone   int64  `json:"phone"`
	Address string `json:"address"`
	Notes   string `json:"notes"`
}

// CustomerCreate is the body of a create request. It has no identifier: the store assigns one.
type CustomerCreate struct {
	Email   string `json:"email"`
	Name    string `json:"name"    validate:"required,max=225"`
	Phone   int64  `json:"phone"   validate:"required"`
	Address string `json:"address"`
	Notes   string `json:"notes"`
}

// CustomerUpdate is the body of a replace request and the target of patch operations. Its Id must
// match the identifier in the request URL.
type CustomerUpdate struct {
	Id      int64  `json:"id"`
	Email   string `json:"email"`
	Name    string `json:"name"    validate:"required,max=225"`
	Phone   int64  `json:"phone"   validate:"required"`
	Address string `json:"address"`
	Notes   string `json:"notes"`
}
