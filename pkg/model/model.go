// Package model holds the data structures exchanged with the customers service, for use by
// clients.
package model

// Customer is a company or person that buys from us. Name and Phone are required; the Id is
// assigned by the service.
type Customer struct {
	Id      int64  `json:"id,omitempty"`
	Email   string `json:"email,omitempty"`
	Name    string `json:"name"`
	Phone   int64  `json:"phone"`
	Address string `json:"address,omitempty"`
	Notes   string `json:"notes,omitempty"`
}

// PatchOperation is one entry of the body of a PATCH request.
type PatchOperation struct {
	Op    string `json:"op"`
	Path  string `json:"path"`
	From  string `json:"from,omitempty"`
	Value any    `json:"value,omitempty"`
}

// Error is the body of every failed request. Operation is set when a patch operation failed.
type Error struct {
	Kind      string `json:"kind"`
	Message   string `json:"message"`
	Operation *int   `json:"operation,omitempty"`
}
