package domain

import (
	"context"
	"time"
)

// Address holds the client's billing address in the system's own shape.
// The gateway request builder maps it to the provider schema.
type Address struct {
	ZipCode    string `bson:"zip_code,omitempty" json:"zip_code,omitempty"`
	Street     string `bson:"street,omitempty" json:"street,omitempty"`
	Number     string `bson:"number,omitempty" json:"number,omitempty"`
	Complement string `bson:"complement,omitempty" json:"complement,omitempty"`
	District   string `bson:"district,omitempty" json:"district,omitempty"`
	City       string `bson:"city,omitempty" json:"city,omitempty"`
	State      string `bson:"state,omitempty" json:"state,omitempty"`
}

// Client represents a billable customer
type Client struct {
	ID        string    `bson:"_id,omitempty" json:"id"`
	Name      string    `bson:"name" json:"name"`
	Email     string    `bson:"email,omitempty" json:"email,omitempty"`
	Phone     string    `bson:"phone,omitempty" json:"phone,omitempty"`
	Document  string    `bson:"document,omitempty" json:"document,omitempty"` // CPF or CNPJ
	Address   Address   `bson:"address,omitempty" json:"address"`
	Active    bool      `bson:"active" json:"active"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// ClientRepository defines operations for managing clients
type ClientRepository interface {
	Create(ctx context.Context, client *Client) error
	GetByID(ctx context.Context, id string) (*Client, error)
	ListActive(ctx context.Context) ([]*Client, error)
	ListByIDs(ctx context.Context, ids []string) ([]*Client, error)
	Update(ctx context.Context, client *Client) error
	Delete(ctx context.Context, id string) error
}
