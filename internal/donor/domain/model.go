package domain

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Donor is the person or business behind one or more transactions.
// Email is the lookup key; every other field holds the latest submitted value.
type Donor struct {
	ID               snowflake.ID `gorm:"primaryKey" json:"id"`
	Email            string       `gorm:"column:email;not null;uniqueIndex" json:"email"`
	Name             string       `gorm:"column:name" json:"name"`
	BusinessName     string       `gorm:"column:business_name" json:"business_name,omitempty"`
	Street           string       `gorm:"column:street" json:"street,omitempty"`
	Postcode         string       `gorm:"column:postcode" json:"postcode,omitempty"`
	City             string       `gorm:"column:city" json:"city,omitempty"`
	Country          string       `gorm:"column:country" json:"country,omitempty"`
	VendorCustomerID string       `gorm:"column:vendor_customer_id;index" json:"vendor_customer_id,omitempty"`
	Mode             string       `gorm:"column:mode" json:"mode"`
	CreatedAt        time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt        time.Time    `gorm:"not null" json:"updated_at"`
}

func (Donor) TableName() string { return "donors" }

// Details are the donor-submitted fields copied onto the record on every payment.
type Details struct {
	Email        string
	Name         string
	BusinessName string
	Street       string
	Postcode     string
	City         string
	Country      string
}

// Apply overwrites the donor with d. Empty values clear the field.
func (donor *Donor) Apply(d Details) {
	donor.Email = NormalizeEmail(d.Email)
	donor.Name = strings.TrimSpace(d.Name)
	donor.BusinessName = strings.TrimSpace(d.BusinessName)
	donor.Street = strings.TrimSpace(d.Street)
	donor.Postcode = strings.TrimSpace(d.Postcode)
	donor.City = strings.TrimSpace(d.City)
	donor.Country = strings.ToUpper(strings.TrimSpace(d.Country))
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

type Repository interface {
	FindByID(ctx context.Context, id snowflake.ID) (*Donor, error)
	FindByEmail(ctx context.Context, email string) (*Donor, error)
	FindByCustomerID(ctx context.Context, customerID string) (*Donor, error)
	Save(ctx context.Context, donor *Donor) error
}

var (
	ErrInvalidEmail = errors.New("invalid_email")
)
