package domain

import (
	"errors"
	"fmt"
)

var (
	ErrBookNotFound = errors.New("book not found")
	ErrInvalidInput = errors.New("invalid input")
)

// Category is the catalog category of a book.
type Category string

const (
	CategoryFiction    Category = "Fiction"
	CategoryNonFiction Category = "Non-Fiction"
	CategoryScience    Category = "Science"
	CategoryHistory    Category = "History"
	CategoryBiography  Category = "Biography"
	CategoryChildren   Category = "Children"
	CategoryOther      Category = "Other"
)

// Seller is the seller reference embedded in catalog entries.
type Seller struct {
	ID   string `json:"_id,omitempty"`
	Name string `json:"name"`
}

// Book is a catalog entity. Identity is ID.
type Book struct {
	ID          string   `json:"_id"`
	Title       string   `json:"title"`
	Author      string   `json:"author"`
	Price       float64  `json:"price"`
	Description string   `json:"description"`
	Category    Category `json:"category"`
	Rating      float64  `json:"rating"`
	Stock       int      `json:"stock"`
	Image       string   `json:"image,omitempty"`
	Seller      *Seller  `json:"seller,omitempty"`
}

// BookInput is the payload for creating or patching a book. Pointer fields
// left nil are not sent on a patch.
type BookInput struct {
	Title       *string   `json:"title,omitempty"`
	Author      *string   `json:"author,omitempty"`
	Price       *float64  `json:"price,omitempty"`
	Description *string   `json:"description,omitempty"`
	Category    *Category `json:"category,omitempty"`
	Rating      *float64  `json:"rating,omitempty"`
	Stock       *int      `json:"stock,omitempty"`
}

// Check validates the numeric ranges of the fields that are set.
func (in BookInput) Check() error {
	if in.Price != nil && *in.Price <= 0 {
		return fmt.Errorf("%w: price must be greater than zero", ErrInvalidInput)
	}
	if in.Rating != nil && (*in.Rating < 0 || *in.Rating > 5) {
		return fmt.Errorf("%w: rating must be between 0 and 5", ErrInvalidInput)
	}
	if in.Stock != nil && *in.Stock < 0 {
		return fmt.Errorf("%w: stock must not be negative", ErrInvalidInput)
	}
	return nil
}

// ProfileInput is the payload for a profile edit.
type ProfileInput struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}
