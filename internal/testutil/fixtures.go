package testutil

import (
	"fmt"
	"sync/atomic"

	"bookbay-storefront/internal/domain"
)

// Counter for generating unique IDs
var idCounter atomic.Int64

// nextID generates a unique ID for test fixtures
func nextID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, idCounter.Add(1))
}

// UserOptions allows customizing user fixture creation
type UserOptions struct {
	ID    string
	Name  string
	Email string
	Role  domain.Role
	Image string
}

// NewTestUser creates a test user with sensible defaults
// Pass options to override specific fields
func NewTestUser(opts ...func(*UserOptions)) domain.UserRef {
	o := &UserOptions{
		ID:   nextID("user"),
		Name: fmt.Sprintf("Test User %d", idCounter.Load()),
		Role: domain.RoleBuyer,
	}

	for _, opt := range opts {
		opt(o)
	}

	if o.Email == "" {
		o.Email = fmt.Sprintf("%s@example.com", o.ID)
	}

	return domain.UserRef{
		ID:    o.ID,
		Name:  o.Name,
		Email: o.Email,
		Role:  string(o.Role),
		Image: o.Image,
	}
}

// WithUserID sets the user ID
func WithUserID(id string) func(*UserOptions) {
	return func(o *UserOptions) {
		o.ID = id
	}
}

// WithName sets the display name
func WithName(name string) func(*UserOptions) {
	return func(o *UserOptions) {
		o.Name = name
	}
}

// WithEmail sets the email
func WithEmail(email string) func(*UserOptions) {
	return func(o *UserOptions) {
		o.Email = email
	}
}

// WithRole sets the marketplace role
func WithRole(role domain.Role) func(*UserOptions) {
	return func(o *UserOptions) {
		o.Role = role
	}
}

// AsSeller is WithRole(domain.RoleSeller)
func AsSeller() func(*UserOptions) {
	return WithRole(domain.RoleSeller)
}

// BookOptions allows customizing book fixture creation
type BookOptions struct {
	ID       string
	Title    string
	Author   string
	Price    float64
	Category domain.Category
	Rating   float64
	Stock    int
	Seller   *domain.Seller
}

// NewTestBook creates a test book with sensible defaults
func NewTestBook(opts ...func(*BookOptions)) domain.Book {
	o := &BookOptions{
		ID:       nextID("book"),
		Title:    fmt.Sprintf("Test Book %d", idCounter.Load()),
		Author:   "Test Author",
		Price:    9.99,
		Category: domain.CategoryFiction,
		Rating:   4,
		Stock:    10,
	}

	for _, opt := range opts {
		opt(o)
	}

	return domain.Book{
		ID:          o.ID,
		Title:       o.Title,
		Author:      o.Author,
		Price:       o.Price,
		Description: "A book used in tests.",
		Category:    o.Category,
		Rating:      o.Rating,
		Stock:       o.Stock,
		Seller:      o.Seller,
	}
}

// WithBookID sets the book ID
func WithBookID(id string) func(*BookOptions) {
	return func(o *BookOptions) {
		o.ID = id
	}
}

// WithTitle sets the title
func WithTitle(title string) func(*BookOptions) {
	return func(o *BookOptions) {
		o.Title = title
	}
}

// WithPrice sets the price
func WithPrice(price float64) func(*BookOptions) {
	return func(o *BookOptions) {
		o.Price = price
	}
}

// WithStock sets the stock count
func WithStock(stock int) func(*BookOptions) {
	return func(o *BookOptions) {
		o.Stock = stock
	}
}

// WithSeller sets the seller reference
func WithSeller(name string) func(*BookOptions) {
	return func(o *BookOptions) {
		o.Seller = &domain.Seller{Name: name}
	}
}

// NewTestBooks creates multiple test books
func NewTestBooks(count int) []domain.Book {
	books := make([]domain.Book, count)
	for i := 0; i < count; i++ {
		books[i] = NewTestBook()
	}
	return books
}

// BookInputFrom builds a full create payload from a book.
func BookInputFrom(b domain.Book) domain.BookInput {
	return domain.BookInput{
		Title:       &b.Title,
		Author:      &b.Author,
		Price:       &b.Price,
		Description: &b.Description,
		Category:    &b.Category,
		Rating:      &b.Rating,
		Stock:       &b.Stock,
	}
}

// ResetIDCounter resets the ID counter (useful for deterministic tests)
func ResetIDCounter() {
	idCounter.Store(0)
}
