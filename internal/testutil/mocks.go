// Package testutil provides shared test utilities, mocks, and fixtures
// for testing the storefront.
package testutil

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"bookbay-storefront/internal/apiclient"
	"bookbay-storefront/internal/domain"
	"bookbay-storefront/internal/events"
)

// Common test errors
var (
	ErrMockNotFound = &apiclient.APIError{Status: 404, Message: "Book not found"}
	ErrMockAuth     = &apiclient.APIError{Status: 401, Message: "Invalid email or password"}
)

// MockAPI implements the remote BookBay API in memory.
type MockAPI struct {
	mu sync.RWMutex

	// Function overrides - set these to customize behavior
	LoginFunc       func(ctx context.Context, creds apiclient.Credentials) (apiclient.AuthResult, error)
	RegisterFunc    func(ctx context.Context, reg apiclient.Registration) (apiclient.AuthResult, error)
	ListBooksFunc   func(ctx context.Context, token string) ([]domain.Book, error)
	GetBookFunc     func(ctx context.Context, token, id string) (domain.Book, error)
	AddBookFunc     func(ctx context.Context, token string, in domain.BookInput) (domain.Book, error)
	EditBookFunc    func(ctx context.Context, token, id string, in domain.BookInput) (domain.Book, error)
	DeleteBookFunc  func(ctx context.Context, token, id string) error
	ViewProfileFunc func(ctx context.Context, token string) (domain.UserRef, error)
	EditProfileFunc func(ctx context.Context, token string, in domain.ProfileInput) (domain.UserRef, error)
	PingFunc        func(ctx context.Context) error

	// In-memory storage for simple tests
	Books    []domain.Book
	Users    map[string]domain.UserRef // by token
	Accounts map[string]string         // email -> token
	Calls    []string
}

// NewMockAPI creates a MockAPI with initialized maps
func NewMockAPI() *MockAPI {
	return &MockAPI{
		Users:    make(map[string]domain.UserRef),
		Accounts: make(map[string]string),
	}
}

// AddAccount registers a user reachable by email with the given token.
func (m *MockAPI) AddAccount(token string, user domain.UserRef) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Users[token] = user
	m.Accounts[user.Email] = token
}

func (m *MockAPI) record(call string) {
	m.mu.Lock()
	m.Calls = append(m.Calls, call)
	m.mu.Unlock()
}

// CallCount returns how many times call was made.
func (m *MockAPI) CallCount(call string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, c := range m.Calls {
		if c == call {
			n++
		}
	}
	return n
}

func (m *MockAPI) Login(ctx context.Context, creds apiclient.Credentials) (apiclient.AuthResult, error) {
	m.record("login")
	if m.LoginFunc != nil {
		return m.LoginFunc(ctx, creds)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	token, ok := m.Accounts[creds.Email]
	if !ok {
		return apiclient.AuthResult{}, ErrMockAuth
	}
	return apiclient.AuthResult{Token: token, User: m.Users[token]}, nil
}

func (m *MockAPI) Register(ctx context.Context, reg apiclient.Registration) (apiclient.AuthResult, error) {
	m.record("register")
	if m.RegisterFunc != nil {
		return m.RegisterFunc(ctx, reg)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.Accounts[reg.Email]; exists {
		return apiclient.AuthResult{}, &apiclient.APIError{Status: 409, Message: "User already exists"}
	}
	user := domain.UserRef{ID: nextID("user"), Name: reg.Name, Email: reg.Email, Role: string(reg.Role)}
	token := nextID("token")
	m.Users[token] = user
	m.Accounts[reg.Email] = token
	return apiclient.AuthResult{Token: token, User: user}, nil
}

func (m *MockAPI) ListBooks(ctx context.Context, token string) ([]domain.Book, error) {
	m.record("books.list")
	if m.ListBooksFunc != nil {
		return m.ListBooksFunc(ctx, token)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.Books), nil
}

func (m *MockAPI) GetBook(ctx context.Context, token, id string) (domain.Book, error) {
	m.record("books.get")
	if m.GetBookFunc != nil {
		return m.GetBookFunc(ctx, token, id)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, b := range m.Books {
		if b.ID == id {
			return b, nil
		}
	}
	return domain.Book{}, ErrMockNotFound
}

func (m *MockAPI) AddBook(ctx context.Context, token string, in domain.BookInput, _ *apiclient.Upload) (domain.Book, error) {
	m.record("books.add")
	if m.AddBookFunc != nil {
		return m.AddBookFunc(ctx, token, in)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	book := applyInput(domain.Book{ID: nextID("book")}, in)
	m.Books = append(m.Books, book)
	return book, nil
}

func (m *MockAPI) EditBook(ctx context.Context, token, id string, in domain.BookInput, _ *apiclient.Upload) (domain.Book, error) {
	m.record("books.edit")
	if m.EditBookFunc != nil {
		return m.EditBookFunc(ctx, token, id, in)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, b := range m.Books {
		if b.ID == id {
			m.Books[i] = applyInput(b, in)
			return m.Books[i], nil
		}
	}
	return domain.Book{}, ErrMockNotFound
}

func (m *MockAPI) DeleteBook(ctx context.Context, token, id string) error {
	m.record("books.delete")
	if m.DeleteBookFunc != nil {
		return m.DeleteBookFunc(ctx, token, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Books = slices.DeleteFunc(m.Books, func(b domain.Book) bool { return b.ID == id })
	return nil
}

func (m *MockAPI) ViewProfile(ctx context.Context, token string) (domain.UserRef, error) {
	m.record("users.view")
	if m.ViewProfileFunc != nil {
		return m.ViewProfileFunc(ctx, token)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	user, ok := m.Users[token]
	if !ok {
		return domain.UserRef{}, &apiclient.APIError{Status: 401, Message: "Not authorized"}
	}
	return user, nil
}

func (m *MockAPI) EditProfile(ctx context.Context, token string, in domain.ProfileInput, _ *apiclient.Upload) (domain.UserRef, error) {
	m.record("users.edit")
	if m.EditProfileFunc != nil {
		return m.EditProfileFunc(ctx, token, in)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.Users[token]
	if !ok {
		return domain.UserRef{}, &apiclient.APIError{Status: 401, Message: "Not authorized"}
	}
	user = user.Merge(domain.UserRef{Name: in.Name, Email: in.Email})
	m.Users[token] = user
	return user, nil
}

func (m *MockAPI) Ping(ctx context.Context) error {
	if m.PingFunc != nil {
		return m.PingFunc(ctx)
	}
	return nil
}

func applyInput(b domain.Book, in domain.BookInput) domain.Book {
	if in.Title != nil {
		b.Title = *in.Title
	}
	if in.Author != nil {
		b.Author = *in.Author
	}
	if in.Price != nil {
		b.Price = *in.Price
	}
	if in.Description != nil {
		b.Description = *in.Description
	}
	if in.Category != nil {
		b.Category = *in.Category
	}
	if in.Rating != nil {
		b.Rating = *in.Rating
	}
	if in.Stock != nil {
		b.Stock = *in.Stock
	}
	return b
}

// Gate holds fake remote calls until the test releases them, so completion
// order can be chosen independently of dispatch order.
type Gate struct {
	arrived chan int

	mu       sync.Mutex
	releases []chan struct{}
}

// NewGate creates a gate.
func NewGate() *Gate {
	return &Gate{arrived: make(chan int, 64)}
}

// Enter registers the call and blocks until Release is called with the
// returned arrival index.
func (g *Gate) Enter(ctx context.Context) (int, error) {
	g.mu.Lock()
	n := len(g.releases)
	ch := make(chan struct{})
	g.releases = append(g.releases, ch)
	g.mu.Unlock()

	g.arrived <- n
	select {
	case <-ch:
		return n, nil
	case <-ctx.Done():
		return n, ctx.Err()
	}
}

// Arrived waits for the next call to enter the gate.
func (g *Gate) Arrived(timeout time.Duration) (int, error) {
	select {
	case n := <-g.arrived:
		return n, nil
	case <-time.After(timeout):
		return -1, errors.New("gate: no call arrived")
	}
}

// Release lets call n complete.
func (g *Gate) Release(n int) {
	g.mu.Lock()
	ch := g.releases[n]
	g.mu.Unlock()
	close(ch)
}

// MockPublisher records published events.
type MockPublisher struct {
	mu     sync.Mutex
	Events []events.Event
}

// NewMockPublisher creates a new MockPublisher
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{}
}

func (m *MockPublisher) Publish(_ context.Context, e events.Event) {
	m.mu.Lock()
	m.Events = append(m.Events, e)
	m.mu.Unlock()
}

// Published returns a copy of the recorded events.
func (m *MockPublisher) Published() []events.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.Events)
}

// Reset clears all recorded events
func (m *MockPublisher) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = nil
}
