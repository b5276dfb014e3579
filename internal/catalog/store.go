// Package catalog holds one visitor's view of the book catalog: the entity
// collection, the focused entry and the request state of the last operation.
package catalog

import (
	"context"
	"slices"

	"bookbay-storefront/internal/apiclient"
	"bookbay-storefront/internal/domain"
	"bookbay-storefront/internal/lifecycle"
)

// StoreName labels this store in logs, metrics and state snapshots.
const StoreName = "catalog"

// API is the subset of the remote client the catalog needs.
type API interface {
	ListBooks(ctx context.Context, token string) ([]domain.Book, error)
	GetBook(ctx context.Context, token, id string) (domain.Book, error)
	AddBook(ctx context.Context, token string, in domain.BookInput, image *apiclient.Upload) (domain.Book, error)
	EditBook(ctx context.Context, token, id string, in domain.BookInput, image *apiclient.Upload) (domain.Book, error)
	DeleteBook(ctx context.Context, token, id string) error
}

// Snapshot is the renderable projection of the store.
type Snapshot struct {
	lifecycle.State
	Entities []domain.Book `json:"entities"`
	Focused  *domain.Book  `json:"focused"`
}

// Store is the catalog store. Collection and focus are guarded by the
// tracker's lock.
type Store struct {
	api     API
	tracker *lifecycle.Tracker

	books   []domain.Book
	focused *domain.Book
}

// New creates an empty catalog store.
func New(api API) *Store {
	return &Store{
		api:     api,
		tracker: lifecycle.NewTracker(StoreName),
		books:   []domain.Book{},
	}
}

// Tracker exposes the lifecycle slot for observers.
func (s *Store) Tracker() *lifecycle.Tracker {
	return s.tracker
}

// List replaces the whole collection with the remote catalog.
func (s *Store) List(ctx context.Context, token string) ([]domain.Book, error) {
	return lifecycle.Run(ctx, s.tracker, lifecycle.OpList,
		func(ctx context.Context) ([]domain.Book, error) {
			return s.api.ListBooks(ctx, token)
		},
		func(books []domain.Book) {
			s.books = slices.Clone(books)
		},
		describe("Failed to fetch books"),
	)
}

// Get sets the focused slot. The collection is not touched.
func (s *Store) Get(ctx context.Context, token, id string) (domain.Book, error) {
	return lifecycle.Run(ctx, s.tracker, lifecycle.OpGet,
		func(ctx context.Context) (domain.Book, error) {
			return s.api.GetBook(ctx, token, id)
		},
		func(book domain.Book) {
			s.focused = &book
		},
		describe("Failed to fetch book"),
	)
}

// Add appends the created entity. Entries with the same ID are not merged,
// except when the add completes after a newer list that already carried it.
func (s *Store) Add(ctx context.Context, token string, in domain.BookInput, image *apiclient.Upload) (domain.Book, error) {
	return lifecycle.RunCommit(ctx, s.tracker, lifecycle.OpAdd,
		func(ctx context.Context) (domain.Book, error) {
			return s.api.AddBook(ctx, token, in, image)
		},
		func(book domain.Book, stale bool) {
			if stale {
				if i := slices.IndexFunc(s.books, func(b domain.Book) bool { return b.ID == book.ID }); i >= 0 {
					s.books = slices.Clone(s.books)
					s.books[i] = book
					return
				}
			}
			s.books = append(s.books, book)
		},
		describe("Failed to add book"),
	)
}

// Edit substitutes the entry whose ID matches the returned entity, keeping
// every other entry and the collection order as they are.
func (s *Store) Edit(ctx context.Context, token, id string, in domain.BookInput, image *apiclient.Upload) (domain.Book, error) {
	return lifecycle.RunCommit(ctx, s.tracker, lifecycle.OpEdit,
		func(ctx context.Context) (domain.Book, error) {
			return s.api.EditBook(ctx, token, id, in, image)
		},
		func(book domain.Book, _ bool) {
			next := make([]domain.Book, len(s.books))
			for i, b := range s.books {
				if b.ID == book.ID {
					next[i] = book
				} else {
					next[i] = b
				}
			}
			s.books = next
			if s.focused != nil && s.focused.ID == book.ID {
				updated := book
				s.focused = &updated
			}
		},
		describe("Failed to update book"),
	)
}

// Delete removes every entry with id. Deleting an absent ID changes nothing.
func (s *Store) Delete(ctx context.Context, token, id string) error {
	_, err := lifecycle.RunCommit(ctx, s.tracker, lifecycle.OpDelete,
		func(ctx context.Context) (string, error) {
			return id, s.api.DeleteBook(ctx, token, id)
		},
		func(deleted string, _ bool) {
			s.books = slices.DeleteFunc(slices.Clone(s.books), func(b domain.Book) bool {
				return b.ID == deleted
			})
		},
		describe("Failed to delete book"),
	)
	return err
}

// Snapshot returns a copy of the store's data and request state.
func (s *Store) Snapshot() Snapshot {
	var snap Snapshot
	s.tracker.Read(func(st lifecycle.State) {
		snap.State = st
		snap.Entities = slices.Clone(s.books)
		if s.focused != nil {
			focused := *s.focused
			snap.Focused = &focused
		}
	})
	return snap
}

// Find looks up an entry in the current collection.
func (s *Store) Find(id string) (domain.Book, bool) {
	var (
		found domain.Book
		ok    bool
	)
	s.tracker.Read(func(lifecycle.State) {
		for _, b := range s.books {
			if b.ID == id {
				found, ok = b, true
				return
			}
		}
	})
	return found, ok
}

// Reset clears the error and success flag, keeping the data.
func (s *Store) Reset() {
	s.tracker.Reset()
}

// Clear drops the data together with the request state.
func (s *Store) Clear() {
	s.tracker.ResetWith(func() {
		s.books = []domain.Book{}
		s.focused = nil
	})
}

func describe(fallback string) func(error) string {
	return func(err error) string {
		return apiclient.Message(err, fallback)
	}
}
