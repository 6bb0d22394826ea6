package store

import (
	"errors"

	"kitabghar/pkg/domain"
)

var (
	ErrUsernameTaken = errors.New("username already exists")
	ErrUserNotFound  = errors.New("user not found")
	ErrBookNotFound  = errors.New("book not found")
)

// Store defines persistence operations for the user and book catalog.
// Implementations must assign IDs and enforce username uniqueness inside a
// single critical section, and must make counter increments atomic.
type Store interface {
	// users
	CreateUser(u domain.User) (domain.User, error)
	GetUserByID(id int) (domain.User, bool, error)
	GetUserByUsername(username string) (domain.User, bool, error)
	ListUsers() ([]domain.User, error)
	DeleteUser(id int) error
	UserCount() (int, error)

	// books
	CreateBook(b domain.Book) (domain.Book, error)
	GetBook(id int) (domain.Book, bool, error)
	ListBooks() ([]domain.Book, error)
	DeleteBook(id int) error
	IncrementDownloads(id int) (domain.Book, error)
	IncrementViews(id int) (domain.Book, error)
}

// SessionStore persists session tokens.
type SessionStore interface {
	NewSession(userID int) (string, error)
	GetUserIDByToken(token string) (int, bool, error)
	DeleteSession(token string) error
}
