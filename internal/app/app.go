// Package app implements the catalog operations of the document library:
// registration and authentication, book upload and search, counters, and the
// admin deletions. Handlers stay thin; every rule lives here or in the store.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"kitabghar/internal/pdfinfo"
	"kitabghar/internal/storage"
	"kitabghar/internal/store"
	"kitabghar/pkg/auth"
	"kitabghar/pkg/domain"
)

// Config wires the application's storage dependencies.
type Config struct {
	Store             store.Store
	Sessions          store.SessionStore
	Blobs             storage.BlobStore
	AllowedExtensions []string
}

// App is the core application service.
type App struct {
	store       store.Store
	sessions    store.SessionStore
	blobs       storage.BlobStore
	allowedExts map[string]struct{}
}

// New constructs the application core.
func New(cfg Config) (*App, error) {
	if cfg.Store == nil {
		return nil, errors.New("store is required")
	}
	if cfg.Sessions == nil {
		return nil, errors.New("session store is required")
	}
	if cfg.Blobs == nil {
		return nil, errors.New("blob store is required")
	}
	return &App{
		store:       cfg.Store,
		sessions:    cfg.Sessions,
		blobs:       cfg.Blobs,
		allowedExts: normalizeExtensions(cfg.AllowedExtensions),
	}, nil
}

func normalizeExtensions(exts []string) map[string]struct{} {
	if len(exts) == 0 {
		exts = []string{".pdf"}
	}
	out := make(map[string]struct{}, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		out[ext] = struct{}{}
	}
	return out
}

// SeedDefaults creates the three demo accounts when the store is empty after
// a snapshot load. Demo behavior carried over from the reference deployment.
func (a *App) SeedDefaults() error {
	count, err := a.store.UserCount()
	if err != nil {
		return fmt.Errorf("count users: %w", err)
	}
	if count > 0 {
		return nil
	}
	seeds := []struct {
		username, email, password string
		role                      domain.Role
	}{
		{"admin", "admin@example.com", "admin123", domain.RoleAdmin},
		{"author1", "author@example.com", "author123", domain.RoleAuthor},
		{"reader1", "reader@example.com", "reader123", domain.RoleReader},
	}
	for _, s := range seeds {
		if _, err := a.Register(s.username, s.email, s.password, string(s.role)); err != nil {
			return fmt.Errorf("seed %s: %w", s.username, err)
		}
	}
	slog.Info("seeded default accounts", "count", len(seeds))
	return nil
}

// Register creates a user. Unknown roles are coerced to reader; a taken
// username fails visibly and leaves the store unchanged.
func (a *App) Register(username, email, password, roleRaw string) (domain.User, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)
	if username == "" || password == "" {
		return domain.User{}, ErrUsernameAndPasswordRequired
	}
	role, ok := domain.ParseRole(roleRaw)
	if !ok {
		role = domain.RoleReader
	}
	passwordHash, err := auth.HashPassword(password)
	if err != nil {
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}
	user, err := a.store.CreateUser(domain.User{
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		Role:         role,
		CreatedAt:    time.Now().UTC(),
	})
	if err != nil {
		if errors.Is(err, store.ErrUsernameTaken) {
			return domain.User{}, ErrUsernameTaken
		}
		return domain.User{}, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

// Authenticate verifies credentials. A missing account and a wrong password
// are indistinguishable to the caller.
func (a *App) Authenticate(username, password string) (domain.User, bool) {
	user, ok, err := a.store.GetUserByUsername(strings.TrimSpace(username))
	if err != nil {
		slog.Error("user lookup failed", "err", err)
		return domain.User{}, false
	}
	if !ok || !auth.CheckPassword(password, user.PasswordHash) {
		return domain.User{}, false
	}
	return user, true
}

// Login authenticates and opens a session.
func (a *App) Login(username, password string) (domain.User, string, error) {
	user, ok := a.Authenticate(username, password)
	if !ok {
		return domain.User{}, "", ErrInvalidCredentials
	}
	token, err := a.sessions.NewSession(user.ID)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("open session: %w", err)
	}
	return user, token, nil
}

// Logout invalidates the session token.
func (a *App) Logout(token string) {
	if err := a.sessions.DeleteSession(token); err != nil {
		slog.Warn("session delete failed", "err", err)
	}
}

// CurrentUser resolves the session token to a user.
func (a *App) CurrentUser(token string) (domain.User, bool) {
	if token == "" {
		return domain.User{}, false
	}
	uid, ok, err := a.sessions.GetUserIDByToken(token)
	if err != nil || !ok {
		return domain.User{}, false
	}
	user, found, err := a.store.GetUserByID(uid)
	if err != nil || !found {
		return domain.User{}, false
	}
	return user, true
}

// BookMeta carries the upload form fields.
type BookMeta struct {
	Title       string
	Author      string
	Category    string
	Description string
}

// UploadFile is what the multipart reader hands us: sequential access for
// storing plus random access for metadata extraction.
type UploadFile interface {
	io.Reader
	io.ReaderAt
	io.Seeker
}

// UploadBook validates the extension, stores the file under a
// server-assigned name, and creates the catalog record with zeroed counters.
func (a *App) UploadBook(ctx context.Context, uploader domain.User, meta BookMeta, originalFilename string, file UploadFile, size int64) (domain.Book, error) {
	if !uploader.Role.AtLeast(domain.RoleAuthor) {
		return domain.Book{}, ErrAccessDenied
	}
	if !a.extensionAllowed(originalFilename) {
		return domain.Book{}, ErrInvalidFileType
	}

	// Page count is best-effort metadata, never a validation gate.
	pages := 0
	if n, err := pdfinfo.PageCount(file, size); err == nil {
		pages = n
	} else {
		slog.Debug("page count unavailable", "filename", originalFilename, "err", err)
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return domain.Book{}, fmt.Errorf("rewind upload: %w", err)
	}

	stored := storage.NewStoredName(originalFilename)
	if err := a.blobs.Save(ctx, stored, file, size, "application/pdf"); err != nil {
		return domain.Book{}, fmt.Errorf("store file: %w", err)
	}
	book, err := a.store.CreateBook(domain.Book{
		Title:       strings.TrimSpace(meta.Title),
		Author:      strings.TrimSpace(meta.Author),
		Category:    strings.TrimSpace(meta.Category),
		Description: strings.TrimSpace(meta.Description),
		Filename:    stored,
		Pages:       pages,
		UploadedBy:  uploader.ID,
		UploadedAt:  time.Now().UTC(),
	})
	if err != nil {
		// Keep catalog and disk consistent when the record can't be written.
		if rmErr := a.blobs.Remove(ctx, stored); rmErr != nil {
			slog.Error("orphan cleanup failed", "filename", stored, "err", rmErr)
		}
		return domain.Book{}, fmt.Errorf("create book: %w", err)
	}
	slog.Info("book uploaded", "book_id", book.ID, "uploaded_by", uploader.ID, "filename", stored)
	return book, nil
}

func (a *App) extensionAllowed(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" {
		return false
	}
	_, ok := a.allowedExts[ext]
	return ok
}

// SearchBooks returns books whose title, author, or description contains the
// query case-insensitively, narrowed by exact category when given. Empty
// query and category return the whole catalog. Order is unspecified; use
// SortNewestFirst for display.
func (a *App) SearchBooks(query, category string) ([]domain.Book, error) {
	books, err := a.store.ListBooks()
	if err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	query = strings.ToLower(strings.TrimSpace(query))
	category = strings.TrimSpace(category)

	results := make([]domain.Book, 0, len(books))
	for _, b := range books {
		if query != "" {
			if !strings.Contains(strings.ToLower(b.Title), query) &&
				!strings.Contains(strings.ToLower(b.Author), query) &&
				!strings.Contains(strings.ToLower(b.Description), query) {
				continue
			}
		}
		if category != "" && b.Category != category {
			continue
		}
		results = append(results, b)
	}
	return results, nil
}

// Categories returns distinct non-empty categories, sorted.
func (a *App) Categories() ([]string, error) {
	books, err := a.store.ListBooks()
	if err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	seen := make(map[string]struct{})
	for _, b := range books {
		if b.Category != "" {
			seen[b.Category] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Strings(out)
	return out, nil
}

// SortNewestFirst orders books by upload time, newest first.
func SortNewestFirst(books []domain.Book) {
	sort.Slice(books, func(i, j int) bool {
		return books[i].UploadedAt.After(books[j].UploadedAt)
	})
}

// DownloadBook opens the backing file and increments the download counter.
// A dangling record (file missing on disk) reports ErrFileMissing and is
// kept in the catalog; the counter is not incremented.
func (a *App) DownloadBook(ctx context.Context, id int) (domain.Book, io.ReadCloser, error) {
	return a.openAndCount(ctx, id, a.store.IncrementDownloads)
}

// ReadBook opens the backing file for inline viewing and increments the view
// counter. Dangling records behave as in DownloadBook.
func (a *App) ReadBook(ctx context.Context, id int) (domain.Book, io.ReadCloser, error) {
	return a.openAndCount(ctx, id, a.store.IncrementViews)
}

func (a *App) openAndCount(ctx context.Context, id int, bump func(int) (domain.Book, error)) (domain.Book, io.ReadCloser, error) {
	book, ok, err := a.store.GetBook(id)
	if err != nil {
		return domain.Book{}, nil, fmt.Errorf("fetch book: %w", err)
	}
	if !ok {
		return domain.Book{}, nil, ErrBookNotFound
	}
	rc, err := a.blobs.Open(ctx, book.Filename)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			slog.Warn("dangling catalog record", "book_id", book.ID, "filename", book.Filename)
			return domain.Book{}, nil, ErrFileMissing
		}
		return domain.Book{}, nil, fmt.Errorf("open file: %w", err)
	}
	book, err = bump(id)
	if err != nil {
		_ = rc.Close()
		return domain.Book{}, nil, fmt.Errorf("bump counter: %w", err)
	}
	return book, rc, nil
}

// DeleteBook removes the catalog record and the backing file. Blob removal
// errors are logged and never block the record removal.
func (a *App) DeleteBook(ctx context.Context, id int) (domain.Book, error) {
	book, ok, err := a.store.GetBook(id)
	if err != nil {
		return domain.Book{}, fmt.Errorf("fetch book: %w", err)
	}
	if !ok {
		return domain.Book{}, ErrBookNotFound
	}
	if err := a.blobs.Remove(ctx, book.Filename); err != nil {
		slog.Error("failed to remove book file", "book_id", id, "filename", book.Filename, "err", err)
	}
	if err := a.store.DeleteBook(id); err != nil {
		if errors.Is(err, store.ErrBookNotFound) {
			return domain.Book{}, ErrBookNotFound
		}
		return domain.Book{}, fmt.Errorf("delete book: %w", err)
	}
	slog.Info("book deleted", "book_id", id, "title", book.Title)
	return book, nil
}

// DeleteUser removes a user. Admins cannot delete their own account.
func (a *App) DeleteUser(actor domain.User, id int) (domain.User, error) {
	if id == actor.ID {
		return domain.User{}, ErrSelfDelete
	}
	target, ok, err := a.store.GetUserByID(id)
	if err != nil {
		return domain.User{}, fmt.Errorf("fetch user: %w", err)
	}
	if !ok {
		return domain.User{}, ErrUserNotFound
	}
	if err := a.store.DeleteUser(id); err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return domain.User{}, ErrUserNotFound
		}
		return domain.User{}, fmt.Errorf("delete user: %w", err)
	}
	slog.Info("user deleted", "user_id", id, "username", target.Username, "by", actor.ID)
	return target, nil
}

// ListUsers returns all users (admin page).
func (a *App) ListUsers() ([]domain.User, error) {
	return a.store.ListUsers()
}

// ListBooks returns the whole catalog (admin page).
func (a *App) ListBooks() ([]domain.Book, error) {
	return a.store.ListBooks()
}

// RecentBooks returns up to n books, newest first.
func (a *App) RecentBooks(n int) ([]domain.Book, error) {
	books, err := a.store.ListBooks()
	if err != nil {
		return nil, err
	}
	SortNewestFirst(books)
	if len(books) > n {
		books = books[:n]
	}
	return books, nil
}

// BooksUploadedBy returns a user's uploads, newest first.
func (a *App) BooksUploadedBy(userID int) ([]domain.Book, error) {
	books, err := a.store.ListBooks()
	if err != nil {
		return nil, err
	}
	mine := books[:0]
	for _, b := range books {
		if b.UploadedBy == userID {
			mine = append(mine, b)
		}
	}
	SortNewestFirst(mine)
	return mine, nil
}

// Stats returns catalog totals for the home page.
func (a *App) Stats() (totalBooks, totalUsers int, err error) {
	books, err := a.store.ListBooks()
	if err != nil {
		return 0, 0, err
	}
	users, err := a.store.UserCount()
	if err != nil {
		return 0, 0, err
	}
	return len(books), users, nil
}
