package store

import (
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"strconv"
	"sync"

	"kitabghar/pkg/domain"
)

// MemoryStore keeps the catalog in-process behind a single mutex and writes
// a full JSON snapshot to disk after every mutation. Snapshot failures are
// logged and never surfaced: the in-memory state stays authoritative.
type MemoryStore struct {
	mu           sync.Mutex
	users        map[int]domain.User
	books        map[int]domain.Book
	nextUserID   int
	nextBookID   int
	snapshotPath string
}

// NewMemoryStore initializes the store and loads the snapshot at path when
// one exists. An empty path disables persistence. Missing or corrupt
// snapshots leave the store empty; the error is logged, never fatal.
func NewMemoryStore(path string) *MemoryStore {
	m := &MemoryStore{
		users:        make(map[int]domain.User),
		books:        make(map[int]domain.Book),
		nextUserID:   1,
		nextBookID:   1,
		snapshotPath: path,
	}
	m.load()
	return m
}

func (m *MemoryStore) load() {
	if m.snapshotPath == "" {
		return
	}
	data, err := os.ReadFile(m.snapshotPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			slog.Debug("no snapshot file found, starting with defaults", "path", m.snapshotPath)
			return
		}
		slog.Error("failed to read snapshot", "path", m.snapshotPath, "err", err)
		return
	}
	var doc snapshotDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		slog.Error("failed to parse snapshot", "path", m.snapshotPath, "err", err)
		return
	}

	maxUserID, maxBookID := 0, 0
	for key, rec := range doc.Users {
		id, err := strconv.Atoi(key)
		if err != nil {
			continue
		}
		u := userFromRecord(rec)
		u.ID = id
		m.users[id] = u
		if id > maxUserID {
			maxUserID = id
		}
	}
	for key, rec := range doc.Books {
		id, err := strconv.Atoi(key)
		if err != nil {
			continue
		}
		b := bookFromRecord(rec)
		b.ID = id
		m.books[id] = b
		if id > maxBookID {
			maxBookID = id
		}
	}

	m.nextUserID = doc.UserCounter
	if m.nextUserID <= maxUserID {
		m.nextUserID = maxUserID + 1
	}
	m.nextBookID = doc.BookCounter
	if m.nextBookID <= maxBookID {
		m.nextBookID = maxBookID + 1
	}
	slog.Debug("snapshot loaded", "users", len(m.users), "books", len(m.books))
}

// persistLocked writes the snapshot; callers must hold the mutex.
// Failures are logged and do not roll back the in-memory mutation.
func (m *MemoryStore) persistLocked() {
	if m.snapshotPath == "" {
		return
	}
	doc := snapshotDoc{
		Users:       make(map[string]userRecord, len(m.users)),
		Books:       make(map[string]bookRecord, len(m.books)),
		UserCounter: m.nextUserID,
		BookCounter: m.nextBookID,
	}
	for id, u := range m.users {
		doc.Users[strconv.Itoa(id)] = userToRecord(u)
	}
	for id, b := range m.books {
		doc.Books[strconv.Itoa(id)] = bookToRecord(b)
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		slog.Warn("failed to encode snapshot", "err", err)
		return
	}
	if err := os.WriteFile(m.snapshotPath, data, 0o644); err != nil {
		slog.Warn("failed to write snapshot", "path", m.snapshotPath, "err", err)
	}
}

// CreateUser assigns the next ID and stores the user. The uniqueness check
// and the ID assignment happen under one lock, so two racing registrations
// cannot both succeed with the same username.
func (m *MemoryStore) CreateUser(u domain.User) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Username == u.Username {
			return domain.User{}, ErrUsernameTaken
		}
	}
	u.ID = m.nextUserID
	m.nextUserID++
	m.users[u.ID] = u
	m.persistLocked()
	return u, nil
}

func (m *MemoryStore) GetUserByID(id int) (domain.User, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	return u, ok, nil
}

func (m *MemoryStore) GetUserByUsername(username string) (domain.User, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Username == username {
			return u, true, nil
		}
	}
	return domain.User{}, false, nil
}

func (m *MemoryStore) ListUsers() ([]domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	res := make([]domain.User, 0, len(m.users))
	for _, u := range m.users {
		res = append(res, u)
	}
	return res, nil
}

func (m *MemoryStore) DeleteUser(id int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return ErrUserNotFound
	}
	delete(m.users, id)
	m.persistLocked()
	return nil
}

func (m *MemoryStore) UserCount() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.users), nil
}

// CreateBook assigns the next ID and stores the book.
func (m *MemoryStore) CreateBook(b domain.Book) (domain.Book, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b.ID = m.nextBookID
	m.nextBookID++
	m.books[b.ID] = b
	m.persistLocked()
	return b, nil
}

func (m *MemoryStore) GetBook(id int) (domain.Book, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.books[id]
	return b, ok, nil
}

func (m *MemoryStore) ListBooks() ([]domain.Book, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	res := make([]domain.Book, 0, len(m.books))
	for _, b := range m.books {
		res = append(res, b)
	}
	return res, nil
}

func (m *MemoryStore) DeleteBook(id int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.books[id]; !ok {
		return ErrBookNotFound
	}
	delete(m.books, id)
	m.persistLocked()
	return nil
}

// IncrementDownloads bumps the download counter by one and persists before
// returning the updated record.
func (m *MemoryStore) IncrementDownloads(id int) (domain.Book, error) {
	return m.incrementCounter(id, func(b *domain.Book) { b.Downloads++ })
}

// IncrementViews bumps the view counter by one and persists before
// returning the updated record.
func (m *MemoryStore) IncrementViews(id int) (domain.Book, error) {
	return m.incrementCounter(id, func(b *domain.Book) { b.Views++ })
}

func (m *MemoryStore) incrementCounter(id int, bump func(*domain.Book)) (domain.Book, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.books[id]
	if !ok {
		return domain.Book{}, ErrBookNotFound
	}
	bump(&b)
	m.books[id] = b
	m.persistLocked()
	return b, nil
}
