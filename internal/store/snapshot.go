package store

import (
	"time"

	"kitabghar/pkg/domain"
)

// Snapshot document layout. Keys and field names match the legacy data file
// so existing snapshots keep loading: both tables are maps of stringified
// integer IDs, counters hold the next ID to assign, timestamps are ISO-8601.
type snapshotDoc struct {
	Users       map[string]userRecord `json:"users_db"`
	Books       map[string]bookRecord `json:"books_db"`
	UserCounter int                   `json:"user_counter"`
	BookCounter int                   `json:"book_counter"`
}

type userRecord struct {
	ID           int    `json:"id"`
	Username     string `json:"username"`
	Email        string `json:"email"`
	PasswordHash string `json:"password_hash"`
	Role         string `json:"role"`
	CreatedAt    string `json:"created_at"`
}

type bookRecord struct {
	ID          int    `json:"id"`
	Title       string `json:"title"`
	Author      string `json:"author"`
	Category    string `json:"category"`
	Description string `json:"description"`
	Filename    string `json:"filename"`
	Pages       int    `json:"pages,omitempty"`
	UploadedBy  int    `json:"uploaded_by"`
	UploadedAt  string `json:"uploaded_at"`
	Downloads   int    `json:"downloads"`
	Views       int    `json:"views"`
}

func userToRecord(u domain.User) userRecord {
	return userRecord{
		ID:           u.ID,
		Username:     u.Username,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		Role:         string(u.Role),
		CreatedAt:    encodeTime(u.CreatedAt),
	}
}

func userFromRecord(rec userRecord) domain.User {
	return domain.User{
		ID:           rec.ID,
		Username:     rec.Username,
		Email:        rec.Email,
		PasswordHash: rec.PasswordHash,
		Role:         domain.Role(rec.Role),
		CreatedAt:    decodeTime(rec.CreatedAt),
	}
}

func bookToRecord(b domain.Book) bookRecord {
	return bookRecord{
		ID:          b.ID,
		Title:       b.Title,
		Author:      b.Author,
		Category:    b.Category,
		Description: b.Description,
		Filename:    b.Filename,
		Pages:       b.Pages,
		UploadedBy:  b.UploadedBy,
		UploadedAt:  encodeTime(b.UploadedAt),
		Downloads:   b.Downloads,
		Views:       b.Views,
	}
}

func bookFromRecord(rec bookRecord) domain.Book {
	return domain.Book{
		ID:          rec.ID,
		Title:       rec.Title,
		Author:      rec.Author,
		Category:    rec.Category,
		Description: rec.Description,
		Filename:    rec.Filename,
		Pages:       rec.Pages,
		UploadedBy:  rec.UploadedBy,
		UploadedAt:  decodeTime(rec.UploadedAt),
		Downloads:   rec.Downloads,
		Views:       rec.Views,
	}
}

func encodeTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// decodeTime accepts RFC 3339 as written by this process and the
// zone-less ISO format found in snapshots written by the legacy app.
func decodeTime(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t
	}
	if t, err := time.Parse("2006-01-02T15:04:05.999999999", raw); err == nil {
		return t.UTC()
	}
	return time.Time{}
}
