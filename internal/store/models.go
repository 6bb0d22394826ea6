package store

import (
	"time"

	"kitabghar/pkg/domain"
)

// GORM models used by the database-backed store.
type UserModel struct {
	ID           int       `gorm:"primaryKey;autoIncrement"`
	Username     string    `gorm:"uniqueIndex;not null"`
	Email        string    `gorm:"not null"`
	PasswordHash string    `gorm:"not null"`
	Role         string    `gorm:"not null"`
	CreatedAt    time.Time `gorm:"not null"`
}

type BookModel struct {
	ID          int    `gorm:"primaryKey;autoIncrement"`
	Title       string `gorm:"not null"`
	Author      string
	Category    string `gorm:"index"`
	Description string
	Filename    string `gorm:"not null"`
	Pages       int
	UploadedBy  int       `gorm:"not null;index"`
	UploadedAt  time.Time `gorm:"not null"`
	Downloads   int       `gorm:"not null;default:0"`
	Views       int       `gorm:"not null;default:0"`
}

func userToModel(u domain.User) UserModel {
	return UserModel{
		ID:           u.ID,
		Username:     u.Username,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		Role:         string(u.Role),
		CreatedAt:    u.CreatedAt,
	}
}

func userFromModel(m UserModel) domain.User {
	return domain.User{
		ID:           m.ID,
		Username:     m.Username,
		Email:        m.Email,
		PasswordHash: m.PasswordHash,
		Role:         domain.Role(m.Role),
		CreatedAt:    m.CreatedAt,
	}
}

func bookToModel(b domain.Book) BookModel {
	return BookModel{
		ID:          b.ID,
		Title:       b.Title,
		Author:      b.Author,
		Category:    b.Category,
		Description: b.Description,
		Filename:    b.Filename,
		Pages:       b.Pages,
		UploadedBy:  b.UploadedBy,
		UploadedAt:  b.UploadedAt,
		Downloads:   b.Downloads,
		Views:       b.Views,
	}
}

func bookFromModel(m BookModel) domain.Book {
	return domain.Book{
		ID:          m.ID,
		Title:       m.Title,
		Author:      m.Author,
		Category:    m.Category,
		Description: m.Description,
		Filename:    m.Filename,
		Pages:       m.Pages,
		UploadedBy:  m.UploadedBy,
		UploadedAt:  m.UploadedAt,
		Downloads:   m.Downloads,
		Views:       m.Views,
	}
}
