package store

import (
	"errors"
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"kitabghar/pkg/domain"
)

// GormStore implements Store on Postgres. It is an optional backend for
// deployments that outgrow the snapshot file; the memory store remains the
// default.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.AutoMigrate(&UserModel{}, &BookModel{}); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return &GormStore{db: db}, nil
}

// CreateUser checks uniqueness and inserts inside one transaction.
func (s *GormStore) CreateUser(u domain.User) (domain.User, error) {
	model := userToModel(u)
	model.ID = 0
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&UserModel{}).Where("username = ?", u.Username).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrUsernameTaken
		}
		return tx.Create(&model).Error
	})
	if err != nil {
		return domain.User{}, err
	}
	return userFromModel(model), nil
}

func (s *GormStore) GetUserByID(id int) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

func (s *GormStore) GetUserByUsername(username string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.First(&model, "username = ?", username).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

func (s *GormStore) ListUsers() ([]domain.User, error) {
	var models []UserModel
	if err := s.db.Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.User, 0, len(models))
	for _, m := range models {
		res = append(res, userFromModel(m))
	}
	return res, nil
}

func (s *GormStore) DeleteUser(id int) error {
	tx := s.db.Delete(&UserModel{}, "id = ?", id)
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (s *GormStore) UserCount() (int, error) {
	var count int64
	if err := s.db.Model(&UserModel{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}

func (s *GormStore) CreateBook(b domain.Book) (domain.Book, error) {
	model := bookToModel(b)
	model.ID = 0
	if err := s.db.Create(&model).Error; err != nil {
		return domain.Book{}, err
	}
	return bookFromModel(model), nil
}

func (s *GormStore) GetBook(id int) (domain.Book, bool, error) {
	var model BookModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Book{}, false, nil
		}
		return domain.Book{}, false, err
	}
	return bookFromModel(model), true, nil
}

func (s *GormStore) ListBooks() ([]domain.Book, error) {
	var models []BookModel
	if err := s.db.Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Book, 0, len(models))
	for _, m := range models {
		res = append(res, bookFromModel(m))
	}
	return res, nil
}

func (s *GormStore) DeleteBook(id int) error {
	tx := s.db.Delete(&BookModel{}, "id = ?", id)
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return ErrBookNotFound
	}
	return nil
}

func (s *GormStore) IncrementDownloads(id int) (domain.Book, error) {
	return s.incrementCounter(id, "downloads")
}

func (s *GormStore) IncrementViews(id int) (domain.Book, error) {
	return s.incrementCounter(id, "views")
}

func (s *GormStore) incrementCounter(id int, column string) (domain.Book, error) {
	var model BookModel
	err := s.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&BookModel{}).
			Where("id = ?", id).
			UpdateColumn(column, gorm.Expr(column+" + 1"))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrBookNotFound
		}
		return tx.First(&model, "id = ?", id).Error
	})
	if err != nil {
		return domain.Book{}, err
	}
	return bookFromModel(model), nil
}
