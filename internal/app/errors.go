package app

import "errors"

var (
	ErrUsernameAndPasswordRequired = errors.New("username and password required")
	ErrUsernameTaken               = errors.New("username already exists")
	ErrInvalidCredentials          = errors.New("invalid credentials")
	ErrAccessDenied                = errors.New("access denied")
	ErrInvalidFileType             = errors.New("invalid file type, only PDFs allowed")
	ErrBookNotFound                = errors.New("book not found")
	ErrUserNotFound                = errors.New("user not found")
	ErrFileMissing                 = errors.New("file not found on server")
	ErrSelfDelete                  = errors.New("cannot delete your own account")
)
