// Package server exposes the library's HTML pages and file endpoints.
// Handlers parse input, call the application core, and translate its errors
// into flash messages and redirects.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"kitabghar/internal/app"
	"kitabghar/internal/ratelimit"
	"kitabghar/internal/util"
	"kitabghar/pkg/domain"
)

const sessionCookie = "kitabghar_session"

// Config wires required dependencies for the HTTP server.
type Config struct {
	App             *app.App
	MaxUploadBytes  int64
	LoginLimiter    *ratelimit.FixedWindowLimiter
	RegisterLimiter *ratelimit.FixedWindowLimiter
}

// Server serves the web UI and the document endpoints.
type Server struct {
	app             *app.App
	mux             *http.ServeMux
	templates       map[string]*template.Template
	maxUploadBytes  int64
	loginLimiter    *ratelimit.FixedWindowLimiter
	registerLimiter *ratelimit.FixedWindowLimiter
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("app is required")
	}
	maxUploadBytes := cfg.MaxUploadBytes
	if maxUploadBytes <= 0 {
		maxUploadBytes = 300 * 1024 * 1024
	}
	templates, err := parseTemplates()
	if err != nil {
		return nil, err
	}
	s := &Server{
		app:             cfg.App,
		mux:             http.NewServeMux(),
		templates:       templates,
		maxUploadBytes:  maxUploadBytes,
		loginLimiter:    cfg.LoginLimiter,
		registerLimiter: cfg.RegisterLimiter,
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler with the standard middleware chain.
func (s *Server) Router() http.Handler {
	return util.WithRequestLog(util.WithSecurityHeaders(s.mux))
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)

	s.mux.HandleFunc("GET /{$}", s.handleIndex)
	s.mux.HandleFunc("GET /login", s.handleLoginPage)
	s.mux.HandleFunc("POST /login", s.handleLogin)
	s.mux.HandleFunc("GET /register", s.handleRegisterPage)
	s.mux.HandleFunc("POST /register", s.handleRegister)
	s.mux.HandleFunc("GET /logout", s.handleLogout)

	s.mux.HandleFunc("GET /browse", s.handleBrowse)
	s.mux.Handle("GET /profile", s.requireLogin(s.handleProfile))
	s.mux.Handle("GET /download/{id}", s.requireLogin(s.handleDownload))
	s.mux.Handle("GET /read/{id}", s.requireLogin(s.handleRead))

	s.mux.Handle("GET /upload", s.requireRole(domain.RoleAuthor, s.handleUploadPage))
	s.mux.Handle("POST /upload", s.requireRole(domain.RoleAuthor, s.handleUpload))

	s.mux.Handle("GET /admin", s.requireRole(domain.RoleAdmin, s.handleAdmin))
	// Deletions accept GET for link-style admin pages and POST for forms.
	for _, method := range []string{"GET ", "POST "} {
		s.mux.Handle(method+"/admin/delete_user/{id}", s.requireRole(domain.RoleAdmin, s.handleDeleteUser))
		s.mux.Handle(method+"/admin/delete_book/{id}", s.requireRole(domain.RoleAdmin, s.handleDeleteBook))
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// currentUser resolves the session cookie, if present.
func (s *Server) currentUser(r *http.Request) (domain.User, bool) {
	c, err := r.Cookie(sessionCookie)
	if err != nil || c.Value == "" {
		return domain.User{}, false
	}
	return s.app.CurrentUser(c.Value)
}

type userHandler func(http.ResponseWriter, *http.Request, domain.User)

func (s *Server) requireLogin(next userHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := s.currentUser(r)
		if !ok {
			setFlash(w, "warning", "Please log in to access this page.")
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		next(w, r, user)
	})
}

func (s *Server) requireRole(min domain.Role, next userHandler) http.Handler {
	return s.requireLogin(func(w http.ResponseWriter, r *http.Request, user domain.User) {
		if !user.Role.AtLeast(min) {
			slog.Warn("access denied", "user_id", user.ID, "role", user.Role, "path", r.URL.Path)
			setFlash(w, "error", "Access denied. Insufficient permissions.")
			http.Redirect(w, r, "/", http.StatusSeeOther)
			return
		}
		next(w, r, user)
	})
}

type indexData struct {
	TotalBooks  int
	TotalUsers  int
	RecentBooks []domain.Book
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	totalBooks, totalUsers, err := s.app.Stats()
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	recent, err := s.app.RecentBooks(6)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	s.render(w, r, "index", pageData{
		Title:       "Home",
		CurrentUser: s.optionalUser(r),
		Data:        indexData{TotalBooks: totalBooks, TotalUsers: totalUsers, RecentBooks: recent},
	})
}

func (s *Server) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, "login", pageData{Title: "Login", CurrentUser: s.optionalUser(r)})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if s.loginLimiter != nil && !s.loginLimiter.Allow("login:"+util.ClientIP(r)) {
		setFlash(w, "error", "Too many login attempts. Please try again later.")
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}
	username := r.FormValue("username")
	user, token, err := s.app.Login(username, r.FormValue("password"))
	if err != nil {
		slog.Info("login failed", "username", username, "ip", util.ClientIP(r))
		setFlash(w, "error", "Invalid username or password.")
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}
	s.setSessionCookie(w, token)
	slog.Info("login succeeded", "user_id", user.ID, "username", user.Username)
	setFlash(w, "success", "Welcome back, "+user.Username+"!")
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) handleRegisterPage(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, "register", pageData{
		Title:       "Register",
		CurrentUser: s.optionalUser(r),
		Data:        domain.Roles(),
	})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if s.registerLimiter != nil && !s.registerLimiter.Allow("register:"+util.ClientIP(r)) {
		setFlash(w, "error", "Too many registration attempts. Please try again later.")
		http.Redirect(w, r, "/register", http.StatusSeeOther)
		return
	}
	username := r.FormValue("username")
	password := r.FormValue("password")
	if password != r.FormValue("confirm_password") {
		setFlash(w, "error", "Passwords do not match.")
		http.Redirect(w, r, "/register", http.StatusSeeOther)
		return
	}
	user, err := s.app.Register(username, r.FormValue("email"), password, r.FormValue("role"))
	switch {
	case errors.Is(err, app.ErrUsernameAndPasswordRequired):
		setFlash(w, "error", "Username and password are required.")
		http.Redirect(w, r, "/register", http.StatusSeeOther)
	case errors.Is(err, app.ErrUsernameTaken):
		setFlash(w, "error", "Username already exists.")
		http.Redirect(w, r, "/register", http.StatusSeeOther)
	case err != nil:
		s.internalError(w, r, err)
	default:
		slog.Info("user registered", "user_id", user.ID, "username", user.Username, "role", user.Role)
		// New accounts are logged in right away.
		_, token, err := s.app.Login(username, password)
		if err != nil {
			setFlash(w, "success", "Registration successful. Please log in.")
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		s.setSessionCookie(w, token)
		setFlash(w, "success", "Welcome, "+user.Username+"!")
		http.Redirect(w, r, "/", http.StatusSeeOther)
	}
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(sessionCookie); err == nil && c.Value != "" {
		s.app.Logout(c.Value)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	setFlash(w, "info", "You have been logged out.")
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

type browseData struct {
	Books      []domain.Book
	Categories []string
	Query      string
	Category   string
	View       string // grid | list
}

// handleBrowse is public: anyone may search the catalog, but read and
// download links require a session.
func (s *Server) handleBrowse(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	category := r.URL.Query().Get("category")
	view := r.URL.Query().Get("view")
	if view != "list" {
		view = "grid"
	}
	books, err := s.app.SearchBooks(query, category)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	app.SortNewestFirst(books)
	categories, err := s.app.Categories()
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	s.render(w, r, "browse", pageData{
		Title:       "Browse",
		CurrentUser: s.optionalUser(r),
		Data:        browseData{Books: books, Categories: categories, Query: query, Category: category, View: view},
	})
}

func (s *Server) handleUploadPage(w http.ResponseWriter, r *http.Request, user domain.User) {
	s.render(w, r, "upload", pageData{Title: "Upload", CurrentUser: &user})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request, user domain.User) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		setFlash(w, "error", "Upload failed: file too large or malformed form.")
		http.Redirect(w, r, "/upload", http.StatusSeeOther)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		setFlash(w, "error", "A file is required.")
		http.Redirect(w, r, "/upload", http.StatusSeeOther)
		return
	}
	defer file.Close()

	meta := app.BookMeta{
		Title:       r.FormValue("title"),
		Author:      r.FormValue("author"),
		Category:    r.FormValue("category"),
		Description: r.FormValue("description"),
	}
	book, err := s.app.UploadBook(r.Context(), user, meta, header.Filename, file, header.Size)
	switch {
	case errors.Is(err, app.ErrInvalidFileType):
		setFlash(w, "error", "Invalid file type. Only PDF files are allowed.")
		http.Redirect(w, r, "/upload", http.StatusSeeOther)
	case errors.Is(err, app.ErrAccessDenied):
		setFlash(w, "error", "Access denied. Insufficient permissions.")
		http.Redirect(w, r, "/", http.StatusSeeOther)
	case err != nil:
		s.internalError(w, r, err)
	default:
		setFlash(w, "success", fmt.Sprintf("%q uploaded successfully.", book.Title))
		http.Redirect(w, r, "/browse", http.StatusSeeOther)
	}
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request, user domain.User) {
	s.serveBookFile(w, r, user, "attachment", s.app.DownloadBook)
}

func (s *Server) handleRead(w http.ResponseWriter, r *http.Request, user domain.User) {
	s.serveBookFile(w, r, user, "inline", s.app.ReadBook)
}

type bookOpener func(ctx context.Context, id int) (domain.Book, io.ReadCloser, error)

func (s *Server) serveBookFile(w http.ResponseWriter, r *http.Request, user domain.User, disposition string, open bookOpener) {
	id, ok := pathID(r)
	if !ok {
		s.flashNotFound(w, r, "Book not found.")
		return
	}
	book, rc, err := open(r.Context(), id)
	switch {
	case errors.Is(err, app.ErrBookNotFound):
		s.flashNotFound(w, r, "Book not found.")
		return
	case errors.Is(err, app.ErrFileMissing):
		s.flashNotFound(w, r, "File not found on server.")
		return
	case err != nil:
		s.internalError(w, r, err)
		return
	}
	defer rc.Close()

	slog.Info("book served", "book_id", book.ID, "user_id", user.ID, "disposition", disposition)
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("%s; filename=%q", disposition, book.Title+".pdf"))
	if _, err := io.Copy(w, rc); err != nil {
		slog.Warn("file transfer interrupted", "book_id", book.ID, "err", err)
	}
}

type adminData struct {
	Users []domain.User
	Books []domain.Book
}

func (s *Server) handleAdmin(w http.ResponseWriter, r *http.Request, user domain.User) {
	users, err := s.app.ListUsers()
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	books, err := s.app.ListBooks()
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	app.SortNewestFirst(books)
	s.render(w, r, "admin", pageData{
		Title:       "Admin",
		CurrentUser: &user,
		Data:        adminData{Users: users, Books: books},
	})
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request, user domain.User) {
	id, ok := pathID(r)
	if !ok {
		s.flashNotFound(w, r, "User not found.")
		return
	}
	deleted, err := s.app.DeleteUser(user, id)
	switch {
	case errors.Is(err, app.ErrSelfDelete):
		setFlash(w, "error", "You cannot delete your own account.")
		http.Redirect(w, r, "/admin", http.StatusSeeOther)
	case errors.Is(err, app.ErrUserNotFound):
		setFlash(w, "error", "User not found.")
		http.Redirect(w, r, "/admin", http.StatusSeeOther)
	case err != nil:
		s.internalError(w, r, err)
	default:
		setFlash(w, "success", fmt.Sprintf("User %q deleted.", deleted.Username))
		http.Redirect(w, r, "/admin", http.StatusSeeOther)
	}
}

func (s *Server) handleDeleteBook(w http.ResponseWriter, r *http.Request, _ domain.User) {
	id, ok := pathID(r)
	if !ok {
		s.flashNotFound(w, r, "Book not found.")
		return
	}
	book, err := s.app.DeleteBook(r.Context(), id)
	switch {
	case errors.Is(err, app.ErrBookNotFound):
		setFlash(w, "error", "Book not found.")
		http.Redirect(w, r, "/admin", http.StatusSeeOther)
	case err != nil:
		s.internalError(w, r, err)
	default:
		setFlash(w, "success", fmt.Sprintf("%q deleted.", book.Title))
		http.Redirect(w, r, "/admin", http.StatusSeeOther)
	}
}

type profileData struct {
	Uploads []domain.Book
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request, user domain.User) {
	var uploads []domain.Book
	if user.Role.AtLeast(domain.RoleAuthor) {
		var err error
		uploads, err = s.app.BooksUploadedBy(user.ID)
		if err != nil {
			s.internalError(w, r, err)
			return
		}
	}
	s.render(w, r, "profile", pageData{
		Title:       "Profile",
		CurrentUser: &user,
		Data:        profileData{Uploads: uploads},
	})
}

// optionalUser is for pages visible before login.
func (s *Server) optionalUser(r *http.Request) *domain.User {
	user, ok := s.currentUser(r)
	if !ok {
		return nil
	}
	return &user
}

func pathID(r *http.Request) (int, bool) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func (s *Server) flashNotFound(w http.ResponseWriter, r *http.Request, msg string) {
	setFlash(w, "error", msg)
	http.Redirect(w, r, "/browse", http.StatusSeeOther)
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, err error) {
	slog.Error("request failed", "path", r.URL.Path, "err", err)
	http.Error(w, "internal error", http.StatusInternalServerError)
}
