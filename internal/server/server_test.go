package server

import (
	"bytes"
	"encoding/base64"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"kitabghar/internal/app"
	"kitabghar/internal/storage"
	"kitabghar/internal/store"
	"kitabghar/pkg/domain"
)

func newTestServer(t *testing.T) (*httptest.Server, *app.App) {
	t.Helper()
	dir := t.TempDir()
	st := store.NewMemoryStore(filepath.Join(dir, "data_store.json"))
	blobs, err := storage.NewFileStore(filepath.Join(dir, "uploads"))
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	a, err := app.New(app.Config{
		Store:    st,
		Sessions: store.NewMemorySessionStore(),
		Blobs:    blobs,
	})
	if err != nil {
		t.Fatalf("app.New: %v", err)
	}
	srv, err := New(Config{App: a})
	if err != nil {
		t.Fatalf("server.New: %v", err)
	}
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts, a
}

// newClient returns a cookie-carrying client that does not follow redirects,
// so tests can assert on Location headers.
func newClient(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookiejar: %v", err)
	}
	return &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func register(t *testing.T, a *app.App, username, password, role string) domain.User {
	t.Helper()
	u, err := a.Register(username, username+"@example.com", password, role)
	if err != nil {
		t.Fatalf("Register(%s): %v", username, err)
	}
	return u
}

func login(t *testing.T, c *http.Client, baseURL, username, password string) {
	t.Helper()
	resp, err := c.PostForm(baseURL+"/login", url.Values{
		"username": {username},
		"password": {password},
	})
	if err != nil {
		t.Fatalf("login request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusSeeOther || resp.Header.Get("Location") != "/" {
		t.Fatalf("login: status %d location %q", resp.StatusCode, resp.Header.Get("Location"))
	}
}

func wantRedirect(t *testing.T, resp *http.Response, location string) {
	t.Helper()
	if resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("status = %d, want 303", resp.StatusCode)
	}
	if got := resp.Header.Get("Location"); got != location {
		t.Fatalf("redirect to %q, want %q", got, location)
	}
}

func uploadPDF(t *testing.T, c *http.Client, baseURL, title, filename string) *http.Response {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for field, value := range map[string]string{
		"title":       title,
		"author":      "Tester",
		"category":    "Testing",
		"description": "uploaded by a test",
	} {
		if err := mw.WriteField(field, value); err != nil {
			t.Fatalf("write field %s: %v", field, err)
		}
	}
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := fw.Write([]byte("%PDF-1.4 test payload")); err != nil {
		t.Fatalf("write file: %v", err)
	}
	mw.Close()

	resp, err := c.Post(baseURL+"/upload", mw.FormDataContentType(), &body)
	if err != nil {
		t.Fatalf("upload request: %v", err)
	}
	return resp
}

func TestHealthz(t *testing.T) {
	ts, _ := newTestServer(t)
	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `"status":"ok"`) {
		t.Fatalf("body = %s", body)
	}
}

func TestLoginLogoutFlow(t *testing.T) {
	ts, a := newTestServer(t)
	register(t, a, "alice", "pw", "reader")
	c := newClient(t)

	// Unauthenticated profile bounces to the login page.
	resp, err := c.Get(ts.URL + "/profile")
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	resp.Body.Close()
	wantRedirect(t, resp, "/login")

	login(t, c, ts.URL, "alice", "pw")

	resp, err = c.Get(ts.URL + "/profile")
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("profile after login: status %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), "alice") {
		t.Fatal("profile page missing the username")
	}

	resp, err = c.Get(ts.URL + "/logout")
	if err != nil {
		t.Fatalf("logout: %v", err)
	}
	resp.Body.Close()
	wantRedirect(t, resp, "/")

	resp, err = c.Get(ts.URL + "/profile")
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	resp.Body.Close()
	wantRedirect(t, resp, "/login")
}

func TestBrowseIsPublic(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/browse?q=&category=&view=list")
	if err != nil {
		t.Fatalf("browse: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "Browse the library") {
		t.Fatal("browse page missing expected content")
	}
}

func TestLoginRequiredFlashIsWarning(t *testing.T) {
	ts, _ := newTestServer(t)
	c := newClient(t)

	resp, err := c.Get(ts.URL + "/profile")
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	resp.Body.Close()
	wantRedirect(t, resp, "/login")

	var flashValue string
	for _, ck := range resp.Cookies() {
		if ck.Name == "kitabghar_flash" {
			flashValue = ck.Value
		}
	}
	if flashValue == "" {
		t.Fatal("no flash cookie set on the login redirect")
	}
	raw, err := base64.RawURLEncoding.DecodeString(flashValue)
	if err != nil {
		t.Fatalf("decode flash: %v", err)
	}
	if !strings.HasPrefix(string(raw), "warning\x00") {
		t.Fatalf("flash category = %q, want warning", string(raw))
	}
}

func TestBadLoginRedirectsBack(t *testing.T) {
	ts, a := newTestServer(t)
	register(t, a, "alice", "pw", "reader")
	c := newClient(t)

	resp, err := c.PostForm(ts.URL+"/login", url.Values{
		"username": {"alice"},
		"password": {"wrong"},
	})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	resp.Body.Close()
	wantRedirect(t, resp, "/login")

	// No session was issued.
	resp, err = c.Get(ts.URL + "/profile")
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	resp.Body.Close()
	wantRedirect(t, resp, "/login")
}

func TestRoleDenials(t *testing.T) {
	ts, a := newTestServer(t)
	register(t, a, "reader", "pw", "reader")
	register(t, a, "author", "pw", "author")
	register(t, a, "admin", "pw", "admin")

	cases := []struct {
		user, path string
		allowed    bool
	}{
		{"reader", "/upload", false},
		{"reader", "/admin", false},
		{"author", "/upload", true},
		{"author", "/admin", false},
		{"admin", "/upload", true},
		{"admin", "/admin", true},
	}
	for _, tc := range cases {
		c := newClient(t)
		login(t, c, ts.URL, tc.user, "pw")
		resp, err := c.Get(ts.URL + tc.path)
		if err != nil {
			t.Fatalf("%s GET %s: %v", tc.user, tc.path, err)
		}
		resp.Body.Close()
		if tc.allowed {
			if resp.StatusCode != http.StatusOK {
				t.Fatalf("%s GET %s: status %d, want 200", tc.user, tc.path, resp.StatusCode)
			}
		} else {
			wantRedirect(t, resp, "/")
		}
	}
}

func TestRegisterLogsInAndRejectsDuplicates(t *testing.T) {
	ts, _ := newTestServer(t)
	c := newClient(t)

	form := url.Values{
		"username":         {"bob"},
		"email":            {"bob@example.com"},
		"password":         {"pw"},
		"confirm_password": {"pw"},
		"role":             {"reader"},
	}
	resp, err := c.PostForm(ts.URL+"/register", form)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	resp.Body.Close()
	wantRedirect(t, resp, "/")

	// Registration opens a session immediately.
	resp, err = c.Get(ts.URL + "/profile")
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("profile after register: status %d, want 200", resp.StatusCode)
	}

	resp, err = c.PostForm(ts.URL+"/register", form)
	if err != nil {
		t.Fatalf("register again: %v", err)
	}
	resp.Body.Close()
	wantRedirect(t, resp, "/register")
}

func TestRegisterRejectsMismatchedPasswords(t *testing.T) {
	ts, a := newTestServer(t)
	c := newClient(t)

	resp, err := c.PostForm(ts.URL+"/register", url.Values{
		"username":         {"mallory"},
		"email":            {"mallory@example.com"},
		"password":         {"first"},
		"confirm_password": {"second"},
		"role":             {"reader"},
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	resp.Body.Close()
	wantRedirect(t, resp, "/register")

	if _, ok := a.Authenticate("mallory", "first"); ok {
		t.Fatal("account created despite mismatched passwords")
	}
	users, _ := a.ListUsers()
	if len(users) != 0 {
		t.Fatalf("mismatched registration changed the store: %d users", len(users))
	}
}

func TestUploadRejectsNonPDF(t *testing.T) {
	ts, a := newTestServer(t)
	register(t, a, "author", "pw", "author")
	c := newClient(t)
	login(t, c, ts.URL, "author", "pw")

	resp := uploadPDF(t, c, ts.URL, "Malware", "payload.exe")
	resp.Body.Close()
	wantRedirect(t, resp, "/upload")

	books, _ := a.ListBooks()
	if len(books) != 0 {
		t.Fatalf("rejected upload created %d records", len(books))
	}
}

func TestUploadAndServeBook(t *testing.T) {
	ts, a := newTestServer(t)
	register(t, a, "author", "pw", "author")
	c := newClient(t)
	login(t, c, ts.URL, "author", "pw")

	resp := uploadPDF(t, c, ts.URL, "Served Title", "book.pdf")
	resp.Body.Close()
	wantRedirect(t, resp, "/browse")

	books, _ := a.ListBooks()
	if len(books) != 1 {
		t.Fatalf("got %d books after upload", len(books))
	}
	id := strconv.Itoa(books[0].ID)

	// Download is an attachment named after the title.
	resp, err := c.Get(ts.URL + "/download/" + id)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("download status %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/pdf" {
		t.Fatalf("Content-Type = %q", ct)
	}
	cd := resp.Header.Get("Content-Disposition")
	if !strings.HasPrefix(cd, "attachment;") || !strings.Contains(cd, "Served Title.pdf") {
		t.Fatalf("Content-Disposition = %q", cd)
	}
	if !bytes.Contains(body, []byte("%PDF-1.4")) {
		t.Fatal("download body does not contain the uploaded file")
	}

	// Read serves inline.
	resp, err = c.Get(ts.URL + "/read/" + id)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	resp.Body.Close()
	if got := resp.Header.Get("Content-Disposition"); !strings.HasPrefix(got, "inline;") {
		t.Fatalf("read Content-Disposition = %q", got)
	}

	got, _ := a.SearchBooks("Served Title", "")
	if len(got) != 1 || got[0].Downloads != 1 || got[0].Views != 1 {
		t.Fatalf("counters after serve: %+v", got)
	}
}

func TestServeMissingBook(t *testing.T) {
	ts, a := newTestServer(t)
	register(t, a, "reader", "pw", "reader")
	c := newClient(t)
	login(t, c, ts.URL, "reader", "pw")

	for _, path := range []string{"/download/999", "/read/999", "/download/abc"} {
		resp, err := c.Get(ts.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		resp.Body.Close()
		wantRedirect(t, resp, "/browse")
	}
}

func TestAdminDeleteBook(t *testing.T) {
	ts, a := newTestServer(t)
	register(t, a, "author", "pw", "author")
	register(t, a, "admin", "pw", "admin")

	author := newClient(t)
	login(t, author, ts.URL, "author", "pw")
	resp := uploadPDF(t, author, ts.URL, "Doomed", "d.pdf")
	resp.Body.Close()

	books, _ := a.ListBooks()
	if len(books) != 1 {
		t.Fatalf("got %d books", len(books))
	}

	admin := newClient(t)
	login(t, admin, ts.URL, "admin", "pw")
	resp, err := admin.Post(ts.URL+"/admin/delete_book/"+strconv.Itoa(books[0].ID), "", nil)
	if err != nil {
		t.Fatalf("delete book: %v", err)
	}
	resp.Body.Close()
	wantRedirect(t, resp, "/admin")

	books, _ = a.ListBooks()
	if len(books) != 0 {
		t.Fatalf("book survived admin delete")
	}
}

func TestAdminCannotDeleteSelf(t *testing.T) {
	ts, a := newTestServer(t)
	admin := register(t, a, "admin", "pw", "admin")
	c := newClient(t)
	login(t, c, ts.URL, "admin", "pw")

	resp, err := c.Post(ts.URL+"/admin/delete_user/"+strconv.Itoa(admin.ID), "", nil)
	if err != nil {
		t.Fatalf("delete self: %v", err)
	}
	resp.Body.Close()
	wantRedirect(t, resp, "/admin")

	users, _ := a.ListUsers()
	if len(users) != 1 {
		t.Fatal("admin account was deleted")
	}
}

func TestAdminDeleteUser(t *testing.T) {
	ts, a := newTestServer(t)
	register(t, a, "admin", "pw", "admin")
	victim := register(t, a, "victim", "pw", "reader")
	c := newClient(t)
	login(t, c, ts.URL, "admin", "pw")

	resp, err := c.Post(ts.URL+"/admin/delete_user/"+strconv.Itoa(victim.ID), "", nil)
	if err != nil {
		t.Fatalf("delete user: %v", err)
	}
	resp.Body.Close()
	wantRedirect(t, resp, "/admin")

	if _, ok := a.Authenticate("victim", "pw"); ok {
		t.Fatal("deleted user can still log in")
	}
}

func TestIndexIsPublic(t *testing.T) {
	ts, _ := newTestServer(t)
	resp, err := http.Get(ts.URL + "/")
	if err != nil {
		t.Fatalf("index: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "KitabGhar") {
		t.Fatal("index missing site name")
	}
}
