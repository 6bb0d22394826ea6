package server

import (
	"encoding/base64"
	"net/http"
	"strings"
)

const flashCookie = "kitabghar_flash"

// Flash is a one-shot notice rendered on the next page load.
type Flash struct {
	Category string // success | error | warning | info
	Message  string
}

// setFlash stores the notice in a cookie consumed by the next render.
func setFlash(w http.ResponseWriter, category, message string) {
	value := base64.RawURLEncoding.EncodeToString([]byte(category + "\x00" + message))
	http.SetCookie(w, &http.Cookie{
		Name:     flashCookie,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// popFlash reads and clears the pending notice, if any.
func popFlash(w http.ResponseWriter, r *http.Request) *Flash {
	c, err := r.Cookie(flashCookie)
	if err != nil || c.Value == "" {
		return nil
	}
	http.SetCookie(w, &http.Cookie{
		Name:     flashCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	raw, err := base64.RawURLEncoding.DecodeString(c.Value)
	if err != nil {
		return nil
	}
	category, message, found := strings.Cut(string(raw), "\x00")
	if !found {
		return &Flash{Category: "info", Message: string(raw)}
	}
	return &Flash{Category: category, Message: message}
}
