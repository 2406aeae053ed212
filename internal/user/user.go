// Package user defines the account entity stored by every backend and the
// public view that is safe to hand out to API clients.
package user

import (
	"net/http"
	"strings"
	"time"
)

// User represents one registered account.
type User struct {
	// ID is assigned by the storage on creation: a UUID for PostgreSQL and the
	// memory store, an ObjectID hex string for MongoDB.
	ID string

	Name   string
	Email  string
	Mobile string

	// PasswordHash is the bcrypt hash of the password. It never leaves the service.
	PasswordHash string `json:"-"`

	// ProfilePicture is the relative public path of the picture, e.g. /uploads/x.png.
	ProfilePicture *string

	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// PublicView is a User without the password hash and with the picture path
// rewritten into an absolute URL.
type PublicView struct {
	UserID         string    `json:"userId"`
	Name           string    `json:"name"`
	Email          string    `json:"email"`
	Mobile         string    `json:"mobile"`
	ProfilePicture *string   `json:"profilePicture"`
	IsActive       bool      `json:"isActive"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// View builds the public view of usr. baseURL is the scheme://host prefix of
// the current request; see BaseURL.
func (usr *User) View(baseURL string) PublicView {
	return PublicView{
		UserID:         usr.ID,
		Name:           usr.Name,
		Email:          usr.Email,
		Mobile:         usr.Mobile,
		ProfilePicture: AbsolutePictureURL(baseURL, usr.ProfilePicture),
		IsActive:       usr.IsActive,
		CreatedAt:      usr.CreatedAt,
		UpdatedAt:      usr.UpdatedAt,
	}
}

// AbsolutePictureURL joins baseURL and the stored relative path. A nil or
// empty path yields nil.
func AbsolutePictureURL(baseURL string, picturePath *string) *string {
	if picturePath == nil || *picturePath == "" {
		return nil
	}
	path := *picturePath
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	result := strings.TrimRight(baseURL, "/") + path

	return &result
}

// BaseURL returns scheme://host of the request. The scheme honours a TLS
// connection and the X-Forwarded-Proto header set by a reverse proxy.
func BaseURL(request *http.Request) string {
	scheme := "http"
	if request.TLS != nil {
		scheme = "https"
	}
	if proto := request.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = strings.TrimSpace(strings.Split(proto, ",")[0])
	}

	return scheme + "://" + request.Host
}
