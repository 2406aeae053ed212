package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"reflect"

	"github.com/thoas/go-funk"

	"github.com/patric-chuzhbe/userapi/internal/auth"
	"github.com/patric-chuzhbe/userapi/internal/filestore"
	"github.com/patric-chuzhbe/userapi/internal/logger"
	"github.com/patric-chuzhbe/userapi/internal/models"
	"github.com/patric-chuzhbe/userapi/internal/service"
	"github.com/patric-chuzhbe/userapi/internal/user"
)

// UploadFieldName is the multipart field carrying the picture.
const UploadFieldName = "profilePicture"

// multipartOverhead leaves room for boundaries and part headers on top of
// the file size limit.
const multipartOverhead = 64 << 10

var errUploadTooLarge = errors.New("upload too large")

type errorResponse struct {
	status  int
	message string
}

var knownErrors = []struct {
	err      error
	response errorResponse
}{
	{service.ErrDuplicateEmail, errorResponse{http.StatusBadRequest, "User with this email already exists"}},
	{service.ErrDuplicateMobile, errorResponse{http.StatusBadRequest, "User with this mobile number already exists"}},
	{service.ErrInvalidCredentials, errorResponse{http.StatusUnauthorized, "Invalid email or password"}},
	{service.ErrAccountDeactivated, errorResponse{http.StatusForbidden, "Account is deactivated. Please contact support"}},
	{service.ErrUserNotFound, errorResponse{http.StatusNotFound, "User not found"}},
	{service.ErrNoFile, errorResponse{http.StatusBadRequest, "No file uploaded"}},
	{filestore.ErrUnsupportedType, errorResponse{http.StatusBadRequest, "Only image files (jpeg, png, gif, webp) are allowed"}},
	{errUploadTooLarge, errorResponse{http.StatusBadRequest, "File too large"}},
	{context.DeadlineExceeded, errorResponse{http.StatusGatewayTimeout, "Request timed out"}},
}

func (r *Router) writeError(response http.ResponseWriter, request *http.Request, err error) {
	for _, known := range knownErrors {
		if errors.Is(err, known.err) {
			models.WriteError(response, known.response.status, known.response.message)
			return
		}
	}

	logger.Log.Errorw("request failed", "path", request.URL.Path, "error", err)

	message := MessageInternalError
	if r.settings.ExposeInternalErrors {
		message = err.Error()
	}
	models.WriteError(response, http.StatusInternalServerError, message)
}

// decodeBody fills dst from a JSON, urlencoded or multipart body.
func decodeBody(request *http.Request, dst interface{}) error {
	mediaType, _, _ := mime.ParseMediaType(request.Header.Get("Content-Type"))

	switch mediaType {
	case "application/x-www-form-urlencoded", "multipart/form-data":
		if err := request.ParseMultipartForm(32 << 10); err != nil && !errors.Is(err, http.ErrNotMultipart) {
			return err
		}
		decodeForm(request, dst)
		return nil
	default:
		if err := json.NewDecoder(request.Body).Decode(dst); err != nil {
			return fmt.Errorf("invalid JSON body: %w", err)
		}
		return nil
	}
}

// decodeForm copies form values into the string fields of dst tagged with
// `form`.
func decodeForm(request *http.Request, dst interface{}) {
	value := reflect.ValueOf(dst).Elem()
	valueType := value.Type()

	for i := 0; i < valueType.NumField(); i++ {
		name := valueType.Field(i).Tag.Get("form")
		if name == "" || value.Field(i).Kind() != reflect.String {
			continue
		}
		value.Field(i).SetString(request.FormValue(name))
	}
}

func (r *Router) decodeAndValidate(response http.ResponseWriter, request *http.Request, dst interface{}) bool {
	if err := decodeBody(request, dst); err != nil {
		models.WriteError(response, http.StatusBadRequest, fmt.Sprintf("Validation Error: %s", err))
		return false
	}

	if err := r.validate.Struct(dst); err != nil {
		models.WriteError(response, http.StatusBadRequest, validationMessage(err))
		return false
	}

	return true
}

func (r *Router) authResponse(request *http.Request, session *service.Session) models.AuthResponse {
	return models.AuthResponse{
		PublicView: session.User.View(user.BaseURL(request)),
		Token:      session.Token,
	}
}

// PostRegister creates an account and returns it with a token.
func (r *Router) PostRegister(response http.ResponseWriter, request *http.Request) {
	var body models.RegisterRequest
	if !r.decodeAndValidate(response, request, &body) {
		return
	}

	session, err := r.service.Register(request.Context(), service.Registration{
		Name:     body.Name,
		Email:    body.Email,
		Mobile:   body.Mobile,
		Password: body.Password,
	})
	if err != nil {
		r.writeError(response, request, err)
		return
	}

	r.writeSuccess(response, http.StatusCreated, "User registered successfully", r.authResponse(request, session))
}

// PostLogin exchanges credentials for a token.
func (r *Router) PostLogin(response http.ResponseWriter, request *http.Request) {
	var body models.LoginRequest
	if !r.decodeAndValidate(response, request, &body) {
		return
	}

	session, err := r.service.Login(request.Context(), body.Email, body.Password)
	if err != nil {
		r.writeError(response, request, err)
		return
	}

	r.writeSuccess(response, http.StatusOK, "Login successful", r.authResponse(request, session))
}

// GetUsers lists users, optionally filtered by ?search=.
func (r *Router) GetUsers(response http.ResponseWriter, request *http.Request) {
	users, err := r.service.ListUsers(request.Context(), request.URL.Query().Get("search"))
	if err != nil {
		r.writeError(response, request, err)
		return
	}

	baseURL := user.BaseURL(request)
	views := funk.Map(users, func(usr *user.User) user.PublicView {
		return usr.View(baseURL)
	}).([]user.PublicView)

	r.writeSuccess(response, http.StatusOK, "Users retrieved successfully", views)
}

// PostUploadProfilePicture replaces the caller's profile picture.
func (r *Router) PostUploadProfilePicture(response http.ResponseWriter, request *http.Request) {
	userID := auth.UserIDFromContext(request.Context())

	maxBytes := r.settings.UploadMaxBytes
	request.Body = http.MaxBytesReader(response, request.Body, maxBytes+multipartOverhead)

	if err := request.ParseMultipartForm(32 << 20); err != nil {
		var maxBytesError *http.MaxBytesError
		switch {
		case errors.As(err, &maxBytesError):
			r.writeError(response, request, errUploadTooLarge)
		default:
			r.writeError(response, request, service.ErrNoFile)
		}
		return
	}
	defer func() {
		if err := request.MultipartForm.RemoveAll(); err != nil {
			logger.Log.Debugln("Error calling the `request.MultipartForm.RemoveAll()`: ", err)
		}
	}()

	file, header, err := request.FormFile(UploadFieldName)
	if err != nil {
		r.writeError(response, request, service.ErrNoFile)
		return
	}
	defer file.Close()

	if header.Size > maxBytes {
		r.writeError(response, request, errUploadTooLarge)
		return
	}

	updated, err := r.service.UploadProfilePicture(request.Context(), userID, file)
	if err != nil {
		r.writeError(response, request, err)
		return
	}

	r.writeSuccess(response, http.StatusOK, "Profile picture uploaded successfully", updated.View(user.BaseURL(request)))
}
