package router_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/patric-chuzhbe/userapi/internal/auth"
	"github.com/patric-chuzhbe/userapi/internal/db/memorystorage"
	"github.com/patric-chuzhbe/userapi/internal/filestore"
	"github.com/patric-chuzhbe/userapi/internal/password"
	"github.com/patric-chuzhbe/userapi/internal/router"
	"github.com/patric-chuzhbe/userapi/internal/service"
	"github.com/patric-chuzhbe/userapi/internal/token"
)

func post(handler http.Handler, path, body string) {
	request := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	request.Header.Set("Content-Type", "application/json")
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)

	var envelope struct {
		Error   bool   `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(recorder.Body.Bytes(), &envelope); err != nil {
		fmt.Println(err)
		return
	}
	fmt.Println(recorder.Code, envelope.Error, envelope.Message)
}

// Example registers a user, then logs in with a wrong and a right password.
func Example() {
	dir, err := os.MkdirTemp("", "uploads")
	if err != nil {
		fmt.Println(err)
		return
	}
	defer os.RemoveAll(dir)

	store, _ := memorystorage.New("")
	files, _ := filestore.New(dir)
	tokens := token.New([]byte("example-secret"), time.Hour)
	users := service.New(store, password.NewHasher(bcrypt.MinCost), tokens, files)

	handler := router.New(
		router.Settings{APIVersion: "/api/v1", ServiceName: "userapi", UploadMaxBytes: 1 << 20},
		users,
		auth.New(tokens),
		nil,
	)

	post(handler, "/api/v1/register", `{"name":"Alice","email":"alice@example.com","mobile":"9876543210","password":"secret123"}`)
	post(handler, "/api/v1/register", `{"name":"Alice","email":"alice@example.com","mobile":"9876543210","password":"secret123"}`)
	post(handler, "/api/v1/login", `{"email":"alice@example.com","password":"wrong-one"}`)
	post(handler, "/api/v1/login", `{"email":"alice@example.com","password":"secret123"}`)

	// Output:
	// 201 false User registered successfully
	// 400 true User with this email already exists
	// 401 true Invalid email or password
	// 200 false Login successful
}
