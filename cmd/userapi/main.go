// Command userapi serves the user registration, login, listing and profile
// picture API.
package main

import (
	"fmt"
	"os"

	"github.com/patric-chuzhbe/userapi/internal/app"
)

func main() {
	if err := run(); err != nil {
		fail(err)
	}
}

// run keeps every deferred cleanup ahead of the process exit in fail.
func run() error {
	application, err := app.New()
	if err != nil {
		return err
	}
	defer application.Close()

	return application.Run()
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, "userapi:", err)
	os.Exit(1)
}
