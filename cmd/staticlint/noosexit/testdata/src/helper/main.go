package main

import (
	"fmt"
	"os"
)

func main() {
	if err := run(); err != nil {
		fail(err)
	}
}

func run() error {
	return nil
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
