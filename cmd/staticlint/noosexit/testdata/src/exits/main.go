package main

import (
	"log"
	"os"
	osalias "os"
)

func main() {
	defer println("cleanup")

	if len(os.Args) > 3 {
		osalias.Exit(3) // want "avoid calling os.Exit in main.main"
	}
	if len(os.Args) > 2 {
		log.Fatalf("bad args: %v", os.Args) // want "avoid calling log.Fatalf in main.main"
	}
	if len(os.Args) > 1 {
		log.Fatal("bad args") // want "avoid calling log.Fatal in main.main"
	}

	cleanup := func() {
		os.Exit(0)
	}
	_ = cleanup

	os.Exit(1) // want "avoid calling os.Exit in main.main"
}
