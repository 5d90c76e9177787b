// Package main is a utility for generating bcrypt hashes of passwords. The
// backoffice stores only bcrypt hashes of user passwords, so this tool is used
// when manually seeding or resetting accounts in the database without running
// the full server. The resulting hash can be inserted directly into the
// password_hash column of the users table.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/backoffice-platform/backoffice/internal/auth"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "usage: %s <password>\n", os.Args[0])
		os.Exit(1)
	}

	hash, err := auth.HashPassword(os.Args[1])
	if err != nil {
		log.Fatalf("Failed to hash password: %v", err)
	}
	fmt.Println(hash)
}
