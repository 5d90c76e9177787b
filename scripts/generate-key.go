// Package main is a development utility for generating a random JWT signing
// secret. It prints the secret and the export line for the APP_JWT_SECRET
// environment variable so developers can quickly configure a local server. Do
// not reuse generated secrets across environments; rotate them through your
// secret manager in production.
package main

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log"
)

func main() {
	randomBytes := make([]byte, 48)
	if _, err := rand.Read(randomBytes); err != nil {
		log.Fatal(err)
	}

	secret := base64.RawURLEncoding.EncodeToString(randomBytes)

	fmt.Println("==========================================================")
	fmt.Println("JWT Secret Generated")
	fmt.Println("==========================================================")
	fmt.Printf("\n%s\n\n", secret)
	fmt.Println("Add to your environment:")
	fmt.Printf("\nexport APP_JWT_SECRET=%s\n", secret)
	fmt.Println("\n==========================================================")
}
