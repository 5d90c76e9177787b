// Package main is a diagnostic tool for testing database connectivity and
// inspecting live RBAC data. It connects to the database, prints the users,
// roles, and module grants, and exits with a non-zero code on any failure so
// it can gate deployments on a reachable, seeded database.
package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"

	_ "github.com/lib/pq"
)

func main() {
	dbPassword := os.Getenv("DATABASE_PASSWORD")
	if dbPassword == "" {
		dbPassword = "backoffice"
	}

	connStr := fmt.Sprintf("host=localhost port=5432 user=backoffice password=%s dbname=backoffice sslmode=disable", dbPassword)
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer db.Close()

	fmt.Println("=== USERS ===")
	rows, err := db.Query("SELECT id, username, is_active, is_superuser FROM users ORDER BY username")
	if err != nil {
		log.Fatalf("Query failed: %v", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, username string
		var isActive, isSuperuser bool
		if err := rows.Scan(&id, &username, &isActive, &isSuperuser); err != nil {
			log.Printf("Warning: failed to scan user row: %v", err)
			continue
		}
		fmt.Printf("User: %s (ID: %s, active: %v, superuser: %v)\n", username, id, isActive, isSuperuser)
	}

	fmt.Println("\n=== ROLE GRANTS ===")
	rows2, err := db.Query(`
		SELECT rm.role_slug, rm.module_slug, rm.can_create, rm.can_update, rm.can_delete, rm.scope_all, rm.is_active
		FROM role_modules rm
		ORDER BY rm.role_slug, rm.module_slug
	`)
	if err != nil {
		log.Fatalf("Query failed: %v", err)
	}
	defer rows2.Close()

	count := 0
	for rows2.Next() {
		var roleSlug, moduleSlug string
		var canCreate, canUpdate, canDelete, scopeAll, isActive bool
		if err := rows2.Scan(&roleSlug, &moduleSlug, &canCreate, &canUpdate, &canDelete, &scopeAll, &isActive); err != nil {
			log.Printf("Warning: failed to scan grant row: %v", err)
			continue
		}
		fmt.Printf("Grant: %s -> %s (create: %v, update: %v, delete: %v, scope_all: %v, active: %v)\n",
			roleSlug, moduleSlug, canCreate, canUpdate, canDelete, scopeAll, isActive)
		count++
	}

	if count == 0 {
		fmt.Println("No role grants found!")
	}
}
