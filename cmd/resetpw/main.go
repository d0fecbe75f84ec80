package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"media-viewer/internal/database"

	"golang.org/x/term"
)

const defaultTimeout = 30 * time.Second

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]

	databaseDir := lookupDatabaseDir()
	dbPath := filepath.Join(databaseDir, "media.db")

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	db, _, err := database.New(ctx, dbPath, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to connect to database: %v\n", err)
		fmt.Fprintf(os.Stderr, "Make sure DATABASE_DIR is set correctly (current: %s)\n", databaseDir)
		os.Exit(1)
	}
	defer func() {
		if err := db.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to close database: %v\n", err)
		}
	}()

	args := os.Args[2:]
	switch command {
	case "list":
		if !runList(ctx, db, args) {
			os.Exit(1)
		}
	case "create":
		if !runCreate(ctx, db, args) {
			os.Exit(1)
		}
	case "revoke":
		if !runRevoke(ctx, db, args) {
			os.Exit(1)
		}
	case "regenerate":
		if !runRegenerate(ctx, db, args) {
			os.Exit(1)
		}
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

// lookupDatabaseDir resolves the database directory from the environment,
// falling back to the container default.
func lookupDatabaseDir() string {
	if dir := os.Getenv("DATABASE_DIR"); dir != "" {
		return dir
	}
	return "/database"
}

func printUsage() {
	fmt.Println("Media Viewer Access Key Administration")
	fmt.Println("")
	fmt.Println("Usage: resetpw <command> [flags]")
	fmt.Println("")
	fmt.Println("Commands:")
	fmt.Println("  list        List access keys owned by a user")
	fmt.Println("  create      Mint a new access key")
	fmt.Println("  revoke      Permanently delete an access key")
	fmt.Println("  regenerate  Rotate an access key's opaque code")
	fmt.Println("")
	fmt.Println("Environment:")
	fmt.Println("  DATABASE_DIR - Path to database directory (default: /database)")
}

func runList(ctx context.Context, db *database.Database, args []string) bool {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	owner := fs.Int64("owner", 0, "owner user id")
	if err := fs.Parse(args); err != nil {
		return false
	}
	if *owner <= 0 {
		fmt.Fprintln(os.Stderr, "Error: -owner is required")
		return false
	}

	keys, err := db.ListAccessKeysForOwner(ctx, *owner)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to list access keys: %v\n", err)
		return false
	}
	if len(keys) == 0 {
		fmt.Println("No access keys found.")
		return true
	}

	for _, k := range keys {
		expires := "never"
		if k.ExpiresAt != nil {
			expires = k.ExpiresAt.Format(time.RFC3339)
		}
		scope := "pinned items"
		if k.BoundGroup != nil {
			scope = fmt.Sprintf("group %d", *k.BoundGroup)
		}
		fmt.Printf("id=%d description=%q permission=%s expires=%s scope=%s code=%s\n",
			k.ID, k.Description, k.Permission, expires, scope, maskCode(k.Code))
	}
	return true
}

func runCreate(ctx context.Context, db *database.Database, args []string) bool {
	fs := flag.NewFlagSet("create", flag.ContinueOnError)
	owner := fs.Int64("owner", 0, "owner user id")
	description := fs.String("description", "", "human-readable description")
	permissionFlag := fs.String("permission", "", "read|download|edit|delete|admin")
	expiresFlag := fs.String("expires", "", "expiry as a duration from now, e.g. 720h (empty means never)")
	groupFlag := fs.Int64("group", 0, "bind the key to this group id instead of pinned items")
	if err := fs.Parse(args); err != nil {
		return false
	}

	if *owner <= 0 {
		fmt.Fprintln(os.Stderr, "Error: -owner is required")
		return false
	}
	if *description == "" {
		fmt.Fprintln(os.Stderr, "Error: -description is required")
		return false
	}
	permission, ok := database.ParsePermission(*permissionFlag)
	if !ok {
		fmt.Fprintf(os.Stderr, "Error: invalid -permission: %q\n", *permissionFlag)
		return false
	}

	var expiresAt *time.Time
	if *expiresFlag != "" {
		d, err := time.ParseDuration(*expiresFlag)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: invalid -expires: %v\n", err)
			return false
		}
		t := time.Now().Add(d)
		expiresAt = &t
	}

	var boundGroup *int64
	if *groupFlag > 0 {
		boundGroup = groupFlag
	}

	key, err := db.CreateAccessKey(ctx, *owner, *description, permission, expiresAt, boundGroup)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to create access key: %v\n", err)
		return false
	}

	fmt.Printf("Access key created: id=%d\n", key.ID)
	fmt.Printf("Code (record this now, it will not be shown again): %s\n", key.Code)
	return true
}

func runRevoke(ctx context.Context, db *database.Database, args []string) bool {
	fs := flag.NewFlagSet("revoke", flag.ContinueOnError)
	id := fs.Int64("id", 0, "access key id")
	if err := fs.Parse(args); err != nil {
		return false
	}

	key, ok := confirmKeyPossession(ctx, db, *id)
	if !ok {
		return false
	}

	if err := db.RevokeAccessKey(ctx, key.ID); err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to revoke access key: %v\n", err)
		return false
	}
	fmt.Printf("Access key %d revoked.\n", key.ID)
	return true
}

func runRegenerate(ctx context.Context, db *database.Database, args []string) bool {
	fs := flag.NewFlagSet("regenerate", flag.ContinueOnError)
	id := fs.Int64("id", 0, "access key id")
	if err := fs.Parse(args); err != nil {
		return false
	}

	key, ok := confirmKeyPossession(ctx, db, *id)
	if !ok {
		return false
	}

	newCode, err := db.RegenerateAccessKeyCode(ctx, key.ID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to regenerate access key: %v\n", err)
		return false
	}
	fmt.Printf("Access key %d regenerated. The old code no longer grants access.\n", key.ID)
	fmt.Printf("New code (record this now, it will not be shown again): %s\n", newCode)
	return true
}

// confirmKeyPossession looks up the key by id and requires the operator to
// type its current code at a masked prompt before a revoke or regenerate
// proceeds, so destroying or rotating a secret requires holding it, not just
// knowing its database id.
func confirmKeyPossession(ctx context.Context, db *database.Database, id int64) (*database.AccessKey, bool) {
	if id <= 0 {
		fmt.Fprintln(os.Stderr, "Error: -id is required")
		return nil, false
	}

	key, err := db.GetAccessKeyByID(ctx, id)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to look up access key: %v\n", err)
		return nil, false
	}
	if key == nil {
		fmt.Fprintf(os.Stderr, "Error: access key %d not found\n", id)
		return nil, false
	}

	fmt.Printf("Access key %d: %q (permission=%s)\n", key.ID, key.Description, key.Permission)
	fmt.Print("Enter the current code to confirm: ")
	entered, err := term.ReadPassword(syscall.Stdin)
	fmt.Println()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading code: %v\n", err)
		return nil, false
	}

	if !bytes.Equal(entered, []byte(key.Code)) {
		fmt.Fprintln(os.Stderr, "Error: code does not match")
		return nil, false
	}
	return key, true
}

// maskCode shows only the last 6 characters of an access key's code in
// listings, enough to distinguish keys at a glance without printing a live
// secret to a terminal or log that may be recorded.
func maskCode(code string) string {
	const visible = 6
	if len(code) <= visible {
		return code
	}
	return fmt.Sprintf("...%s", code[len(code)-visible:])
}
