/**
 * @description
 * Operator tool to delete an auth user by ID. Useful for cleaning up
 * accounts created while testing referrals so the email and phone can be
 * reused, and for honoring deletion requests.
 *
 * Usage:
 *   go run ./cmd/delete-auth-user <user-id>
 *
 * @dependencies
 * - github.com/joho/godotenv: To load .env files for local use.
 * - Environment variables: SUPABASE_URL, SUPABASE_SERVICE_ROLE_KEY
 */
package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/VineMe-App/vineme-backend/pkg/authadmin"
)

func main() {
	if len(os.Args) != 2 {
		fmt.Println("Usage: go run ./cmd/delete-auth-user <user-id>")
		os.Exit(1)
	}
	userID := os.Args[1]

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	baseURL := os.Getenv("SUPABASE_URL")
	serviceKey := os.Getenv("SUPABASE_SERVICE_ROLE_KEY")
	if baseURL == "" || serviceKey == "" {
		log.Fatal("SUPABASE_URL and SUPABASE_SERVICE_ROLE_KEY environment variables are required")
	}

	client := authadmin.NewClient(baseURL, serviceKey)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Fetch the user first so the operator confirms the right account.
	fmt.Printf("Fetching auth user %s\n", userID)
	user, err := client.GetUser(ctx, userID)
	if err != nil {
		log.Fatalf("Failed to fetch auth user: %v", err)
	}

	fmt.Println("Auth user details:")
	fmt.Printf("  ID: %s\n", user.ID)
	fmt.Printf("  Email: %s\n", user.Email)
	if user.Phone != "" {
		fmt.Printf("  Phone: %s\n", user.Phone)
	}
	if user.EmailConfirmedAt != nil {
		fmt.Printf("  Email confirmed: %s\n", user.EmailConfirmedAt.Format(time.RFC3339))
	} else {
		fmt.Println("  Email confirmed: never")
	}
	fmt.Printf("  Created: %s\n", user.CreatedAt.Format(time.RFC3339))

	fmt.Print("\nAre you sure you want to delete this auth user? (yes/no): ")
	reader := bufio.NewReader(os.Stdin)
	confirmation, _ := reader.ReadString('\n')
	if strings.TrimSpace(confirmation) != "yes" {
		fmt.Println("Deletion cancelled.")
		os.Exit(0)
	}

	fmt.Printf("Deleting auth user %s...\n", userID)
	if err := client.DeleteUser(ctx, userID); err != nil {
		log.Fatalf("Failed to delete auth user: %v", err)
	}

	fmt.Printf("Successfully deleted auth user %s\n", userID)
	if user.Email != "" {
		fmt.Printf("You can now reuse the email address: %s\n", user.Email)
	}
}
