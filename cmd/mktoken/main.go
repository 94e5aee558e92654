// mktoken mints a development bearer token for the chat service.
// Production tokens come from the account service; this exists so the
// server and client can be exercised locally.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

func main() {
	var (
		secret = flag.String("secret", "development-secret-do-not-deploy", "JWT signing secret")
		userID = flag.String("user", "", "user ID (default: random UUID)")
		name   = flag.String("name", "Dev User", "full name")
		role   = flag.String("role", "student", "role: student or advisor")
		ttl    = flag.Duration("ttl", 24*time.Hour, "token lifetime")
	)
	flag.Parse()

	if *role != "student" && *role != "advisor" {
		fmt.Fprintln(os.Stderr, "role must be student or advisor")
		os.Exit(1)
	}

	id := *userID
	if id == "" {
		id = uuid.New().String()
	}

	claims := jwt.MapClaims{
		"user_id":   id,
		"full_name": *name,
		"role":      *role,
		"exp":       time.Now().Add(*ttl).Unix(),
		"iat":       time.Now().Unix(),
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(*secret))
	if err != nil {
		fmt.Fprintln(os.Stderr, "sign token:", err)
		os.Exit(1)
	}

	fmt.Printf("User ID: %s\n", id)
	fmt.Printf("Token:   %s\n", token)
}
