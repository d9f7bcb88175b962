// Dev tool to mint JWT tokens for manual testing.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/gatherly-live/server/internal/auth"
	"github.com/google/uuid"
)

func main() {
	var (
		secret = flag.String("secret", os.Getenv("JWT_SECRET"), "JWT signing secret (defaults to JWT_SECRET)")
		userID = flag.String("user", "", "User ID claim (defaults to a random UUID)")
		email  = flag.String("email", "dev@gatherly.live", "Email claim")
		role   = flag.String("role", "user", "Role claim: user or admin")
		expiry = flag.Duration("expiry", 24*time.Hour, "Token lifetime")
		issuer = flag.String("issuer", "gatherly", "Issuer claim")
	)
	flag.Parse()

	if *secret == "" {
		fmt.Fprintln(os.Stderr, "Error: a signing secret is required (set JWT_SECRET or pass -secret)")
		os.Exit(1)
	}

	id := *userID
	if id == "" {
		id = uuid.NewString()
	}

	manager := auth.NewJWTManager(*secret, *expiry, *issuer)
	token, err := manager.Generate(id, *email, *role)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("JWT Token:")
	fmt.Println(token)
	fmt.Println("\nTest with:")
	fmt.Printf("curl -H 'Authorization: Bearer %s' http://localhost:8080/api/v1/events\n", token)
}
