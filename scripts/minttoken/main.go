package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/hoangnm-dev/meeting-scribe/pkg/config"
	pkgjwt "github.com/hoangnm-dev/meeting-scribe/pkg/jwt"
)

// Mints access tokens for local testing. Identity is managed by the upstream
// gateway in real deployments; this only signs a token with the shared secret.
func main() {
	userID := flag.String("user", "", "user id (defaults to a fresh UUID)")
	email := flag.String("email", "dev@test.local", "email claim")
	role := flag.String("role", "member", "role claim (member or privileged)")
	count := flag.Int("n", 1, "number of tokens to mint")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	jwtManager := pkgjwt.NewManager(cfg.JWT.AccessSecret, cfg.JWT.AccessExpiry)

	for i := 0; i < *count; i++ {
		id := uuid.New()
		if *userID != "" {
			id, err = uuid.Parse(*userID)
			if err != nil {
				log.Fatalf("Invalid user id: %v", err)
			}
		}

		token, err := jwtManager.GenerateAccessToken(id, *email, *role)
		if err != nil {
			log.Fatalf("Failed to generate token: %v", err)
		}

		fmt.Printf("user_id: %s\n", id)
		fmt.Printf("token:   %s\n\n", token)
	}
}
