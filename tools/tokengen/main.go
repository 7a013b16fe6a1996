// Command tokengen issues bearer tokens for local testing of the forms API.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/V4T54L/leadhook/internal/adapter/auth"
	"github.com/V4T54L/leadhook/internal/adapter/identity"
)

func main() {
	_ = godotenv.Load()

	subject := flag.String("sub", "", "Principal id to issue the token for")
	email := flag.String("email", "", "Optional email claim")
	ttl := flag.Duration("ttl", 24*time.Hour, "Token lifetime")
	secret := flag.String("secret", os.Getenv("JWT_SECRET"), "HS256 signing secret (defaults to JWT_SECRET)")
	issuer := flag.String("issuer", os.Getenv("JWT_ISSUER"), "Issuer claim (defaults to JWT_ISSUER)")
	flag.Parse()

	if *subject == "" || *secret == "" {
		flag.Usage()
		os.Exit(2)
	}

	token, err := auth.NewTokenVerifier(*secret, *issuer).Issue(*subject, *email, *ttl)
	if err != nil {
		log.Fatalf("failed to issue token: %v", err)
	}

	fmt.Println(token)
	fmt.Fprintf(os.Stderr, "owner token: %s\n", identity.NewCodec().Encode(*subject))
}
