package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/skyroute/booking-backend/internal/utils"
	"github.com/skyroute/booking-backend/pkg/jwt"
)

func main() {
	email := flag.String("email", "", "also sign a development customer token for this email")
	issuer := flag.String("issuer", "skyroute", "token issuer")
	expiry := flag.Duration("expiry", 24*time.Hour, "development token lifetime")
	flag.Parse()

	fmt.Println("===========================================")
	fmt.Println("JWT Secret Generator for SkyRoute Booking")
	fmt.Println("===========================================")
	fmt.Println()

	secret, err := utils.GenerateJWTSecret()
	if err != nil {
		log.Fatalf("Failed to generate secret: %v", err)
	}

	fmt.Println("✅ Secret generated successfully!")
	fmt.Println()
	fmt.Println("Add this to your .env file:")
	fmt.Println()
	fmt.Printf("JWT_SECRET=%s\n", secret)
	fmt.Printf("JWT_ISSUER=%s\n", *issuer)

	if *email != "" {
		customerID := uuid.New()
		token, err := jwt.NewService(secret, *issuer, *expiry).GenerateAccessToken(customerID, *email)
		if err != nil {
			log.Fatalf("Failed to sign development token: %v", err)
		}
		fmt.Println()
		fmt.Printf("Development customer %s (%s), valid for %s:\n", customerID, *email, *expiry)
		fmt.Printf("Authorization: Bearer %s\n", token)
	}

	fmt.Println()
	fmt.Println("⚠️  IMPORTANT: Keep this secret safe and never commit it to version control!")
	fmt.Println("===========================================")
}
