package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/skyroute/booking-backend/internal/config"
	"github.com/skyroute/booking-backend/internal/database"
	"github.com/skyroute/booking-backend/internal/services"
)

// Support tool for booking submissions whose aggregator outcome is unknown.
// Check the order with the aggregator first: if it exists, record it by hand;
// if not, resolve the claim so the customer can submit again.
func main() {
	var (
		dbURLFlag string
		resolve   string
		events    string
		limit     int
	)
	flag.StringVar(&dbURLFlag, "database-url", "", "PostgreSQL connection string (overrides DATABASE_URL)")
	flag.StringVar(&resolve, "resolve", "", "dedup key of an ambiguous submission to clear")
	flag.StringVar(&events, "events", "", "booking reference whose audit trail to print")
	flag.IntVar(&limit, "limit", 50, "maximum rows to list")
	flag.Parse()

	_ = godotenv.Load()

	dbURL := dbURLFlag
	if dbURL == "" {
		dbURL = os.Getenv("DATABASE_URL")
	}
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set and -database-url was not provided")
	}

	db, err := database.NewConnection(config.DatabaseConfig{
		URL:                dbURL,
		MaxConnections:     2,
		MaxIdleConnections: 1,
	})
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	repo := database.NewBookingRepository(db)

	if events != "" {
		records, err := services.NewAuditService(db).GetBookingEvents(ctx, strings.ToUpper(events), limit)
		if err != nil {
			log.Fatalf("%v", err)
		}
		fmt.Printf("%d event(s) for %s:\n", len(records), strings.ToUpper(events))
		for _, r := range records {
			fmt.Printf("  %s  %-32s %s\n", r.CreatedAt.Format(time.RFC3339), r.Action, string(r.Details))
		}
		return
	}

	if resolve != "" {
		existing, err := repo.FindByDedupKey(ctx, resolve)
		if err != nil {
			log.Fatalf("failed to check bookings: %v", err)
		}
		if existing != nil {
			log.Fatalf("dedup key already has booking %s; nothing to resolve", existing.BookingReference)
		}
		if err := repo.ResolveSubmission(ctx, resolve); err != nil {
			log.Fatalf("%v", err)
		}
		fmt.Printf("Resolved submission %s\n", resolve)
		return
	}

	submissions, err := repo.ListAmbiguousSubmissions(ctx, limit)
	if err != nil {
		log.Fatalf("%v", err)
	}
	if len(submissions) == 0 {
		fmt.Println("No ambiguous submissions.")
		return
	}

	fmt.Printf("%d ambiguous submission(s):\n", len(submissions))
	for _, s := range submissions {
		reason := ""
		if s.LastError != nil {
			reason = *s.LastError
		}
		fmt.Printf("  %s  offer=%s  since=%s  %s\n",
			s.DedupKey, s.OfferFingerprint, s.CreatedAt.Format(time.RFC3339), reason)
	}
}
