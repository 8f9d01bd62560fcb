// Command inspect prints recent tickets, or one ticket with its outbox history.
// With -fix it first returns stuck outbox rows to the relay.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"transit-ticketing/internal/application/factories/infrastructure"
	"transit-ticketing/internal/config"
	"transit-ticketing/internal/infrastructure/postgres"
)

func main() {
	fix := flag.Bool("fix", false, "reset processing outbox rows to new")
	ticketID := flag.String("ticket", "", "show the outbox history of one ticket")
	limit := flag.Int("n", 5, "rows to show")
	flag.Parse()

	cfg, err := config.New()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	infraFactory := infrastructure.NewFactory(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	defer infraFactory.Close()

	pool, err := infraFactory.Postgres(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Unable to connect to database: %v\n", err)
		os.Exit(1)
	}

	tickets := postgres.NewTicketRepository(pool)
	outboxRepo := postgres.NewOutboxRepository(pool)

	if *fix {
		n, err := outboxRepo.ResetStuck(ctx)
		if err != nil {
			fmt.Printf("Fix failed: %v\n", err)
		} else {
			fmt.Printf("Fixed %d messages\n", n)
		}
	}

	if *ticketID != "" {
		t, err := tickets.FindByID(ctx, *ticketID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Ticket %s | %s | %s | uses %d | validations %d | expiry %v\n",
			t.ID, t.FareClass, t.Status, t.RemainingUses, len(t.Validations), t.Expiry)

		events, err := outboxRepo.ListByCorrelationID(ctx, t.ID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}
		for _, e := range events {
			fmt.Printf("  %s | %s -> %s | %s\n", e.CreatedAt.Format(time.RFC3339), e.EventType, e.Topic, e.Status)
		}
		return
	}

	fmt.Println("--- Tickets ---")
	recent, err := tickets.ListRecent(ctx, *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	for _, t := range recent {
		fmt.Printf("ID: %s | Status: %s | Fare: %s | Updated: %v\n", t.ID, t.Status, t.FareClass, t.UpdatedAt)
	}
}
