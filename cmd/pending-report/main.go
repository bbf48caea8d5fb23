// Command pending-report lists transfers still pending after a cutoff, for
// operators checking what the pending sweep has not resolved yet.
package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	_ "github.com/lib/pq"
	"github.com/olekukonko/tablewriter"

	"wager-settlement/internal/config"
)

func main() {
	olderThan := flag.Duration("older-than", 10*time.Minute, "only list transfers pending at least this long")
	limit := flag.Int("limit", 200, "maximum rows to print")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Database.Driver != "postgres" {
		log.Fatalf("pending-report only supports postgres, got %q", cfg.Database.Driver)
	}

	// Connect to database
	db, err := sql.Open("postgres", cfg.GetDSN())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}

	cutoff := time.Now().UTC().Add(-*olderThan)
	rows, err := db.Query(`
		SELECT id, wager_id, bettor_id, side, amount, COALESCE(submitted_signature, ''), created_at
		FROM transfers
		WHERE status = 'pending' AND created_at < $1
		ORDER BY created_at ASC
		LIMIT $2
	`, cutoff, *limit)
	if err != nil {
		log.Fatalf("Failed to query pending transfers: %v", err)
	}
	defer rows.Close()

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Transfer", "Wager", "Bettor", "Side", "Amount", "Signature", "Age")

	count := 0
	for rows.Next() {
		var (
			id, wagerID, side, signature string
			bettorID, amount             int64
			createdAt                    time.Time
		)
		if err := rows.Scan(&id, &wagerID, &bettorID, &side, &amount, &signature, &createdAt); err != nil {
			log.Fatalf("Failed to scan transfer: %v", err)
		}
		if signature == "" {
			signature = "(never submitted)"
		}
		table.Append(
			id,
			wagerID,
			fmt.Sprintf("%d", bettorID),
			side,
			fmt.Sprintf("%d", amount),
			signature,
			time.Since(createdAt).Truncate(time.Second).String(),
		)
		count++
	}
	if err := rows.Err(); err != nil {
		log.Fatalf("Failed to read pending transfers: %v", err)
	}

	table.Render()
	fmt.Printf("%d transfers pending since before %s\n", count, cutoff.Format(time.RFC3339))
}
