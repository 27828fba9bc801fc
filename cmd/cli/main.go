package main

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"whoop-sync/internal/config"
	"whoop-sync/internal/database"
	"whoop-sync/internal/oauth"
	"whoop-sync/internal/whoop"
)

func main() {
	// Disable structured logging for CLI
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError, // Only show errors
	})))

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Open database
	db, err := database.Open(cfg.DatabasePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to open database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	switch command {
	case "athletes":
		handleAthletes(db)
	case "create-athlete":
		handleCreateAthlete(db)
	case "auth-url":
		handleAuthURL(cfg, db, requireAthleteID())
	case "sync":
		handleSync(db, requireAthleteID())
	case "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Error: Unknown command '%s'\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`whoop-sync CLI - Athlete and Sync Management

Usage:
  cli <command> [options]

Commands:
  athletes             List all athletes and their connection state
  create-athlete       Create a new athlete record
  auth-url <id>        Print the WHOOP authorization URL for an athlete
  sync <id>            Enqueue a full history sync for an athlete
  help                 Show this help message

Examples:
  cli create-athlete
  cli auth-url 1
  cli sync 1

Environment Variables Required:
  WHOOP_CLIENT_ID        - WHOOP application client ID
  WHOOP_CLIENT_SECRET    - WHOOP application client secret
  WHOOP_REDIRECT_URI     - OAuth callback URL
  INTERNAL_API_KEY       - API key for the internal endpoints
  DATABASE_PATH          - Path to the SQLite database (default: ./data.db)`)
}

func requireAthleteID() int64 {
	if len(os.Args) < 3 {
		fmt.Fprintln(os.Stderr, "Error: Missing athlete id")
		os.Exit(1)
	}
	id, err := strconv.ParseInt(os.Args[2], 10, 64)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Invalid athlete id: %s\n", os.Args[2])
		os.Exit(1)
	}
	return id
}

func handleAthletes(db *database.DB) {
	athletes, err := db.ListAthletes()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to list athletes: %v\n", err)
		os.Exit(1)
	}

	if len(athletes) == 0 {
		fmt.Println("No athletes found.")
		return
	}

	fmt.Printf("Found %d athlete(s):\n\n", len(athletes))
	for _, a := range athletes {
		fmt.Printf("ID: %d\n", a.AthleteID)
		if a.Connected() {
			fmt.Printf("  WHOOP User: %s\n", *a.WhoopUserID)
			fmt.Printf("  Token Expires: %s\n", time.Unix(a.TokenExpiresAt, 0).Format(time.RFC3339))
		} else {
			fmt.Println("  WHOOP User: not connected")
		}
		fmt.Printf("  Weight Cutting: %t\n", a.IsCuttingWeight)
		fmt.Println()
	}
}

func handleCreateAthlete(db *database.DB) {
	athlete := &database.Athlete{}
	if err := db.CreateAthlete(athlete); err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to create athlete: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("✓ Athlete created successfully!")
	fmt.Printf("  ID: %d\n", athlete.AthleteID)
}

func handleAuthURL(cfg *config.Config, db *database.DB, athleteID int64) {
	manager := oauth.NewManager(cfg, db, whoop.NewClient(cfg))

	authURL, _, err := manager.GenerateAuthURL(athleteID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to generate auth URL: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Authorization URL for athlete %d:\n\n%s\n", athleteID, authURL)
}

func handleSync(db *database.DB, athleteID int64) {
	athlete, err := db.GetAthlete(athleteID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to look up athlete: %v\n", err)
		os.Exit(1)
	}
	if athlete == nil {
		fmt.Fprintf(os.Stderr, "Error: Unknown athlete: %d\n", athleteID)
		os.Exit(1)
	}
	if !athlete.Connected() {
		fmt.Fprintf(os.Stderr, "Error: Athlete %d has no WHOOP account connected\n", athleteID)
		os.Exit(1)
	}

	jobID, err := db.EnqueueSyncJob(athleteID, oauth.JobTypeSyncAll)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to enqueue sync job: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("✓ Sync job enqueued!")
	fmt.Printf("  Job ID: %d\n", jobID)
}
