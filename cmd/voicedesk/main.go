package main

import (
	"log"

	"voicedesk/internal/cli"

	"github.com/joho/godotenv"
)

// Set via -ldflags "-X main.version=... -X main.commit=..."
var (
	version = "dev"
	commit  = "none"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cli.SetVersionInfo(version, commit)
	cli.Main()
}
