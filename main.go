package main

import (
	"os"

	"github.com/joho/godotenv"

	"zcash-near-intents/cmd"
)

func main() {
	// .env is optional; real environment variables still apply
	_ = godotenv.Load()

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
