package main

import (
	"os"

	"github.com/joho/godotenv"

	"github.com/lubricentro/usagepredict/cmd"
)

func main() {
	// a missing .env is fine
	_ = godotenv.Load()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
