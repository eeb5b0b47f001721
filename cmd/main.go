package main

import (
	"github.com/joho/godotenv"

	cmd "github.com/kerbaras/mangaqueue/cmd/mangaqueue"
)

func main() {
	// A missing .env is fine; the environment and flags still apply.
	_ = godotenv.Load()
	cmd.Execute()
}
