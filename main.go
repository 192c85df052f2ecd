package main

import (
	"github.com/joho/godotenv"

	"github.com/stitch-tool/stitch/cmd"
)

func main() {
	// Optional .env for STITCH_TOKEN and friends.
	_ = godotenv.Load()

	cmd.Execute()
}
