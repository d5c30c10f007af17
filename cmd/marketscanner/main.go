package main

import (
	"os"

	"MarketScanner/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
