package main

import (
	"os"

	"tradeledger/cmd/tradeledger/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
