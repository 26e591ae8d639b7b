package main

import "voting-escrow/internal/cli"

func main() {
	cli.Execute()
}
