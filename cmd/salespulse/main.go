package main

import "github.com/emiliopalmerini/salespulse/internal/cli"

func main() {
	cli.Execute()
}
