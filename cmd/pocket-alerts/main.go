package main

import "github.com/ogulcanaydogan/pocket-alerts/internal/cli"

func main() {
	cli.Execute()
}
