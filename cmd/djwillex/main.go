package main

import "github.com/keshon/djwillex/internal/cli"

func main() {
	cli.Execute()
}
