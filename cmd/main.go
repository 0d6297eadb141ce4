package main

import (
	"CPEStat/pkg/cli"
)

func main() {
	cli.Execute()
}
