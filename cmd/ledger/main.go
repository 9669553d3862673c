package main

import (
	_ "time/tzdata"

	"dailyledger/internal/cli"
)

func main() {
	cli.Main()
}
