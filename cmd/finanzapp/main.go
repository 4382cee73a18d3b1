package main

import (
	_ "time/tzdata"

	"finanzapp/internal/cli"
)

func main() {
	cli.Execute()
}
