package main

import (
	"os"

	"github.com/phase-edms/phase/internal/cmd"
)

func main() {
	os.Exit(cmd.Main(os.Args))
}
