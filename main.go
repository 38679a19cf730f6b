package main

import (
	"github.com/krogueintel/blackbox/pkg/cmd"
)

func main() {
	cmd.Execute()
}
