package main

import (
	"github.com/sidkik/kdeploy/cmd"
	"github.com/sidkik/kdeploy/cmd/util"
)

func main() {
	defer util.HandlePanic()
	cmd.Execute()
}
