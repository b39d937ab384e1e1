package main

import (
	"fmt"
	"os"

	"github.com/nsqe/nsqe/cmd"
)

func main() {
	root := cmd.NewCLI()
	err := root.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
	os.Exit(cmd.ExitCode(err))
}
