package main

import "github.com/agpm-dev/agpm/cmd"

func main() {
	cmd.Execute()
}
