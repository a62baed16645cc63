package main

import "sonopix/cmd/sonopix/cmd"

func main() {
	cmd.Execute()
}
