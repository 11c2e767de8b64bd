package main

import "github.com/openslide/buildindex/cmd/buildindex/commands"

func main() {
	commands.Execute()
}
