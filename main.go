package main

import "github.com/conveyci/conveyor/cmd"

func main() {
	cmd.Execute()
}
