package main

import "github.com/example/hhbot/cmd"

func main() {
	cmd.Execute()
}
