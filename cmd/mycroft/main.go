package main

import "github.com/amirkhaki/mycroft/cmd/mycroft/cmd"

func main() {
	cmd.Execute()
}
