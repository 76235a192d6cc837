package main

import "github.com/AvinFlower/shadow-link/cmd/provisioner/cmd"

func main() {
	cmd.Execute()
}
