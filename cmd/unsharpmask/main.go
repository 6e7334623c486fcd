package main

import "github.com/MeKo-Tech/unsharpmask/internal/cmd"

func main() {
	cmd.Execute()
}
