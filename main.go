package main

import (
	"ReplayFM/cmd"
)

func main() {
	cmd.Execute()
}
