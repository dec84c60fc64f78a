package main

import (
	"otprelay-backend/cmd/relay-cli/cmd"
)

func main() {
	cmd.Execute()
}
