package main

import (
	"queuesync/cmd"
)

func main() {
	cmd.Execute()
}
