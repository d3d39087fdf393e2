package main

import (
	"tunetube/cmd"
)

func main() {
	cmd.Execute()
}
