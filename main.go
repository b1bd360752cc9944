package main

import "github.com/mpapenbr/boostrace/cmd"

func main() {
	cmd.Execute()
}
