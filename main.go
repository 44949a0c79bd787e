package main

import "github.com/tsegment/hlsdl/cmd"

func main() {
	cmd.Execute()
}
