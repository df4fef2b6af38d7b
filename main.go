package main

import "github.com/bunbase/bunbase/cmd"

func main() {
	cmd.Execute()
}
