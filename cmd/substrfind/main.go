package main

import "github.com/dshills/substrfind/cmd/substrfind/cmd"

func main() {
	cmd.Execute()
}
