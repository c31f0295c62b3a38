package main

import "github.com/nfrund/lernsino/cmd/lernsino/cmd"

func main() {
	cmd.Execute()
}
