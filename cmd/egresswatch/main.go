package main

import "github.com/ppiankov/egresswatch/internal/cli"

func main() {
	cli.Execute()
}
