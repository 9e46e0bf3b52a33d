package main

import "mailbag/internal/cli"

func main() {
	cli.Execute()
}
