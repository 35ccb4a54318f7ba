package main

import "github.com/menta2k/uwuifier/internal/cli"

func main() {
	cli.Execute()
}
