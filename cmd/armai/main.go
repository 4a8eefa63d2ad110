package main

import "arm-ai/internal/cli"

func main() {
	cli.Execute()
}
