package main

import "github.com/tessro/stctl/internal/cli"

func main() {
	cli.Execute()
}
