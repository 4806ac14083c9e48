package main

import "github.com/quizbattle/quizbattle-go/internal/cli"

func main() {
	cli.Execute()
}
