package main

import "github.com/vietddude/ticketchain/internal/cli"

func main() {
	cli.Execute()
}
