package main

import "github.com/vietddude/dappwatch/internal/cli"

func main() {
	cli.Execute()
}
