package main

import (
	"github.com/lsjoeberg/deltactl/cli"
)

func main() {
	cli.Execute()
}
