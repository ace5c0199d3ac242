package main

import (
	"context"
	"os"

	"github.com/dmitrijs2005/postfacto/internal/retroctl"
)

func main() {
	os.Exit(retroctl.New(os.Stdout, os.Stderr).Execute(context.Background(), os.Args[1:]))
}
