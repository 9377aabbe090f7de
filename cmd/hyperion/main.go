package main

import (
	"os"

	"github.com/ritsuke/hyperion/internal/app"
)

func main() {
	os.Exit(app.Run(os.Args[1:]))
}
