package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/user/harvester/internal/repository"
)

func main() {
	if err := newCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		switch {
		case errors.Is(err, repository.ErrLockHeld):
			os.Exit(3)
		case errors.Is(err, repository.ErrAuthentication):
			os.Exit(4)
		default:
			os.Exit(1)
		}
	}
}
