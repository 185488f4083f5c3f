package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/user/harvester/internal/repository"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(exitCode(err))
	}
}

// exitCode separates the fatal run failures operators alert on from usage errors.
func exitCode(err error) int {
	switch {
	case errors.Is(err, repository.ErrLockHeld):
		return 3
	case errors.Is(err, repository.ErrAuthentication):
		return 4
	default:
		return 1
	}
}
