package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/covgate/covgate/cmd/covgate/app"
	"github.com/covgate/covgate/internal/policy"
)

func main() {
	if err := app.NewCovgateCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		if errors.Is(err, policy.ErrThresholdNotMet) {
			os.Exit(1)
		}
		os.Exit(2)
	}
}
