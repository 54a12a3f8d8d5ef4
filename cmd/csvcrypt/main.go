// Command csvcrypt encrypts or decrypts the phone column of a CSV file
// without running the console server.
//
//	csvcrypt encrypt --in users.csv --out ./out
//	csvcrypt decrypt --in out/encrypted_users.csv --column phone_encrypted
//	csvcrypt preview --in users.csv --rows 10
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/JonMunkholm/csvcrypt/internal/core"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		if core.IsUserFacing(err) {
			fmt.Fprintf(os.Stderr, "Error: %s\n", core.FormatUserError(err))
			fmt.Fprintf(os.Stderr, "Details: %v\n", err)
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		stop()
		os.Exit(1)
	}
}
