// Command wsnet-client connects an account to websocket transport nodes and
// exposes DHT, peer messaging and envelope tools.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
