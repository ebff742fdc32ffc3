// Libris serves a versioned, cache-backed library catalog over HTTP.
package main

import (
	"flag"
	"fmt"
	"os"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	var (
		configPath = flag.String("config", "configs/libris.yaml", "YAML config `file`")
		envPath    = flag.String("env", ".env", "optional dotenv `file` loaded before the config")
		printVer   = flag.Bool("version", false, "print the version and exit")
	)
	flag.Parse()

	if *printVer {
		fmt.Printf("libris %s\n", version)
		return
	}
	if err := run(*configPath, *envPath); err != nil {
		fmt.Fprintln(os.Stderr, "libris:", err)
		os.Exit(1)
	}
}
