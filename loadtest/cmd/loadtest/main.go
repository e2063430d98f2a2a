// Package main is the entry point for the matchmaker load test binary.
// It provides subcommands for different load testing scenarios:
//
//   - saturate: opens N idle connections and holds them
//   - pairs:    drives matched pairs through register, join, signaling,
//     chat and leave
//
// Usage:
//
//	loadtest <command> [options]
//
// The server's per-IP WebSocket rate limit applies to the load generator, so
// runs from one host need a server with that limit raised.
package main

import (
	"fmt"
	"os"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "saturate":
		runSaturate(os.Args[2:])
	case "pairs":
		runPairs(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: loadtest <command> [options]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  saturate    Connection saturation test, opens N idle connections")
	fmt.Println("  pairs       Session lifecycle test, matches pairs and relays signaling and chat")
	fmt.Println()
	fmt.Println("Run 'loadtest <command> -h' for command-specific options.")
}
