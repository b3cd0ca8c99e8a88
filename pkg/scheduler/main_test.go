package scheduler

import (
	"flag"
	"io"
	"log"
	"os"
	"testing"
)

var verbose = flag.Bool("verbose", false, "Enable verbose test output")

// TestMain silences the standard logger the circuit breaker writes to so
// the retry-chain tests stay readable.
func TestMain(m *testing.M) {
	flag.Parse()
	if !*verbose {
		log.SetOutput(io.Discard)
	}
	os.Exit(m.Run())
}
