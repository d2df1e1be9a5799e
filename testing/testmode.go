// Package testing switches stockflow binaries into test mode when imported
// from a _test.go file.
package testing

import "os"

// Env is the variable read by app.InTestMode.
const Env = "STOCKFLOW_TEST_MODE"

func init() {
	if os.Getenv(Env) == "" {
		_ = os.Setenv(Env, "1")
	}
}
