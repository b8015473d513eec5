//go:build !windows

package main

import (
	"os"
	"testing"

	"github.com/rogpeppe/go-internal/testscript"
)

func TestDualdocFilePermissions(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("Test skipped when running as root")
	}

	testscript.Run(t, testscript.Params{
		Dir:             "testdata/permissions",
		ContinueOnError: true,
	})
}
