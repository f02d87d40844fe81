// Package cli runs cobra command trees in tests and captures their output.
//
//	result := cli.Run(cmd.NewRootCmd(), "note", "list", "-o", "json")
//	result.AssertSuccess(t)
//	result.AssertContains(t, `"total"`)
package cli
