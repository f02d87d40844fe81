// Package clierror provides structured errors for podnotes CLI output.
//
// Every command error is classified into a CLIError carrying a stable code,
// an exit code, and an optional hint. Internal details stay in the log.
//
// # Usage
//
//	if err := sess.Delete(ctx, id); err != nil {
//	    return clierror.FromError(err)
//	}
package clierror
