// podnotes stores notes as RDF documents in a Solid pod.
package main

import (
	"os"

	"github.com/gobeyondidentity/podnotes/cmd/podnotes/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
