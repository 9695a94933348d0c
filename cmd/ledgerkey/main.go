// Command ledgerkey generates and inspects RSA-2048 creator keypairs,
// encrypted at rest via accounts/creatorkey. It plays the key-management
// half of the external client role described in spec §1, grounded in the
// teacher's cmd/toskey (generate/inspect commands over urfave/cli/v2).
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/tos-network/ledgervault/internal/flags"
)

var gitCommit = ""
var gitDate = ""

func main() {
	app := flags.NewApp(gitCommit, gitDate, "a ledgervault creator key manager")
	app.Commands = []*cli.Command{
		commandGenerate,
		commandInspect,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
