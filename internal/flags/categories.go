// Package flags provides the shared cli.App scaffolding and flag
// categories used by every ledgervault command, following the teacher's
// urfave/cli/v2-based command structure.
package flags

import (
	"fmt"

	"github.com/urfave/cli/v2"
)

// Flag categories shown in --help, trimmed from the teacher's much larger
// geth-style category set down to what this repo's commands actually use.
const (
	APICategory        = "API AND NETWORKING"
	P2PCategory        = "PEER GOSSIP"
	StoreCategory      = "CHAIN STORE"
	AccountCategory    = "ACCOUNT"
	LoggingCategory    = "LOGGING"
	MiscCategory       = "MISC"
)

func init() {
	cli.HelpFlag.(*cli.BoolFlag).Category = MiscCategory
	cli.VersionFlag.(*cli.BoolFlag).Category = MiscCategory
}

// NewApp builds a *cli.App with the version string and usage line every
// ledgervault command shares.
func NewApp(gitCommit, gitDate, usage string) *cli.App {
	app := cli.NewApp()
	app.EnableBashCompletion = true
	app.Version = versionString(gitCommit, gitDate)
	app.Usage = usage
	return app
}

func versionString(gitCommit, gitDate string) string {
	v := "0.1.0"
	if gitCommit != "" {
		v += fmt.Sprintf("-%s", gitCommit[:min(8, len(gitCommit))])
	}
	if gitDate != "" {
		v += fmt.Sprintf(" (%s)", gitDate)
	}
	return v
}
