package commands

import (
	"github.com/mosaicnetworks/runstate/src/config"
	"github.com/spf13/cobra"
)

var (
	_config = config.NewDefaultConfig()
)

//RootCmd is the root command for runstate
var RootCmd = &cobra.Command{
	Use:              "runstate",
	Short:            "gossip peer lifecycle",
	TraverseChildren: true,
}
