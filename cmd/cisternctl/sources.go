package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/user/cistern/pkg/wire"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "inspect registered water sources",
}

var sourcesListCmd = &cobra.Command{
	Use:   "list",
	Short: "list registered source names",
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := send(&wire.Request{Type: wire.GetWaterSourceList})
		if err != nil {
			return err
		}
		for _, name := range resp.Names {
			fmt.Println(name)
		}
		return nil
	},
}

var sourcesGetCmd = &cobra.Command{
	Use:   "get <name>",
	Short: "print one source's pin, state, and supply tank",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := send(&wire.Request{Type: wire.GetWaterSource, Name: args[0]})
		if err != nil {
			return err
		}
		fmt.Printf("name=%s pin=%d active=%v on=%v supply=%s\n",
			resp.Name, resp.Pin, resp.Active, resp.State, resp.WaterTankName)
		return nil
	},
}

func init() {
	sourcesCmd.AddCommand(sourcesListCmd, sourcesGetCmd)
}
