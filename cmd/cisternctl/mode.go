package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/user/cistern/pkg/wire"
)

var modeCmd = &cobra.Command{
	Use:   "mode",
	Short: "get or set the controller's operation mode",
}

var modeGetCmd = &cobra.Command{
	Use:   "get",
	Short: "print the current mode (MANUAL or AUTO)",
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := send(&wire.Request{Type: wire.GetMode})
		if err != nil {
			return err
		}
		if resp.Mode == 1 {
			fmt.Println("AUTO")
		} else {
			fmt.Println("MANUAL")
		}
		return nil
	},
}

var modeSetCmd = &cobra.Command{
	Use:       "set [manual|auto]",
	Short:     "switch the controller's operation mode",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"manual", "auto"},
	RunE: func(cmd *cobra.Command, args []string) error {
		req := &wire.Request{Type: wire.SetMode}
		switch args[0] {
		case "auto":
			req.Mode = 1
		case "manual":
			req.Mode = 0
		default:
			return fmt.Errorf("unknown mode %q: want manual or auto", args[0])
		}
		_, err := send(req)
		return err
	},
}

func init() {
	modeCmd.AddCommand(modeGetCmd, modeSetCmd)
}
