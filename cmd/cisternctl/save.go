package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/user/cistern/pkg/wire"
)

var saveCmd = &cobra.Command{
	Use:   "save",
	Short: "persist the current registry to the controller's NV store",
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := send(&wire.Request{Type: wire.Save}); err != nil {
			return err
		}
		fmt.Println("saved")
		return nil
	},
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "clear every registered source and tank and return to MANUAL mode",
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := send(&wire.Request{Type: wire.Reset}); err != nil {
			return err
		}
		fmt.Println("reset")
		return nil
	},
}
