package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/user/cistern/pkg/wire"
)

var tanksCmd = &cobra.Command{
	Use:   "tanks",
	Short: "inspect registered water tanks",
}

var tanksListCmd = &cobra.Command{
	Use:   "list",
	Short: "list registered tank names",
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := send(&wire.Request{Type: wire.GetWaterTankList})
		if err != nil {
			return err
		}
		for _, name := range resp.Names {
			fmt.Println(name)
		}
		return nil
	},
}

var tanksGetCmd = &cobra.Command{
	Use:   "get <name>",
	Short: "print one tank's calibration and state",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := send(&wire.Request{Type: wire.GetWaterTank, Name: args[0]})
		if err != nil {
			return err
		}
		fmt.Printf("name=%s pin=%d active=%v source=%s\n", resp.Name, resp.Pin, resp.Active, resp.WaterSourceName)
		fmt.Printf("volume_factor=%g pressure_factor=%g pressure_changing_value=%g\n",
			resp.VolumeFactor, resp.PressureFactor, resp.PressureChangingValue)
		fmt.Printf("minimum_volume=%g max_volume=%g zero_volume_pressure=%g\n",
			resp.MinimumVolume, resp.MaxVolume, resp.ZeroVolumePressure)
		return nil
	},
}

func init() {
	tanksCmd.AddCommand(tanksListCmd, tanksGetCmd)
}
