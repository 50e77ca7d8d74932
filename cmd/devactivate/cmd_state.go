package main

import (
	"github.com/spf13/cobra"
)

// stateCmd prints the device's activation state
var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Query the device's activation state",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dev, err := openDevice()
		if err != nil {
			return err
		}
		cmd.Printf("ActivationState: %s\n", dev.ActivationState())
		return nil
	},
}
