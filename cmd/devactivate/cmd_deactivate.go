package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// deactivateCmd clears the stored activation record
var deactivateCmd = &cobra.Command{
	Use:   "deactivate",
	Short: "Deactivate the device",
	Long:  `Removes the stored activation record and marks the device unactivated.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dev, err := openDevice()
		if err != nil {
			return err
		}
		if err := dev.Deactivate(); err != nil {
			return fmt.Errorf("failed to deactivate device: %w", err)
		}
		cmd.Println("Successfully deactivated device.")
		return nil
	},
}
