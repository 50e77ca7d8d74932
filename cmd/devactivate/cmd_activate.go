package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"devactivate/internal/activation"
	"devactivate/internal/config"
	"devactivate/internal/device"
	"devactivate/internal/session"
	"devactivate/internal/transport"
)

// activateCmd attempts to activate the device
var activateCmd = &cobra.Command{
	Use:   "activate",
	Short: "Attempt to activate the device",
	Long: `Builds an activation request from the device's identity fields and
drives the round-trip loop against the activation service. Devices whose
firmware generation gates activation behind a DRM handshake perform that
pre-step automatically. Additional fields demanded by the server are
prompted for interactively; secure fields are read without echo.`,
	Args: cobra.NoArgs,
	RunE: runActivate,
}

func runActivate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	dev, err := openDevice()
	if err != nil {
		return err
	}

	client := newTransport(cfg)
	sess := session.New(client, newConsolePrompter(cmd),
		session.WithLogger(logger),
		session.WithMaxRounds(cfg.MaxRounds))

	ctx := cmd.Context()
	if err := runHandshakeIfNeeded(ctx, cfg, dev, sess); err != nil {
		return err
	}

	req, err := activation.NewRequestFromDevice(activation.ClientMobileActivation, dev)
	if err != nil {
		return fmt.Errorf("failed to create activation request: %w", err)
	}
	req.SetURL(cfg.ServiceURL)

	result, err := sess.Run(ctx, req)
	if err != nil {
		return fmt.Errorf("failed to send request or retrieve response: %w", err)
	}

	switch result.State {
	case session.StateAcknowledged:
		cmd.Println("Activation server reports that device is already activated.")
		return nil

	case session.StateRecordReady:
		if err := dev.Activate(result.Record); err != nil {
			return fmt.Errorf("failed to activate device with record: %w", err)
		}
		cmd.Println("Successfully activated device.")
		return nil

	case session.StateErrored:
		msg := "Activation server reports errors."
		if result.Title != "" {
			msg += "\n\t" + result.Title
		}
		if result.Description != "" {
			msg += "\n\t" + result.Description
		}
		return fmt.Errorf("%s", msg)

	default:
		return fmt.Errorf("unexpected session state %s", result.State)
	}
}

// runHandshakeIfNeeded performs the DRM handshake pre-step when the device
// carries a handshake blob, feeding the reply back to the device so it can
// produce its real activation info.
func runHandshakeIfNeeded(ctx context.Context, cfg *config.Config, dev *device.FileDevice, sess *session.Session) error {
	blob, ok := dev.HandshakeBlob()
	if !ok {
		return nil
	}

	logger.Debug("performing DRM handshake", zap.String("url", cfg.HandshakeURL))

	req := activation.NewHandshakeRequest(activation.ClientMobileActivation)
	req.SetURL(cfg.HandshakeURL)
	if m, ok := blob.(map[string]any); ok {
		for k, v := range m {
			req.Fields.Set(k, v)
		}
	} else {
		req.Fields.Set("HandshakeRequestMessage", blob)
	}

	fs, err := sess.Handshake(ctx, req)
	if err != nil {
		return fmt.Errorf("DRM handshake failed: %w", err)
	}
	if err := dev.ApplyHandshakeFields(fs); err != nil {
		return fmt.Errorf("failed to apply handshake session to device: %w", err)
	}
	return nil
}

func openDevice() (*device.FileDevice, error) {
	if deviceInfoPath == "" {
		return nil, fmt.Errorf("no device info given, use --device-info")
	}
	dev, err := device.Open(deviceInfoPath)
	if err != nil {
		return nil, err
	}
	if udid != "" {
		v, err := dev.Value("", "UniqueDeviceID")
		if err != nil || v != udid {
			return nil, fmt.Errorf("no device found with UDID %s", udid)
		}
	}
	return dev, nil
}

func newTransport(cfg *config.Config) *transport.Client {
	opts := []transport.Option{
		transport.WithLogger(logger),
		transport.WithTimeout(cfg.TimeoutDuration()),
		transport.WithDebug(cfg.Debug),
	}
	if cfg.InsecureTLS {
		opts = append(opts, transport.WithInsecureTLS())
	}
	return transport.New(opts...)
}
