package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"nutriflow/internal/api"
	"nutriflow/internal/config"
	"nutriflow/internal/preflight"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show capture state and daemon health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			client, err := ctx.client()
			if err != nil {
				return err
			}
			reqCtx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
			defer cancel()
			status, statusErr := client.Status(reqCtx)

			if ctx.jsonOutput() {
				if statusErr != nil {
					return ctx.wrapDialError(statusErr)
				}
				return writeJSON(cmd, status)
			}
			out := cmd.OutOrStdout()
			if statusErr != nil {
				renderOfflineStatus(out, cfg, statusErr)
				return nil
			}
			renderStatus(out, status)
			return nil
		},
	}
}

func renderStatus(out io.Writer, s api.StatusResponse) {
	colorize := shouldColorize(out)
	fmt.Fprintln(out, renderSectionHeader("Daemon", colorize))
	fmt.Fprintln(out, renderStatusLine("Daemon", statusOK, "Running (pid "+strconv.Itoa(s.Daemon.PID)+")", colorize))
	if s.Daemon.LogPath != "" {
		fmt.Fprintln(out, renderStatusLine("Log", statusInfo, s.Daemon.LogPath, colorize))
	}
	fmt.Fprintln(out, renderStatusLine("MQTT", statusInfo, yesNo(s.Daemon.MQTT), colorize))
	fmt.Fprintln(out, renderStatusLine("Metrics", statusInfo, yesNo(s.Daemon.Metrics), colorize))

	fmt.Fprintln(out)
	fmt.Fprintln(out, renderSectionHeader("Capture", colorize))
	camera := statusOK
	if !s.CameraActive {
		camera = statusError
	}
	fmt.Fprintln(out, renderStatusLine("Camera", camera, yesNo(s.CameraActive), colorize))
	state := statusInfo
	if s.CaptureRunning {
		state = statusWarn
	}
	fmt.Fprintln(out, renderStatusLine("State", state, s.State, colorize))
	fmt.Fprintln(out, renderStatusLine("Status", statusInfo, s.CurrentStatus, colorize))
	fmt.Fprintln(out, renderStatusLine("Before items", statusInfo, strconv.Itoa(s.BeforeItemsCount), colorize))
	if s.MonitoringSince != "" {
		fmt.Fprintln(out, renderStatusLine("Monitoring since", statusInfo, s.MonitoringSince, colorize))
	}
	if s.PendingCycleID != "" {
		fmt.Fprintln(out, renderStatusLine("Awaiting confirm", statusWarn, s.PendingCycleID, colorize))
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, renderSectionHeader("Profile", colorize))
	p := s.UserProfile
	fmt.Fprintln(out, renderStatusLine("Name", statusInfo, fmt.Sprintf("%s (%d)", p.Name, p.Age), colorize))
	allergies := "none"
	if len(p.Allergies) > 0 {
		allergies = strings.Join(p.Allergies, ", ")
	}
	fmt.Fprintln(out, renderStatusLine("Allergies", statusInfo, allergies, colorize))
}

func renderOfflineStatus(out io.Writer, cfg *config.Config, cause error) {
	colorize := shouldColorize(out)
	fmt.Fprintln(out, renderSectionHeader("Daemon", colorize))
	fmt.Fprintln(out, renderStatusLine("Daemon", statusError, "Not reachable at "+cfg.APIBaseURL(), colorize))
	fmt.Fprintln(out, renderStatusLine("Reason", statusInfo, cause.Error(), colorize))

	fmt.Fprintln(out)
	fmt.Fprintln(out, renderSectionHeader("Environment", colorize))
	probe := preflight.ProbeCamera(cfg.Camera)
	kind := statusOK
	if !probe.Detected {
		kind = statusWarn
	}
	fmt.Fprintln(out, renderStatusLine("Camera", kind, probe.Detail(), colorize))
	fmt.Fprintln(out, renderStatusLine("History", statusInfo, cfg.Paths.HistoryDB, colorize))
	fmt.Fprintln(out, renderStatusLine("Lock", statusInfo, cfg.LockPath(), colorize))
}
