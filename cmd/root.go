// Package cmd holds the command line interface.
package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"lautenbacher.net/p9813leds/config"
	"lautenbacher.net/p9813leds/gpio"
	"lautenbacher.net/p9813leds/led"
	"lautenbacher.net/p9813leds/p9813"
)

// RootCmd is the entry point; without a subcommand it runs the daemon.
var RootCmd = &cobra.Command{
	Use:           "p9813leds",
	Short:         "Drive a P9813 LED controller from 3D printer events",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runDaemon,
}

var RunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the daemon, reading commands from stdin or the configured fifo",
	Args:  cobra.NoArgs,
	RunE:  runDaemon,
}

var SetCmd = &cobra.Command{
	Use:   "set <RRGGBB>",
	Short: "Transmit one colour and exit",
	Long:  `Transmits the colour and closes the strip, which switches it off again. Use --keep to leave the colour latched.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runSet,
}

var FrameCmd = &cobra.Command{
	Use:   "frame <RRGGBB>",
	Short: "Print the 32-bit frame for a colour",
	Args:  cobra.ExactArgs(1),
	RunE:  runFrame,
}

var ValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the config file and exit",
	Args:  cobra.NoArgs,
	RunE:  runValidate,
}

func init() {
	RootCmd.PersistentFlags().StringP("config", "c", config.CONFILE, "Config file (.yml or .toml)")
	for _, c := range []*cobra.Command{RootCmd, RunCmd} {
		c.Flags().BoolP("tui", "t", false, "Show the terminal simulation")
	}
	SetCmd.Flags().BoolP("keep", "k", false, "Keep the colour on exit")
	RootCmd.AddCommand(RunCmd, SetCmd, FrameCmd, ValidateCmd)
}

func Execute() error {
	return RootCmd.Execute()
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfile, _ := cmd.Flags().GetString("config")
	useTUI, _ := cmd.Flags().GetBool("tui")

	ossignal := make(chan os.Signal, 1)
	signal.Notify(ossignal, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(ossignal)

	app := NewApp(cfile, ossignal)
	app.useTUI = useTUI
	return app.Run(cmd.Context())
}

func runSet(cmd *cobra.Command, args []string) error {
	cfile, _ := cmd.Flags().GetString("config")
	keep, _ := cmd.Flags().GetBool("keep")

	conf, err := config.ReadConfig(cfile)
	if err != nil {
		return err
	}
	c, err := led.ParseHex(args[0])
	if err != nil {
		return err
	}
	lines := gpio.Open(conf.Hardware)
	strip := p9813.NewStrip(lines.Clock, lines.Data, conf.Hardware.BitDelay())
	if err := strip.SetColor(c); err != nil {
		return fmt.Errorf("failed to transmit %s: %w", c, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s sent via %s\n", c, lines.Backend)
	if keep {
		return nil
	}
	return strip.Close()
}

func runFrame(cmd *cobra.Command, args []string) error {
	c, err := led.ParseHex(args[0])
	if err != nil {
		return err
	}
	frame := p9813.Encode(c)
	fmt.Fprintf(cmd.OutOrStdout(), "0x%08X\n%032b\n", frame, frame)
	return nil
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfile, _ := cmd.Flags().GetString("config")
	if _, err := config.ReadConfig(cfile); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s is valid\n", cfile)
	return nil
}
