package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	latencytest "github.com/NichtSylph/UDPvsTCPLatencyTests"
)

var (
	host           string
	port           int
	protocol       string
	planPath       string
	connectTimeout time.Duration
	readTimeout    time.Duration
	verbose        bool
)

func init() {
	rootCmd.PersistentFlags().StringVar(&host, "host", "localhost", "remote host for measure, bind address for serve")
	rootCmd.PersistentFlags().IntVar(&port, "port", latencytest.DefaultPort, "port of the echo responder")
	rootCmd.PersistentFlags().StringVar(&protocol, "protocol", "tcp", "transport protocol {tcp|udp}")
	rootCmd.PersistentFlags().DurationVar(&readTimeout, "read-timeout", latencytest.DefaultReadTimeout, "deadline for blocking reads")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	measureCmd.Flags().StringVar(&planPath, "plan", "", "YAML measurement plan, defaults to the built-in schedule")
	measureCmd.Flags().DurationVar(&connectTimeout, "connect-timeout", latencytest.DefaultConnectTimeout, "deadline for the connection attempt")
	rootCmd.AddCommand(measureCmd)
	rootCmd.AddCommand(serveCmd)
}

var rootCmd = &cobra.Command{
	Use:   "latencytest",
	Short: "Measures round-trip latency and throughput against an echo responder over TCP or UDP",
}

var measureCmd = &cobra.Command{
	Use:   "measure",
	Short: "Runs the measurement plan against a responder and prints the results",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := buildConfig()
		plan := latencytest.DefaultPlan()
		if planPath != "" {
			var err error
			plan, err = latencytest.LoadPlan(planPath)
			if err != nil {
				return err
			}
		}

		var ch latencytest.Channel
		var err error
		switch protocol {
		case "tcp":
			ch, err = latencytest.DialStream(cfg)
		case "udp":
			ch, err = latencytest.DialPacket(cfg)
		default:
			return fmt.Errorf("invalid transport protocol %q", protocol)
		}
		if err != nil {
			return err
		}

		driver := latencytest.NewDriver(cfg.Logger)
		report, err := driver.Run(ch, plan)
		if err != nil {
			return err
		}
		printReport(report)
		return nil
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Runs the echo responder",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := buildConfig()
		switch protocol {
		case "tcp":
			server, err := latencytest.ListenStream(cfg)
			if err != nil {
				return err
			}
			closeOnSignal(server)
			logrus.WithField("addr", server.Addr()).Info("TCP echo responder running")
			return server.Serve()
		case "udp":
			server, err := latencytest.ListenPacket(cfg)
			if err != nil {
				return err
			}
			closeOnSignal(server)
			logrus.WithField("addr", server.Addr()).Info("UDP echo responder running")
			return server.Serve()
		default:
			return fmt.Errorf("invalid transport protocol %q", protocol)
		}
	},
}

func buildConfig() *latencytest.Config {
	if verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}
	cfg := latencytest.DefaultConfig()
	cfg.Host = host
	cfg.Port = port
	cfg.ConnectTimeout = connectTimeout
	cfg.ReadTimeout = readTimeout
	cfg.Logger = latencytest.LogrusLogger(logrus.StandardLogger())
	return cfg
}

func closeOnSignal(server interface{ Close() error }) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logrus.Info("Shutting down")
		server.Close()
	}()
}

func printReport(report *latencytest.Report) {
	for _, r := range report.Latency {
		if r.NoResponse {
			fmt.Printf("RTT for %d bytes: no response\n", r.Size)
			continue
		}
		fmt.Printf("RTT for %d bytes: %d ms\n", r.Size, r.RTT.Milliseconds())
	}
	for _, r := range report.Throughput {
		fmt.Printf("Throughput for %d messages of %d bytes: %.0f bps\n", r.Count, r.Size, r.BitsPerSecond)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
