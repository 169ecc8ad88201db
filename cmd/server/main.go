package main

import (
	"fmt"
	"net"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/opencontroller/backend/internal/config"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
)

// serverFlags holds the command line overrides for the config file.
type serverFlags struct {
	configPath string
	addr       string
	dbPath     string
	recordDir  string
	mdns       bool
	qr         bool
}

func main() {
	rootCmd := newRootCmd()
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &serverFlags{}

	cmd := &cobra.Command{
		Use:   "opencontroller",
		Short: "Virtual Xbox controller host for phone browsers",
		Long: `OpenController turns phones on the local network into game controllers.

Each phone that opens the join URL is given one of four virtual controller
slots; button and thumbstick input is forwarded to the device in that slot.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}
			return run(cfg)
		},
	}

	bindFlags(cmd, flags)
	return cmd
}

func bindFlags(cmd *cobra.Command, f *serverFlags) {
	cmd.Flags().StringVarP(&f.configPath, "config", "c", "", "config file (default ~/.opencontroller/config.toml)")
	cmd.Flags().StringVarP(&f.addr, "addr", "a", config.DefaultAddr, "listen address")
	cmd.Flags().StringVar(&f.dbPath, "db", config.DefaultDBPath, "SQLite session history path (empty disables)")
	cmd.Flags().StringVar(&f.recordDir, "record-dir", "", "directory for input recordings (empty disables)")
	cmd.Flags().BoolVar(&f.mdns, "mdns", false, "advertise the host over mDNS")
	cmd.Flags().BoolVar(&f.qr, "qr", true, "print the join URL as a QR code")
}

// loadConfig reads the config file and applies explicitly set flags on top.
// PORT replaces the listen port when --addr is not given.
func loadConfig(cmd *cobra.Command, f *serverFlags) (*config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("addr") {
		cfg.Addr = f.addr
	} else if port := getEnv("PORT", ""); port != "" {
		cfg.Addr = withPort(cfg.Addr, port)
	}
	if flags.Changed("db") {
		cfg.DBPath = f.dbPath
	}
	if flags.Changed("record-dir") {
		cfg.RecordDir = f.recordDir
	}
	if flags.Changed("mdns") {
		cfg.MdnsEnabled = f.mdns
	}
	if flags.Changed("qr") {
		cfg.QR = f.qr
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// withPort replaces the port of a host:port address.
func withPort(addr, port string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = ""
	}
	return net.JoinHostPort(host, port)
}

// getEnv returns the value of an environment variable or a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func versionCmd() *cobra.Command {
	var short bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			if short {
				fmt.Println(version)
				return
			}
			fmt.Printf("OpenController %s\n", version)
			fmt.Printf("  Commit:     %s\n", commit)
			fmt.Printf("  Go version: %s\n", runtime.Version())
			fmt.Printf("  OS/Arch:    %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}

	cmd.Flags().BoolVarP(&short, "short", "s", false, "Print only version number")

	return cmd
}
