package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/scopectx/internal/domain/identity"
	"github.com/GriffinCanCode/scopectx/internal/infrastructure/config"
	"github.com/GriffinCanCode/scopectx/internal/server"
)

type serveFlags struct {
	port     string
	grpcPort string
	registry string
	logLevel string
	dev      bool
	noGRPC   bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var flags serveFlags

	root := &cobra.Command{
		Use:   "scopectx",
		Short: "Scoped context propagation service",
		Long: `scopectx carries correlation, causation and tenant context across
HTTP, gRPC, websocket and background job boundaries.

Configuration is read from the environment; flags override it.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd, flags)
		},
	}

	f := root.Flags()
	f.StringVar(&flags.port, "port", "", "HTTP port (overrides PORT)")
	f.StringVar(&flags.grpcPort, "grpc-port", "", "gRPC port (overrides GRPC_PORT)")
	f.StringVar(&flags.registry, "registry", "", "node registry file, YAML or TOML (overrides REGISTRY_PATH)")
	f.StringVar(&flags.logLevel, "log-level", "", "log level (overrides LOG_LEVEL)")
	f.BoolVar(&flags.dev, "dev", false, "development logging")
	f.BoolVar(&flags.noGRPC, "no-grpc", false, "disable the gRPC server")

	root.AddCommand(newRegistryCmd())
	return root
}

func serve(cmd *cobra.Command, flags serveFlags) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	applyFlags(cfg, flags)
	if err := cfg.Validate(); err != nil {
		return err
	}

	srv, err := server.NewServer(cfg)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	defer func() {
		if err := srv.Close(); err != nil {
			fmt.Fprintln(cmd.ErrOrStderr(), err)
		}
	}()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(ctx); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

func applyFlags(cfg *config.Config, flags serveFlags) {
	if flags.port != "" {
		cfg.Server.Port = flags.port
	}
	if flags.grpcPort != "" {
		cfg.GRPC.Port = flags.grpcPort
	}
	if flags.registry != "" {
		cfg.Registry.Path = flags.registry
	}
	if flags.logLevel != "" {
		cfg.Logging.Level = flags.logLevel
	}
	if flags.dev {
		cfg.Logging.Development = true
	}
	if flags.noGRPC {
		cfg.GRPC.Enabled = false
	}
}

func newRegistryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "registry <file>",
		Short: "Validate a node registry file and list its nodes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := identity.LoadRegistry(args[0])
			if err != nil {
				return err
			}
			return printNodes(cmd, reg)
		},
	}
}

func printNodes(cmd *cobra.Command, reg *identity.Registry) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSECTOR\tCRITICAL\tBASE URL\tHEALTH")
	for _, n := range reg.Nodes() {
		probe := n.HealthURL
		if n.GRPCHealthAddr != "" {
			probe = "grpc://" + n.GRPCHealthAddr
		}
		fmt.Fprintf(w, "%s\t%s\t%t\t%s\t%s\n", n.ID, n.Sector, n.Critical, n.BaseURL, probe)
	}
	return w.Flush()
}
