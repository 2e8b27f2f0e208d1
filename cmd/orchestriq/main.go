package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/docker/docker/api/types/registry"
	"github.com/spf13/cobra"

	"github.com/nasriyasoftware/Orchestriq-sub001/internal/app"
	"github.com/nasriyasoftware/Orchestriq-sub001/internal/config"
	oqerrors "github.com/nasriyasoftware/Orchestriq-sub001/internal/errors"
	"github.com/nasriyasoftware/Orchestriq-sub001/internal/ui"
	"github.com/nasriyasoftware/Orchestriq-sub001/pkg/engine"
)

// version is set at build time via ldflags
var version = "dev"

var (
	configFile string
	cfg        *config.Config
	console    = ui.NewConsole()
)

var rootCmd = &cobra.Command{
	Use:     "orchestriq",
	Short:   "Orchestriq - compile container templates and image operations into Docker Engine requests",
	Version: version,
	Long: `Orchestriq creates containers from declarative templates and builds, pulls,
pushes, tags and removes images by talking to the Docker Engine API directly.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configFile, cmd.Flags())
		if err != nil {
			return err
		}
		cfg = loaded
		slog.SetDefault(app.NewLogger(os.Stderr, cfg.LogLevel))
		return nil
	},
}

// newApp wires the CLI workflows to a client built from the loaded config.
func newApp() (*app.App, error) {
	logger := slog.Default()
	client, err := app.NewClientFactory(cfg, logger, console).NewClient()
	if err != nil {
		return nil, err
	}
	return app.New(client, console, logger), nil
}

// run executes fn with a client and a context cancelled on SIGINT/SIGTERM.
func run(fn func(ctx context.Context, a *app.App) error) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp()
	if err != nil {
		return err
	}
	return fn(ctx, a)
}

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create containers from a template",
	Long: `Create reads a container template (or a docker-compose file with --compose)
and creates one container per service, in declaration order. Containers are
created but not started.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")
		compose, _ := cmd.Flags().GetBool("compose")
		record, _ := cmd.Flags().GetString("record")

		return run(func(ctx context.Context, a *app.App) error {
			return a.Create(ctx, app.CreateOptions{TemplatePath: file, Compose: compose, RecordPath: record})
		})
	},
}

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build an image",
	Long: `Build sends a build context to the daemon. The context is a directory, a tar
archive, or an http(s) URL the daemon fetches itself. A Dockerfile outside the
context directory is copied in for the build and removed afterwards.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		opts := engine.BuildImageOptions{}
		opts.Name, _ = flags.GetString("name")
		opts.Tag, _ = flags.GetString("tag")
		opts.Context, _ = flags.GetString("context")
		opts.DockerfileName, _ = flags.GetString("dockerfile")
		opts.DockerfilePath, _ = flags.GetString("dockerfile-path")
		opts.NetworkMode, _ = flags.GetString("network")
		opts.Platform, _ = flags.GetString("platform")

		for flag, target := range map[string]**bool{
			"no-cache": &opts.NoCache,
			"pull":     &opts.PullBaseImages,
			"rm":       &opts.RemoveIntermediate,
			"force-rm": &opts.ForceRemoveIntermediate,
		} {
			if flags.Changed(flag) {
				v, _ := flags.GetBool(flag)
				*target = engine.Bool(v)
			}
		}
		opts.Verbose = engine.Bool(cfg.Verbose)

		opts.BuildArgs, _ = flags.GetStringToString("build-arg")
		opts.Labels, _ = flags.GetStringToString("label")
		outputs, _ := flags.GetStringToString("output")
		for k, v := range outputs {
			opts.Outputs = append(opts.Outputs, engine.BuildOutput{Key: k, Value: v})
		}

		if token, _ := flags.GetString("remote-token"); token != "" {
			opts.Auth = &engine.RemoteAuth{Token: token}
		} else if user, _ := flags.GetString("remote-user"); user != "" {
			password, _ := flags.GetString("remote-password")
			opts.Auth = &engine.RemoteAuth{Username: user, Password: password}
		}

		return run(func(ctx context.Context, a *app.App) error {
			return a.Build(ctx, opts)
		})
	},
}

var pullCmd = &cobra.Command{
	Use:   "pull IMAGE",
	Short: "Pull an image from a registry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tag, _ := cmd.Flags().GetString("tag")
		platform, _ := cmd.Flags().GetString("platform")
		auth, err := registryAuth(cmd)
		if err != nil {
			return err
		}

		return run(func(ctx context.Context, a *app.App) error {
			return a.Pull(ctx, engine.PullImageOptions{
				Image: args[0], Tag: tag, Platform: platform, Auth: auth, Verbose: cfg.Verbose,
			})
		})
	},
}

var pushCmd = &cobra.Command{
	Use:   "push NAME",
	Short: "Push an image to a registry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tag, _ := cmd.Flags().GetString("tag")
		auth, err := registryAuth(cmd)
		if err != nil {
			return err
		}

		return run(func(ctx context.Context, a *app.App) error {
			return a.Push(ctx, engine.PushImageOptions{Name: args[0], Tag: tag, Auth: auth, Verbose: cfg.Verbose})
		})
	},
}

var tagCmd = &cobra.Command{
	Use:   "tag SOURCE REPO",
	Short: "Add a repository and tag to an existing image",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		tag, _ := cmd.Flags().GetString("tag")
		force, _ := cmd.Flags().GetBool("force")

		return run(func(ctx context.Context, a *app.App) error {
			return a.Tag(ctx, engine.TagImageOptions{Source: args[0], Repo: args[1], Tag: tag, Force: force})
		})
	},
}

var rmiCmd = &cobra.Command{
	Use:   "rmi NAME",
	Short: "Remove an image",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")
		noPrune, _ := cmd.Flags().GetBool("no-prune")

		return run(func(ctx context.Context, a *app.App) error {
			return a.Remove(ctx, engine.RemoveImageOptions{Name: args[0], Force: force, NoPrune: noPrune})
		})
	},
}

var inspectCmd = &cobra.Command{
	Use:   "inspect IMAGE",
	Short: "Show low-level information about an image",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(func(ctx context.Context, a *app.App) error {
			return a.Inspect(ctx, args[0])
		})
	},
}

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check that the Docker daemon is reachable",
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(func(ctx context.Context, a *app.App) error {
			return a.Ping(ctx)
		})
	},
}

// registryAuth reads --username/--password; the password may also come from
// ORCHESTRIQ_REGISTRY_PASSWORD.
func registryAuth(cmd *cobra.Command) (*registry.AuthConfig, error) {
	user, _ := cmd.Flags().GetString("username")
	password, _ := cmd.Flags().GetString("password")
	server, _ := cmd.Flags().GetString("registry")
	if password == "" {
		password = os.Getenv("ORCHESTRIQ_REGISTRY_PASSWORD")
	}
	if user == "" {
		if password != "" {
			return nil, oqerrors.NewArgumentMissing("registry credentials", "--username is required with a password")
		}
		return nil, nil
	}
	return &registry.AuthConfig{Username: user, Password: password, ServerAddress: server}, nil
}

func addRegistryFlags(cmd *cobra.Command) {
	cmd.Flags().String("username", "", "Registry username")
	cmd.Flags().String("password", "", "Registry password (or ORCHESTRIQ_REGISTRY_PASSWORD)")
	cmd.Flags().String("registry", "", "Registry server address")
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configFile, "config", "", "Config file (default ./orchestriq.yaml or $HOME/.config/orchestriq/orchestriq.yaml)")
	pf.String(config.FlagName(config.KeyHost), "", "Docker daemon address (default DOCKER_HOST or auto-detected socket)")
	pf.String(config.FlagName(config.KeyAPIVersion), "", "Engine API version to pin requests to, e.g. 1.47")
	pf.BoolP(config.FlagName(config.KeyVerbose), "v", false, "Log progress and diagnostics instead of rendering progress")
	pf.String(config.FlagName(config.KeyLogLevel), "info", "Log level: debug, info, warn or error")
	pf.String(config.FlagName(config.KeyLogDir), "", "Directory for the error log file")

	createCmd.Flags().StringP("file", "f", "", "Path to the template file (required)")
	createCmd.Flags().Bool("compose", false, "Read the file as a docker-compose file")
	createCmd.Flags().String("record", "", "Write a JSON record of created containers to this path")
	if err := createCmd.MarkFlagRequired("file"); err != nil {
		slog.Error("Failed to mark file flag as required for create command", "error", err)
	}
	rootCmd.AddCommand(createCmd)

	bf := buildCmd.Flags()
	bf.String("name", "", "Image name, without tag (required)")
	bf.StringP("tag", "t", "", "Image tag (default latest)")
	bf.String("context", ".", "Build context: directory, tar archive or http(s) URL")
	bf.StringP("dockerfile", "f", "", "Dockerfile name (default Dockerfile)")
	bf.String("dockerfile-path", "", "Directory holding the Dockerfile (default the context directory)")
	bf.Bool("no-cache", false, "Do not use the build cache")
	bf.Bool("pull", false, "Always attempt to pull newer base images")
	bf.Bool("rm", true, "Remove intermediate containers after a successful build")
	bf.Bool("force-rm", false, "Always remove intermediate containers")
	bf.String("network", "", "Network mode for RUN instructions")
	bf.String("platform", "", "Target platform, e.g. linux/amd64")
	bf.StringToString("build-arg", nil, "Build-time variables (KEY=VALUE)")
	bf.StringToString("label", nil, "Image labels (KEY=VALUE)")
	bf.StringToString("output", nil, "Build outputs (KEY=VALUE)")
	bf.String("remote-user", "", "Username for a remote build context")
	bf.String("remote-password", "", "Password for a remote build context")
	bf.String("remote-token", "", "Bearer token for a remote build context")
	if err := buildCmd.MarkFlagRequired("name"); err != nil {
		slog.Error("Failed to mark name flag as required for build command", "error", err)
	}
	rootCmd.AddCommand(buildCmd)

	pullCmd.Flags().String("tag", "", "Tag to pull (default latest)")
	pullCmd.Flags().String("platform", "", "Platform to pull, e.g. linux/arm64")
	addRegistryFlags(pullCmd)
	rootCmd.AddCommand(pullCmd)

	pushCmd.Flags().String("tag", "", "Tag to push (default all tags)")
	addRegistryFlags(pushCmd)
	rootCmd.AddCommand(pushCmd)

	tagCmd.Flags().String("tag", "", "Tag for the new reference (default latest)")
	tagCmd.Flags().Bool("force", false, "Replace an existing tag")
	rootCmd.AddCommand(tagCmd)

	rmiCmd.Flags().Bool("force", false, "Remove the image even if it is in use")
	rmiCmd.Flags().Bool("no-prune", false, "Keep untagged parent images")
	rootCmd.AddCommand(rmiCmd)

	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(pingCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		logDir := ""
		if cfg != nil {
			logDir = cfg.LogDir
		}
		if handler, handlerErr := oqerrors.DefaultHandler(logDir); handlerErr == nil {
			handler.Handle(err)
		} else {
			fmt.Fprintf(os.Stderr, "Error: %s\n", strings.TrimSpace(err.Error()))
		}
		os.Exit(1)
	}
}
