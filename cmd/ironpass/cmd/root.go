package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jmcleod/ironpass/vault"
)

// Version is set at build time with -ldflags.
var Version = "dev"

// app carries what every subcommand needs once flags and config are read.
type app struct {
	configPath string
	baseDir    string
	cipherName string
	logLevel   string
	verbose    bool

	cfg    Config
	logger *slog.Logger
	store  *vault.Store
	prompt *prompter
}

// NewRootCmd builds the command tree. Each call returns an independent tree,
// so tests can run commands without sharing flag state.
func NewRootCmd() *cobra.Command {
	a := &app{}
	rootCmd := &cobra.Command{
		Use:   "ironpass",
		Short: "IronPass is a deterministic password store",
		Long: `A personal password store. Passwords are derived from the service name and a
per-store secret, and every record is sealed under your passphrase.
Complete documentation is available at https://github.com/jmcleod/ironpass`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.configPath, "config", defaultConfigPath(), "path to the YAML config file")
	flags.StringVarP(&a.baseDir, "dir", "d", "", "store directory (default $"+vault.EnvBaseDir+" or ~/"+vault.DefaultDirName+")")
	flags.StringVar(&a.cipherName, "cipher", "", "cipher for new records (legacy-cbc, aes-gcm, xchacha)")
	flags.StringVar(&a.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "shorthand for --log-level=debug")

	rootCmd.AddCommand(
		newInitCmd(a),
		newNewCmd(a),
		newGetCmd(a),
		newShowCmd(a),
		newListCmd(a),
		newKVCmd(a),
		newTagCmd(a),
		newRotateCmd(a),
		newDeleteCmd(a),
		newIDCmd(a),
		newPasswdCmd(a),
		newMigrateCmd(a),
		newVersionCmd(),
	)
	return rootCmd
}

// Execute runs the CLI until it finishes or receives SIGINT/SIGTERM.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := loadConfig(a.configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg

	levelName := cfg.LogLevel
	if v := os.Getenv(envLogLevel); v != "" {
		levelName = v
	}
	if a.logLevel != "" {
		levelName = a.logLevel
	}
	level, err := parseLogLevel(levelName)
	if err != nil {
		return err
	}
	if a.verbose {
		level = slog.LevelDebug
	}
	a.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	enc, err := cfg.cipher(a.cipherName)
	if err != nil {
		return err
	}
	registry, err := cfg.registry()
	if err != nil {
		return err
	}
	opts := []vault.Option{vault.WithEncryptor(enc), vault.WithRegistry(registry)}
	dir := a.baseDir
	if dir == "" {
		dir = cfg.BaseDir
	}
	if dir != "" {
		opts = append(opts, vault.WithBaseDir(dir))
	}
	store, err := vault.New(opts...)
	if err != nil {
		return err
	}
	a.store = store
	a.prompt = newPrompter(cmd.InOrStdin(), cmd.ErrOrStderr())
	a.logger.Debug("store opened", "dir", store.BaseDir(), "cipher", enc.Name())
	return nil
}

func parseLogLevel(s string) (slog.Level, error) {
	var level slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return level, fmt.Errorf("invalid log level %q", s)
	}
	return level, nil
}

// passphrase prompts once for the store passphrase.
func (a *app) passphrase() (string, error) {
	return a.prompt.secret("Passphrase: ")
}
