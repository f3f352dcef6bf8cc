// Package cli implements the tally command-line interface.
package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	tallylog "github.com/mesh-intelligence/tally/internal/log"
	"github.com/mesh-intelligence/tally/internal/paths"
	"github.com/mesh-intelligence/tally/pkg/types"
)

// Exit codes.
const (
	exitSuccess   = 0
	exitUserError = 1
	exitSysError  = 2
)

// app carries global flag values and the configuration loaded for one
// invocation.
type app struct {
	configDir string
	dataDir   string
	logLevel  string
	jsonMode  bool

	cfg    types.Config
	cfgDir string
}

// NewRootCmd creates the top-level "tally" command with global flags and
// all subcommands registered.
func NewRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "tally",
		Short: "Per-term, per-object-type relationship counts",
		Long: "Tally keeps taxonomies, terms and object-term relationships, and caches\n" +
			"how many objects of each type hold each term.",
		Args:          userArgs(cobra.NoArgs),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return userError{err}
	})

	pf := root.PersistentFlags()
	pf.StringVar(&a.configDir, "config-dir", "", "configuration directory (default: platform config dir)")
	pf.StringVar(&a.dataDir, "data-dir", "", "data directory (default: ./"+paths.DefaultDataDirName+")")
	pf.StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error, fatal")
	pf.BoolVar(&a.jsonMode, "json", false, "output in JSON format")

	root.AddCommand(
		newInitCmd(a),
		newVersionCmd(a),
		newTypeCmd(a),
		newTaxonomyCmd(a),
		newTermCmd(a),
		newLinkCmd(a),
		newUnlinkCmd(a),
		newCountCmd(a),
		newRecountCmd(a),
	)
	return root
}

// Execute runs the root command and exits with the matching code.
func Execute() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run executes one invocation and returns its exit code.
func run(args []string, stdout, stderr io.Writer) int {
	root := NewRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(stderr, "tally:", err)
		return exitCode(err)
	}
	return exitSuccess
}

// setup resolves directories, loads config.yaml and installs the logger.
func (a *app) setup(cmd *cobra.Command) error {
	configDir, err := paths.ResolveConfigDir(a.configDir)
	if err != nil {
		return fmt.Errorf("resolving config dir: %w", err)
	}
	a.cfgDir = configDir

	fc, err := loadConfig(configDir)
	if err != nil {
		return err
	}

	dataDir, err := paths.ResolveDataDir(a.dataDir, fc.DataDir)
	if err != nil {
		return fmt.Errorf("resolving data dir: %w", err)
	}
	fc.DataDir = dataDir
	a.cfg = fc.Config

	level := a.logLevel
	if level == "" {
		level = fc.LogLevel
	}
	if err := tallylog.InitLoggerTo(cmd.ErrOrStderr(), level); err != nil {
		return userError{err}
	}
	return nil
}

// userError marks errors caused by bad input.
type userError struct {
	err error
}

func (e userError) Error() string { return e.err.Error() }
func (e userError) Unwrap() error { return e.err }

// userArgs marks argument validation failures as user errors.
func userArgs(check cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := check(cmd, args); err != nil {
			return userError{err}
		}
		return nil
	}
}

// userSentinels are the validation errors reported with exitUserError.
var userSentinels = []error{
	types.ErrInvalidTaxonomy,
	types.ErrObjectTypeNotInTaxonomy,
	types.ErrInvalidTerm,
	types.ErrNotFound,
	types.ErrInvalidID,
	types.ErrInvalidName,
	types.ErrObjectTypeNotFound,
	types.ErrDuplicateName,
}

func exitCode(err error) int {
	var ue userError
	if errors.As(err, &ue) {
		return exitUserError
	}
	for _, sentinel := range userSentinels {
		if errors.Is(err, sentinel) {
			return exitUserError
		}
	}
	return exitSysError
}
