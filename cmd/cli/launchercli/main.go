package main

import (
	"context"
	"fmt"
	"os"
	"sort"

	flags "github.com/jessevdk/go-flags"

	"github.com/core-tools/hsu-launcher/pkg/config"
	"github.com/core-tools/hsu-launcher/pkg/errors"
	"github.com/core-tools/hsu-launcher/pkg/launcher"
	"github.com/core-tools/hsu-launcher/pkg/logging"
	"github.com/core-tools/hsu-launcher/pkg/state"
)

type globalOptions struct {
	StateDir string `long:"state-dir" description:"state directory (default ~/.launcher)"`
	CacheDir string `long:"cache-dir" description:"cache directory (default <state-dir>/cache)"`
	LogLevel string `long:"log-level" default:"info" choice:"debug" choice:"info" choice:"warn" choice:"error" description:"log verbosity"`
}

var globals globalOptions

// buildLauncher constructs the operation facade from the global flags
func buildLauncher() (*launcher.Launcher, logging.Logger, error) {
	logger, err := logging.NewZapLogger(logging.ZapConfig{Level: globals.LogLevel})
	if err != nil {
		return nil, nil, err
	}

	root, err := state.NewRoot(state.RootOptions{
		StateDir: globals.StateDir,
		CacheDir: globals.CacheDir,
	})
	if err != nil {
		return nil, nil, err
	}

	l, err := launcher.New(root, logger)
	if err != nil {
		return nil, nil, err
	}
	return l, logger, nil
}

type addCommand struct {
	Name            string   `long:"name" description:"config name (default: derived from the application)"`
	Port            int      `long:"port" description:"listening port (default: first free one)"`
	Host            string   `long:"host" description:"bind host (default: from defaults.ini, then 0.0.0.0)"`
	Secure          bool     `long:"secure" description:"generate an access token and certificate"`
	Password        string   `long:"password" description:"read-write access password"`
	ROPassword      string   `long:"ro-password" description:"read-only access password"`
	CustomNames     []string `long:"custom-name" description:"extra certificate name (repeatable)"`
	SeparateConfig  bool     `long:"separate-config" description:"keep a private data directory for this config"`
	Channel         string   `long:"channel" default:"unknown" choice:"tested" choice:"not_tested" choice:"unknown" description:"update channel"`
	Force           bool     `long:"force" description:"overwrite an existing config of the same name"`
	CertificateFile string   `long:"certificate" description:"import this certificate instead of issuing one"`
	KeyFile         string   `long:"certificate-key" description:"key of the imported certificate"`
	ChainFile       string   `long:"certificate-chain" description:"chain of the imported certificate"`

	Args struct {
		AppPath string `positional-arg-name:"app-path" required:"yes" description:"application installation directory"`
	} `positional-args:"yes"`
}

func (c *addCommand) Execute(args []string) error {
	l, _, err := buildLauncher()
	if err != nil {
		return err
	}

	rc, err := l.Add(launcher.AddOptions{
		Name:            c.Name,
		AppPath:         c.Args.AppPath,
		Port:            c.Port,
		Host:            c.Host,
		Secure:          c.Secure,
		Password:        c.Password,
		ROPassword:      c.ROPassword,
		CustomNames:     c.CustomNames,
		SeparateConfig:  c.SeparateConfig,
		Channel:         config.UpdateChannel(c.Channel),
		Force:           c.Force,
		CertificateFile: c.CertificateFile,
		KeyFile:         c.KeyFile,
		ChainFile:       c.ChainFile,
	})
	if err != nil {
		return err
	}

	fmt.Printf("Added run config '%s' (port %d, host %s)\n", rc.Name, rc.Port, rc.Host)
	return nil
}

type editCommand struct {
	Port           *int      `long:"port" description:"listening port"`
	Host           *string   `long:"host" description:"bind host"`
	Password       *string   `long:"password" description:"read-write access password"`
	ROPassword     *string   `long:"ro-password" description:"read-only access password"`
	CustomNames    *[]string `long:"custom-name" description:"extra certificate name (repeatable, replaces the current set)"`
	SeparateConfig *bool     `long:"separate-config" description:"keep a private data directory"`
	Channel        *string   `long:"channel" choice:"tested" choice:"not_tested" choice:"unknown" description:"update channel"`

	Args struct {
		Name string `positional-arg-name:"name" required:"yes"`
	} `positional-args:"yes"`
}

func (c *editCommand) Execute(args []string) error {
	l, _, err := buildLauncher()
	if err != nil {
		return err
	}

	options := launcher.EditOptions{
		Port:           c.Port,
		Host:           c.Host,
		Password:       c.Password,
		ROPassword:     c.ROPassword,
		CustomNames:    c.CustomNames,
		SeparateConfig: c.SeparateConfig,
	}
	if c.Channel != nil {
		channel := config.UpdateChannel(*c.Channel)
		options.Channel = &channel
	}

	rc, err := l.Edit(c.Args.Name, options)
	if err != nil {
		return err
	}

	fmt.Printf("Updated run config '%s'\n", rc.Name)
	return nil
}

type renameCommand struct {
	Args struct {
		From string `positional-arg-name:"from" required:"yes"`
		To   string `positional-arg-name:"to" required:"yes"`
	} `positional-args:"yes"`
}

func (c *renameCommand) Execute(args []string) error {
	l, _, err := buildLauncher()
	if err != nil {
		return err
	}

	if err := l.Rename(c.Args.From, c.Args.To); err != nil {
		return err
	}
	fmt.Printf("Renamed run config '%s' to '%s'\n", c.Args.From, c.Args.To)
	return nil
}

type removeCommand struct {
	Cascade bool `long:"uninstall" description:"also remove the application tree when no other config uses it"`

	Args struct {
		Name string `positional-arg-name:"name" required:"yes"`
	} `positional-args:"yes"`
}

func (c *removeCommand) Execute(args []string) error {
	l, _, err := buildLauncher()
	if err != nil {
		return err
	}

	if err := l.Remove(c.Args.Name, c.Cascade); err != nil {
		return err
	}
	fmt.Printf("Removed run config '%s'\n", c.Args.Name)
	return nil
}

type showCommand struct {
	Args struct {
		Name string `positional-arg-name:"name" required:"yes"`
	} `positional-args:"yes"`
}

func (c *showCommand) Execute(args []string) error {
	l, _, err := buildLauncher()
	if err != nil {
		return err
	}

	rc, err := l.Show(c.Args.Name)
	if err != nil {
		return err
	}

	fmt.Printf("Name:            %s\n", rc.Name)
	fmt.Printf("Application:     %s\n", rc.AppPath)
	fmt.Printf("Port:            %d\n", rc.Port)
	fmt.Printf("Host:            %s\n", rc.Host)
	fmt.Printf("Secure:          %t\n", rc.IsSecure())
	fmt.Printf("Password set:    %t\n", rc.IsPasswordProtected())
	fmt.Printf("Separate config: %t\n", rc.SeparateConfig)
	fmt.Printf("Update channel:  %s\n", rc.UpdateChannel)
	if rc.LastVersion != "" {
		fmt.Printf("Version:         %s\n", rc.LastVersion)
	}
	if len(rc.CustomNames) > 0 {
		fmt.Printf("Custom names:    %s\n", rc.CustomNamesValue())
	}
	return nil
}

type rebuildCommand struct {
	Args struct {
		Name string `positional-arg-name:"name" required:"yes"`
	} `positional-args:"yes"`
}

func (c *rebuildCommand) Execute(args []string) error {
	l, _, err := buildLauncher()
	if err != nil {
		return err
	}

	if err := l.Rebuild(c.Args.Name); err != nil {
		return err
	}
	fmt.Printf("Rebuilt run config '%s'\n", c.Args.Name)
	return nil
}

type updateCommand struct {
	Args struct {
		Name string `positional-arg-name:"name" required:"yes"`
	} `positional-args:"yes"`
}

func (c *updateCommand) Execute(args []string) error {
	l, _, err := buildLauncher()
	if err != nil {
		return err
	}

	version, ok, err := l.CheckUpdate(c.Args.Name)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Printf("Run config '%s' is up to date\n", c.Args.Name)
		return nil
	}
	fmt.Printf("Update available for '%s': %s\n", c.Args.Name, version)
	return nil
}

type listCommand struct {
	Args struct {
		Pattern string `positional-arg-name:"pattern"`
	} `positional-args:"yes"`
}

func (c *listCommand) Execute(args []string) error {
	l, _, err := buildLauncher()
	if err != nil {
		return err
	}

	configs, err := l.List(c.Args.Pattern)
	if err != nil {
		return err
	}

	names := make([]string, 0, len(configs))
	for name := range configs {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		rc := configs[name]
		scheme := "http"
		if rc.IsSecure() {
			scheme = "https"
		}
		fmt.Printf("%s\t%s://%s:%d\t%s\n", name, scheme, rc.Host, rc.Port, rc.AppPath)
	}
	return nil
}

type installCertificateCommand struct {
	CertificateFile string `long:"certificate" description:"certificate file to import (default: issue a certificate from the shared authority)"`
	KeyFile         string `long:"key" description:"private key file for the imported certificate"`
	ChainFile       string `long:"chain" description:"chain file (default: resolved from the certificate's issuer URLs)"`

	Args struct {
		Name string `positional-arg-name:"name" required:"yes"`
	} `positional-args:"yes"`
}

func (c *installCertificateCommand) Execute(args []string) error {
	l, _, err := buildLauncher()
	if err != nil {
		return err
	}

	if err := l.InstallCertificate(c.Args.Name, c.CertificateFile, c.KeyFile, c.ChainFile); err != nil {
		return err
	}
	fmt.Printf("Installed certificate for run config '%s'\n", c.Args.Name)
	return nil
}

type runCommand struct {
	Args struct {
		Name string `positional-arg-name:"name" required:"yes"`
	} `positional-args:"yes"`
}

func (c *runCommand) Execute(args []string) error {
	l, _, err := buildLauncher()
	if err != nil {
		return err
	}

	code, err := l.Run(context.Background(), c.Args.Name, launcher.RunOptions{})
	if err != nil {
		return err
	}
	if code != 0 {
		os.Exit(code)
	}
	return nil
}

func main() {
	parser := flags.NewParser(&globals, flags.HelpFlag|flags.PassDoubleDash)

	configCommand, err := parser.AddCommand("config", "Manage run configurations", "", &struct{}{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	mustAddCommand(configCommand, "add", "Add a run configuration", &addCommand{})
	mustAddCommand(configCommand, "edit", "Edit a run configuration", &editCommand{})
	mustAddCommand(configCommand, "rename", "Rename a run configuration", &renameCommand{})
	mustAddCommand(configCommand, "remove", "Remove a run configuration", &removeCommand{})
	mustAddCommand(configCommand, "show", "Show a run configuration", &showCommand{})
	mustAddCommand(configCommand, "rebuild", "Regenerate derived files of a run configuration", &rebuildCommand{})
	mustAddCommand(configCommand, "update", "Check for an application update", &updateCommand{})
	mustAddCommand(configCommand, "list", "List run configurations", &listCommand{})

	if _, err := parser.AddCommand("install-certificate", "Install an external certificate", "", &installCertificateCommand{}); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	if _, err := parser.AddCommand("run", "Run a configured application", "", &runCommand{}); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			fmt.Print(flagsErr.Message)
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, userMessage(err))
		os.Exit(1)
	}
}

func mustAddCommand(parent *flags.Command, name, description string, command interface{}) {
	if _, err := parent.AddCommand(name, description, "", command); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

// userMessage strips domain error structure down to a plain message for
// expected failures; unexpected ones keep their full context
func userMessage(err error) string {
	if errors.IsValidationError(err) || errors.IsNotFoundError(err) || errors.IsConflictError(err) {
		if domainErr, ok := err.(*errors.DomainError); ok {
			return domainErr.Message
		}
	}
	return err.Error()
}
