// Copyright 2026 The gnupg Authors
// SPDX-License-Identifier: Apache-2.0

//go:build unix

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"
	"golang.org/x/sys/unix"
	"gopkg.in/yaml.v3"

	"github.com/0ndorio/gnupg/lib/config"
	"github.com/0ndorio/gnupg/lib/control"
	"github.com/0ndorio/gnupg/lib/process"
	"github.com/0ndorio/gnupg/lib/version"
)

func main() {
	p := &program{
		stdin:  os.Stdin,
		stdout: os.Stdout,
		stderr: os.Stderr,
		getenv: os.Getenv,
		execve: unix.Exec,
	}
	if err := p.run(os.Args[1:]); err != nil {
		process.Fatal(err)
	}
}

// program carries the process environment so tests can substitute
// every outside collaborator.
type program struct {
	stdin  io.ReadCloser
	stdout io.WriteCloser
	stderr io.Writer
	getenv func(string) string

	// launcher starts the background child. Nil selects re-execution
	// of this binary.
	launcher Launcher

	// execve replaces the process with the command given after the
	// flags in daemon mode.
	execve func(path string, argv []string, env []string) error

	// inheritedListener returns the listening socket a background
	// child received from its parent. Nil selects descriptor 3.
	inheritedListener func() *os.File
}

func (p *program) run(args []string) error {
	var opts options
	flagSet := pflag.NewFlagSet(version.Name, pflag.ContinueOnError)
	flagSet.SetOutput(p.stderr)
	opts.register(flagSet)

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			printHelp(p.stderr, flagSet)
			return nil
		}
		return process.WithCode(process.ExitFatal, err)
	}
	if opts.help {
		printHelp(p.stderr, flagSet)
		return nil
	}
	if opts.version {
		fmt.Fprintln(p.stdout, version.Full())
		return nil
	}
	if opts.control != "" {
		return p.runControlClient(opts)
	}

	home := config.HomeDir(opts.homedir)
	cfg, optionsPath, err := p.loadConfig(opts, home)
	if err != nil {
		return process.WithCode(process.ExitFatal, err)
	}
	opts.apply(flagSet, cfg)

	debugLevel, err := config.ParseDebugLevel(cfg.DebugLevel)
	if err != nil {
		return process.WithCode(process.ExitFatal, err)
	}
	if err := cfg.Validate(); err != nil {
		return process.WithCode(process.ExitFatal, err)
	}
	if debugLevel != config.DebugNone {
		cfg.Verbose = true
		cfg.Quiet = false
	}

	if opts.gpgconfTest {
		return nil
	}
	if opts.gpgconfList {
		return config.WriteGPGConfList(p.stdout, optionsPath)
	}

	logger, closeLog, err := newLogger(p.stderr, cfg.LogFile, logLevel(cfg, debugLevel), debugLevel >= config.DebugExpert)
	if err != nil {
		return process.WithCode(process.ExitFatal, err)
	}
	defer closeLog()

	d := &daemon{
		program: p,
		opts:    opts,
		cfg:     cfg,
		home:    home,
		logger:  logger,
	}

	if p.getenv(childEnv) == "1" {
		return d.runChild()
	}
	switch {
	case opts.server || opts.multiServer:
		return d.runPipe(context.Background())
	case !opts.daemon:
		logger.Info("please use the option `--daemon' to run the program in the background")
		return nil
	default:
		return d.runDaemon(flagSet.Args())
	}
}

// loadConfig reads the options file selected by the flags. It returns
// the path gpgconf should report.
func (p *program) loadConfig(opts options, home string) (*config.Config, string, error) {
	switch {
	case opts.noOptions:
		return config.Default(), filepath.Join(home, config.FileName), nil
	case opts.optionsFile != "":
		cfg, err := config.LoadFile(opts.optionsFile)
		if err != nil {
			return nil, "", fmt.Errorf("option file %q: %w", opts.optionsFile, err)
		}
		return cfg, opts.optionsFile, nil
	default:
		cfg, _, err := config.Load(home)
		if err != nil {
			return nil, "", err
		}
		return cfg, filepath.Join(home, config.FileName), nil
	}
}

// runControlClient sends one action to a running daemon's control
// socket. Status is printed as YAML.
func (p *program) runControlClient(opts options) error {
	if opts.controlSocket == "" {
		return process.WithCode(process.ExitFatal, errors.New("--control requires --control-socket"))
	}
	client := control.NewClient(opts.controlSocket)

	if opts.control != "status" {
		return client.Call(context.Background(), opts.control, nil)
	}

	var status control.Status
	if err := client.Call(context.Background(), "status", &status); err != nil {
		return err
	}
	data, err := yaml.Marshal(status)
	if err != nil {
		return fmt.Errorf("formatting status: %w", err)
	}
	_, err = p.stdout.Write(data)
	return err
}

func printHelp(w io.Writer, flagSet *pflag.FlagSet) {
	fmt.Fprintf(w, `Usage: scdaemon [options] [command [args]]
Smartcard daemon for GnuPG

Options:
`)
	flagSet.SetOutput(w)
	flagSet.PrintDefaults()
}

// logLevel maps the verbosity options onto a handler level.
func logLevel(cfg *config.Config, debugLevel config.DebugLevel) slog.Level {
	switch {
	case debugLevel != config.DebugNone:
		return slog.LevelDebug
	case cfg.Quiet:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}
