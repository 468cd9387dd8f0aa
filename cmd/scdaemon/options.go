// Copyright 2026 The gnupg Authors
// SPDX-License-Identifier: Apache-2.0

//go:build unix

package main

import (
	"github.com/spf13/pflag"

	"github.com/0ndorio/gnupg/lib/config"
)

// options are the command-line flags. Those that mirror options-file
// settings override the file only when given.
type options struct {
	server      bool
	multiServer bool
	daemon      bool
	sh          bool
	csh         bool
	noDetach    bool

	verbose            bool
	quiet              bool
	debug              bool
	debugAll           bool
	debugLevel         string
	debugWait          int
	debugAllowCoreDump bool
	debugDisableTicker bool
	logFile            string

	homedir     string
	optionsFile string
	noOptions   bool

	readerPort         string
	ctapiDriver        string
	pcscDriver         string
	disableCCID        bool
	disableKeypad      bool
	allowAdmin         bool
	denyAdmin          bool
	disableApplication []string

	standardSocket bool
	controlSocket  string
	control        string
	forceThreshold int

	gpgconfList bool
	gpgconfTest bool
	version     bool
	help        bool
}

func (o *options) register(flagSet *pflag.FlagSet) {
	flagSet.BoolVar(&o.server, "server", false, "run in server mode (foreground)")
	flagSet.BoolVar(&o.multiServer, "multi-server", false, "run in multi server mode (foreground)")
	flagSet.BoolVar(&o.daemon, "daemon", false, "run in daemon mode (background)")
	flagSet.BoolVarP(&o.verbose, "verbose", "v", false, "verbose")
	flagSet.BoolVarP(&o.quiet, "quiet", "q", false, "be somewhat more quiet")
	flagSet.BoolVarP(&o.sh, "sh", "s", false, "sh-style command output")
	flagSet.BoolVarP(&o.csh, "csh", "c", false, "csh-style command output")
	flagSet.StringVar(&o.optionsFile, "options", "", "read options from `file`")
	flagSet.BoolVar(&o.noOptions, "no-options", false, "do not read an options file")
	flagSet.StringVar(&o.homedir, "homedir", "", "use `dir` as the home directory")
	flagSet.BoolVar(&o.noDetach, "no-detach", false, "do not detach from the console")
	flagSet.StringVar(&o.logFile, "log-file", "", "use a log `file` for the server")

	flagSet.BoolVar(&o.debug, "debug", false, "enable basic debugging")
	flagSet.BoolVar(&o.debugAll, "debug-all", false, "enable all debugging")
	flagSet.StringVar(&o.debugLevel, "debug-level", "", "set the debugging `level` (none, basic, advanced, expert, guru)")
	flagSet.IntVar(&o.debugWait, "debug-wait", 0, "wait `n` seconds for a debugger in pipe mode")
	flagSet.BoolVar(&o.debugAllowCoreDump, "debug-allow-core-dump", false, "change to /tmp in pipe mode so a core can be written")
	flagSet.BoolVar(&o.debugDisableTicker, "debug-disable-ticker", false, "skip reader status updates on the tick")

	flagSet.StringVar(&o.readerPort, "reader-port", "", "connect to reader at port `n`")
	flagSet.StringVar(&o.ctapiDriver, "ctapi-driver", "", "use `name` as ct-API driver")
	flagSet.StringVar(&o.pcscDriver, "pcsc-driver", "", "use `name` as PC/SC driver, or an absolute pcscd socket path")
	flagSet.BoolVar(&o.disableCCID, "disable-ccid", false, "do not use the internal CCID driver")
	flagSet.BoolVar(&o.disableKeypad, "disable-keypad", false, "do not use a reader's keypad")
	flagSet.BoolVar(&o.allowAdmin, "allow-admin", false, "allow the use of admin card commands")
	flagSet.BoolVar(&o.denyAdmin, "deny-admin", false, "deny the use of admin card commands")
	flagSet.StringArrayVar(&o.disableApplication, "disable-application", nil, "disable card application `name`")

	flagSet.BoolVar(&o.standardSocket, "use-standard-socket", false, "listen on <homedir>/S.scdaemon")
	flagSet.StringVar(&o.controlSocket, "control-socket", "", "serve (or, with --control, contact) the control socket at `path`")
	flagSet.StringVar(&o.control, "control", "", "send `action` to a running daemon and exit")
	flagSet.IntVar(&o.forceThreshold, "force-shutdown-threshold", 0, "terminate requests that force an exit with sessions live")

	flagSet.BoolVar(&o.gpgconfList, "gpgconf-list", false, "list options in gpgconf format")
	flagSet.BoolVar(&o.gpgconfTest, "gpgconf-test", false, "check the options and exit")
	flagSet.BoolVar(&o.version, "version", false, "print version information")
	flagSet.BoolVarP(&o.help, "help", "h", false, "show help")

	for _, hidden := range []string{"debug-wait", "debug-allow-core-dump", "debug-disable-ticker", "debug-all", "deny-admin", "gpgconf-list", "gpgconf-test"} {
		flagSet.MarkHidden(hidden)
	}
}

// apply copies every flag given on the command line over cfg.
func (o *options) apply(flagSet *pflag.FlagSet, cfg *config.Config) {
	changed := flagSet.Changed

	if changed("verbose") {
		cfg.Verbose = o.verbose
	}
	if changed("quiet") {
		cfg.Quiet = o.quiet
	}
	if changed("debug") && o.debug {
		cfg.DebugLevel = config.DebugBasic.String()
	}
	if changed("debug-all") && o.debugAll {
		cfg.DebugLevel = config.DebugGuru.String()
	}
	if changed("debug-level") {
		cfg.DebugLevel = o.debugLevel
	}
	if changed("debug-disable-ticker") {
		cfg.DebugDisableTicker = o.debugDisableTicker
	}
	if changed("log-file") {
		cfg.LogFile = o.logFile
	}
	if changed("reader-port") {
		cfg.ReaderPort = o.readerPort
	}
	if changed("ctapi-driver") {
		cfg.CTAPIDriver = o.ctapiDriver
	}
	if changed("pcsc-driver") {
		cfg.PCSCDriver = o.pcscDriver
	}
	if changed("disable-ccid") {
		cfg.DisableCCID = o.disableCCID
	}
	if changed("disable-keypad") {
		cfg.DisableKeypad = o.disableKeypad
	}
	if changed("allow-admin") {
		cfg.AllowAdmin = o.allowAdmin
	}
	if changed("deny-admin") && o.denyAdmin {
		cfg.AllowAdmin = false
	}
	if changed("disable-application") {
		cfg.DisabledApplications = append(cfg.DisabledApplications, o.disableApplication...)
	}
	if changed("use-standard-socket") {
		cfg.StandardSocket = o.standardSocket
	}
	if changed("control-socket") {
		cfg.ControlSocket = o.controlSocket
	}
	if changed("force-shutdown-threshold") {
		cfg.ForceShutdownThreshold = o.forceThreshold
	}
}
