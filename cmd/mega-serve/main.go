// Command mega-serve runs the Mega monorepo server: the HTTP and SSH
// smart-protocol transports of spec §6.1/§6.2 over one shared
// MySQL-backed object/ref/domain store.
//
// Grounded on cmd/zeta-serve's kong-dispatched httpd/sshd subcommand
// split (pkg/kong is the teacher's own vendored fork of
// github.com/alecthomas/kong; this binary imports the real upstream
// package instead of carrying a vendored copy forward).
package main

import (
	"os"
	"time"

	"github.com/alecthomas/kong"
	"github.com/sirupsen/logrus"
)

const version = "dev"

type App struct {
	Globals
	HTTPD HTTPD `cmd:"httpd" help:"start mega-serve httpd server"`
	SSHD  SSHD  `cmd:"sshd" help:"start mega-serve sshd server"`
}

func main() {
	var app App
	ctx := kong.Parse(&app,
		kong.Name("mega-serve"),
		kong.Description("Mega - a Git-compatible monorepo storage and transport platform"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{Compact: true}),
		kong.Vars{"version": version},
	)
	start := time.Now()
	if app.Verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}
	err := ctx.Run(&app.Globals)
	if app.Verbose {
		logrus.Debugf("time spent: %v", time.Since(start))
	}
	if err != nil {
		os.Exit(1)
	}
}
