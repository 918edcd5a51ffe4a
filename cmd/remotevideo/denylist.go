package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/ideamans/go-l10n"
	"github.com/urfave/cli/v2"

	"github.com/user/remotevideo/pkg/adapters/sysplatform"
	"github.com/user/remotevideo/pkg/denylist"
	"github.com/user/remotevideo/pkg/taskqueue"
)

func denylistCommand() *cli.Command {
	return &cli.Command{
		Name:  "denylist",
		Usage: l10n.T("Inspect module denylists"),
		Subcommands: []*cli.Command{
			{
				Name:  "check",
				Usage: l10n.T("Parse a denylist and look for listed modules"),
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "config",
						Required: true,
						Usage:    l10n.T("Denylist, e.g. \"libfoo.so: 1.2.3.4; libbar.so: 10.0.0.1\""),
					},
				},
				Action: runDenylistCheck,
			},
		},
	}
}

func runDenylistCheck(c *cli.Context) error {
	settings, err := loadSettings(c)
	if err != nil {
		return err
	}
	log := newLogger(settings.Level(), true)
	list := c.String("config")
	w := c.App.Writer

	entries := denylist.Parse(list, log)
	if len(entries) == 0 {
		return cli.Exit(l10n.T("No valid denylist entries"), 2)
	}
	for _, e := range entries {
		versions := make([]string, len(e.Versions))
		for i, v := range e.Versions {
			versions[i] = v.String()
		}
		fmt.Fprintf(w, "%s: %s\n", e.Module, strings.Join(versions, ", "))
	}

	platform := sysplatform.New(sysplatform.Options{Logger: log})
	cache := denylist.NewCache("check", platform, log)
	control := taskqueue.New("control")
	defer control.Close()

	match, err := taskqueue.Call(c.Context, control, func(context.Context) (string, error) {
		return cache.Find(list), nil
	})
	if err != nil {
		return err
	}
	if match != "" {
		return cli.Exit(l10n.F("Denylisted module present: %s", match), 3)
	}
	fmt.Fprintln(w, l10n.T("No denylisted module is present"))
	return nil
}
