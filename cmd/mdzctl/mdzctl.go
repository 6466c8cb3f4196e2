package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/diwise/meduza/pkg/meduza"
	"github.com/diwise/meduza/pkg/meduza/protocol"
	"github.com/diwise/meduza/pkg/meduza/query"
	"github.com/diwise/meduza/pkg/meduza/schema"
	"github.com/diwise/service-chassis/pkg/infrastructure/buildinfo"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y"
)

const (
	appName string = "mdzctl"
)

func main() {
	appVersion := buildinfo.SourceVersion()

	ctx, log, cleanup := o11y.Init(context.Background(), appName, appVersion, "json")
	defer cleanup()

	flags, args, err := parseExternalConfig(os.Args[1:], FlagMap{primaryName: "id"})
	if err != nil {
		log.Error("failed to parse flags", "err", err.Error())
		os.Exit(1)
	}

	cfg, err := loadConfiguration(ctx, flags)
	if err != nil {
		log.Error("failed to load configuration", "err", err.Error())
		os.Exit(1)
	}

	s := meduza.Connect(cfg)
	defer s.Close()

	a := &app{
		session:  s,
		deployer: schema.NewDeployer(cfg.Control),
		primary:  flags[primaryName],
		out:      os.Stdout,
	}

	if err = a.run(ctx, args); err != nil {
		log.Error("command failed", "err", err.Error())
		os.Exit(1)
	}
}

type app struct {
	session  meduza.Session
	deployer schema.Deployer
	primary  string
	out      io.Writer
}

func (a *app) run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: %s [flags] ping | count <schema.table> | deploy <schema> <file>", appName)
	}

	switch args[0] {
	case "ping":
		if err := a.session.Ping(ctx); err != nil {
			return err
		}
		fmt.Fprintln(a.out, "PONG")

	case "count":
		if len(args) != 2 {
			return fmt.Errorf("usage: %s count <schema.table>", appName)
		}

		resp, err := a.session.Execute(ctx, query.NewGetQuery(args[1], a.primary).All(a.primary).Limit(1))
		if err != nil {
			return err
		}
		fmt.Fprintln(a.out, resp.(*protocol.GetResponse).Total)

	case "deploy":
		if len(args) != 3 {
			return fmt.Errorf("usage: %s deploy <schema> <file>", appName)
		}

		document, err := os.ReadFile(args[2])
		if err != nil {
			return err
		}

		if err = a.deployer.Deploy(ctx, args[1], document); err != nil {
			return err
		}
		fmt.Fprintln(a.out, "OK")

	default:
		return fmt.Errorf("unknown command %q", args[0])
	}

	return nil
}
