package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/diwise/meduza/pkg/meduza"
	"github.com/diwise/meduza/pkg/meduza/mdztest"
	"github.com/diwise/meduza/pkg/meduza/query"
	"github.com/diwise/meduza/pkg/meduza/schema"
	"github.com/matryer/is"
)

func TestPing(t *testing.T) {
	is, a, _, out := testSetup(t)

	is.NoErr(a.run(context.Background(), []string{"ping"}))
	is.Equal(out.String(), "PONG\n")
}

func TestCount(t *testing.T) {
	is, a, srv, out := testSetup(t)

	_, err := a.session.Execute(context.Background(), query.NewPutQuery("app.Things",
		query.NewEntity("", map[string]any{"n": 1}),
		query.NewEntity("", map[string]any{"n": 2}),
	))
	is.NoErr(err)
	is.Equal(srv.Len("app.Things"), 2)

	is.NoErr(a.run(context.Background(), []string{"count", "app.Things"}))
	is.Equal(out.String(), "2\n")
}

func TestDeploy(t *testing.T) {
	is, a, srv, out := testSetup(t)

	ctl := httptest.NewServer(srv.ControlHandler())
	defer ctl.Close()
	a.deployer = schema.NewDeployer(ctl.URL)

	path := filepath.Join(t.TempDir(), "schema.yaml")
	is.NoErr(os.WriteFile(path, []byte("schema: app\ntables: {}\n"), 0o644))

	is.NoErr(a.run(context.Background(), []string{"deploy", "app", path}))
	is.Equal(out.String(), "OK\n")

	_, ok := srv.Schema("app")
	is.True(ok) // schema should have been deployed
}

func TestUnknownCommand(t *testing.T) {
	is, a, _, _ := testSetup(t)

	is.True(a.run(context.Background(), []string{"frobnicate"}) != nil) // unknown commands should fail
}

func TestFlagsOverrideConfiguration(t *testing.T) {
	is := is.New(t)

	t.Setenv("MEDUZA_MASTER_ADDR", "env:9000")

	flags, args, err := parseExternalConfig([]string{"-master", "flag:9000", "ping"}, FlagMap{primaryName: "id"})
	is.NoErr(err)
	is.Equal(args, []string{"ping"})
	is.Equal(flags[primaryName], "id") // defaults should be kept

	cfg, err := loadConfiguration(context.Background(), flags)
	is.NoErr(err)
	is.Equal(cfg.Master.Address, "flag:9000") // flags should win over the environment
	is.Equal(cfg.Control, "http://localhost:9966")
}

func testSetup(t *testing.T) (*is.I, *app, *mdztest.Server, *bytes.Buffer) {
	is := is.New(t)
	srv := mdztest.NewServer()
	out := &bytes.Buffer{}

	return is, &app{
		session: meduza.NewSession(srv, nil),
		primary: "id",
		out:     out,
	}, srv, out
}
