package schema

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	mdzerrors "github.com/diwise/meduza/pkg/meduza/errors"
	"github.com/diwise/meduza/pkg/meduza/mdztest"
	"github.com/diwise/meduza/pkg/meduza/model"
	"github.com/matryer/is"
)

type Author struct {
	model.Base `mdz:"table=Authors,schema=blog"`
	Name       string   `mdz:"name=name,required,maxlen=40"`
	Genre      string   `mdz:"name=genre,choices=fiction|essay"`
	Tags       []string `mdz:"name=tags"`
}

type Book struct {
	model.Base `mdz:"table=Books"`
	ISBN       string `mdz:"name=isbn,primary"`
	Title      string `mdz:"name=title"`
}

type Stranger struct {
	model.Base `mdz:"table=Strangers,schema=other"`
}

func TestDocumentDescribesColumns(t *testing.T) {
	is := is.New(t)

	doc, err := ForModels("blog", Author{})
	is.NoErr(err)

	authors, ok := doc.Tables["Authors"]
	is.True(ok) // should contain the Authors table

	is.Equal(authors.Primary, Primary{Type: PrimaryRandom, Column: "id"})
	is.Equal(authors.Columns["name"].Type, "Text")
	is.Equal(authors.Columns["name"].Options["required"], true)
	is.Equal(authors.Columns["name"].Options["max_len"], 40)
	is.Equal(authors.Columns["genre"].Options["choices"], []string{"essay", "fiction"})
	is.Equal(authors.Columns["tags"].Type, "List")
	is.Equal(authors.Columns["tags"].Options["subtype"], "Text")

	_, hasPrimary := authors.Columns["id"]
	is.True(!hasPrimary) // the primary key should not be listed as a column
}

func TestExplicitPrimaryIsSimple(t *testing.T) {
	is := is.New(t)

	doc, err := ForModels("blog", &Book{})
	is.NoErr(err)

	is.Equal(doc.Tables["Books"].Primary, Primary{Type: PrimarySimple, Column: "isbn"})
}

func TestModelFromOtherSchemaIsRejected(t *testing.T) {
	is := is.New(t)

	_, err := ForModels("blog", Author{}, Stranger{})
	is.True(errors.Is(err, mdzerrors.ErrModel)) // should refuse a model of another schema
}

func TestDocumentRoundTripsAsYAML(t *testing.T) {
	is := is.New(t)

	doc, err := ForModels("blog", Author{}, Book{})
	is.NoErr(err)

	b, err := doc.YAML()
	is.NoErr(err)

	parsed, err := Parse(b)
	is.NoErr(err)
	is.Equal(parsed.Name, "blog")
	is.Equal(len(parsed.Tables), 2)
	is.Equal(parsed.Tables["Books"].Primary.Column, "isbn")
}

func TestDeployModels(t *testing.T) {
	is := is.New(t)

	srv := mdztest.NewServer()
	ctl := httptest.NewServer(srv.ControlHandler())
	defer ctl.Close()

	err := NewDeployer(ctl.URL).DeployModels(context.Background(), "blog", Author{}, Book{})
	is.NoErr(err)

	b, ok := srv.Schema("blog")
	is.True(ok) // schema should have been received by the server

	parsed, err := Parse(b)
	is.NoErr(err)
	is.Equal(len(parsed.Tables), 2)
}

func TestDeployFailsUnlessOK(t *testing.T) {
	is := is.New(t)

	ctl := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("NOPE"))
	}))
	defer ctl.Close()

	err := NewDeployer(ctl.URL).Deploy(context.Background(), "blog", []byte("schema: blog\n"))
	is.True(errors.Is(err, mdzerrors.ErrRequest)) // anything but OK should be a failed deploy
}

func TestDeploySendsYAML(t *testing.T) {
	is := is.New(t)

	var contentType, name string
	ctl := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contentType = r.Header.Get("Content-Type")
		name = r.URL.Query().Get("name")
		w.Write([]byte("OK"))
	}))
	defer ctl.Close()

	err := NewDeployer(ctl.URL+"/").Deploy(context.Background(), "blog", []byte("schema: blog\n"))
	is.NoErr(err)
	is.Equal(contentType, "text/yaml")
	is.Equal(name, "blog")
}
