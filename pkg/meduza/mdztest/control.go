package mdztest

import (
	"io"
	"net/http"

	"github.com/diwise/meduza/internal/pkg/infrastructure/router"
	yaml "gopkg.in/yaml.v2"
)

type deployedSchema struct {
	Name   string `yaml:"schema"`
	Tables map[string]struct {
		Primary struct {
			Column string `yaml:"column"`
		} `yaml:"primary"`
	} `yaml:"tables"`
}

// ControlHandler serves the deploy endpoint of the control api. Deployed tables
// use the primary column named in the schema as their entity id.
func (s *Server) ControlHandler() http.Handler {
	r := router.New("mdztest-control")

	r.Post("/deploy", func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		doc := deployedSchema{}
		if err = yaml.Unmarshal(body, &doc); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		name := r.URL.Query().Get("name")
		if name == "" {
			name = doc.Name
		}

		if name == "" {
			http.Error(w, "missing schema name", http.StatusBadRequest)
			return
		}

		s.mu.Lock()
		s.schemas[name] = body
		for table, t := range doc.Tables {
			if t.Primary.Column != "" {
				s.primary[name+"."+table] = t.Primary.Column
			}
		}
		s.mu.Unlock()

		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	return r
}
