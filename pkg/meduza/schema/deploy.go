package schema

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/diwise/meduza/pkg/meduza/errors"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/tracing"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("meduza-schema")

const TraceAttributeSchema string = "meduza-schema"

type Deployer interface {
	Deploy(ctx context.Context, name string, document []byte) error
	DeployModels(ctx context.Context, name string, models ...any) error
}

type deployer struct {
	controlURL string
	httpClient http.Client
}

// NewDeployer returns a deployer posting schemas to the control api at controlURL, e.g. http://localhost:9966
func NewDeployer(controlURL string) Deployer {
	return &deployer{
		controlURL: strings.TrimSuffix(controlURL, "/"),
		httpClient: http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// Deploy installs a schema document. The server must answer 200 with the body OK.
func (d *deployer) Deploy(ctx context.Context, name string, document []byte) (err error) {
	ctx, span := tracer.Start(ctx, "deploy-schema",
		trace.WithAttributes(attribute.String(TraceAttributeSchema, name)),
	)
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	endpoint := fmt.Sprintf("%s/deploy?name=%s", d.controlURL, url.QueryEscape(name))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(document))
	if err != nil {
		err = fmt.Errorf("failed to create request: %s (%w)", err.Error(), errors.ErrRequest)
		return err
	}
	req.Header.Set("Content-Type", "text/yaml")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		err = fmt.Errorf("failed to send request: %s (%w)", err.Error(), errors.ErrRequest)
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		err = fmt.Errorf("failed to read response body: %s (%w)", err.Error(), errors.ErrProtocol)
		return err
	}

	if resp.StatusCode != http.StatusOK || string(body) != "OK" {
		err = errors.NewRequestError(fmt.Sprintf("failed to install schema %s: status code %d (body: %s)", name, resp.StatusCode, string(body)))
		return err
	}

	logging.GetFromContext(ctx).Info("schema deployed", "schema", name)

	return nil
}

// DeployModels builds the schema document for models and deploys it
func (d *deployer) DeployModels(ctx context.Context, name string, models ...any) error {
	doc, err := ForModels(name, models...)
	if err != nil {
		return err
	}

	b, err := doc.YAML()
	if err != nil {
		return err
	}

	return d.Deploy(ctx, name, b)
}
