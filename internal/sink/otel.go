package sink

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"github.com/logrelay/logrelay-go/pkg/logrelay/event"
)

// OTelConfig configures the OTLP log exporter.
type OTelConfig struct {
	Endpoint    string
	ServiceName string
	Insecure    bool
}

// OTel emits events as structured OpenTelemetry log records.
type OTel struct {
	logger   otellog.Logger
	shutdown func(context.Context) error
}

// NewOTLP exports log records over OTLP/gRPC through a batch processor.
func NewOTLP(ctx context.Context, cfg OTelConfig) (*OTel, error) {
	var opts []otlploggrpc.Option
	if cfg.Endpoint != "" {
		opts = append(opts, otlploggrpc.WithEndpoint(cfg.Endpoint))
	}
	if cfg.Insecure {
		opts = append(opts, otlploggrpc.WithInsecure())
	}
	exp, err := otlploggrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("log exporter: %w", err)
	}
	provider := sdklog.NewLoggerProvider(sdklog.WithProcessor(sdklog.NewBatchProcessor(exp)))

	name := cfg.ServiceName
	if name == "" {
		name = "logrelay"
	}
	return &OTel{logger: provider.Logger(name), shutdown: provider.Shutdown}, nil
}

// NewOTel emits through an existing logger.
func NewOTel(logger otellog.Logger) *OTel {
	return &OTel{logger: logger}
}

// Deliver emits one record for ev.
func (o *OTel) Deliver(ctx context.Context, ev event.Event) error {
	var r otellog.Record
	r.SetTimestamp(ev.Time)
	r.SetBody(otellog.StringValue(ev.Display))
	if ev.Kind == event.SecurityAlert {
		r.SetSeverity(otellog.SeverityWarn)
		r.SetSeverityText("WARN")
	} else {
		r.SetSeverity(otellog.SeverityInfo)
		r.SetSeverityText("INFO")
	}
	r.AddAttributes(recordAttributes(ev)...)
	o.logger.Emit(ctx, r)
	return nil
}

// Close flushes and shuts down the provider, if OTel owns one.
func (o *OTel) Close(ctx context.Context) error {
	if o.shutdown == nil {
		return nil
	}
	return o.shutdown(ctx)
}

func recordAttributes(ev event.Event) []otellog.KeyValue {
	attrs := []otellog.KeyValue{otellog.String("kind", string(ev.Kind))}
	add := func(key, value string) {
		if value != "" {
			attrs = append(attrs, otellog.String(key, value))
		}
	}
	add("sender", ev.Sender)
	add("message", ev.Message)
	add("source", ev.Source)
	add("pattern", ev.Pattern)
	add("channel", ev.Metadata.Channel)
	add("mention_class", ev.Metadata.MentionClass)

	if inc := ev.Metadata.Incident; inc != nil {
		add("incident.id", inc.ID)
		add("incident.severity", inc.Severity)
		add("incident.description", inc.Description)
		attrs = append(attrs, otellog.Bool("incident.auto_banned", inc.AutoBanned))
	}
	return attrs
}
