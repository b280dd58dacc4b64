package llm

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/wolfman30/botdesk/pkg/logging"
)

var tracer = otel.Tracer("botdesk.internal.llm")

var llmLatency = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "botdesk",
		Subsystem: "llm",
		Name:      "latency_seconds",
		Help:      "Latency of LLM completions",
		Buckets:   []float64{0.25, 0.5, 1, 2, 3, 4, 5, 6, 8, 10, 15, 20, 30},
	},
	[]string{"provider", "status"},
)

var llmTokensTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "botdesk",
		Subsystem: "llm",
		Name:      "tokens_total",
		Help:      "Tokens used by the LLM",
	},
	[]string{"provider", "type"},
)

func init() {
	prometheus.MustRegister(llmLatency, llmTokensTotal)
}

// RegisterMetrics registers LLM metrics with a custom registry.
func RegisterMetrics(reg prometheus.Registerer) {
	if reg == nil || reg == prometheus.DefaultRegisterer {
		return
	}
	reg.MustRegister(llmLatency, llmTokensTotal)
}

// Instrumented decorates a Client with a span, latency and token metrics.
type Instrumented struct {
	next     Client
	provider string
	logger   *logging.Logger
}

func NewInstrumented(next Client, provider string, logger *logging.Logger) *Instrumented {
	if next == nil {
		panic("llm: client required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Instrumented{next: next, provider: provider, logger: logger}
}

func (c *Instrumented) Complete(ctx context.Context, req Request) (Response, error) {
	ctx, span := tracer.Start(ctx, "llm.complete")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.provider", c.provider),
		attribute.Int("llm.messages", len(req.Messages)),
	)

	start := time.Now()
	resp, err := c.next.Complete(ctx, req)
	latency := time.Since(start)

	status := "ok"
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, "completion failed")
	}
	llmLatency.WithLabelValues(c.provider, status).Observe(latency.Seconds())
	if err != nil {
		return Response{}, err
	}

	if resp.Usage.InputTokens > 0 {
		llmTokensTotal.WithLabelValues(c.provider, "input").Add(float64(resp.Usage.InputTokens))
	}
	if resp.Usage.OutputTokens > 0 {
		llmTokensTotal.WithLabelValues(c.provider, "output").Add(float64(resp.Usage.OutputTokens))
	}
	span.SetAttributes(attribute.Int("llm.output_tokens", int(resp.Usage.OutputTokens)))
	c.logger.Debug("llm completion finished",
		"provider", c.provider,
		"duration_ms", latency.Milliseconds(),
		"input_tokens", resp.Usage.InputTokens,
		"output_tokens", resp.Usage.OutputTokens,
		"stop_reason", resp.StopReason,
	)
	return resp, nil
}
