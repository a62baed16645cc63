package pipeline

import (
	"context"
	"sync"
	"time"

	"sonopix/logging"
	"sonopix/pkg/models"
	"sonopix/pkg/progress"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "sonopix/pkg/pipeline"

var (
	pipelineTelemetryOnce sync.Once
	pipelineMeter         metric.Meter

	pipelineOperationCounter metric.Int64Counter
	pipelineOperationLatency metric.Float64Histogram
	pipelineStageLatency     metric.Float64Histogram
	pipelineBytesCounter     metric.Int64Counter
)

func initPipelineTelemetry() {
	pipelineTelemetryOnce.Do(func() {
		logger := logging.GetLogger()
		pipelineMeter = otel.GetMeterProvider().Meter(instrumentationName)

		var err error
		if pipelineOperationCounter, err = pipelineMeter.Int64Counter(
			"sonopix_pipeline_operations_total",
			metric.WithDescription("Completed pipeline operations by direction and outcome"),
		); err != nil {
			logger.Warn("Failed to register pipeline operation counter: %v", err)
		}

		if pipelineOperationLatency, err = pipelineMeter.Float64Histogram(
			"sonopix_pipeline_duration_ms",
			metric.WithDescription("Wall-clock duration of a pipeline operation"),
			metric.WithUnit("ms"),
		); err != nil {
			logger.Warn("Failed to register pipeline duration histogram: %v", err)
		}

		if pipelineStageLatency, err = pipelineMeter.Float64Histogram(
			"sonopix_pipeline_stage_duration_ms",
			metric.WithDescription("Duration of individual pipeline stages"),
			metric.WithUnit("ms"),
		); err != nil {
			logger.Warn("Failed to register pipeline stage histogram: %v", err)
		}

		if pipelineBytesCounter, err = pipelineMeter.Int64Counter(
			"sonopix_pipeline_bytes_total",
			metric.WithDescription("Bytes consumed and produced by pipeline operations"),
			metric.WithUnit("By"),
		); err != nil {
			logger.Warn("Failed to register pipeline bytes counter: %v", err)
		}
	})
}

func tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

func recordOperation(ctx context.Context, direction models.Direction, duration time.Duration, in, out int, err error) {
	initPipelineTelemetry()
	outcome := models.OutcomeForError(err)
	attrs := []attribute.KeyValue{
		attribute.String("direction", string(direction)),
		attribute.String("outcome", string(outcome)),
	}
	if code := models.CodeOf(err); code != "" {
		attrs = append(attrs, attribute.String("error_code", code))
	}

	if pipelineOperationCounter != nil {
		pipelineOperationCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
	if pipelineOperationLatency != nil {
		pipelineOperationLatency.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
	}
	if pipelineBytesCounter != nil && err == nil {
		pipelineBytesCounter.Add(ctx, int64(in), metric.WithAttributes(
			attribute.String("direction", string(direction)), attribute.String("kind", "input")))
		pipelineBytesCounter.Add(ctx, int64(out), metric.WithAttributes(
			attribute.String("direction", string(direction)), attribute.String("kind", "output")))
	}
}

func recordStage(ctx context.Context, direction models.Direction, stage progress.Stage, duration time.Duration, err error) {
	initPipelineTelemetry()
	if pipelineStageLatency == nil {
		return
	}
	pipelineStageLatency.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(
		attribute.String("direction", string(direction)),
		attribute.String("stage", string(stage)),
		attribute.String("outcome", string(models.OutcomeForError(err))),
	))
}
