package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"zozbit-notify/internal/types"
)

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

const (
	defaultFlushInterval = 10 * time.Second
	defaultBatchSize     = 500
	defaultBufferSize    = 4096
	publishTimeout       = 5 * time.Second
)

// CloudWatchOptions tunes the publisher. Zero values select the defaults.
type CloudWatchOptions struct {
	Namespace     string
	FlushInterval time.Duration
	BatchSize     int
	BufferSize    int
}

// CloudWatchMetrics records API and delivery metrics and publishes them to
// CloudWatch in batches from a single goroutine. Recording never blocks:
// when the buffer is full the datum is dropped and counted.
//
// Metrics emitted:
//   - APIRequest: Dims {Endpoint, Method, Status}
//   - APILatency: Dims {Endpoint, Method}, milliseconds
//   - DeliveryAttempt: Dims {Channel, Status[, Stage]}
//   - DeliveryLatency: Dims {Channel}, milliseconds
type CloudWatchMetrics struct {
	client    CloudWatchClient
	namespace string
	logger    *slog.Logger

	flushInterval time.Duration
	batchSize     int

	data    chan cwtypes.MetricDatum
	stop    chan struct{}
	done    chan struct{}
	once    sync.Once
	dropped atomic.Int64
}

// NewCloudWatchMetrics creates the publisher and starts its flush loop.
// Close must be called to flush buffered data.
func NewCloudWatchMetrics(client CloudWatchClient, opts CloudWatchOptions, logger *slog.Logger) *CloudWatchMetrics {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Namespace == "" {
		opts.Namespace = types.MetricNamespace
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = defaultFlushInterval
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = defaultBufferSize
	}

	m := &CloudWatchMetrics{
		client:        client,
		namespace:     opts.Namespace,
		logger:        logger,
		flushInterval: opts.FlushInterval,
		batchSize:     opts.BatchSize,
		data:          make(chan cwtypes.MetricDatum, opts.BufferSize),
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
	go m.loop()
	return m
}

// RecordRequest implements core.MetricsCollector.
func (m *CloudWatchMetrics) RecordRequest(method, endpoint, status string, duration time.Duration) {
	now := time.Now()
	m.enqueue(cwtypes.MetricDatum{
		MetricName: aws.String(types.MetricAPIRequest),
		Timestamp:  aws.Time(now),
		Value:      aws.Float64(1),
		Unit:       cwtypes.StandardUnitCount,
		Dimensions: dimensions(
			types.DimEndpoint, endpoint,
			types.DimMethod, method,
			types.DimStatus, status,
		),
	})
	m.enqueue(cwtypes.MetricDatum{
		MetricName: aws.String(types.MetricAPILatency),
		Timestamp:  aws.Time(now),
		Value:      aws.Float64(float64(duration.Milliseconds())),
		Unit:       cwtypes.StandardUnitMilliseconds,
		Dimensions: dimensions(
			types.DimEndpoint, endpoint,
			types.DimMethod, method,
		),
	})
}

// RecordDelivery implements delivery.Recorder. Rejected tasks carry no
// latency datum.
func (m *CloudWatchMetrics) RecordDelivery(status, stage string, duration time.Duration) {
	now := time.Now()
	dims := dimensions(
		types.DimChannel, types.ChannelEmail,
		types.DimStatus, status,
	)
	if stage != "" {
		dims = append(dims, dimensions(types.DimStage, stage)...)
	}

	m.enqueue(cwtypes.MetricDatum{
		MetricName: aws.String(types.MetricDeliveryAttempt),
		Timestamp:  aws.Time(now),
		Value:      aws.Float64(1),
		Unit:       cwtypes.StandardUnitCount,
		Dimensions: dims,
	})
	if status == types.DeliveryRejected {
		return
	}
	m.enqueue(cwtypes.MetricDatum{
		MetricName: aws.String(types.MetricDeliveryLatency),
		Timestamp:  aws.Time(now),
		Value:      aws.Float64(float64(duration.Milliseconds())),
		Unit:       cwtypes.StandardUnitMilliseconds,
		Dimensions: dimensions(types.DimChannel, types.ChannelEmail),
	})
}

// Dropped reports how many datums were discarded because the buffer was full.
func (m *CloudWatchMetrics) Dropped() int64 {
	return m.dropped.Load()
}

// Close stops the flush loop after publishing buffered datums, or when ctx
// is done.
func (m *CloudWatchMetrics) Close(ctx context.Context) error {
	m.once.Do(func() { close(m.stop) })
	select {
	case <-m.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *CloudWatchMetrics) enqueue(d cwtypes.MetricDatum) {
	select {
	case m.data <- d:
	default:
		m.dropped.Add(1)
	}
}

func (m *CloudWatchMetrics) loop() {
	defer close(m.done)

	ticker := time.NewTicker(m.flushInterval)
	defer ticker.Stop()

	batch := make([]cwtypes.MetricDatum, 0, m.batchSize)
	for {
		select {
		case d := <-m.data:
			batch = append(batch, d)
			if len(batch) >= m.batchSize {
				batch = m.publish(batch)
			}
		case <-ticker.C:
			batch = m.publish(batch)
		case <-m.stop:
			for {
				select {
				case d := <-m.data:
					batch = append(batch, d)
					if len(batch) >= m.batchSize {
						batch = m.publish(batch)
					}
				default:
					m.publish(batch)
					return
				}
			}
		}
	}
}

// publish sends batch and returns it emptied for reuse.
func (m *CloudWatchMetrics) publish(batch []cwtypes.MetricDatum) []cwtypes.MetricDatum {
	if len(batch) == 0 {
		return batch
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	input := &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(m.namespace),
		MetricData: append([]cwtypes.MetricDatum(nil), batch...),
	}
	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.Error("failed to publish metrics",
			slog.String("error", err.Error()),
			slog.Int("datums", len(batch)),
		)
	}
	return batch[:0]
}

// dimensions builds CloudWatch dimensions from name/value pairs.
func dimensions(pairs ...string) []cwtypes.Dimension {
	dims := make([]cwtypes.Dimension, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		dims = append(dims, cwtypes.Dimension{
			Name:  aws.String(pairs[i]),
			Value: aws.String(pairs[i+1]),
		})
	}
	return dims
}
