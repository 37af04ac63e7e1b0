package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/paulmach/orb/geojson"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/recon-map/internal/config"
	"github.com/couchcryptid/recon-map/internal/domain"
)

const (
	messageTypeView    = "view"
	messageTypeFeature = "feature"
)

// messageWriter is the subset of kafkago.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// ViewPublisher publishes every applied view to a Kafka topic: one summary
// message followed by one message per feature. It implements
// pipeline.Renderer; Render only queues, and Run does the writing, so a slow
// broker never holds up the map. When views arrive faster than they can be
// written, only the newest queued view is kept.
type ViewPublisher struct {
	writer messageWriter
	logger *slog.Logger

	mu      sync.Mutex
	pending *domain.View
	wake    chan struct{}
}

// NewViewPublisher creates a Kafka producer for the configured view topic.
func NewViewPublisher(cfg *config.Config, logger *slog.Logger) *ViewPublisher {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaViewTopic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return newViewPublisher(w, logger)
}

func newViewPublisher(w messageWriter, logger *slog.Logger) *ViewPublisher {
	return &ViewPublisher{writer: w, logger: logger, wake: make(chan struct{}, 1)}
}

// Render queues view for publishing, replacing any view not yet written.
func (p *ViewPublisher) Render(_ context.Context, view domain.View) error {
	p.mu.Lock()
	p.pending = &view
	p.mu.Unlock()

	select {
	case p.wake <- struct{}{}:
	default:
	}
	return nil
}

// Run publishes queued views until ctx ends.
func (p *ViewPublisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-p.wake:
			p.mu.Lock()
			view := p.pending
			p.pending = nil
			p.mu.Unlock()
			if view == nil {
				continue
			}
			if err := p.Publish(ctx, *view); err != nil {
				p.logger.Error("publish view failed", "dataset_id", view.DatasetID, "generation", view.Generation, "error", err)
			}
		}
	}
}

// Publish writes one view synchronously.
func (p *ViewPublisher) Publish(ctx context.Context, view domain.View) error {
	msgs, err := serializeView(view, time.Now().UTC())
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("write view %d: %w", view.Generation, err)
	}
	p.logger.Debug("view published", "dataset_id", view.DatasetID, "generation", view.Generation, "features", len(msgs)-1)
	return nil
}

func (p *ViewPublisher) Close() error {
	return p.writer.Close()
}

type viewSummary struct {
	DatasetID  string `json:"dataset_id"`
	Generation uint64 `json:"generation"`
	Start      string `json:"start,omitempty"`
	End        string `json:"end,omitempty"`
	Count      int    `json:"count"`
}

// serializeView marshals a view into its summary message and feature messages.
func serializeView(view domain.View, renderedAt time.Time) ([]kafkago.Message, error) {
	gen := strconv.FormatUint(view.Generation, 10)
	headers := func(kind string) []kafkago.Header {
		return []kafkago.Header{
			{Key: "type", Value: []byte(kind)},
			{Key: "dataset_id", Value: []byte(view.DatasetID)},
			{Key: "generation", Value: []byte(gen)},
			{Key: "rendered_at", Value: []byte(renderedAt.Format(time.RFC3339))},
		}
	}

	summary := viewSummary{DatasetID: view.DatasetID, Generation: view.Generation, Count: view.Len()}
	if view.Range != nil {
		summary.Start = domain.FormatDate(view.Range.Start)
		summary.End = domain.FormatDate(view.Range.End)
	}
	data, err := json.Marshal(summary)
	if err != nil {
		return nil, fmt.Errorf("serialize view summary: %w", err)
	}

	msgs := make([]kafkago.Message, 0, view.Len()+1)
	msgs = append(msgs, kafkago.Message{
		Key:     []byte(view.DatasetID + ":" + gen),
		Value:   data,
		Headers: headers(messageTypeView),
	})

	if view.Collection == nil {
		return msgs, nil
	}
	for i, f := range view.Collection.Features {
		data, err := json.Marshal(f)
		if err != nil {
			return nil, fmt.Errorf("serialize feature %d: %w", i, err)
		}
		h := append(headers(messageTypeFeature), kafkago.Header{
			Key:   domain.ProvenanceProperty,
			Value: []byte(domain.ProvenanceOf(f).String()),
		})
		msgs = append(msgs, kafkago.Message{
			Key:     []byte(featureKey(view.DatasetID, f, i)),
			Value:   data,
			Headers: h,
		})
	}
	return msgs, nil
}

// featureKey prefers the feature's own id so updates of one scan share a partition.
func featureKey(datasetID string, f *geojson.Feature, index int) string {
	if f != nil && f.ID != nil {
		return fmt.Sprint(f.ID)
	}
	return datasetID + ":" + strconv.Itoa(index)
}
