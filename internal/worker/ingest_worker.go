package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"hrassist/internal/ingest"
)

// Ingestor is the slice of the document service the worker drives.
type Ingestor interface {
	IngestDocument(ctx context.Context, namespace string, id uint) (*ingest.Result, error)
}

// IngestWorker consumes ingest jobs and runs the pipeline for each. Jobs
// carry only identifiers; the document content is re-fetched at processing
// time so a burst of edits converges on the latest version.
type IngestWorker struct {
	conn      *amqp.Connection
	ingestor  Ingestor
	queueName string

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewIngestWorker(conn *amqp.Connection, ingestor Ingestor, queueName string) *IngestWorker {
	return &IngestWorker{
		conn:      conn,
		ingestor:  ingestor,
		queueName: queueName,
	}
}

func (w *IngestWorker) Start(ctx context.Context) error {
	if w.cancel != nil {
		return nil
	}

	workerCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	ch, err := w.conn.Channel()
	if err != nil {
		cancel()
		return fmt.Errorf("open ingest worker channel failed: %w", err)
	}

	_, err = ch.QueueDeclare(
		w.queueName,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("declare ingest queue failed: %w", err)
	}

	deliveries, err := ch.Consume(
		w.queueName,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("consume ingest queue failed: %w", err)
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer ch.Close()

		for {
			select {
			case <-workerCtx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}

				var job ingest.Job
				if err := json.Unmarshal(d.Body, &job); err != nil {
					log.Printf("ingest worker decode job failed: %v", err)
					_ = d.Nack(false, false)
					continue
				}

				result, err := w.ingestor.IngestDocument(workerCtx, job.Namespace, job.DocumentID)
				if err != nil {
					log.Printf("ingest worker: document %d failed: %v", job.DocumentID, err)
					// Requeue once via nack; at-least-once with idempotent
					// ids makes redelivery safe.
					_ = d.Nack(false, !d.Redelivered)
					continue
				}
				if len(result.FailedBatches) > 0 {
					log.Printf("ingest worker: document %d partial, failed batches %v", job.DocumentID, result.FailedBatches)
					_ = d.Nack(false, !d.Redelivered)
					continue
				}

				log.Printf("ingest worker: document %d written=%d skipped=%t", job.DocumentID, result.Written, result.Skipped)
				_ = d.Ack(false)
			}
		}
	}()

	return nil
}

func (w *IngestWorker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}
