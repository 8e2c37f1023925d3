package taskruntime

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"
)

// queueTopic is the Kafka topic the worker pool (cmd/worker) consumes from
// (spec.md §4.4: the task runtime hands stages across workers).
const queueTopic = "handover.tasks"

// TaskMessage is the queue payload: enough to re-fetch and re-run a stage
// without shipping the full spec twice (the spec itself lives in the
// tasks table, loaded fresh under lock by the consumer).
type TaskMessage struct {
	TaskID string `json:"task_id"`
}

// Queue dispatches task_ids to the worker pool and lets the worker pool
// consume them.
type Queue struct {
	writer *kafka.Writer
	reader *kafka.Reader
}

// NewQueue constructs a Queue against brokers. groupID partitions
// consumption across worker replicas.
func NewQueue(brokers []string, groupID string) *Queue {
	return &Queue{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    queueTopic,
			Balancer: &kafka.LeastBytes{},
		},
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers: brokers,
			Topic:   queueTopic,
			GroupID: groupID,
		}),
	}
}

// Enqueue publishes taskID for a worker to pick up.
func (q *Queue) Enqueue(ctx context.Context, taskID string) error {
	value, err := json.Marshal(TaskMessage{TaskID: taskID})
	if err != nil {
		return fmt.Errorf("taskruntime: marshal task message: %w", err)
	}

	msg := kafka.Message{Key: []byte(taskID), Value: value}

	if err := q.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("taskruntime: enqueue failed: %w", err)
	}

	return nil
}

// Dequeue blocks until a task message is available or ctx is cancelled.
func (q *Queue) Dequeue(ctx context.Context) (TaskMessage, error) {
	msg, err := q.reader.FetchMessage(ctx)
	if err != nil {
		return TaskMessage{}, fmt.Errorf("taskruntime: dequeue failed: %w", err)
	}

	var task TaskMessage
	if err := json.Unmarshal(msg.Value, &task); err != nil {
		return TaskMessage{}, fmt.Errorf("taskruntime: unmarshal task message: %w", err)
	}

	if err := q.reader.CommitMessages(ctx, msg); err != nil {
		return TaskMessage{}, fmt.Errorf("taskruntime: commit offset failed: %w", err)
	}

	return task, nil
}

// Close closes both the writer and reader.
func (q *Queue) Close() error {
	writerErr := q.writer.Close()
	readerErr := q.reader.Close()

	if writerErr != nil {
		return writerErr
	}

	return readerErr
}
