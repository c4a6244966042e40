package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/Alwanly/service-heartbeat-pipeline/internal/queue"
)

type IRepository interface {
	// Ping checks the database connection
	Ping(ctx context.Context) error
	// QueueStats reports queue depth
	QueueStats(ctx context.Context) (*queue.Stats, error)
}

type Repository struct {
	DB    *gorm.DB
	Queue *queue.Queue
}

func NewRepository(db *gorm.DB, q *queue.Queue) IRepository {
	return &Repository{DB: db, Queue: q}
}

func (r *Repository) Ping(ctx context.Context) error {
	conn, err := r.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get database connection: %w", err)
	}
	return conn.PingContext(ctx)
}

func (r *Repository) QueueStats(ctx context.Context) (*queue.Stats, error) {
	return r.Queue.Stats(ctx)
}
