package cache

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/yuresilva1/inss-study-hub/internal/config"
)

// Notice is a transient, user-visible persistence problem.
type Notice struct {
	ExamID  string `json:"exam_id"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// Notices publishes persistence notices raised outside the live session,
// e.g. by the autosave worker, to whoever is viewing the exam.
type Notices struct {
	rdb *redis.Client
}

func NewNotices(rdb *redis.Client) *Notices {
	return &Notices{rdb: rdb}
}

func (n *Notices) Publish(ctx context.Context, examID uuid.UUID, notice Notice) error {
	raw, err := json.Marshal(notice)
	if err != nil {
		return err
	}
	return n.rdb.Publish(ctx, config.CacheKey.ExamNoticeChannel(examID.String()), raw).Err()
}

// Subscribe delivers notices for the exam until ctx is done.
func (n *Notices) Subscribe(ctx context.Context, examID uuid.UUID) <-chan Notice {
	out := make(chan Notice, 16)
	sub := n.rdb.Subscribe(ctx, config.CacheKey.ExamNoticeChannel(examID.String()))

	go func() {
		defer close(out)
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var notice Notice
				if err := json.Unmarshal([]byte(msg.Payload), &notice); err != nil {
					continue
				}
				select {
				case out <- notice:
				default:
				}
			}
		}
	}()
	return out
}
