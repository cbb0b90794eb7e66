package presencemirror

import (
	"chatrelay/internal/chat"
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const writeTimeout = 1500 * time.Millisecond

// Snapshot is the payload published on the presence channel.
type Snapshot struct {
	Users []chat.Member `json:"users"`
	Count int           `json:"count"`
}

// Mirror copies presence snapshots into Redis: a hash username → joinTime
// plus a pub/sub notification. Only the newest pending snapshot is kept.
type Mirror struct {
	rdc     *redis.Client
	key     string
	channel string
	pending chan []chat.Member
}

func New(rdc *redis.Client, key, channel string) *Mirror {
	return &Mirror{
		rdc:     rdc,
		key:     key,
		channel: channel,
		pending: make(chan []chat.Member, 1),
	}
}

// PublishPresence never blocks; an older unwritten snapshot is replaced.
func (m *Mirror) PublishPresence(members []chat.Member) {
	for {
		select {
		case m.pending <- members:
			return
		default:
		}
		select {
		case <-m.pending: // drop the stale one
		default:
		}
	}
}

// Run writes snapshots until ctx is done, then clears the hash so a stopped
// relay does not advertise users.
func (m *Mirror) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			clearCtx, cancel := context.WithTimeout(context.Background(), writeTimeout)
			if err := m.write(clearCtx, nil); err != nil {
				zap.L().Warn("presencemirror.clear", zap.Error(err))
			}
			cancel()
			return
		case members := <-m.pending:
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			if err := m.write(wctx, members); err != nil {
				zap.L().Warn("presencemirror.write", zap.Error(err))
			}
			cancel()
		}
	}
}

// write replaces the hash and publishes the snapshot in one MULTI/EXEC.
func (m *Mirror) write(ctx context.Context, members []chat.Member) error {
	if members == nil {
		members = []chat.Member{}
	}
	payload, err := json.Marshal(Snapshot{Users: members, Count: len(members)})
	if err != nil {
		return err
	}

	pipe := m.rdc.TxPipeline()
	pipe.Del(ctx, m.key)
	if len(members) > 0 {
		fields := make([]interface{}, 0, len(members)*2)
		for _, mem := range members {
			fields = append(fields, mem.Username, mem.JoinTime.UTC().Format(time.RFC3339Nano))
		}
		pipe.HSet(ctx, m.key, fields...)
	}
	pipe.Publish(ctx, m.channel, string(payload))

	_, err = pipe.Exec(ctx)
	return err
}
