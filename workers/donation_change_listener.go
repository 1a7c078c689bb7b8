// workers/donation_change_listener.go
package workers

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Notifier schedules a recompute for one user.
type Notifier interface {
	Notify(ctx context.Context, userID string)
}

// donationChange is the payload the registry publishes on each write.
type donationChange struct {
	DonorID  string   `json:"donor_id"`
	DonorIDs []string `json:"donor_ids,omitempty"`
}

// DonationChangeListener is the push trigger: it recomputes donors as soon
// as the registry announces a change, ahead of the next sync poll.
type DonationChangeListener struct {
	Client  *redis.Client
	Channel string
	Impact  Notifier
	Log     *zap.Logger
}

func (l *DonationChangeListener) Start(ctx context.Context) {
	go l.run(ctx)
}

func (l *DonationChangeListener) run(ctx context.Context) {
	sub := l.Client.Subscribe(ctx, l.Channel)
	defer sub.Close()
	l.Log.Info("listening for donation changes", zap.String("channel", l.Channel))

	msgs := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				l.Log.Warn("donation change subscription closed")
				return
			}
			l.handle(ctx, msg.Payload)
		}
	}
}

func (l *DonationChangeListener) handle(ctx context.Context, payload string) {
	var change donationChange
	if err := json.Unmarshal([]byte(payload), &change); err != nil {
		l.Log.Warn("malformed donation change", zap.String("payload", payload), zap.Error(err))
		return
	}
	seen := map[string]bool{}
	for _, id := range append([]string{change.DonorID}, change.DonorIDs...) {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		l.Impact.Notify(ctx, id)
	}
}
