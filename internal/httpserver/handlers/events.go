package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/MrSnakeDoc/marks/internal/controller"
	"github.com/MrSnakeDoc/marks/internal/httpserver/deps"
	"github.com/MrSnakeDoc/marks/internal/logger"
	"github.com/MrSnakeDoc/marks/internal/scheduler"
	"github.com/MrSnakeDoc/marks/internal/session"
)

const (
	defaultStreamKeepAlive = 15 * time.Second
	defaultStreamHeartbeat = 20 * time.Second
)

// BookmarkEvents streams the caller's state as server-sent events. The stream
// holds one controller for its whole life: it subscribes to the user's
// changes and pushes a new "state" event after every refetch. It ends when
// the client goes away or the session can no longer be refreshed.
func BookmarkEvents(d deps.Deps) http.HandlerFunc {
	keepAlive := d.StreamKeepAlive
	if keepAlive <= 0 {
		keepAlive = defaultStreamKeepAlive
	}
	heartbeat := d.StreamHeartbeat
	if heartbeat <= 0 {
		heartbeat = defaultStreamHeartbeat
	}

	return func(w http.ResponseWriter, r *http.Request) {
		// Resolve before streaming so refreshed cookies still reach the client.
		sess, err := d.Sessions.Resolve(w, r)
		if err != nil {
			writeState(w, statusFor(err), controller.State{}, err)
			return
		}

		rc := http.NewResponseController(w)
		if err := rc.SetWriteDeadline(time.Time{}); err != nil {
			d.Logger.Debug("stream write deadline not cleared", logger.Error(err))
		}

		streamID := uuid.NewString()
		log := d.Logger.With(
			logger.String("stream_id", streamID),
			logger.String("user_id", sess.UserID))

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()
		if d.Streams != nil {
			stop := context.AfterFunc(d.Streams, cancel)
			defer stop()
		}

		ctrl := newController(d, d.Sessions.ForStream(sess), controller.WithNotifier(d.Notifier))
		defer ctrl.Close()

		// Only the newest state matters; older pending ones are replaced.
		latest := make(chan controller.State, 1)
		ctrl.OnChange(func(s controller.State) {
			select {
			case <-latest:
			default:
			}
			latest <- s
		})

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")
		w.WriteHeader(http.StatusOK)
		if err := rc.Flush(); err != nil {
			log.Error("response writer doesn't support flushing", logger.Error(err))
			return
		}

		if err := ctrl.Initialize(ctx); err != nil {
			log.Warn("stream initialization failed", logger.Error(err))
		}

		keeper := scheduler.NewKeeper("stream-session", func(ctx context.Context) error {
			err := ctrl.Resume(ctx)
			if errors.Is(err, session.ErrNoSession) {
				return scheduler.ErrStop
			}
			return err
		}, log, keepAlive)
		if err := keeper.Start(ctx); err != nil {
			log.Error("failed to start stream keeper", logger.Error(err))
			return
		}
		defer keeper.Stop()

		log.Info("event stream opened")
		defer log.Info("event stream closed")

		ticker := time.NewTicker(heartbeat)
		defer ticker.Stop()

		var seq int
		send := func(s controller.State) bool {
			seq++
			if err := writeEvent(w, seq, s); err != nil {
				log.Debug("client disconnected", logger.Error(err))
				return false
			}
			return rc.Flush() == nil
		}

		for {
			select {
			case <-ctx.Done():
				return
			case s := <-latest:
				if !send(s) {
					return
				}
			case <-keeper.Done():
				// Session gone: deliver the signed-out state, then end.
				select {
				case s := <-latest:
					send(s)
				default:
				}
				return
			case <-ticker.C:
				if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
					return
				}
				if rc.Flush() != nil {
					return
				}
			}
		}
	}
}

func writeEvent(w http.ResponseWriter, id int, s controller.State) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %d\nevent: state\ndata: %s\n\n", id, data)
	return err
}
