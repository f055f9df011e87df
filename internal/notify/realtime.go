package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/MrSnakeDoc/marks/internal/domain"
	"github.com/MrSnakeDoc/marks/internal/logger"
)

const (
	protocolVersion = "1.0.0"

	eventJoin        = "phx_join"
	eventLeave       = "phx_leave"
	eventReply       = "phx_reply"
	eventError       = "phx_error"
	eventClose       = "phx_close"
	eventHeartbeat   = "heartbeat"
	eventAccessToken = "access_token"
	eventChanges     = "postgres_changes"
	eventSystem      = "system"

	heartbeatTopic = "phoenix"

	defaultHeartbeat  = 25 * time.Second
	defaultJoinWait   = 10 * time.Second
	writeWait         = 10 * time.Second
	maxReconnectDelay = 30 * time.Second
	maxMessageSize    = 1 << 20
)

// TokenUpdater is implemented by subscriptions whose source must be told
// when the access token is refreshed.
type TokenUpdater interface {
	SetAccessToken(token string) error
}

// Realtime listens to row changes of one table through the Supabase Realtime
// websocket (Phoenix channels). Each subscription joins a private topic filtered
// on the user's rows, and the server enforces the row policy with the
// subscriber's access token.
type Realtime struct {
	endpoint  string
	apiKey    string
	schema    string
	table     string
	heartbeat time.Duration
	joinWait  time.Duration
	dialer    *websocket.Dialer
	log       logger.Logger
}

type RealtimeOption func(*Realtime)

func WithHeartbeat(d time.Duration) RealtimeOption { return func(r *Realtime) { r.heartbeat = d } }
func WithJoinTimeout(d time.Duration) RealtimeOption {
	return func(r *Realtime) { r.joinWait = d }
}
func WithTable(schema, table string) RealtimeOption {
	return func(r *Realtime) { r.schema, r.table = schema, table }
}

// NewRealtime creates a source for endpoint, e.g. wss://<project>.supabase.co/realtime/v1/websocket.
func NewRealtime(endpoint, apiKey string, log logger.Logger, opts ...RealtimeOption) *Realtime {
	r := &Realtime{
		endpoint:  endpoint,
		apiKey:    apiKey,
		schema:    "public",
		table:     "bookmarks",
		heartbeat: defaultHeartbeat,
		joinWait:  defaultJoinWait,
		dialer:    websocket.DefaultDialer,
		log:       log,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type phxMessage struct {
	Topic   string          `json:"topic"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	Ref     string          `json:"ref,omitempty"`
}

type joinPayload struct {
	Config      joinConfig `json:"config"`
	AccessToken string     `json:"access_token,omitempty"`
}

type joinConfig struct {
	Broadcast       broadcastConfig `json:"broadcast"`
	Presence        presenceConfig  `json:"presence"`
	PostgresChanges []changeFilter  `json:"postgres_changes"`
	Private         bool            `json:"private"`
}

type broadcastConfig struct {
	Self bool `json:"self"`
	Ack  bool `json:"ack"`
}

type presenceConfig struct {
	Key string `json:"key"`
}

type changeFilter struct {
	Event  string `json:"event"`
	Schema string `json:"schema"`
	Table  string `json:"table"`
	Filter string `json:"filter,omitempty"`
}

type replyPayload struct {
	Status   string          `json:"status"`
	Response json.RawMessage `json:"response"`
}

type changesPayload struct {
	Data struct {
		Type            string `json:"type"`
		Schema          string `json:"schema"`
		Table           string `json:"table"`
		CommitTimestamp string `json:"commit_timestamp"`
	} `json:"data"`
}

type systemPayload struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Subscribe joins the user's topic and blocks until the server accepts it.
func (r *Realtime) Subscribe(ctx context.Context, userID, accessToken string, h Handler) (Subscription, error) {
	if userID == "" {
		return nil, errors.New("realtime: user is required")
	}

	s := &realtimeSubscription{
		r:      r,
		topic:  fmt.Sprintf("realtime:%s:%s", r.table, userID),
		userID: userID,
		token:  accessToken,
		h:      h,
		log:    r.log.With(logger.String("user_id", userID), logger.String("source", "realtime")),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}

	conn, err := s.connect(ctx)
	if err != nil {
		return nil, err
	}
	s.setConn(conn)
	go s.run(conn)

	s.log.Debug("realtime subscription joined", logger.String("topic", s.topic))
	return s, nil
}

type realtimeSubscription struct {
	r      *Realtime
	topic  string
	userID string
	h      Handler
	log    logger.Logger

	mu    sync.Mutex // guards conn and token
	conn  *websocket.Conn
	token string

	wmu  sync.Mutex // one writer at a time
	ref  atomic.Uint64
	once sync.Once
	stop chan struct{}
	done chan struct{}
}

func (s *realtimeSubscription) nextRef() string {
	return strconv.FormatUint(s.ref.Add(1), 10)
}

func (s *realtimeSubscription) setConn(conn *websocket.Conn) {
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
}

func (s *realtimeSubscription) stopped() bool {
	select {
	case <-s.stop:
		return true
	default:
		return false
	}
}

// connect dials the endpoint and joins the topic.
func (s *realtimeSubscription) connect(ctx context.Context) (*websocket.Conn, error) {
	u, err := url.Parse(s.r.endpoint)
	if err != nil {
		return nil, fmt.Errorf("realtime: invalid endpoint: %w", err)
	}
	q := u.Query()
	q.Set("apikey", s.r.apiKey)
	q.Set("vsn", protocolVersion)
	u.RawQuery = q.Encode()

	ctx, cancel := context.WithTimeout(ctx, s.r.joinWait)
	defer cancel()

	conn, _, err := s.r.dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("realtime: dial failed: %w", err)
	}
	conn.SetReadLimit(maxMessageSize)

	if err := s.join(ctx, conn); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return conn, nil
}

func (s *realtimeSubscription) join(ctx context.Context, conn *websocket.Conn) error {
	s.mu.Lock()
	token := s.token
	s.mu.Unlock()

	ref := s.nextRef()
	payload := joinPayload{
		Config: joinConfig{
			PostgresChanges: s.changeFilters(),
		},
		AccessToken: token,
	}
	if err := s.write(conn, s.topic, eventJoin, payload, ref); err != nil {
		return fmt.Errorf("realtime: join failed: %w", err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
	}
	for {
		var msg phxMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return fmt.Errorf("realtime: join failed: %w", err)
		}
		if msg.Topic != s.topic || msg.Event != eventReply || msg.Ref != ref {
			continue
		}

		var reply replyPayload
		if err := json.Unmarshal(msg.Payload, &reply); err != nil {
			return fmt.Errorf("realtime: unreadable join reply: %w", err)
		}
		if reply.Status != "ok" {
			return fmt.Errorf("realtime: join refused: %s", string(reply.Response))
		}
		return conn.SetReadDeadline(time.Time{})
	}
}

// changeFilters selects the user's inserts and updates. Realtime does not
// apply column filters to deletes, so deletes are taken unfiltered: any
// delete on the table wakes the listener, and the refetch it triggers is
// scoped by the row policy anyway.
func (s *realtimeSubscription) changeFilters() []changeFilter {
	own := "user_id=eq." + s.userID
	return []changeFilter{
		{Event: string(domain.ChangeInsert), Schema: s.r.schema, Table: s.r.table, Filter: own},
		{Event: string(domain.ChangeUpdate), Schema: s.r.schema, Table: s.r.table, Filter: own},
		{Event: string(domain.ChangeDelete), Schema: s.r.schema, Table: s.r.table},
	}
}

// run serves conn and reconnects until the subscription is closed.
func (s *realtimeSubscription) run(conn *websocket.Conn) {
	defer close(s.done)

	for {
		err := s.serve(conn)
		_ = conn.Close()
		if s.stopped() {
			return
		}
		s.log.Warn("realtime connection lost, reconnecting", logger.Error(err))

		conn = s.reconnect()
		if conn == nil {
			return
		}
		s.setConn(conn)
		if s.stopped() {
			_ = conn.Close()
			return
		}
		s.log.Info("realtime connection restored")
		// Events may have been missed while disconnected.
		s.h(domain.ChangeEvent{
			Type:   domain.ChangeResync,
			Table:  s.r.table,
			UserID: s.userID,
			At:     time.Now().UTC(),
		})
	}
}

func (s *realtimeSubscription) reconnect() *websocket.Conn {
	wait := time.Second
	for attempt := 1; ; attempt++ {
		timer := time.NewTimer(wait)
		select {
		case <-s.stop:
			timer.Stop()
			return nil
		case <-timer.C:
		}

		conn, err := s.connect(context.Background())
		if err == nil {
			if s.stopped() {
				_ = conn.Close()
				return nil
			}
			return conn
		}
		s.log.Warn("realtime reconnect failed",
			logger.Int("attempt", attempt),
			logger.Duration("next_retry_in", wait),
			logger.Error(err))

		wait *= 2
		if wait > maxReconnectDelay {
			wait = maxReconnectDelay
		}
	}
}

// serve reads until the connection fails or the server drops the topic.
func (s *realtimeSubscription) serve(conn *websocket.Conn) error {
	hbDone := make(chan struct{})
	defer close(hbDone)
	go s.heartbeat(conn, hbDone)

	// Heartbeat replies keep the deadline moving.
	idle := 2 * s.r.heartbeat
	for {
		_ = conn.SetReadDeadline(time.Now().Add(idle))
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if err := s.dispatch(data); err != nil {
			return err
		}
	}
}

func (s *realtimeSubscription) heartbeat(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(s.r.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := s.write(conn, heartbeatTopic, eventHeartbeat, struct{}{}, s.nextRef()); err != nil {
				_ = conn.Close()
				return
			}
		case <-done:
			return
		case <-s.stop:
			return
		}
	}
}

func (s *realtimeSubscription) dispatch(data []byte) error {
	var msg phxMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.log.Debug("ignoring unreadable realtime message", logger.Error(err))
		return nil
	}
	if msg.Topic != s.topic {
		return nil
	}

	switch msg.Event {
	case eventChanges:
		var p changesPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			s.log.Debug("ignoring unreadable change payload", logger.Error(err))
			return nil
		}
		at, err := time.Parse(time.RFC3339Nano, p.Data.CommitTimestamp)
		if err != nil {
			at = time.Now().UTC()
		}
		s.h(domain.ChangeEvent{
			Type:   domain.ChangeType(p.Data.Type),
			Table:  p.Data.Table,
			UserID: s.userID,
			At:     at,
		})
	case eventSystem:
		var p systemPayload
		if err := json.Unmarshal(msg.Payload, &p); err == nil && p.Status == "error" {
			s.log.Warn("realtime reported an error", logger.String("message", p.Message))
		}
	case eventError, eventClose:
		return fmt.Errorf("realtime: server dropped topic (%s)", msg.Event)
	}
	return nil
}

func (s *realtimeSubscription) write(conn *websocket.Conn, topic, event string, payload interface{}, ref string) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	s.wmu.Lock()
	defer s.wmu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(phxMessage{Topic: topic, Event: event, Payload: raw, Ref: ref})
}

// SetAccessToken pushes a refreshed token to the server so the subscription
// keeps passing the row policy after the old token expires.
func (s *realtimeSubscription) SetAccessToken(token string) error {
	s.mu.Lock()
	s.token = token
	conn := s.conn
	s.mu.Unlock()

	if conn == nil || s.stopped() {
		return nil
	}
	return s.write(conn, s.topic, eventAccessToken, map[string]string{"access_token": token}, s.nextRef())
}

// Close leaves the topic and waits for the reader to exit.
func (s *realtimeSubscription) Close() error {
	s.once.Do(func() {
		close(s.stop)

		s.mu.Lock()
		conn := s.conn
		s.mu.Unlock()

		if conn != nil {
			_ = s.write(conn, s.topic, eventLeave, struct{}{}, s.nextRef())
			s.wmu.Lock()
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			s.wmu.Unlock()
			_ = conn.Close()
		}
		<-s.done
	})
	return nil
}
