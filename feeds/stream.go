package feeds

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/nv4re/pumpbot/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// TICK STREAM - Push-based websocket tick source
// ═══════════════════════════════════════════════════════════════════════════════

// streamMessage is the wire shape of one pushed tick.
type streamMessage struct {
	Market string          `json:"market"`
	Rate   decimal.Decimal `json:"rate"`
	Time   int64           `json:"time"`
}

// Stream consumes a websocket tick feed with automatic reconnect.
type Stream struct {
	mu sync.RWMutex

	url         string
	conn        *websocket.Conn
	subscribers []chan types.RateTick

	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewStream creates a stream for the given websocket URL.
func NewStream(url string) *Stream {
	return &Stream{
		url:    url,
		stopCh: make(chan struct{}),
	}
}

// Subscribe returns a channel of ticks.
func (s *Stream) Subscribe() <-chan types.RateTick {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan types.RateTick, 1024)
	s.subscribers = append(s.subscribers, ch)
	return ch
}

// Start connects and begins reading, reconnecting on failure.
func (s *Stream) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	s.wg.Add(1)
	go s.connectLoop()
}

// Stop disconnects and halts reconnection.
func (s *Stream) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	conn := s.conn
	s.mu.Unlock()

	close(s.stopCh)
	if conn != nil {
		conn.Close()
	}
	s.wg.Wait()
	log.Info().Msg("Tick stream stopped")
}

func (s *Stream) connectLoop() {
	defer s.wg.Done()

	backoff := time.Second
	for {
		select {
		case <-s.stopCh:
			return
		default:
		}

		if err := s.connect(); err != nil {
			log.Error().Err(err).Dur("backoff", backoff).Msg("Tick stream connect failed")
			select {
			case <-s.stopCh:
				return
			case <-time.After(backoff):
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		s.readMessages()

		s.mu.RLock()
		running := s.running
		s.mu.RUnlock()
		if running {
			log.Warn().Msg("Tick stream disconnected, reconnecting...")
			time.Sleep(time.Second)
		}
	}
}

func (s *Stream) connect() error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.Dial(s.url, nil)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	log.Info().Str("url", s.url).Msg("🔌 Tick stream connected")
	return nil
}

func (s *Stream) readMessages() {
	for {
		s.mu.RLock()
		conn := s.conn
		running := s.running
		s.mu.RUnlock()
		if !running || conn == nil {
			return
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			if running {
				log.Error().Err(err).Msg("Tick stream read error")
			}
			return
		}
		s.handleMessage(data)
	}
}

func (s *Stream) handleMessage(data []byte) {
	var msg streamMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Debug().Err(err).Msg("Skipping malformed tick")
		return
	}
	if msg.Market == "" || !msg.Rate.IsPositive() {
		return
	}

	ts := msg.Time
	if ts == 0 {
		ts = time.Now().Unix()
	}
	tick := types.RateTick{Market: msg.Market, Value: msg.Rate, Time: ts}

	s.mu.RLock()
	subscribers := s.subscribers
	s.mu.RUnlock()

	for _, ch := range subscribers {
		select {
		case ch <- tick:
		default:
		}
	}
}
