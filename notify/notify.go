package notify

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"os"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"

	"github.com/moyoez/partyline-console/state"
	"github.com/moyoez/partyline-console/tool"
	"github.com/moyoez/partyline-console/types"
)

// NotifyWriteChunkSize is the chunk size when writing payload to Unix socket (avoid large single write).
const NotifyWriteChunkSize = 32 * 1024

const queueSize = 64

var (
	// UnixSocketTimeout bounds each Unix socket operation.
	UnixSocketTimeout = 3 * time.Second
)

// Hub receives notifications for dashboard clients.
type Hub interface {
	Broadcast(notification *types.Notification)
}

// Notifier turns store changes into notifications. Every change goes to the
// hub; banners also go to a desktop listener on a Unix socket when one is set.
type Notifier struct {
	store      *state.Store
	hub        Hub
	socketPath string
	queue      chan *types.Notification
	dropped    atomic.Uint64
}

func New(store *state.Store, hub Hub, socketPath string) *Notifier {
	return &Notifier{
		store:      store,
		hub:        hub,
		socketPath: socketPath,
		queue:      make(chan *types.Notification, queueSize),
	}
}

// Attach subscribes to the store. It never blocks the writer: when the
// queue is full the notification is dropped and counted.
func (n *Notifier) Attach() func() {
	return n.store.Subscribe(func(c state.Change) {
		notification := n.build(c)
		if notification == nil {
			return
		}
		select {
		case n.queue <- notification:
		default:
			n.dropped.Add(1)
		}
	})
}

// Dropped returns how many notifications were lost to a full queue.
func (n *Notifier) Dropped() uint64 {
	return n.dropped.Load()
}

func (n *Notifier) build(c state.Change) *types.Notification {
	if c.Slice != state.SliceBanner {
		return &types.Notification{
			Type: types.NotifyTypeState,
			Data: map[string]any{"slice": string(c.Slice), "revision": c.Revision},
		}
	}
	b := n.store.Banner()
	if b == nil {
		return &types.Notification{Type: types.NotifyTypeBanner, Data: map[string]any{"cleared": true}}
	}
	return &types.Notification{
		Type:    types.NotifyTypeBanner,
		Title:   string(b.Kind),
		Message: b.Message,
		Data:    map[string]any{"source": b.Source},
	}
}

// Start delivers queued notifications until ctx is done.
func (n *Notifier) Start(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case notification := <-n.queue:
			if n.hub != nil {
				n.hub.Broadcast(notification)
			}
			if n.socketPath != "" && notification.Type == types.NotifyTypeBanner && notification.Message != "" {
				if err := SendNotification(notification, n.socketPath); err != nil {
					tool.DefaultLogger.Debugf("Desktop notification: %v", err)
				}
			}
		}
	}
}

// SendNotification writes one notification to a Unix socket listener: a
// little-endian uint32 length followed by the JSON payload. The listener may
// answer with a JSON object carrying "error".
func SendNotification(notification *types.Notification, socketPath string) error {
	if _, err := os.Stat(socketPath); os.IsNotExist(err) {
		return fmt.Errorf("unix socket not found: %s", socketPath)
	}

	var payload []byte
	var err error
	if notification != nil {
		payload, err = sonic.Marshal(notification)
		if err != nil {
			return fmt.Errorf("failed to serialize notification data: %v", err)
		}
	} else {
		payload = []byte("{}")
	}
	if len(payload) > NotifyWriteChunkSize {
		return fmt.Errorf("notification payload too large: %d bytes (max %d)", len(payload), NotifyWriteChunkSize)
	}

	conn, err := net.DialTimeout("unix", socketPath, UnixSocketTimeout)
	if err != nil {
		return fmt.Errorf("failed to connect to Unix socket %s: %v", socketPath, err)
	}
	defer func() {
		if err := conn.Close(); err != nil {
			tool.DefaultLogger.Errorf("Failed to close Unix socket connection: %v", err)
		}
	}()

	if err := conn.SetWriteDeadline(time.Now().Add(UnixSocketTimeout)); err != nil {
		tool.DefaultLogger.Errorf("Failed to set write deadline: %v", err)
	}
	lengthBuf := make([]byte, 4)
	binary.LittleEndian.PutUint32(lengthBuf, uint32(len(payload)))
	if _, err := conn.Write(lengthBuf); err != nil {
		return fmt.Errorf("failed to write length to Unix socket: %v", err)
	}
	if _, err := conn.Write(payload); err != nil {
		return fmt.Errorf("failed to write payload to Unix socket: %v", err)
	}

	if err := conn.SetReadDeadline(time.Now().Add(UnixSocketTimeout)); err != nil {
		tool.DefaultLogger.Errorf("Failed to set read deadline: %v", err)
	}
	buf := make([]byte, 4096)
	nr, err := conn.Read(buf)
	if err != nil && err != io.EOF {
		return fmt.Errorf("failed to read response from Unix socket: %v", err)
	}
	if nr > 0 {
		var response map[string]any
		if err := sonic.Unmarshal(buf[:nr], &response); err != nil {
			tool.DefaultLogger.Debugf("Unix socket response (raw): %s", string(buf[:nr]))
		} else if errMsg, ok := response["error"].(string); ok && errMsg != "" {
			return fmt.Errorf("listener returned error: %s", errMsg)
		}
	}
	if notification != nil {
		tool.DefaultLogger.Debugf("[UnixSocket] Notification sent: %s - %s", notification.Type, notification.Title)
	}
	return nil
}
