package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/afroash/sensorcheck/internal/models"
	"github.com/afroash/sensorcheck/internal/poll"
	"github.com/afroash/sensorcheck/internal/sensor"
)

// ConnectionState represents the current state of the connection
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
)

func (cs ConnectionState) String() string {
	switch cs {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// Compile-time interface check
var _ sensor.Sensor = (*Connection)(nil)

// Connection talks to a sensor over a WebSocket, one request at a time.
// A broken connection is dropped and redialled on the next call.
type Connection struct {
	URL            string
	AuthToken      string
	conn           *websocket.Conn
	state          ConnectionState
	stateMutex     sync.RWMutex
	callMutex      sync.Mutex
	logger         zerolog.Logger
	connectTimeout time.Duration
	callTimeout    time.Duration
	newID          func() string
}

// ConnectionConfig holds configuration for the connection
type ConnectionConfig struct {
	URL            string
	AuthToken      string
	ConnectTimeout time.Duration
	CallTimeout    time.Duration
}

// NewConnection creates a new sensor connection. Nothing is dialled until
// Connect or the first call.
func NewConnection(config ConnectionConfig, logger zerolog.Logger) *Connection {
	connectTimeout := config.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 10 * time.Second
	}
	callTimeout := config.CallTimeout
	if callTimeout <= 0 {
		callTimeout = 5 * time.Second
	}
	return &Connection{
		URL:            config.URL,
		AuthToken:      config.AuthToken,
		state:          StateDisconnected,
		logger:         logger,
		connectTimeout: connectTimeout,
		callTimeout:    callTimeout,
		newID:          func() string { return uuid.NewString() },
	}
}

// setState safely updates the connection state
func (c *Connection) setState(state ConnectionState) {
	c.stateMutex.Lock()
	defer c.stateMutex.Unlock()
	if c.state == state {
		return
	}
	c.state = state
	c.logger.Debug().Str("state", state.String()).Msg("Connection state updated")
}

// State returns the current connection state
func (c *Connection) State() ConnectionState {
	c.stateMutex.RLock()
	defer c.stateMutex.RUnlock()
	return c.state
}

// IsConnected returns true if currently connected
func (c *Connection) IsConnected() bool {
	return c.State() == StateConnected
}

// Connect establishes a WebSocket connection to the sensor.
// Failures the sensor may recover from are marked transient.
func (c *Connection) Connect(ctx context.Context) error {
	c.callMutex.Lock()
	defer c.callMutex.Unlock()
	return c.connect(ctx)
}

func (c *Connection) connect(ctx context.Context) error {
	if c.conn != nil {
		return nil
	}

	c.setState(StateConnecting)
	c.logger.Debug().Str("url", c.URL).Msg("Connecting to sensor")

	dialer := websocket.Dialer{
		HandshakeTimeout: c.connectTimeout,
	}

	header := http.Header{}
	if c.AuthToken != "" {
		header.Set("Authorization", "Bearer "+c.AuthToken)
	}

	dialCtx, cancel := context.WithTimeout(ctx, c.connectTimeout)
	defer cancel()

	conn, resp, err := dialer.DialContext(dialCtx, c.URL, header)
	if err != nil {
		c.setState(StateDisconnected)
		if resp != nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
				return fmt.Errorf("dial failed: sensor refused credentials (%s)", resp.Status)
			}
			return poll.Transientf("dial failed: %s: %w", resp.Status, err)
		}
		return poll.Transientf("dial failed: %w", err)
	}
	resp.Body.Close()

	c.conn = conn
	c.setState(StateConnected)
	c.logger.Debug().Str("url", c.URL).Msg("Connected to sensor")
	return nil
}

// disconnect closes the WebSocket connection
func (c *Connection) disconnect() {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.setState(StateDisconnected)
}

// Call sends a request and decodes the matching reply's result into result.
// result may be nil when the caller does not need it.
func (c *Connection) Call(ctx context.Context, method string, params interface{}, result interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.callMutex.Lock()
	defer c.callMutex.Unlock()

	if err := c.connect(ctx); err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}

	req := models.RequestMessage{
		ID:     c.newID(),
		Method: method,
	}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("%s: failed to encode params: %w", method, err)
		}
		req.Params = raw
	}
	msg, err := models.NewMessage(models.MessageTypeRequest, req)
	if err != nil {
		return fmt.Errorf("%s: failed to create message: %w", method, err)
	}

	deadline := time.Now().Add(c.callTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	c.conn.SetWriteDeadline(deadline)
	if err := c.conn.WriteJSON(msg); err != nil {
		c.disconnect()
		return poll.Transientf("%s: write failed: %w", method, err)
	}
	c.logger.Debug().Str("method", method).Str("id", req.ID).Msg("Sent request")

	c.conn.SetReadDeadline(deadline)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.disconnect()
			return poll.Transientf("%s: read failed: %w", method, err)
		}

		var reply models.Message
		if err := json.Unmarshal(data, &reply); err != nil {
			// The stream can't be trusted after a garbled frame
			c.disconnect()
			return poll.Transientf("%s: malformed reply: %w", method, err)
		}

		done, err := c.handleReply(method, req.ID, &reply, result)
		if done {
			return err
		}
	}
}

// handleReply processes one reply frame. done is false when the frame
// belongs to another request and should be skipped.
func (c *Connection) handleReply(method, id string, reply *models.Message, result interface{}) (done bool, err error) {
	switch reply.Type {
	case models.MessageTypeResponse:
		var resp models.ResponseMessage
		if err := reply.UnmarshalPayload(&resp); err != nil {
			c.disconnect()
			return true, poll.Transientf("%s: malformed response: %w", method, err)
		}
		if resp.ID != id {
			c.logger.Debug().Str("id", resp.ID).Str("want", id).Msg("Discarding stale response")
			return false, nil
		}
		if result == nil {
			return true, nil
		}
		if err := json.Unmarshal(resp.Result, result); err != nil {
			return true, poll.Transientf("%s: malformed result: %w", method, err)
		}
		return true, nil

	case models.MessageTypeError:
		var errMsg models.ErrorMessage
		if err := reply.UnmarshalPayload(&errMsg); err != nil {
			c.disconnect()
			return true, poll.Transientf("%s: malformed error reply: %w", method, err)
		}
		if errMsg.ID != "" && errMsg.ID != id {
			return false, nil
		}
		c.logger.Debug().Str("method", method).Str("code", errMsg.Code).Msg("Sensor rejected request")
		return true, &sensor.RemoteError{Method: method, Code: errMsg.Code, Message: errMsg.Message}

	default:
		c.logger.Debug().Str("type", string(reply.Type)).Msg("Unknown message type")
		return false, nil
	}
}

// Close gracefully shuts down the connection
func (c *Connection) Close() error {
	c.callMutex.Lock()
	defer c.callMutex.Unlock()

	if c.conn != nil {
		c.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
	}
	c.disconnect()
	c.logger.Debug().Msg("Connection closed")
	return nil
}

// Info returns the sensor's identity and settings record
func (c *Connection) Info(ctx context.Context) (*models.SensorInfo, error) {
	var info models.SensorInfo
	if err := c.Call(ctx, models.MethodGetInfo, nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// Reading returns the current temperature
func (c *Connection) Reading(ctx context.Context) (float64, error) {
	var temperature float64
	if err := c.Call(ctx, models.MethodGetReading, nil, &temperature); err != nil {
		return 0, err
	}
	return temperature, nil
}

// Methods lists the remote methods the sensor supports
func (c *Connection) Methods(ctx context.Context) ([]string, error) {
	var methods []string
	if err := c.Call(ctx, models.MethodGetMethods, nil, &methods); err != nil {
		return nil, err
	}
	return methods, nil
}

// SetName renames the sensor
func (c *Connection) SetName(ctx context.Context, name string) error {
	return c.Call(ctx, models.MethodSetName, models.NameParams{Name: name}, nil)
}

// SetReadingInterval sets how often the sensor takes a new reading
func (c *Connection) SetReadingInterval(ctx context.Context, seconds int) error {
	return c.Call(ctx, models.MethodSetReadingInterval, models.IntervalParams{Interval: seconds}, nil)
}

// ResetToFactory restores the factory name and settings
func (c *Connection) ResetToFactory(ctx context.Context) error {
	return c.Call(ctx, models.MethodResetToFactory, nil, nil)
}

// UpdateFirmware requests a firmware update
func (c *Connection) UpdateFirmware(ctx context.Context) (string, error) {
	var reply string
	if err := c.Call(ctx, models.MethodUpdateFirmware, nil, &reply); err != nil {
		return "", err
	}
	return reply, nil
}

// Reboot requests a reboot
func (c *Connection) Reboot(ctx context.Context) (string, error) {
	var reply string
	if err := c.Call(ctx, models.MethodReboot, nil, &reply); err != nil {
		return "", err
	}
	return reply, nil
}
