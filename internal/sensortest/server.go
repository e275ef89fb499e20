package sensortest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/afroash/sensorcheck/internal/models"
	"github.com/afroash/sensorcheck/internal/sensor"
)

const writeWait = 2 * time.Second

// garbledFrame is what the device emits mid-reboot: a truncated envelope
var garbledFrame = []byte(`{"type":"response","payload":{"id":`)

// Server exposes a Device over a WebSocket on a local httptest server
type Server struct {
	upgrader    websocket.Upgrader
	authToken   string
	device      *Device
	logger      zerolog.Logger
	httpServer  *httptest.Server
	mutex       sync.Mutex
	connections []*websocket.Conn
	staleReply  bool
}

// NewServer starts a server for device. Requests must carry
// "Authorization: Bearer <authToken>".
func NewServer(device *Device, authToken string, logger zerolog.Logger) *Server {
	s := &Server{
		authToken: authToken,
		device:    device,
		logger:    logger,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     func(r *http.Request) bool { return true },
	}
	s.httpServer = httptest.NewServer(s)
	return s
}

// URL returns the ws:// address of the server
func (s *Server) URL() string {
	return "ws" + strings.TrimPrefix(s.httpServer.URL, "http")
}

// Close drops every connection and stops the server
func (s *Server) Close() {
	s.mutex.Lock()
	for _, conn := range s.connections {
		conn.Close()
	}
	s.connections = nil
	s.mutex.Unlock()
	s.httpServer.Close()
}

// InjectStaleReply makes the next request get a reply for an unknown
// request ID before its real reply
func (s *Server) InjectStaleReply() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.staleReply = true
}

// ServeHTTP handles WebSocket connection requests
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !s.validateToken(r.Header.Get("Authorization")) {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	if !s.device.Available() {
		http.Error(w, "Sensor unavailable", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to upgrade connection")
		return
	}

	s.mutex.Lock()
	s.connections = append(s.connections, conn)
	s.mutex.Unlock()

	s.handleConnection(conn)
}

// validateToken checks if the auth token is valid
func (s *Server) validateToken(authHeader string) bool {
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return false
	}
	return strings.TrimPrefix(authHeader, "Bearer ") == s.authToken
}

// handleConnection serves requests on one connection until it closes
func (s *Server) handleConnection(conn *websocket.Conn) {
	defer conn.Close()

	for {
		var msg models.Message
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.logger.Warn().Err(err).Msg("WebSocket error")
			}
			return
		}
		s.handleMessage(conn, &msg)
	}
}

// handleMessage answers a single request
func (s *Server) handleMessage(conn *websocket.Conn, msg *models.Message) {
	if msg.Type != models.MessageTypeRequest {
		s.writeError(conn, "", models.ErrorCodeBadRequest, "expected a request")
		return
	}

	var req models.RequestMessage
	if err := msg.UnmarshalPayload(&req); err != nil {
		s.writeError(conn, "", models.ErrorCodeBadRequest, err.Error())
		return
	}
	s.logger.Debug().Str("method", req.Method).Str("id", req.ID).Msg("Received request")

	result, err := s.dispatch(context.Background(), &req)

	var remote *sensor.RemoteError
	switch {
	case errors.Is(err, ErrUnavailable):
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		conn.WriteMessage(websocket.TextMessage, garbledFrame)
	case errors.As(err, &remote):
		s.writeError(conn, req.ID, remote.Code, remote.Message)
	case err != nil:
		s.writeError(conn, req.ID, models.ErrorCodeBadRequest, err.Error())
	default:
		s.mutex.Lock()
		stale := s.staleReply
		s.staleReply = false
		s.mutex.Unlock()
		if stale {
			s.writeResponse(conn, "stale-"+req.ID, "stale")
		}
		s.writeResponse(conn, req.ID, result)
	}
}

// dispatch calls the device method named by req
func (s *Server) dispatch(ctx context.Context, req *models.RequestMessage) (interface{}, error) {
	switch req.Method {
	case models.MethodGetInfo:
		return s.device.Info(ctx)
	case models.MethodGetReading:
		return s.device.Reading(ctx)
	case models.MethodGetMethods:
		return s.device.Methods(ctx)
	case models.MethodSetName:
		var params models.NameParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return nil, invalidParams(req.Method, err)
		}
		return "ok", s.device.SetName(ctx, params.Name)
	case models.MethodSetReadingInterval:
		var params models.IntervalParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return nil, invalidParams(req.Method, err)
		}
		return "ok", s.device.SetReadingInterval(ctx, params.Interval)
	case models.MethodResetToFactory:
		return "ok", s.device.ResetToFactory(ctx)
	case models.MethodUpdateFirmware:
		return s.device.UpdateFirmware(ctx)
	case models.MethodReboot:
		return s.device.Reboot(ctx)
	default:
		return nil, &sensor.RemoteError{
			Method:  req.Method,
			Code:    models.ErrorCodeUnknownMethod,
			Message: "unknown method",
		}
	}
}

func invalidParams(method string, err error) error {
	return &sensor.RemoteError{Method: method, Code: models.ErrorCodeInvalidParams, Message: err.Error()}
}

// writeResponse sends a response envelope carrying result
func (s *Server) writeResponse(conn *websocket.Conn, id string, result interface{}) {
	raw, err := json.Marshal(result)
	if err != nil {
		s.writeError(conn, id, models.ErrorCodeBadRequest, err.Error())
		return
	}
	msg, err := models.NewMessage(models.MessageTypeResponse, models.ResponseMessage{ID: id, Result: raw})
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to create response message")
		return
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(msg); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to send response")
	}
}

// writeError sends an error envelope
func (s *Server) writeError(conn *websocket.Conn, id, code, message string) {
	msg, err := models.NewMessage(models.MessageTypeError, models.ErrorMessage{ID: id, Code: code, Message: message})
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to create error message")
		return
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(msg); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to send error")
	}
}
