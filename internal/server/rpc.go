package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	apperrors "github.com/copyleftdev/bayesopt/internal/errors"
)

// JSON-RPC 2.0 error codes.
const (
	rpcParseError     = -32700
	rpcInvalidRequest = -32600
	rpcMethodNotFound = -32601
	rpcInvalidParams  = -32602
	rpcInternalError  = -32603
	rpcServerError    = -32000
	rpcNotFound       = -32004
)

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type rpcError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

type rpcResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *rpcError   `json:"error,omitempty"`
}

// rpcCode maps an HTTP status to the JSON-RPC error code.
func rpcCode(status int) int {
	switch status {
	case http.StatusBadRequest:
		return rpcInvalidParams
	case http.StatusNotFound:
		return rpcNotFound
	case http.StatusInternalServerError:
		return rpcInternalError
	default:
		return rpcServerError
	}
}

// decodeParams accepts params as an object or as a one-element array holding
// the object.
func decodeParams(raw json.RawMessage, dst interface{}) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		raw = []byte("{}")
	}
	if raw[0] == '[' {
		var positional []json.RawMessage
		if err := json.Unmarshal(raw, &positional); err != nil {
			return apperrors.Wrap(err, "invalid params").WithStatus(http.StatusBadRequest)
		}
		if len(positional) != 1 {
			return apperrors.Errorf("expected 1 positional param, got %d", len(positional)).WithStatus(http.StatusBadRequest)
		}
		raw = positional[0]
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return apperrors.Wrap(err, "invalid params").WithStatus(http.StatusBadRequest)
	}
	return nil
}

type rpcMethod func(s *Server, ctx context.Context, params json.RawMessage) (interface{}, error)

func sessionCall(fn func(s *Server, ctx context.Context, id string) (interface{}, error)) rpcMethod {
	return func(s *Server, ctx context.Context, params json.RawMessage) (interface{}, error) {
		var ref sessionRef
		if err := decodeParams(params, &ref); err != nil {
			return nil, err
		}
		if err := validateRequest(ref); err != nil {
			return nil, err
		}
		return fn(s, ctx, ref.SessionID)
	}
}

var rpcMethods = map[string]rpcMethod{
	"session.create": func(s *Server, _ context.Context, params json.RawMessage) (interface{}, error) {
		var req CreateSessionRequest
		if err := decodeParams(params, &req); err != nil {
			return nil, err
		}
		return s.CreateSession(req)
	},
	"session.status": sessionCall(func(s *Server, _ context.Context, id string) (interface{}, error) {
		return s.SessionStatus(id)
	}),
	"session.delete": sessionCall(func(s *Server, _ context.Context, id string) (interface{}, error) {
		if err := s.DeleteSession(id); err != nil {
			return nil, err
		}
		return map[string]string{"status": "deleted"}, nil
	}),
	"session.clear": sessionCall(func(s *Server, _ context.Context, id string) (interface{}, error) {
		if err := s.ClearSamples(id); err != nil {
			return nil, err
		}
		return map[string]string{"status": "cleared"}, nil
	}),
	"session.next": sessionCall(func(s *Server, ctx context.Context, id string) (interface{}, error) {
		return s.NextSample(ctx, id)
	}),
	"session.addSample": func(s *Server, _ context.Context, params json.RawMessage) (interface{}, error) {
		var p addSampleParams
		if err := decodeParams(params, &p); err != nil {
			return nil, err
		}
		if err := validateRequest(p.sessionRef); err != nil {
			return nil, err
		}
		return s.AddSample(p.SessionID, p.AddSampleRequest)
	},
	"session.seed": func(s *Server, _ context.Context, params json.RawMessage) (interface{}, error) {
		var p seedParams
		if err := decodeParams(params, &p); err != nil {
			return nil, err
		}
		if err := validateRequest(p.sessionRef); err != nil {
			return nil, err
		}
		if err := s.SeedSession(p.SessionID, p.SeedRequest); err != nil {
			return nil, err
		}
		return map[string]string{"status": "seeded"}, nil
	},
}

// handleJSONRPC handles JSON-RPC 2.0 requests. Errors are reported in the
// response body with HTTP 200.
func (s *Server) handleJSONRPC(w http.ResponseWriter, r *http.Request) {
	var request rpcRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&request); err != nil {
		s.respondWithError(w, rpcParseError, "Parse error", nil, nil)
		return
	}

	// Validate JSON-RPC 2.0 request
	if request.JSONRPC != "2.0" || request.Method == "" {
		s.respondWithError(w, rpcInvalidRequest, "Invalid Request", request.ID, nil)
		return
	}

	method, ok := rpcMethods[request.Method]
	if !ok {
		s.respondWithError(w, rpcMethodNotFound, "Method not found", request.ID, nil)
		return
	}

	result, err := method(s, r.Context(), request.Params)
	if err != nil {
		status := statusFor(err)
		s.respondWithError(w, rpcCode(status), err.Error(), request.ID, map[string]interface{}{
			"method": request.Method,
			"status": status,
		})
		return
	}

	writeJSON(w, http.StatusOK, rpcResponse{
		JSONRPC: "2.0",
		ID:      request.ID,
		Result:  result,
	})
}

// respondWithError sends a JSON-RPC 2.0 error response
func (s *Server) respondWithError(w http.ResponseWriter, code int, message string, id interface{}, data map[string]interface{}) {
	fields := map[string]interface{}{
		"code":    code,
		"message": message,
	}
	for k, v := range data {
		fields[k] = v
	}
	if code == rpcInternalError {
		s.logger.Error("RPC error", fields)
	} else {
		s.logger.Debug("RPC error", fields)
	}

	var errData interface{}
	if data != nil {
		errData = data
	}
	writeJSON(w, http.StatusOK, rpcResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &rpcError{Code: code, Message: message, Data: errData},
	})
}
