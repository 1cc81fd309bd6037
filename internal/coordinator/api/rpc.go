package api

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/trigg3rX/proof-coordinator/internal/signer"
	"github.com/trigg3rX/proof-coordinator/internal/taskstatus"
	"github.com/trigg3rX/proof-coordinator/pkg/datastore"
	"github.com/trigg3rX/proof-coordinator/pkg/types"
)

const (
	MethodReceiveTask   = "ReceiveTask"
	MethodSendProofBack = "SendProofBack"
	MethodQueryProofs   = "QueryProofs"

	ResultSuccess          = "success"
	ResultParameterInvalid = "parameter invalid"

	CodeMethodNotFound = -32601
	CodeInternalError  = -32603
)

var errInvalidParams = errors.New(ResultParameterInvalid)

type rpcRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      json.RawMessage   `json:"id"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
	ID      json.RawMessage `json:"id"`
}

// SegmentProof is one entry of a QueryProofs answer.
type SegmentProof struct {
	ProjectID  string  `json:"project_id"`
	TaskID     string  `json:"task_id"`
	Segment    int     `json:"task_split_id"`
	Status     string  `json:"status"`
	Percentage float64 `json:"task_percentage"`
}

type ProofStatus struct {
	TaskID      string         `json:"task_id"`
	ProjectID   string         `json:"project_id"`
	Status      string         `json:"status"`
	SmallProofs []SegmentProof `json:"small_proofs"`
}

type rpcHandler func(ctx context.Context, params []string) (interface{}, error)

func (s *Server) handleRPC(c *gin.Context) {
	var req rpcRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.logger.Warn("Malformed JSON-RPC envelope", "error", err)
		c.JSON(http.StatusOK, rpcResponse{JSONRPC: "2.0", Result: ResultParameterInvalid, ID: nullID(nil)})
		return
	}
	c.Set("rpc_method", req.Method)
	resp := rpcResponse{JSONRPC: "2.0", ID: nullID(req.ID)}

	handler, ok := s.lookup(req.Method)
	if !ok {
		resp.Error = &rpcError{Code: CodeMethodNotFound, Message: "method not found"}
		c.JSON(http.StatusOK, resp)
		return
	}

	params, err := stringParams(req.Params)
	if err != nil {
		resp.Result = ResultParameterInvalid
		c.JSON(http.StatusOK, resp)
		return
	}

	result, err := handler(c.Request.Context(), params)
	switch {
	case err == nil:
		resp.Result = result
	case errors.Is(err, errInvalidParams), errors.Is(err, signer.ErrInvalidRequest):
		s.logger.Debug("Rejected RPC parameters", "method", req.Method, "error", err)
		resp.Result = ResultParameterInvalid
	default:
		s.logger.Error("RPC call failed", "method", req.Method, "error", err)
		resp.Error = &rpcError{Code: CodeInternalError, Message: "internal error"}
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) lookup(method string) (rpcHandler, bool) {
	if method == MethodReceiveTask {
		return s.receiveTask, true
	}
	project, name, found := strings.Cut(method, "/")
	if !found || project != s.config.ProjectID {
		return nil, false
	}
	switch name {
	case MethodSendProofBack:
		return s.sendProofBack, true
	case MethodQueryProofs:
		return s.queryProofs, true
	default:
		return nil, false
	}
}

func (s *Server) receiveTask(ctx context.Context, params []string) (interface{}, error) {
	req, err := signer.ParseAssignmentRequest(params)
	if err != nil {
		return nil, err
	}
	assignment, err := s.deps.Signer.Sign(ctx, req)
	if err != nil {
		return nil, err
	}
	encoded, err := json.Marshal(assignment)
	if err != nil {
		return nil, err
	}
	return string(encoded), nil
}

func (s *Server) sendProofBack(_ context.Context, params []string) (interface{}, error) {
	if len(params) != 3 || params[0] == "" {
		return nil, errInvalidParams
	}
	if _, err := types.ParseTaskID(params[0]); err != nil {
		return nil, errInvalidParams
	}

	s.deps.Proofs.Push(types.ProofResult{
		TaskID:     params[0],
		Proof:      params[1],
		Degree:     params[2],
		ReceivedAt: time.Now(),
	})
	s.logger.Info("Proof received", "task_id", params[0], "degree", params[2])
	return ResultSuccess, nil
}

func (s *Server) queryProofs(ctx context.Context, params []string) (interface{}, error) {
	if len(params) != 1 || params[0] == "" {
		return nil, errInvalidParams
	}
	taskID := params[0]
	if key, err := types.DecodeTaskKey(taskID); err == nil {
		taskID = hex.EncodeToString(key[:])
	}

	status, err := s.statusFromMirror(ctx, taskID)
	if errors.Is(err, datastore.ErrRecordNotFound) {
		status, err = s.statusFromStore(ctx, taskID)
	}
	if err != nil {
		return nil, err
	}

	encoded, err := json.Marshal(status)
	if err != nil {
		return nil, err
	}
	return string(encoded), nil
}

func (s *Server) statusFromMirror(ctx context.Context, taskID string) (*ProofStatus, error) {
	if s.deps.Mirror == nil {
		return nil, datastore.ErrRecordNotFound
	}
	taskStatus, err := s.deps.Mirror.TaskStatus(ctx, s.config.ProjectID, taskID)
	if err != nil {
		return nil, err
	}
	rows, err := s.deps.Mirror.Segments(ctx, s.config.ProjectID, taskID)
	if err != nil {
		return nil, err
	}

	status := &ProofStatus{
		TaskID:      taskID,
		ProjectID:   s.config.ProjectID,
		Status:      taskStatus,
		SmallProofs: make([]SegmentProof, 0, len(rows)),
	}
	for _, row := range rows {
		status.SmallProofs = append(status.SmallProofs, SegmentProof{
			ProjectID:  row.ProjectID,
			TaskID:     row.TaskID,
			Segment:    row.Segment,
			Status:     row.Status,
			Percentage: row.Percentage,
		})
	}
	return status, nil
}

func (s *Server) statusFromStore(ctx context.Context, taskID string) (*ProofStatus, error) {
	records, err := s.deps.Store.Segments(ctx, s.config.ProjectID, taskID, s.config.SegmentCount)
	if err != nil {
		return nil, err
	}

	status := &ProofStatus{
		TaskID:      taskID,
		ProjectID:   s.config.ProjectID,
		Status:      taskstatus.Aggregate(records),
		SmallProofs: make([]SegmentProof, 0, len(records)),
	}
	for _, r := range records {
		if !r.Known {
			continue
		}
		percentage := 0.0
		if r.Status == types.TaskStatusProven {
			percentage = 100
		}
		status.SmallProofs = append(status.SmallProofs, SegmentProof{
			ProjectID:  s.config.ProjectID,
			TaskID:     taskID,
			Segment:    r.Segment,
			Status:     r.Status.String(),
			Percentage: percentage,
		})
	}
	return status, nil
}

func stringParams(raw []json.RawMessage) ([]string, error) {
	params := make([]string, 0, len(raw))
	for _, p := range raw {
		var v string
		if err := json.Unmarshal(p, &v); err != nil {
			return nil, errInvalidParams
		}
		params = append(params, v)
	}
	return params, nil
}

func nullID(id json.RawMessage) json.RawMessage {
	if len(id) == 0 {
		return json.RawMessage("null")
	}
	return id
}
