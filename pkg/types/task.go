package types

import (
	"encoding/hex"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// TaskSubmission is a decoded TaskSubmitted event. Identity is TaskKey.
type TaskSubmission struct {
	Requester       common.Address `json:"requester"`
	Prover          common.Address `json:"prover"`
	Instance        []byte         `json:"instance"`
	TaskKey         [32]byte       `json:"task_key"`
	RewardToken     common.Address `json:"reward_token"`
	RewardAmount    *big.Int       `json:"reward_amount"`
	LiabilityWindow uint64         `json:"liability_window"`
	LiabilityToken  common.Address `json:"liability_token"`
	LiabilityAmount *big.Int       `json:"liability_amount"`

	BlockNumber uint64      `json:"block_number"`
	TxHash      common.Hash `json:"tx_hash"`
}

// TaskKeyHex is the lower-case hex task key without 0x, the form used in composite keys.
func (t *TaskSubmission) TaskKeyHex() string {
	return hex.EncodeToString(t.TaskKey[:])
}

func (t *TaskSubmission) InstanceHex() string {
	return hex.EncodeToString(t.Instance)
}

// SegmentIdentity identifies one dispatched unit of work.
type SegmentIdentity struct {
	ProjectID string `json:"project_id"`
	TaskID    string `json:"task_id"`
	Segment   int    `json:"segment"`
}

// ProofResult is what the proof producer sends back. TaskID may be composite.
type ProofResult struct {
	TaskID     string    `json:"task_id"`
	Proof      string    `json:"proof"`
	Degree     string    `json:"degree"`
	ReceivedAt time.Time `json:"received_at"`
}

// DispatchRequest is one scheduler call for one segment.
type DispatchRequest struct {
	ProjectID    string `json:"project_id"`
	CompositeKey string `json:"composite_key"`
	Instance     string `json:"instance"`
	Priority     string `json:"priority"`
}

// Params returns the positional DelieveTask parameters.
func (r DispatchRequest) Params() []interface{} {
	return []interface{}{r.ProjectID, r.CompositeKey, r.Instance, r.Priority}
}

// PendingTransaction is built fresh for every proof submission and never persisted.
type PendingTransaction struct {
	Nonce     uint64
	GasPrice  *big.Int
	GasLimit  uint64
	Data      []byte
	To        common.Address
	Signature []byte
	Hash      common.Hash
}
