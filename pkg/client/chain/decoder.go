package chain

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/trigg3rX/proof-coordinator/pkg/types"
)

var (
	ErrUnexpectedEvent = errors.New("log does not match TaskSubmitted")
	ErrMalformedLog    = errors.New("malformed TaskSubmitted log")
)

// EventDecoder turns TaskSubmitted logs into TaskSubmission records.
type EventDecoder struct {
	event abi.Event
}

func NewEventDecoder() (*EventDecoder, error) {
	contractABI, err := ContractABI()
	if err != nil {
		return nil, fmt.Errorf("failed to parse contract ABI: %w", err)
	}
	event, ok := contractABI.Events[TaskSubmittedEvent]
	if !ok {
		return nil, fmt.Errorf("event %s missing from contract ABI", TaskSubmittedEvent)
	}
	return &EventDecoder{event: event}, nil
}

// Topic is the event signature hash used as topic[0].
func (d *EventDecoder) Topic() common.Hash {
	return d.event.ID
}

func (d *EventDecoder) Decode(log ethtypes.Log) (*types.TaskSubmission, error) {
	if len(log.Topics) == 0 || log.Topics[0] != d.event.ID {
		return nil, ErrUnexpectedEvent
	}
	// requester and prover are indexed
	if len(log.Topics) != 3 {
		return nil, fmt.Errorf("%w: expected 3 topics, got %d", ErrMalformedLog, len(log.Topics))
	}

	fields := make(map[string]interface{})
	if err := d.event.Inputs.NonIndexed().UnpackIntoMap(fields, log.Data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedLog, err)
	}

	task := &types.TaskSubmission{
		Requester:   common.BytesToAddress(log.Topics[1].Bytes()),
		Prover:      common.BytesToAddress(log.Topics[2].Bytes()),
		BlockNumber: log.BlockNumber,
		TxHash:      log.TxHash,
	}

	var ok bool
	if task.Instance, ok = fields["instance"].([]byte); !ok {
		return nil, fieldError("instance")
	}
	if task.TaskKey, ok = fields["taskKey"].([32]byte); !ok {
		return nil, fieldError("taskKey")
	}
	if task.RewardToken, ok = fields["rewardToken"].(common.Address); !ok {
		return nil, fieldError("rewardToken")
	}
	if task.RewardAmount, ok = fields["rewardAmount"].(*big.Int); !ok {
		return nil, fieldError("rewardAmount")
	}
	if task.LiabilityWindow, ok = fields["liabilityWindow"].(uint64); !ok {
		return nil, fieldError("liabilityWindow")
	}
	if task.LiabilityToken, ok = fields["liabilityToken"].(common.Address); !ok {
		return nil, fieldError("liabilityToken")
	}
	if task.LiabilityAmount, ok = fields["liabilityAmount"].(*big.Int); !ok {
		return nil, fieldError("liabilityAmount")
	}

	return task, nil
}

func fieldError(name string) error {
	return fmt.Errorf("%w: unexpected type for field %s", ErrMalformedLog, name)
}
