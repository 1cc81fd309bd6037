package chain

import (
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const (
	TaskSubmittedEvent = "TaskSubmitted"
	DefaultProofMethod = "proveTask"
)

// taskPoolABI is the subset of the task pool contract the coordinator touches.
const taskPoolABI = `[
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true,  "internalType": "address", "name": "requester",       "type": "address"},
      {"indexed": true,  "internalType": "address", "name": "prover",          "type": "address"},
      {"indexed": false, "internalType": "bytes",   "name": "instance",        "type": "bytes"},
      {"indexed": false, "internalType": "bytes32", "name": "taskKey",         "type": "bytes32"},
      {"indexed": false, "internalType": "address", "name": "rewardToken",     "type": "address"},
      {"indexed": false, "internalType": "uint256", "name": "rewardAmount",    "type": "uint256"},
      {"indexed": false, "internalType": "uint64",  "name": "liabilityWindow", "type": "uint64"},
      {"indexed": false, "internalType": "address", "name": "liabilityToken",  "type": "address"},
      {"indexed": false, "internalType": "uint256", "name": "liabilityAmount", "type": "uint256"}
    ],
    "name": "TaskSubmitted",
    "type": "event"
  },
  {
    "inputs": [
      {"internalType": "bytes32", "name": "taskKey", "type": "bytes32"},
      {"internalType": "bytes",   "name": "proof",   "type": "bytes"}
    ],
    "name": "proveTask",
    "outputs": [],
    "stateMutability": "nonpayable",
    "type": "function"
  },
  {
    "inputs": [
      {"internalType": "bytes32", "name": "taskKey", "type": "bytes32"},
      {"internalType": "bytes",   "name": "proof",   "type": "bytes"}
    ],
    "name": "submitProof",
    "outputs": [],
    "stateMutability": "nonpayable",
    "type": "function"
  }
]`

var (
	parsedABI     abi.ABI
	parsedABIErr  error
	parsedABIOnce sync.Once
)

// ContractABI returns the parsed task pool ABI.
func ContractABI() (abi.ABI, error) {
	parsedABIOnce.Do(func() {
		parsedABI, parsedABIErr = abi.JSON(strings.NewReader(taskPoolABI))
	})
	return parsedABI, parsedABIErr
}

func proofMethod(contractABI abi.ABI, name string) (abi.Method, error) {
	if name == "" {
		name = DefaultProofMethod
	}
	method, ok := contractABI.Methods[name]
	if !ok {
		return abi.Method{}, fmt.Errorf("%w: method %q not in contract ABI", ErrInvalidConfig, name)
	}
	return method, nil
}
