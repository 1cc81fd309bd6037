// Package signer produces assignment commitments: signatures binding this prover to a
// task's reward and liability terms until an expiry block.
package signer

import (
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/trigg3rX/proof-coordinator/pkg/cryptography"
	"github.com/trigg3rX/proof-coordinator/pkg/logging"
)

const DefaultExpiryOffset uint64 = 2000

var ErrInvalidRequest = errors.New("parameter invalid")

type HeightSource interface {
	CurrentBlockHeight(ctx context.Context) (uint64, error)
}

type AssignmentRequest struct {
	Instance        string
	LiabilityWindow uint64
	LiabilityToken  common.Address
	Liability       *big.Int
	RewardToken     common.Address
	Reward          *big.Int
}

// Assignment is returned to the requester as a JSON string.
type Assignment struct {
	Prover          string   `json:"prover"`
	Instance        string   `json:"instance"`
	RewardToken     string   `json:"reward_token"`
	Reward          *big.Int `json:"reward"`
	LiabilityWindow uint64   `json:"liability_window"`
	LiabilityToken  string   `json:"liability_token"`
	Liability       *big.Int `json:"liability"`
	Expiry          uint64   `json:"expiry"`
	Signature       string   `json:"signature"`
}

// ParseAssignmentRequest reads the six positional ReceiveTask params:
// instance, liability_window, liability_token, liability, reward_token, reward.
func ParseAssignmentRequest(params []string) (AssignmentRequest, error) {
	var req AssignmentRequest
	if len(params) != 6 {
		return req, fmt.Errorf("%w: want 6 params, got %d", ErrInvalidRequest, len(params))
	}

	window, err := strconv.ParseUint(params[1], 10, 64)
	if err != nil {
		return req, fmt.Errorf("%w: liability_window %q", ErrInvalidRequest, params[1])
	}
	liabilityToken, err := parseAddress(params[2])
	if err != nil {
		return req, err
	}
	liability, err := parseAmount(params[3])
	if err != nil {
		return req, err
	}
	rewardToken, err := parseAddress(params[4])
	if err != nil {
		return req, err
	}
	reward, err := parseAmount(params[5])
	if err != nil {
		return req, err
	}

	return AssignmentRequest{
		Instance:        params[0],
		LiabilityWindow: window,
		LiabilityToken:  liabilityToken,
		Liability:       liability,
		RewardToken:     rewardToken,
		Reward:          reward,
	}, nil
}

func parseAddress(raw string) (common.Address, error) {
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("%w: address %q", ErrInvalidRequest, raw)
	}
	return common.HexToAddress(raw), nil
}

func parseAmount(raw string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(raw, 10)
	if !ok || v.Sign() < 0 || v.BitLen() > 256 {
		return nil, fmt.Errorf("%w: amount %q", ErrInvalidRequest, raw)
	}
	return v, nil
}

type Signer struct {
	key          *ecdsa.PrivateKey
	address      common.Address
	heights      HeightSource
	expiryOffset uint64
	arguments    abi.Arguments
	logger       logging.Logger
}

type Option func(*Signer)

func WithExpiryOffset(offset uint64) Option {
	return func(s *Signer) {
		s.expiryOffset = offset
	}
}

func NewSigner(key *ecdsa.PrivateKey, heights HeightSource, logger logging.Logger, opts ...Option) (*Signer, error) {
	if key == nil {
		return nil, fmt.Errorf("private key cannot be nil")
	}
	if heights == nil {
		return nil, fmt.Errorf("height source cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	arguments, err := commitmentArguments()
	if err != nil {
		return nil, err
	}

	s := &Signer{
		key:          key,
		address:      crypto.PubkeyToAddress(key.PublicKey),
		heights:      heights,
		expiryOffset: DefaultExpiryOffset,
		arguments:    arguments,
		logger:       logger.With("component", "task-signer"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// commitmentArguments is abi.encode(bytes, address, uint256, address, uint256, uint256, uint256).
func commitmentArguments() (abi.Arguments, error) {
	var args abi.Arguments
	for _, name := range []string{"bytes", "address", "uint256", "address", "uint256", "uint256", "uint256"} {
		typ, err := abi.NewType(name, "", nil)
		if err != nil {
			return nil, fmt.Errorf("build commitment type %s: %w", name, err)
		}
		args = append(args, abi.Argument{Type: typ})
	}
	return args, nil
}

func (s *Signer) Address() common.Address {
	return s.address
}

// Digest is keccak256(abi.encode(instance, rewardToken, reward, liabilityToken, liability, expiry, liabilityWindow)).
func (s *Signer) Digest(req AssignmentRequest, expiry uint64) ([]byte, error) {
	encoded, err := s.arguments.Pack(
		[]byte(req.Instance),
		req.RewardToken,
		amountOrZero(req.Reward),
		req.LiabilityToken,
		amountOrZero(req.Liability),
		new(big.Int).SetUint64(expiry),
		new(big.Int).SetUint64(req.LiabilityWindow),
	)
	if err != nil {
		return nil, fmt.Errorf("encode commitment: %w", err)
	}
	return crypto.Keccak256(encoded), nil
}

func amountOrZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

func (s *Signer) Sign(ctx context.Context, req AssignmentRequest) (*Assignment, error) {
	height, err := s.heights.CurrentBlockHeight(ctx)
	if err != nil {
		return nil, fmt.Errorf("read block height: %w", err)
	}
	expiry := height + s.expiryOffset

	digest, err := s.Digest(req, expiry)
	if err != nil {
		return nil, err
	}
	signature, err := cryptography.SignPersonalHash(digest, s.key)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("Signed assignment",
		"digest", hex.EncodeToString(digest),
		"expiry", expiry,
		"signature", hex.EncodeToString(signature),
	)

	return &Assignment{
		Prover:          s.address.Hex(),
		Instance:        req.Instance,
		RewardToken:     req.RewardToken.Hex(),
		Reward:          amountOrZero(req.Reward),
		LiabilityWindow: req.LiabilityWindow,
		LiabilityToken:  req.LiabilityToken.Hex(),
		Liability:       amountOrZero(req.Liability),
		Expiry:          expiry,
		Signature:       hex.EncodeToString(signature),
	}, nil
}
