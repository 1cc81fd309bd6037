package config

import (
	"github.com/urfave/cli/v2"
)

const (
	FlagConfig    = "config"
	FlagEnvFile   = "env-file"
	FlagKey       = "key"
	FlagAPI       = "api"
	FlagScheduler = "scheduler"
	FlagStartNum  = "start_num"
	FlagContract  = "contract"
	FlagRPC       = "rpc"
	FlagDev       = "dev"
)

func Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: FlagConfig, Usage: "optional YAML config file"},
		&cli.StringFlag{Name: FlagEnvFile, Value: ".env", Usage: "dotenv file, skipped when missing"},
		&cli.StringFlag{Name: FlagKey, Usage: "coordinator private key, hex"},
		&cli.StringFlag{Name: FlagAPI, Usage: "listen address of the inbound RPC API"},
		&cli.StringFlag{Name: FlagScheduler, Usage: "scheduler JSON-RPC URL"},
		&cli.Uint64Flag{Name: FlagStartNum, Usage: "block after which to start scanning, 0 for the current height"},
		&cli.StringFlag{Name: FlagContract, Usage: "task marketplace contract address"},
		&cli.StringSliceFlag{Name: FlagRPC, Usage: "chain RPC endpoint, repeatable"},
		&cli.BoolFlag{Name: FlagDev, Usage: "development logging and gin debug mode"},
	}
}

// FromCLI loads the layered configuration, applies explicitly set flags on top and validates.
func FromCLI(c *cli.Context) (Config, error) {
	cfg, err := Load(c.String(FlagConfig), c.String(FlagEnvFile))
	if err != nil {
		return Config{}, err
	}

	if c.IsSet(FlagKey) {
		cfg.PrivateKey = c.String(FlagKey)
	}
	if c.IsSet(FlagAPI) {
		cfg.ListenAddr = c.String(FlagAPI)
	}
	if c.IsSet(FlagScheduler) {
		cfg.SchedulerURL = c.String(FlagScheduler)
	}
	if c.IsSet(FlagStartNum) {
		cfg.StartBlock = c.Uint64(FlagStartNum)
	}
	if c.IsSet(FlagContract) {
		cfg.ContractAddress = c.String(FlagContract)
	}
	if c.IsSet(FlagRPC) {
		cfg.RPCURLs = c.StringSlice(FlagRPC)
	}
	if c.IsSet(FlagDev) {
		cfg.DevMode = c.Bool(FlagDev)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
