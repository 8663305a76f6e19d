package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common"
)

type Config struct {
	RPCAddress   string `toml:"RPCAddress"`
	DataDir      string `toml:"DataDir"`
	NetworkName  string `toml:"NetworkName"`
	RPCAuthToken string `toml:"RPCAuthToken,omitempty"`

	ProtocolAddress string `toml:"ProtocolAddress"`
	OwnerAddress    string `toml:"OwnerAddress"`

	MintFeeRecipient string `toml:"MintFeeRecipient,omitempty"`
	MintFeeBps       uint64 `toml:"MintFeeBps"`

	LogFile       string `toml:"LogFile,omitempty"`
	LogMaxSizeMB  int    `toml:"LogMaxSizeMB,omitempty"`
	LogMaxBackups int    `toml:"LogMaxBackups,omitempty"`
	LogMaxAgeDays int    `toml:"LogMaxAgeDays,omitempty"`

	OTELEndpoint string `toml:"OTELEndpoint,omitempty"`
	OTELInsecure bool   `toml:"OTELInsecure,omitempty"`

	Strategies []StrategyConfig `toml:"Strategies"`
}

// StrategyConfig declares a strategy vault to register at startup together
// with the principal asset backing it.
type StrategyConfig struct {
	Address         string `toml:"Address"`
	PrincipalName   string `toml:"PrincipalName"`
	PrincipalSymbol string `toml:"PrincipalSymbol"`
	FTokenName      string `toml:"FTokenName"`
	FTokenSymbol    string `toml:"FTokenSymbol"`
}

// Load loads the configuration from the given path.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	for _, undecoded := range meta.Undecoded() {
		if len(undecoded) == 1 && undecoded[0] == "FeeBasisPoints" {
			return nil, fmt.Errorf("config file %s uses deprecated FeeBasisPoints field; rename it to MintFeeBps", path)
		}
	}

	if strings.TrimSpace(cfg.NetworkName) == "" {
		cfg.NetworkName = "flash-local"
	}
	if cfg.Strategies == nil {
		cfg.Strategies = []StrategyConfig{}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks address fields and fee bounds before the node starts.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.RPCAddress) == "" {
		return fmt.Errorf("config: RPCAddress must not be empty")
	}
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("config: DataDir must not be empty")
	}
	if _, err := parseAddress(c.ProtocolAddress, "ProtocolAddress"); err != nil {
		return err
	}
	if _, err := parseAddress(c.OwnerAddress, "OwnerAddress"); err != nil {
		return err
	}
	if c.MintFeeBps > 0 {
		if _, err := parseAddress(c.MintFeeRecipient, "MintFeeRecipient"); err != nil {
			return err
		}
	}
	if c.MintFeeBps > 2000 {
		return fmt.Errorf("config: MintFeeBps %d exceeds the 2000 cap", c.MintFeeBps)
	}
	for i := range c.Strategies {
		if _, err := parseAddress(c.Strategies[i].Address, fmt.Sprintf("Strategies[%d].Address", i)); err != nil {
			return err
		}
		if strings.TrimSpace(c.Strategies[i].FTokenSymbol) == "" {
			return fmt.Errorf("config: Strategies[%d] needs an FTokenSymbol", i)
		}
	}
	return nil
}

// ParseAddress parses a hex address value from the config, reporting the
// offending field name on failure.
func ParseAddress(value, field string) (common.Address, error) {
	return parseAddress(value, field)
}

func parseAddress(value, field string) (common.Address, error) {
	trimmed := strings.TrimSpace(value)
	if !common.IsHexAddress(trimmed) {
		return common.Address{}, fmt.Errorf("config: %s %q is not a valid hex address", field, value)
	}
	return common.HexToAddress(trimmed), nil
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := &Config{
		RPCAddress:      ":8545",
		DataDir:         "./flash-data",
		NetworkName:     "flash-local",
		ProtocolAddress: "0x0000000000000000000000000000000000000f1a",
		OwnerAddress:    "0x0000000000000000000000000000000000000001",
		MintFeeBps:      0,
		Strategies:      []StrategyConfig{},
	}
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
