package manifest

import (
	"bufio"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common"

	"vaultctl/internal/model"
)

// File is the desired-state manifest as written on disk.
type File struct {
	ChainID       string     `toml:"chain_id"`
	RolesRegistry string     `toml:"roles_registry"`
	Units         []UnitSpec `toml:"unit"`

	dir string
}

// UnitSpec is one [[unit]] table. Which fields apply depends on Kind.
type UnitSpec struct {
	ID        string   `toml:"id"`
	Kind      string   `toml:"kind"`
	DependsOn []string `toml:"depends_on"`

	Vault            string `toml:"vault"`
	Registry         string `toml:"registry"`
	StrategyProvider string `toml:"strategy_provider"`
	Proxy            string `toml:"proxy"`
	Implementation   string `toml:"implementation"`

	Field string      `toml:"field"`
	Value interface{} `toml:"value"`

	UserDepositCap interface{} `toml:"user_deposit_cap"`
	MinimumDeposit interface{} `toml:"minimum_deposit"`
	TVLLimit       interface{} `toml:"tvl_limit"`

	Token    string   `toml:"token"`
	Approved *bool    `toml:"approved"`
	Tokens   []string `toml:"tokens"`

	RiskProfileCode *int64     `toml:"risk_profile_code"`
	Steps           []StepSpec `toml:"steps"`

	Accounts     []string `toml:"accounts"`
	AccountsFile string   `toml:"accounts_file"`
	Artifact     string   `toml:"artifact"`

	AutoAccept bool   `toml:"auto_accept"`
	RecordAs   string `toml:"record_as"`
}

// StepSpec is one [[unit.steps]] entry.
type StepSpec struct {
	Pool        string `toml:"pool"`
	OutputToken string `toml:"output_token"`
	IsBorrow    bool   `toml:"is_borrow"`
}

// Load reads and decodes a manifest file. Unknown keys are rejected so a
// typo never silently drops desired state.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	f, err := Parse(string(data))
	if err != nil {
		return nil, err
	}
	f.dir = filepath.Dir(path)
	return f, nil
}

// Parse decodes manifest text.
func Parse(data string) (*File, error) {
	var f File
	meta, err := toml.Decode(data, &f)
	if err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		sort.Strings(keys)
		return nil, model.NewValidationError("manifest", "unknown keys: %s", strings.Join(keys, ", "))
	}
	for i := range f.Units {
		f.Units[i].ID = strings.TrimSpace(f.Units[i].ID)
		f.Units[i].Kind = strings.TrimSpace(f.Units[i].Kind)
	}
	return &f, nil
}

func (f *File) resolvePath(path string) string {
	if path == "" || filepath.IsAbs(path) || f.dir == "" {
		return path
	}
	return filepath.Join(f.dir, path)
}

func scalarString(field string, v interface{}) (string, error) {
	switch t := v.(type) {
	case nil:
		return "", model.NewValidationError(field, "value is required")
	case string:
		return strings.TrimSpace(t), nil
	case bool, int64, int, uint64:
		return fmt.Sprint(t), nil
	case float64:
		return "", model.NewValidationError(field, "fractional value %v is not allowed", t)
	default:
		return "", model.NewValidationError(field, "unsupported value type %T", v)
	}
}

func parseUint(field string, v interface{}) (*big.Int, error) {
	s, err := scalarString(field, v)
	if err != nil {
		return nil, err
	}
	s = strings.ReplaceAll(s, "_", "")
	n, ok := new(big.Int).SetString(s, 0)
	if !ok || n.Sign() < 0 {
		return nil, model.NewValidationError(field, "invalid unsigned integer %q", s)
	}
	return n, nil
}

func parseAddress(field, input string) (common.Address, error) {
	input = strings.TrimSpace(input)
	if !common.IsHexAddress(input) {
		return common.Address{}, model.NewValidationError(field, "invalid address %q", input)
	}
	return common.HexToAddress(input), nil
}

func parseAddresses(field string, inputs []string) ([]common.Address, error) {
	out := make([]common.Address, 0, len(inputs))
	for i, in := range inputs {
		addr, err := parseAddress(fmt.Sprintf("%s[%d]", field, i), in)
		if err != nil {
			return nil, err
		}
		out = append(out, addr)
	}
	return out, nil
}

// ReadAccounts loads one address per line; blank lines and # comments are
// ignored.
func ReadAccounts(path string) ([]common.Address, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open accounts file: %w", err)
	}
	defer file.Close()

	var out []common.Address
	scanner := bufio.NewScanner(file)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if idx := strings.Index(text, "#"); idx >= 0 {
			text = strings.TrimSpace(text[:idx])
		}
		if text == "" {
			continue
		}
		addr, err := parseAddress(fmt.Sprintf("%s:%d", filepath.Base(path), line), text)
		if err != nil {
			return nil, err
		}
		out = append(out, addr)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read accounts file: %w", err)
	}
	return out, nil
}
