package contracts

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const vaultABIJSON = `[
  {"inputs": [], "name": "vaultConfiguration", "outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}], "stateMutability": "view", "type": "function"},
  {"inputs": [{"internalType": "uint256", "name": "_vaultConfiguration", "type": "uint256"}], "name": "setVaultConfiguration", "outputs": [], "stateMutability": "nonpayable", "type": "function"},
  {"inputs": [{"internalType": "uint256", "name": "_riskProfileCode", "type": "uint256"}], "name": "setRiskProfileCode", "outputs": [], "stateMutability": "nonpayable", "type": "function"},
  {"inputs": [{"internalType": "bool", "name": "_unpaused", "type": "bool"}], "name": "setUnpaused", "outputs": [], "stateMutability": "nonpayable", "type": "function"},
  {"inputs": [{"internalType": "bool", "name": "_emergencyShutdown", "type": "bool"}], "name": "setEmergencyShutdown", "outputs": [], "stateMutability": "nonpayable", "type": "function"},
  {"inputs": [], "name": "whitelistedAccountsRoot", "outputs": [{"internalType": "bytes32", "name": "", "type": "bytes32"}], "stateMutability": "view", "type": "function"},
  {"inputs": [{"internalType": "bytes32", "name": "_whitelistedAccountsRoot", "type": "bytes32"}], "name": "setWhitelistedAccountsRoot", "outputs": [], "stateMutability": "nonpayable", "type": "function"},
  {"inputs": [], "name": "userDepositCapUT", "outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "minimumDepositValueUT", "outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "totalValueLockedLimitUT", "outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}], "stateMutability": "view", "type": "function"},
  {
    "inputs": [
      {"internalType": "uint256", "name": "_userDepositCapUT", "type": "uint256"},
      {"internalType": "uint256", "name": "_minimumDepositValueUT", "type": "uint256"},
      {"internalType": "uint256", "name": "_totalValueLockedLimitUT", "type": "uint256"}
    ],
    "name": "setValueControlParams",
    "outputs": [],
    "stateMutability": "nonpayable",
    "type": "function"
  }
]`

const registryABIJSON = `[
  {"inputs": [{"internalType": "address", "name": "_token", "type": "address"}], "name": "isApprovedToken", "outputs": [{"internalType": "bool", "name": "", "type": "bool"}], "stateMutability": "view", "type": "function"},
  {"inputs": [{"internalType": "address", "name": "_token", "type": "address"}], "name": "approveToken", "outputs": [], "stateMutability": "nonpayable", "type": "function"},
  {"inputs": [{"internalType": "address", "name": "_token", "type": "address"}], "name": "revokeToken", "outputs": [], "stateMutability": "nonpayable", "type": "function"},
  {"inputs": [{"internalType": "bytes32", "name": "_tokensHash", "type": "bytes32"}], "name": "getTokensHashToTokenList", "outputs": [{"internalType": "address[]", "name": "", "type": "address[]"}], "stateMutability": "view", "type": "function"},
  {"inputs": [{"internalType": "address[]", "name": "_tokens", "type": "address[]"}], "name": "setTokensHashToTokens", "outputs": [], "stateMutability": "nonpayable", "type": "function"},
  {"inputs": [], "name": "getGovernance", "outputs": [{"internalType": "address", "name": "", "type": "address"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "getOperator", "outputs": [{"internalType": "address", "name": "", "type": "address"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "getFinanceOperator", "outputs": [{"internalType": "address", "name": "", "type": "address"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "getRiskOperator", "outputs": [{"internalType": "address", "name": "", "type": "address"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "getStrategyOperator", "outputs": [{"internalType": "address", "name": "", "type": "address"}], "stateMutability": "view", "type": "function"}
]`

const strategyProviderABIJSON = `[
  {
    "inputs": [
      {"internalType": "uint256", "name": "_riskProfileCode", "type": "uint256"},
      {"internalType": "bytes32", "name": "_tokensHash", "type": "bytes32"}
    ],
    "name": "getRpToTokenToBestStrategy",
    "outputs": [
      {
        "components": [
          {"internalType": "address", "name": "pool", "type": "address"},
          {"internalType": "address", "name": "outputToken", "type": "address"},
          {"internalType": "bool", "name": "isBorrow", "type": "bool"}
        ],
        "internalType": "struct DataTypes.StrategyStep[]",
        "name": "",
        "type": "tuple[]"
      }
    ],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [
      {"internalType": "uint256", "name": "_riskProfileCode", "type": "uint256"},
      {"internalType": "bytes32", "name": "_tokensHash", "type": "bytes32"},
      {
        "components": [
          {"internalType": "address", "name": "pool", "type": "address"},
          {"internalType": "address", "name": "outputToken", "type": "address"},
          {"internalType": "bool", "name": "isBorrow", "type": "bool"}
        ],
        "internalType": "struct DataTypes.StrategyStep[]",
        "name": "_strategySteps",
        "type": "tuple[]"
      }
    ],
    "name": "setBestStrategy",
    "outputs": [],
    "stateMutability": "nonpayable",
    "type": "function"
  }
]`

const proxyABIJSON = `[
  {"inputs": [], "name": "implementation", "outputs": [{"internalType": "address", "name": "", "type": "address"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "pendingImplementation", "outputs": [{"internalType": "address", "name": "", "type": "address"}], "stateMutability": "view", "type": "function"},
  {"inputs": [{"internalType": "address", "name": "_newPendingImplementation", "type": "address"}], "name": "setPendingImplementation", "outputs": [], "stateMutability": "nonpayable", "type": "function"}
]`

const implementationABIJSON = `[
  {"inputs": [{"internalType": "address", "name": "_proxy", "type": "address"}], "name": "become", "outputs": [], "stateMutability": "nonpayable", "type": "function"}
]`

type lazyABI struct {
	source string
	once   sync.Once
	parsed abi.ABI
	err    error
}

func (l *lazyABI) get() (abi.ABI, error) {
	l.once.Do(func() {
		l.parsed, l.err = abi.JSON(strings.NewReader(l.source))
	})
	return l.parsed, l.err
}

var (
	vaultABI            = &lazyABI{source: vaultABIJSON}
	registryABI         = &lazyABI{source: registryABIJSON}
	strategyProviderABI = &lazyABI{source: strategyProviderABIJSON}
	proxyABI            = &lazyABI{source: proxyABIJSON}
	implementationABI   = &lazyABI{source: implementationABIJSON}
)

// VaultABI returns the parsed vault ABI.
func VaultABI() (abi.ABI, error) { return vaultABI.get() }

// RegistryABI returns the parsed registry ABI.
func RegistryABI() (abi.ABI, error) { return registryABI.get() }

// StrategyProviderABI returns the parsed strategy provider ABI.
func StrategyProviderABI() (abi.ABI, error) { return strategyProviderABI.get() }

// ProxyABI returns the parsed upgradeable proxy ABI.
func ProxyABI() (abi.ABI, error) { return proxyABI.get() }

// ImplementationABI returns the ABI shared by upgradeable implementations.
func ImplementationABI() (abi.ABI, error) { return implementationABI.get() }
