package config

import (
	"fmt"
	"os"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

const (
	// DatadirKey is the local data directory to store the internal state of the daemon
	DatadirKey = "DATA_DIR_PATH"
	// LogLevelKey are the different logging levels. For reference on the values https://godoc.org/github.com/sirupsen/logrus#Level
	LogLevelKey = "LOG_LEVEL"
	// NetworkKey is the network to use. Either "mainnet", "testnet" or "regtest"
	NetworkKey = "NETWORK"
	// RelayEndpointKey is the endpoint of the trade relay REST API
	RelayEndpointKey = "RELAY_ENDPOINT"
	// ExplorerEndpointKey is the endpoint where the esplora REST API is listening
	ExplorerEndpointKey = "EXPLORER_ENDPOINT"
	// ProfileWIFKey is the WIF encoded identity and wallet key of the local profile
	ProfileWIFKey = "PROFILE_WIF"
	// ArbitratorPubKeyKey is the hex encoded identity key of the arbitrator to use for new trades
	ArbitratorPubKeyKey = "ARBITRATOR_PUBKEY"
	// ArbitratorEnabledKey starts the daemon as the arbitrator watching the global dispute feed
	ArbitratorEnabledKey = "ARBITRATOR_ENABLED"
	// PollIntervalKey is the interval in milliseconds between relay feed polls
	PollIntervalKey = "POLL_INTERVAL"
	// PollLimitKey is the number of requests per second the poller makes to the relay
	PollLimitKey = "POLL_LIMIT"
	// FeePerKbKey is the fee rate in satoshis per kilobyte used for escrow transactions
	FeePerKbKey = "FEE_PER_KB"

	// DbLocation is the folder inside the datadir containing the database
	DbLocation = "db"

	mainnetNetwork = "mainnet"
	testnetNetwork = "testnet"
	regtestNetwork = "regtest"
)

var vip *viper.Viper
var defaultDatadir = btcutil.AppDataDir("escrowd", false)

func init() {
	vip = viper.New()
	vip.SetEnvPrefix("ESCROWD")
	vip.AutomaticEnv()

	vip.SetDefault(DatadirKey, defaultDatadir)
	vip.SetDefault(LogLevelKey, 4)
	vip.SetDefault(NetworkKey, testnetNetwork)
	vip.SetDefault(ExplorerEndpointKey, "https://blockstream.info/testnet/api")
	vip.SetDefault(PollIntervalKey, 5000)
	vip.SetDefault(PollLimitKey, 5)
	vip.SetDefault(FeePerKbKey, 20000)

	if err := validate(); err != nil {
		log.WithError(err).Panic("error while validating config")
	}

	if err := initDatadir(); err != nil {
		log.WithError(err).Panic("error while creating datadir")
	}
}

//GetString ...
func GetString(key string) string {
	return vip.GetString(key)
}

//GetInt ...
func GetInt(key string) int {
	return vip.GetInt(key)
}

//GetDuration ...
func GetDuration(key string) time.Duration {
	return vip.GetDuration(key)
}

//GetBool ...
func GetBool(key string) bool {
	return vip.GetBool(key)
}

//GetNetwork ...
func GetNetwork() *chaincfg.Params {
	switch vip.GetString(NetworkKey) {
	case mainnetNetwork:
		return &chaincfg.MainNetParams
	case regtestNetwork:
		return &chaincfg.RegressionNetParams
	default:
		return &chaincfg.TestNet3Params
	}
}

//GetDatadir ...
func GetDatadir() string {
	return GetString(DatadirKey)
}

// Set a value for the given key
func Set(key string, value interface{}) {
	vip.Set(key, value)
}

// IsSet returns whether the give key is set
func IsSet(key string) bool {
	return vip.IsSet(key)
}

func validate() error {
	datadir := GetString(DatadirKey)
	if len(datadir) <= 0 {
		return fmt.Errorf("datadir must not be null")
	}

	networkName := GetString(NetworkKey)
	if networkName != mainnetNetwork && networkName != testnetNetwork &&
		networkName != regtestNetwork {
		return fmt.Errorf(
			"network must be one of '%s', '%s' or '%s'",
			mainnetNetwork, testnetNetwork, regtestNetwork,
		)
	}

	return nil
}

func initDatadir() error {
	return makeDirectoryIfNotExists(GetDatadir())
}

func makeDirectoryIfNotExists(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return os.MkdirAll(path, os.ModeDir|0755)
	}
	return nil
}
