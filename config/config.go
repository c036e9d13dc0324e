/*
Package config implements the committee model and the loading of node
parameters from a configuration file.
*/
package config

import (
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/spf13/viper"
	"go.dedis.ch/kyber/v3/share"

	"github.com/Praexor/narwhal-plus-plus/sign"
)

// Config carries everything a node needs to start.
type Config struct {
	Name      string
	Engine    string
	GCDepth   uint64
	BatchSize int
	MaxPool   int
	LogLevel  int
	Load      bool

	PublicKey  sign.PublicKey
	PrivateKey ed25519.PrivateKey

	TsPublicKey  *share.PubPoly
	TsPrivateKey *share.PriShare

	PublicKeyMap map[sign.PublicKey]ed25519.PublicKey

	Committee *Committee
}

// New creates a Config directly, for tests.
func New(name string, engine string, gcDepth uint64, batchSize, maxPool, logLevel int,
	publicKey sign.PublicKey, privateKey ed25519.PrivateKey,
	tsPublicKey *share.PubPoly, tsPrivateKey *share.PriShare,
	committee *Committee) *Config {
	publicKeyMap := make(map[sign.PublicKey]ed25519.PublicKey, committee.Size())
	for pk := range committee.Authorities {
		publicKeyMap[pk] = ed25519.PublicKey(append([]byte(nil), pk[:]...))
	}
	return &Config{
		Name:         name,
		Engine:       engine,
		GCDepth:      gcDepth,
		BatchSize:    batchSize,
		MaxPool:      maxPool,
		LogLevel:     logLevel,
		PublicKey:    publicKey,
		PrivateKey:   privateKey,
		TsPublicKey:  tsPublicKey,
		TsPrivateKey: tsPrivateKey,
		PublicKeyMap: publicKeyMap,
		Committee:    committee,
	}
}

// LoadConfig loads a configuration file by package viper.
func LoadConfig(configPrefix, configName string) (*Config, error) {
	viperConfig := viper.New()

	// for environment variables
	viperConfig.SetEnvPrefix(configPrefix)
	viperConfig.AutomaticEnv()
	replacer := strings.NewReplacer(".", "_")
	viperConfig.SetEnvKeyReplacer(replacer)
	viperConfig.SetConfigName(configName)
	viperConfig.AddConfigPath("./")
	if err := viperConfig.ReadInConfig(); err != nil {
		return nil, err
	}

	privKeyAsString := viperConfig.GetString("privkeyed")
	privKey, err := hex.DecodeString(privKeyAsString)
	if err != nil {
		return nil, err
	}

	tsPubKeyAsBytes, err := hex.DecodeString(viperConfig.GetString("tspubkey"))
	if err != nil {
		return nil, err
	}
	tsPubKey, err := sign.DecodeTSPublicKey(tsPubKeyAsBytes)
	if err != nil {
		return nil, err
	}

	tsShareAsBytes, err := hex.DecodeString(viperConfig.GetString("tsshare"))
	if err != nil {
		return nil, err
	}
	tsShareKey, err := sign.DecodeTSPartialKey(tsShareAsBytes)
	if err != nil {
		return nil, err
	}

	conf := &Config{
		Name:         viperConfig.GetString("name"),
		Engine:       viperConfig.GetString("engine"),
		GCDepth:      viperConfig.GetUint64("gc_depth"),
		BatchSize:    viperConfig.GetInt("batch_size"),
		MaxPool:      viperConfig.GetInt("max_pool"),
		LogLevel:     viperConfig.GetInt("log_level"),
		Load:         viperConfig.GetBool("load"),
		PrivateKey:   privKey,
		TsPublicKey:  tsPubKey,
		TsPrivateKey: tsShareKey,
	}

	pubKeyAsBytes, err := hex.DecodeString(viperConfig.GetString("pubkeyed"))
	if err != nil {
		return nil, err
	}
	conf.PublicKey = sign.PublicKeyFromBytes(pubKeyAsBytes)

	committeeMap := viperConfig.GetStringMap("committee")
	if len(committeeMap) == 0 {
		return nil, errors.New("the committee in the config file is empty")
	}
	authorities := make(map[sign.PublicKey]Authority, len(committeeMap))
	publicKeyMap := make(map[sign.PublicKey]ed25519.PublicKey, len(committeeMap))
	for pkAsString, entryAsInterface := range committeeMap {
		pk, err := sign.DecodePublicKey(pkAsString)
		if err != nil {
			return nil, err
		}
		entry, ok := entryAsInterface.(map[string]interface{})
		if !ok {
			return nil, errors.New("a committee entry in the config file cannot be decoded correctly")
		}
		auth := Authority{}
		if stake, ok := entry["stake"].(int); ok {
			auth.Stake = Stake(stake)
		}
		if addr, ok := entry["primary_addr"].(string); ok {
			auth.PrimaryAddr = addr
		}
		if addr, ok := entry["worker_addr"].(string); ok {
			auth.WorkerAddr = addr
		}
		authorities[pk] = auth
		publicKeyMap[pk] = ed25519.PublicKey(append([]byte(nil), pk[:]...))
	}
	conf.Committee = NewCommittee(authorities)
	conf.PublicKeyMap = publicKeyMap

	return conf, nil
}
