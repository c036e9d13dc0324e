package config

import (
	"encoding/hex"
	"os"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Praexor/narwhal-plus-plus/sign"
)

func TestConfigRoundTrip(t *testing.T) {
	privKey, pubKey := sign.GenED25519Keys()
	shares, pubPoly := sign.GenTSKeys(3, 4)
	tsPubKey, err := sign.EncodeTSPublicKey(pubPoly)
	require.NoError(t, err)
	tsShare, err := sign.EncodeTSPartialKey(shares[0])
	require.NoError(t, err)

	committee := map[string]map[string]interface{}{}
	keys := make([]sign.PublicKey, 4)
	keys[0] = sign.PublicKeyFromBytes(pubKey)
	for i := 1; i < 4; i++ {
		_, pk := sign.GenED25519Keys()
		keys[i] = sign.PublicKeyFromBytes(pk)
	}
	for i, pk := range keys {
		committee[pk.String()] = map[string]interface{}{
			"stake":        100,
			"primary_addr": "127.0.0.1:800" + string(rune('0'+i)),
			"worker_addr":  "127.0.0.1:900" + string(rune('0'+i)),
		}
	}

	viperWrite := viper.New()
	viperWrite.Set("name", "node0")
	viperWrite.Set("engine", "shoal++")
	viperWrite.Set("gc_depth", 50)
	viperWrite.Set("batch_size", 200)
	viperWrite.Set("max_pool", 10)
	viperWrite.Set("log_level", 3)
	viperWrite.Set("load", true)
	viperWrite.Set("pubkeyed", hex.EncodeToString(pubKey))
	viperWrite.Set("privkeyed", hex.EncodeToString(privKey))
	viperWrite.Set("tspubkey", hex.EncodeToString(tsPubKey))
	viperWrite.Set("tsshare", hex.EncodeToString(tsShare))
	viperWrite.Set("committee", committee)
	require.NoError(t, viperWrite.WriteConfigAs("config_roundtrip_test.yaml"))
	defer os.Remove("config_roundtrip_test.yaml")

	conf, err := LoadConfig("", "config_roundtrip_test")
	require.NoError(t, err)

	assert.Equal(t, "node0", conf.Name)
	assert.Equal(t, "shoal++", conf.Engine)
	assert.Equal(t, uint64(50), conf.GCDepth)
	assert.Equal(t, 200, conf.BatchSize)
	assert.Equal(t, 10, conf.MaxPool)
	assert.Equal(t, 3, conf.LogLevel)
	assert.True(t, conf.Load)
	assert.Equal(t, sign.PublicKeyFromBytes(pubKey), conf.PublicKey)
	assert.Equal(t, []byte(privKey), []byte(conf.PrivateKey))

	require.Equal(t, 4, conf.Committee.Size())
	for _, pk := range keys {
		assert.Equal(t, Stake(100), conf.Committee.Stake(pk))
	}
	assert.Equal(t, Stake(400), conf.Committee.TotalStake())

	// the loaded threshold keys still sign and verify
	data := []byte("round 2")
	partial := sign.SignTSPartial(conf.TsPrivateKey, data)
	require.NoError(t, sign.VerifyTSPartial(conf.TsPublicKey, data, partial))
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig("", "definitely_not_there")
	assert.Error(t, err)
}
