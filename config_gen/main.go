/*
Package main in the directory config_gen implements a tool to generate
per-node configuration files for a local committee: one ED25519 key
pair per authority, one set of threshold-signature shares, and the
committee table with stakes and addresses.
*/
package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"strconv"

	"github.com/spf13/viper"

	"github.com/Praexor/narwhal-plus-plus/sign"
)

func main() {
	nodeNum := flag.Int("n", 4, "number of authorities")
	stake := flag.Int("stake", 100, "stake per authority")
	engine := flag.String("engine", "tusk", "consensus engine: tusk | shoal++ | mysticeti")
	gcDepth := flag.Uint64("gc_depth", 50, "garbage collection depth in rounds")
	batchSize := flag.Int("batch_size", 200, "transactions per worker batch")
	flag.Parse()

	n := *nodeNum
	quorum := 2*n/3 + 1

	privKeys := make([][]byte, n)
	pubKeys := make([][]byte, n)
	for i := 0; i < n; i++ {
		priv, pub := sign.GenED25519Keys()
		privKeys[i] = priv
		pubKeys[i] = pub
	}

	shares, pubPoly := sign.GenTSKeys(quorum, n)
	tsPubKey, err := sign.EncodeTSPublicKey(pubPoly)
	if err != nil {
		panic(err)
	}

	committee := make(map[string]map[string]interface{}, n)
	for i := 0; i < n; i++ {
		committee[hex.EncodeToString(pubKeys[i])] = map[string]interface{}{
			"stake":        *stake,
			"primary_addr": "127.0.0.1:" + strconv.Itoa(8000+i),
			"worker_addr":  "127.0.0.1:" + strconv.Itoa(9000+i),
		}
	}

	for i := 0; i < n; i++ {
		tsShare, err := sign.EncodeTSPartialKey(shares[i])
		if err != nil {
			panic(err)
		}

		viperWrite := viper.New()
		viperWrite.Set("name", "node"+strconv.Itoa(i))
		viperWrite.Set("engine", *engine)
		viperWrite.Set("gc_depth", *gcDepth)
		viperWrite.Set("batch_size", *batchSize)
		viperWrite.Set("max_pool", 10)
		viperWrite.Set("log_level", 3)
		viperWrite.Set("load", false)
		viperWrite.Set("pubkeyed", hex.EncodeToString(pubKeys[i]))
		viperWrite.Set("privkeyed", hex.EncodeToString(privKeys[i]))
		viperWrite.Set("tspubkey", hex.EncodeToString(tsPubKey))
		viperWrite.Set("tsshare", hex.EncodeToString(tsShare))
		viperWrite.Set("committee", committee)

		fileName := "config_node" + strconv.Itoa(i) + ".yaml"
		if err := viperWrite.WriteConfigAs(fileName); err != nil {
			panic(err)
		}
		fmt.Println("generated", fileName)
	}
}
