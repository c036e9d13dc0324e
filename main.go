package main

import (
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/Praexor/narwhal-plus-plus/channel"
	"github.com/Praexor/narwhal-plus-plus/config"
	"github.com/Praexor/narwhal-plus-plus/conn"
	"github.com/Praexor/narwhal-plus-plus/consensus"
	"github.com/Praexor/narwhal-plus-plus/primary"
	"github.com/Praexor/narwhal-plus-plus/store"
	"github.com/Praexor/narwhal-plus-plus/worker"
)

var (
	conf *config.Config
	err  error
)

func init() {
	conf, err = config.LoadConfig("", "config")
	if err != nil {
		panic(err)
	}
}

func main() {
	logger := hclog.New(&hclog.LoggerOptions{
		Name:   conf.Name,
		Output: hclog.DefaultOutput,
		Level:  hclog.Level(conf.LogLevel),
	})

	st, err := store.New("./db_" + conf.Name)
	if err != nil {
		panic(err)
	}
	defer st.Close()

	self := conf.Committee.Authorities[conf.PublicKey]
	primaryTrans, err := conn.NewTCPTransport(self.PrimaryAddr, 30*time.Second,
		nil, conf.MaxPool, primary.ReflectedTypesMap)
	if err != nil {
		panic(err)
	}
	defer primaryTrans.Close()
	workerTrans, err := conn.NewTCPTransport(self.WorkerAddr, 30*time.Second,
		nil, conf.MaxPool, worker.ReflectedTypesMap)
	if err != nil {
		panic(err)
	}
	defer workerTrans.Close()

	rxPrimary := channel.New[consensus.Certificate]()
	txPrimary := channel.New[consensus.Certificate]()
	txOutput := channel.New[consensus.Certificate]()
	txDigests := channel.New[consensus.PayloadEntry]()

	engine, err := consensus.NewEngine(conf.Engine, logger)
	if err != nil {
		panic(err)
	}
	cons := consensus.NewConsensus(conf.Committee, conf.GCDepth,
		rxPrimary, txPrimary, txOutput, engine, logger)
	cons.Spawn()

	wrk, err := worker.NewWorker(conf, 0, workerTrans, st, txDigests, logger)
	if err != nil {
		panic(err)
	}
	go wrk.HandleMsgLoop()

	prim := primary.NewPrimary(conf, primaryTrans, st, rxPrimary, txPrimary, txDigests, logger)
	go prim.HandleMsgLoop()
	go prim.DigestLoop()
	go prim.FeedbackLoop()

	if conf.Load {
		gen := primary.NewLoadGenerator(conf.Committee, rxPrimary, 100*time.Millisecond, logger)
		go gen.Run(0)
	} else {
		// wait for every node to start listening
		time.Sleep(15 * time.Second)
		prim.Start()
	}
	fmt.Println("node starts the narwhal consensus!")

	start := time.Now()
	var commitCount uint64
	for {
		committed, ok := txOutput.Receive()
		if !ok {
			break
		}
		commitCount++
		if commitCount%100 == 0 {
			elapsed := time.Since(start).Seconds()
			logger.Info("commit throughput", "engine", conf.Engine,
				"certificates-per-second", float64(commitCount)/elapsed,
				"total", commitCount, "round", committed.Round())
		}
	}
	cons.Wait()
}
