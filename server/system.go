package server

import (
	"fmt"
	"log"
	"parklot/internal"
	"parklot/internal/config"
	"parklot/metrics"
	"parklot/parking"
	"parklot/telegram"
	"parklot/wallet"
	"time"
)

// CentralSystem wires the document store, the coordinator, the wallet
// ledger and the outward surfaces together.
type CentralSystem struct {
	api      *Api
	logger   internal.LogHandler
	location *time.Location
}

func NewCentralSystem() (CentralSystem, error) {
	cs := CentralSystem{}

	conf, err := config.GetConfig()
	if err != nil {
		return cs, fmt.Errorf("configuration failed: %s", err)
	}

	log.Println("set time zone to " + conf.TimeZone)
	location, err := time.LoadLocation(conf.TimeZone)
	if err != nil {
		return cs, fmt.Errorf("time zone initialization failed: %s", err)
	}
	cs.location = location

	var database internal.Database
	if conf.Mongo.Enabled {
		mongo, err := internal.NewMongoClient(conf)
		if err != nil {
			return cs, fmt.Errorf("mongodb setup failed: %s", err)
		}
		database = mongo
		log.Println("mongodb is configured and enabled")
	} else {
		return cs, fmt.Errorf("document store is disabled; nowhere to keep sessions and wallets")
	}

	logService := internal.NewLogger(location)
	if conf.IsDebug != nil {
		logService.SetDebugMode(*conf.IsDebug)
	}
	logService.SetDatabase(database)
	cs.logger = logService

	fees := parking.NewFeePolicy(conf.Rates.Normal, conf.Rates.Penalty, conf.Rates.PenaltyAfterHr)

	ledger := wallet.NewLedger(database, database)
	ledger.SetLogger(logService)

	coordinator := parking.NewCoordinator(database, database, ledger, fees)
	coordinator.SetLogger(logService)

	// event fan-out: metrics counters, ws feed, optional telegram bot
	events := NewEventRouter()

	feed := NewFeed()
	feed.SetLogger(logService)
	events.AddHandler(feed)

	if conf.Telegram.Enabled {
		telegramBot, err := telegram.NewBot(conf.Telegram.ApiKey)
		if err != nil {
			return cs, fmt.Errorf("telegram bot setup failed: %s", err)
		}
		telegramBot.SetDatabase(database)
		telegramBot.Start()
		events.AddHandler(telegramBot)
		log.Println("telegram bot is configured and enabled")
	}

	coordinator.SetEventHandler(events)
	ledger.SetEventHandler(events)

	gate := NewIdentityGate(conf)
	gate.SetLogger(logService)

	cs.api = NewApi(conf, coordinator, ledger, gate, feed)
	cs.api.SetLogger(logService)
	cs.api.SetDatabase(database)

	go func() {
		if err := metrics.Listen(conf); err != nil {
			logService.Error("metrics server failed", err)
		}
	}()

	return cs, nil
}

func (cs *CentralSystem) Start() {
	if err := cs.api.Start(); err != nil {
		cs.logger.Error("api server failed", err)
	}
}
