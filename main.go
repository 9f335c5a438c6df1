package main

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"go.uber.org/zap"

	"github.com/linesmerrill/commute-permit-api/api/handlers"
	"github.com/linesmerrill/commute-permit-api/api/scheduler"
	"github.com/linesmerrill/commute-permit-api/config"
)

func main() {
	a := handlers.App{}
	a.Config = *config.New()

	ctx := context.Background()
	if err := a.Initialize(ctx); err != nil { //initialize database and router
		log.Fatal(err)
	}
	defer a.Close(ctx)

	s := scheduler.NewScheduler(a.Monitor, a.Config.MonitorSchedule, a.Config.MonitorTimeout, a.Config.Location())
	if err := s.Start(); err != nil {
		log.Fatal(err)
	}
	defer s.Stop()

	zap.S().Infow("commute-permit-api is up and running",
		"port", a.Config.Port,
		"url", a.Config.BaseURL,
		"recordStore", a.Config.RecordStore,
		"fileStorage", a.Config.FileStorage,
	)
	log.Fatal(http.ListenAndServe(fmt.Sprintf(":%v", a.Config.Port), a.Router))
}
