package main

import (
	"context"
	"fmt"
	"log"
	"net/mail"
	"os"
	"time"

	"github.com/wakora/hatua/core"
	"github.com/wakora/hatua/core/audit"
	"github.com/wakora/hatua/core/cycle"
	"github.com/wakora/hatua/core/founder"
	"github.com/wakora/hatua/core/notification"
	"github.com/wakora/hatua/core/stage"
	emailsvc "github.com/wakora/hatua/services/email"
	evidencesvc "github.com/wakora/hatua/services/evidence"
	logsvc "github.com/wakora/hatua/services/logger"
	"github.com/wakora/hatua/storage/database"
	sqlxrepos "github.com/wakora/hatua/storage/database/sqlx"
)

var build = "develop" // injected at build time

func main() {
	defer os.Exit(0)

	conf := core.NewConfig(build)
	std := log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	logger := logsvc.NewConsoleLogger(std)

	// set up DB
	if err := database.CreateIfNotExist(conf); err != nil {
		logger.Fatal(fmt.Sprintf("creating database: %v", err), err)
	}
	db, err := database.Open(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("opening database: %v", err), err)
	}
	defer db.Close()

	// set up services
	founderRepo := sqlxrepos.NewFounderRepository(db)
	directory := sqlxrepos.NewFounderDirectory(db)
	cycleRepo := sqlxrepos.NewCycleRepository(db)
	stageRepo := sqlxrepos.NewStageRepository(db)
	notifRepo := sqlxrepos.NewNotificationRepository(db)
	auditRepo := sqlxrepos.NewAuditRepository(db)

	clock := core.NewClock()
	sched := cycle.NewSchedule(conf.Location())
	auditor := audit.NewWriter(auditRepo, clock, logger)

	mailSvc := emailsvc.NewConsoleService(conf)
	resolve := func(ctx context.Context, founderID string) ([]mail.Address, error) {
		f, err := directory.GetFounder(ctx, founderID)
		if err != nil {
			return nil, err
		}
		return []mail.Address{{Name: f.Name, Address: f.Email}}, nil
	}
	dispatcher := notification.NewDispatcher(notifRepo, mailSvc, resolve, clock, logger, conf)
	defer dispatcher.Close()

	founderSvc := founder.NewService(founderRepo, dispatcher, notifRepo, auditor, clock, conf)
	stageSvc := stage.NewService(stageRepo, cycleRepo, founderSvc, directory, dispatcher, auditor, clock, conf, logger)
	evidence := evidencesvc.NewHTTPChecker(10 * time.Second)
	cycleSvc := cycle.NewService(cycleRepo, founderSvc, stageSvc, dispatcher, auditor, evidence, clock, sched, conf, logger)

	// start CLI
	cli := commandLine{
		db:         db,
		cycleSvc:   cycleSvc,
		founderSvc: founderSvc,
		stageSvc:   stageSvc,
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			std.Printf("\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}
