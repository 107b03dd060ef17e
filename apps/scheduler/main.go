package main

import (
	"context"
	"fmt"
	"log"
	"net/mail"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/wakora/hatua/core"
	"github.com/wakora/hatua/core/audit"
	"github.com/wakora/hatua/core/cycle"
	"github.com/wakora/hatua/core/founder"
	"github.com/wakora/hatua/core/notification"
	"github.com/wakora/hatua/core/scheduler"
	"github.com/wakora/hatua/core/stage"
	emailsvc "github.com/wakora/hatua/services/email"
	evidencesvc "github.com/wakora/hatua/services/evidence"
	logsvc "github.com/wakora/hatua/services/logger"
	"github.com/wakora/hatua/storage/database"
	sqlxrepos "github.com/wakora/hatua/storage/database/sqlx"
)

var build = "develop" // injected at build time

// The scheduler runs as its own process so API deploys never delay a tick.
func main() {
	conf := core.NewConfig(build)

	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "SCHED : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)

	db, err := setUpDB(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	defer func() {
		if err = db.Close(); err != nil {
			logger.Error("failed to close DB", err)
		}
	}()

	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf)
	}

	founderRepo := sqlxrepos.NewFounderRepository(db)
	directory := sqlxrepos.NewFounderDirectory(db)
	cycleRepo := sqlxrepos.NewCycleRepository(db)
	stageRepo := sqlxrepos.NewStageRepository(db)
	notifRepo := sqlxrepos.NewNotificationRepository(db)
	auditRepo := sqlxrepos.NewAuditRepository(db)

	clock := core.NewClock()
	sched := cycle.NewSchedule(conf.Location())
	auditor := audit.NewWriter(auditRepo, clock, logger)

	dispatcher := notification.NewDispatcher(notifRepo, mailSvc, recipientResolver(directory), clock, logger, conf)
	defer dispatcher.Close()

	founderSvc := founder.NewService(founderRepo, dispatcher, notifRepo, auditor, clock, conf)
	stageSvc := stage.NewService(stageRepo, cycleRepo, founderSvc, directory, dispatcher, auditor, clock, conf, logger)
	evidence := evidencesvc.NewHTTPChecker(10 * time.Second)
	cycleSvc := cycle.NewService(cycleRepo, founderSvc, stageSvc, dispatcher, auditor, evidence, clock, sched, conf, logger)

	core.ParseEmailTemplates(conf, logger)

	driver := scheduler.New(cycleSvc, founderSvc, sched, clock, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-shutdown
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))
		cancel()
	}()

	logger.Info(fmt.Sprintf("Scheduler starting : version %q : timezone %s", conf.Build, conf.Program.Timezone))
	if err = driver.Run(ctx); err != nil && err != context.Canceled {
		logger.Fatal(fmt.Sprintf("scheduler stopped: %v", err), err)
	}
	logger.Info("Scheduler stopped")
}

func setUpDB(conf *core.Config) (*sqlx.DB, error) {
	if err := database.CreateIfNotExist(conf); err != nil {
		return nil, err
	}

	db, err := database.Open(conf)
	if err != nil {
		return nil, err
	}

	if err = database.Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// recipientResolver sends each event to the founder and their mentor.
func recipientResolver(directory founder.Directory) notification.RecipientResolver {
	return func(ctx context.Context, founderID string) ([]mail.Address, error) {
		f, err := directory.GetFounder(ctx, founderID)
		if err != nil {
			return nil, err
		}
		to := []mail.Address{{Name: f.Name, Address: f.Email}}
		if f.MentorEmail != "" {
			to = append(to, mail.Address{Address: f.MentorEmail})
		}
		return to, nil
	}
}
