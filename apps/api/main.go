package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	"net/mail"
	"os"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
	"github.com/jmoiron/sqlx"

	echoapi "github.com/wakora/hatua/apps/api/echo"
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
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig(build)

	// set up loggers
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)

	// set up DB
	db, err := setUpDB(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	defer func() {
		if err = db.Close(); err != nil {
			logger.Error("failed to close DB", err)
		}
	}()

	// set up mail
	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf)
	}

	// set up repositories
	founderRepo := sqlxrepos.NewFounderRepository(db)
	directory := sqlxrepos.NewFounderDirectory(db)
	cycleRepo := sqlxrepos.NewCycleRepository(db)
	stageRepo := sqlxrepos.NewStageRepository(db)
	notifRepo := sqlxrepos.NewNotificationRepository(db)
	auditRepo := sqlxrepos.NewAuditRepository(db)

	// set up services
	clock := core.NewClock()
	sched := cycle.NewSchedule(conf.Location())
	auditor := audit.NewWriter(auditRepo, clock, logger)

	dispatcher := notification.NewDispatcher(notifRepo, mailSvc, recipientResolver(directory), clock, logger, conf)
	defer dispatcher.Close()

	founderSvc := founder.NewService(founderRepo, dispatcher, notifRepo, auditor, clock, conf)
	stageSvc := stage.NewService(stageRepo, cycleRepo, founderSvc, directory, dispatcher, auditor, clock, conf, logger)
	evidence := evidencesvc.NewHTTPChecker(10 * time.Second)
	cycleSvc := cycle.NewService(cycleRepo, founderSvc, stageSvc, dispatcher, auditor, evidence, clock, sched, conf, logger)

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	validate := validator.New()
	translator := newTranslator()
	_ = en_translations.RegisterDefaultTranslations(validate, translator)
	core.InitValidators(validate, translator)
	cycle.InitValidators(validate, translator)

	core.ParseEmailTemplates(conf, logger)

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)

	go func() {
		if err = http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(
		echoapi.ServerDeps{
			Conf:       conf,
			Logger:     logger,
			CycleSvc:   cycleSvc,
			FounderSvc: founderSvc,
			StageSvc:   stageSvc,
			Auditor:    auditor,
			Dispatcher: dispatcher,
			Validate:   validate,
			Translator: translator,
		},
	)
	server.Start()

	// =========================================================================
	// Shutdown

	select {
	case err = <-server.Errors():
		logger.Fatal(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		// asking listener to shutdown and shed load
		if err = server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Fatal(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
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

func newTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}
