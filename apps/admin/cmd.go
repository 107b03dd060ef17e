package main

import (
	"context"
	"errors"
	"flag"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/wakora/hatua/core/cycle"
	"github.com/wakora/hatua/core/founder"
	"github.com/wakora/hatua/core/stage"
)

var errHelp = errors.New("help provided")

type commandLine struct {
	db         *sqlx.DB
	cycleSvc   *cycle.Service
	founderSvc *founder.Service
	stageSvc   *stage.Service
}

func (cli *commandLine) printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  migrate up|down|status|version          - run database migrations")
	fmt.Println("  enroll -founder ID                      - enroll a founder into the program")
	fmt.Println("  unlock -founder ID -approver ID -why R  - unlock a locked founder")
	fmt.Println("  lock -founder ID -approver ID -why R    - manually lock a founder")
	fmt.Println("  approve -founder ID -approver ID        - record mentor approval on the current stage")
	fmt.Println("  gradcheck -founder ID                   - run the graduation check now")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	enrollCmd := flag.NewFlagSet("enroll", flag.ExitOnError)
	enrollFounder := enrollCmd.String("founder", "", "The founder's ID.")

	unlockCmd := flag.NewFlagSet("unlock", flag.ExitOnError)
	unlockFounder := unlockCmd.String("founder", "", "The founder's ID.")
	unlockApprover := unlockCmd.String("approver", "", "The approving staff member's ID.")
	unlockWhy := unlockCmd.String("why", "", "Rationale recorded in the audit trail.")

	lockCmd := flag.NewFlagSet("lock", flag.ExitOnError)
	lockFounder := lockCmd.String("founder", "", "The founder's ID.")
	lockApprover := lockCmd.String("approver", "", "The approving staff member's ID.")
	lockWhy := lockCmd.String("why", "", "Rationale recorded in the audit trail.")

	approveCmd := flag.NewFlagSet("approve", flag.ExitOnError)
	approveFounder := approveCmd.String("founder", "", "The founder's ID.")
	approveApprover := approveCmd.String("approver", "", "The approving mentor's ID.")

	gradCmd := flag.NewFlagSet("gradcheck", flag.ExitOnError)
	gradFounder := gradCmd.String("founder", "", "The founder's ID.")

	ctx := context.Background()

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])

	case "enroll":
		if err := enrollCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *enrollFounder == "" {
			enrollCmd.Usage()
			return errHelp
		}
		detail, err := cli.cycleSvc.Enroll(ctx, *enrollFounder)
		if err != nil {
			return err
		}
		fmt.Printf("enrolled: week %d, phase %s\n", detail.Instance.WeekNumber, detail.Instance.Phase)
		return nil

	case "unlock":
		if err := unlockCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *unlockFounder == "" || *unlockApprover == "" || *unlockWhy == "" {
			unlockCmd.Usage()
			return errHelp
		}
		state, err := cli.founderSvc.Unlock(ctx, *unlockFounder, *unlockApprover, *unlockWhy)
		if err != nil {
			return err
		}
		fmt.Printf("unlocked: misses reset to %d\n", state.ConsecutiveMisses)
		return nil

	case "lock":
		if err := lockCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *lockFounder == "" || *lockApprover == "" || *lockWhy == "" {
			lockCmd.Usage()
			return errHelp
		}
		if _, err := cli.founderSvc.Lock(ctx, *lockFounder, *lockApprover, *lockWhy); err != nil {
			return err
		}
		fmt.Println("locked")
		return nil

	case "approve":
		if err := approveCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *approveFounder == "" || *approveApprover == "" {
			approveCmd.Usage()
			return errHelp
		}
		return cli.stageSvc.ApproveMentor(ctx, *approveFounder, *approveApprover)

	case "gradcheck":
		if err := gradCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *gradFounder == "" {
			gradCmd.Usage()
			return errHelp
		}
		return cli.stageSvc.Evaluate(ctx, *gradFounder, stage.TriggerManual)

	default:
		cli.printUsage()
		return errHelp
	}
}
