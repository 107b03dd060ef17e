package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/wakora/hatua/core/cycle"
)

type cycleApi struct {
	deps *ServerDeps
}

func registerCycleAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps *ServerDeps) {
	api := cycleApi{deps: deps}

	// submission endpoints act as the authenticated founder
	sg := g.Group("", jwt, founderMiddleware())
	sg.POST("/commits", api.submitCommit)
	sg.POST("/reports", api.submitReport)
	sg.POST("/adjust", api.submitAdjust)

	// read endpoints
	fg := g.Group("/founders/:id", jwt, selfOrStaffMiddleware())
	fg.GET("/cycle", api.getCycle)
	fg.GET("/stages", api.getStages)

	// compliance endpoints
	cg := g.Group("/founders/:id", jwt, mentorOrAdminMiddleware())
	cg.GET("/audit", api.getAudit)
	cg.GET("/notifications", api.getNotifications)
	cg.GET("/interventions", api.getInterventions)
}

// Handlers

func (api *cycleApi) submitCommit(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	var data cycle.NewCommit
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewCommit")
	}
	if err = data.Validate(api.deps.Validate); err != nil {
		return err
	}

	inst, err := api.deps.CycleSvc.SubmitCommit(ctx.Request().Context(), claims.Subject, data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, inst)
}

func (api *cycleApi) submitReport(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	var data cycle.NewReport
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewReport")
	}
	if err = data.Validate(api.deps.Validate); err != nil {
		return err
	}

	inst, err := api.deps.CycleSvc.SubmitReport(ctx.Request().Context(), claims.Subject, data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, inst)
}

func (api *cycleApi) submitAdjust(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	var data cycle.NewAdjustment
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewAdjustment")
	}
	if err = data.Validate(api.deps.Validate); err != nil {
		return err
	}

	inst, err := api.deps.CycleSvc.SubmitAdjust(ctx.Request().Context(), claims.Subject, data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, inst)
}

func (api *cycleApi) getCycle(ctx echo.Context) error {
	detail, err := api.deps.CycleSvc.GetCycle(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, detail)
}

func (api *cycleApi) getStages(ctx echo.Context) error {
	rows, err := api.deps.StageSvc.QueryByFounder(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, rows)
}

func (api *cycleApi) getAudit(ctx echo.Context) error {
	entries, err := api.deps.Auditor.QueryByFounder(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, entries)
}

func (api *cycleApi) getNotifications(ctx echo.Context) error {
	records, err := api.deps.Dispatcher.QueryRecords(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, records)
}

func (api *cycleApi) getInterventions(ctx echo.Context) error {
	ivs, err := api.deps.Dispatcher.QueryInterventions(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, ivs)
}
