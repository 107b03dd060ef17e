package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

type founderApi struct {
	deps *ServerDeps
}

func registerFounderAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps *ServerDeps) {
	api := founderApi{deps: deps}

	// admin endpoints
	ag := g.Group("/founders/:id", jwt, adminMiddleware())
	ag.POST("/enroll", api.enroll)
	ag.POST("/lock", api.lock)
	ag.POST("/unlock", api.unlock)

	// mentor endpoints
	mg := g.Group("/founders/:id", jwt, mentorOrAdminMiddleware())
	mg.POST("/mentor-approval", api.approveMentor)

	// founder endpoints
	fg := g.Group("/founders/:id", jwt, founderMiddleware())
	fg.POST("/rsd", api.submitRSD)
}

// Handlers

func (api *founderApi) enroll(ctx echo.Context) error {
	detail, err := api.deps.CycleSvc.Enroll(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, detail)
}

func (api *founderApi) lock(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	var data LockRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to LockRequest")
	}
	if err = data.Validate(api.deps.Validate); err != nil {
		return err
	}

	state, err := api.deps.FounderSvc.Lock(ctx.Request().Context(), ctx.Param("id"), claims.Subject, data.Rationale)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, state)
}

func (api *founderApi) unlock(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	var data LockRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to LockRequest")
	}
	if err = data.Validate(api.deps.Validate); err != nil {
		return err
	}

	state, err := api.deps.FounderSvc.Unlock(ctx.Request().Context(), ctx.Param("id"), claims.Subject, data.Rationale)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, state)
}

func (api *founderApi) approveMentor(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	if err = api.deps.StageSvc.ApproveMentor(ctx.Request().Context(), ctx.Param("id"), claims.Subject); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "approval recorded"})
}

func (api *founderApi) submitRSD(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	// a founder can only submit their own RSD
	if claims.Subject != ctx.Param("id") {
		return errHttpForbidden
	}

	var data RSDRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to RSDRequest")
	}
	if err = data.Validate(api.deps.Validate); err != nil {
		return err
	}

	if err = api.deps.StageSvc.SubmitRSD(ctx.Request().Context(), claims.Subject, data.Completion); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "rsd recorded"})
}
