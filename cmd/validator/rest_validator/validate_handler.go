package restvalidator

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/codetask/validator/cmd/validator/model"
	"github.com/codetask/validator/language"
	"github.com/codetask/validator/scheduler"
	"github.com/codetask/validator/types"
)

// Scheduler is the part of the validation scheduler the handlers need.
type Scheduler interface {
	Submit(context.Context, *scheduler.Job) (<-chan *types.Report, error)
	Cancel(id string) bool
}

type validateHandle struct {
	sched  Scheduler
	langs  *language.Registry
	logger *zap.Logger
}

// NewValidateHandle creates the validation REST handle
func NewValidateHandle(sched Scheduler, langs *language.Registry, logger *zap.Logger) Register {
	return &validateHandle{
		sched:  sched,
		langs:  langs,
		logger: logger,
	}
}

func (h *validateHandle) Register(r *gin.Engine) {
	r.POST("/validate", h.handleValidate)
	r.POST("/cancel/:id", h.handleCancel)
	r.GET("/languages", h.handleLanguages)
}

func (h *validateHandle) handleValidate(ctx *gin.Context) {
	var req model.Request
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.Error(err)
		ctx.AbortWithStatusJSON(http.StatusBadRequest, err.Error())
		return
	}
	job, err := model.ConvertRequest(&req)
	if err != nil {
		ctx.Error(err)
		ctx.AbortWithStatusJSON(http.StatusBadRequest, err.Error())
		return
	}
	if _, ok := h.langs.Get(job.Submission.Language); !ok {
		ctx.AbortWithStatusJSON(http.StatusBadRequest, "unsupported language: "+job.Submission.Language)
		return
	}

	h.logger.Sugar().Debugf("validate request: %s %s", job.Submission.ID, job.Submission.Language)
	ch, err := h.sched.Submit(ctx.Request.Context(), job)
	if err != nil {
		ctx.Error(err)
		switch {
		case errors.Is(err, scheduler.ErrOverloaded), errors.Is(err, scheduler.ErrShutdown):
			ctx.AbortWithStatusJSON(http.StatusServiceUnavailable, err.Error())
		case errors.Is(err, scheduler.ErrDuplicate):
			ctx.AbortWithStatusJSON(http.StatusConflict, err.Error())
		default:
			ctx.AbortWithStatusJSON(http.StatusInternalServerError, err.Error())
		}
		return
	}

	rep := <-ch
	ctx.JSON(http.StatusOK, rep)
}

func (h *validateHandle) handleCancel(ctx *gin.Context) {
	id := ctx.Param("id")
	if !h.sched.Cancel(id) {
		ctx.AbortWithStatusJSON(http.StatusNotFound, "submission not found: "+id)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"cancelled": id})
}

func (h *validateHandle) handleLanguages(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, h.langs.Names())
}
