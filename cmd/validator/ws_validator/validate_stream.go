// Package wsvalidator streams validation progress over a websocket: one
// progress event per executed test case followed by the final report.
package wsvalidator

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/codetask/validator/cmd/validator/model"
	"github.com/codetask/validator/language"
	"github.com/codetask/validator/scheduler"
	"github.com/codetask/validator/types"
)

// Scheduler is the part of the validation scheduler the stream needs.
type Scheduler interface {
	Submit(context.Context, *scheduler.Job) (<-chan *types.Report, error)
	Cancel(id string) bool
}

// Register registers handlers to the gin router
type Register interface {
	Register(*gin.Engine)
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 50 * time.Second

	sendBuffer = 128
)

type wsHandle struct {
	sched  Scheduler
	langs  *language.Registry
	logger *zap.Logger
}

// New creates the websocket validation handle
func New(sched Scheduler, langs *language.Registry, logger *zap.Logger) Register {
	return &wsHandle{
		sched:  sched,
		langs:  langs,
		logger: logger,
	}
}

func (h *wsHandle) Register(r *gin.Engine) {
	r.GET("/ws", h.handleWS)
}

func (h *wsHandle) handleWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		c.Error(err)
		c.AbortWithStatusJSON(http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithCancel(context.TODO())
	sendCh := make(chan model.Event, sendBuffer)

	// read loop: each message is one validation request
	go func() {
		defer conn.Close()
		defer cancel()
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(pongWait))
			return nil
		})

		for {
			req := new(model.Request)
			if err := conn.ReadJSON(req); err != nil {
				h.logger.Debug("ws read", zap.Error(err))
				return
			}
			h.submit(ctx, req, sendCh)
		}
	}()

	// write loop
	go func() {
		defer conn.Close()
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-sendCh:
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteJSON(ev); err != nil {
					h.logger.Debug("ws write", zap.Error(err))
					return
				}
			case <-ticker.C:
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()
}

func (h *wsHandle) submit(ctx context.Context, req *model.Request, sendCh chan<- model.Event) {
	job, err := model.ConvertRequest(req)
	if err != nil {
		h.send(ctx, sendCh, model.Event{Type: "error", SubmissionID: req.SubmissionID, Error: err.Error()})
		return
	}
	id := job.Submission.ID
	if _, ok := h.langs.Get(job.Submission.Language); !ok {
		h.send(ctx, sendCh, model.Event{Type: "error", SubmissionID: id, Error: "unsupported language: " + job.Submission.Language})
		return
	}
	job.Progress = func(r types.TestResult) {
		// progress is best effort, a slow consumer loses events
		select {
		case sendCh <- model.Event{Type: "progress", SubmissionID: id, Progress: &r}:
		default:
		}
	}

	ch, err := h.sched.Submit(ctx, job)
	if err != nil {
		h.send(ctx, sendCh, model.Event{Type: "error", SubmissionID: id, Error: err.Error()})
		return
	}
	go func() {
		select {
		case rep := <-ch:
			h.send(ctx, sendCh, model.Event{Type: "report", SubmissionID: id, Report: rep})
		case <-ctx.Done():
		}
	}()
}

func (h *wsHandle) send(ctx context.Context, sendCh chan<- model.Event, ev model.Event) {
	select {
	case sendCh <- ev:
	case <-ctx.Done():
	}
}
