package api

import (
	"context"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/telekom/smtp-notifier/pkg/apiresponses"
	"github.com/telekom/smtp-notifier/pkg/config"
	"github.com/telekom/smtp-notifier/pkg/dispatch"
	"github.com/telekom/smtp-notifier/pkg/notification"
	"github.com/telekom/smtp-notifier/pkg/system"
)

// Publisher hands an event to the subscribers of its kind.
type Publisher interface {
	Publish(ctx context.Context, kind notification.Kind, ev notification.Event) int
}

// Tester runs the test dispatch.
type Tester interface {
	Test(ctx context.Context) (dispatch.Result, error)
}

// TemplateManager reads and replaces the custom template.
type TemplateManager interface {
	Template() (string, error)
	SaveTemplate(content string) error
	RestoreDefaultTemplate() error
}

// DispatchResponse is the JSON shape of a dispatch result.
type DispatchResponse struct {
	ID        string `json:"id"`
	TestRun   bool   `json:"testRun"`
	Primary   string `json:"primary"`
	Secondary string `json:"secondary"`
	Summary   string `json:"summary"`
}

// NewDispatchResponse converts a dispatch result for output.
func NewDispatchResponse(res dispatch.Result) DispatchResponse {
	return DispatchResponse{
		ID:        res.ID,
		TestRun:   res.TestRun,
		Primary:   res.Primary.String(),
		Secondary: res.Secondary.String(),
		Summary:   res.Summary,
	}
}

// NotifierController accepts events and triggers test runs.
type NotifierController struct {
	log       *zap.SugaredLogger
	publisher Publisher
	tester    Tester
}

func NewNotifierController(log *zap.SugaredLogger, p Publisher, t Tester) *NotifierController {
	return &NotifierController{log: log, publisher: p, tester: t}
}

func (NotifierController) BasePath() string {
	return ""
}

func (nc *NotifierController) Register(rg *gin.RouterGroup) error {
	rg.POST("/events", nc.handlePublish)
	rg.POST("/test", nc.handleTest)
	return nil
}

func (NotifierController) Handlers() []gin.HandlerFunc {
	return []gin.HandlerFunc{}
}

func (nc *NotifierController) handlePublish(c *gin.Context) {
	log := system.GetReqLogger(c, nc.log)
	var ev notification.Event
	if err := c.ShouldBindJSON(&ev); err != nil {
		apiresponses.RespondBadRequestWithDetails(c, "invalid notification payload", err.Error())
		return
	}
	n := nc.publisher.Publish(c.Request.Context(), notification.KindNoticeMessage, ev)
	log.Debugw("Event published", append([]interface{}{"subscribers", n}, system.EventFields(ev)...)...)
	apiresponses.RespondAccepted(c, gin.H{"subscribers": n})
}

func (nc *NotifierController) handleTest(c *gin.Context) {
	log := system.GetReqLogger(c, nc.log)
	res, err := nc.tester.Test(c.Request.Context())
	if err != nil {
		apiresponses.RespondDispatchError(c, err, log)
		return
	}
	apiresponses.RespondOK(c, NewDispatchResponse(res))
}

type templateBody struct {
	Content string `json:"content" binding:"required"`
}

type TemplateController struct {
	log       *zap.SugaredLogger
	templates TemplateManager
}

func NewTemplateController(log *zap.SugaredLogger, tm TemplateManager) *TemplateController {
	return &TemplateController{log: log, templates: tm}
}

func (TemplateController) BasePath() string {
	return "template"
}

func (tc *TemplateController) Register(rg *gin.RouterGroup) error {
	rg.GET("", tc.handleGet)
	rg.PUT("", tc.handlePut)
	rg.POST("/restore", tc.handleRestore)
	return nil
}

func (TemplateController) Handlers() []gin.HandlerFunc {
	return []gin.HandlerFunc{}
}

func (tc *TemplateController) handleGet(c *gin.Context) {
	content, err := tc.templates.Template()
	if err != nil {
		apiresponses.RespondInternalError(c, "read template", err, system.GetReqLogger(c, tc.log))
		return
	}
	apiresponses.RespondOK(c, templateBody{Content: content})
}

func (tc *TemplateController) handlePut(c *gin.Context) {
	var body templateBody
	if err := c.ShouldBindJSON(&body); err != nil {
		apiresponses.RespondBadRequestWithDetails(c, "invalid template payload", err.Error())
		return
	}
	if err := tc.templates.SaveTemplate(body.Content); err != nil {
		apiresponses.RespondInternalError(c, "save template", err, system.GetReqLogger(c, tc.log))
		return
	}
	apiresponses.RespondNoContent(c)
}

func (tc *TemplateController) handleRestore(c *gin.Context) {
	if err := tc.templates.RestoreDefaultTemplate(); err != nil {
		apiresponses.RespondInternalError(c, "restore default template", err, system.GetReqLogger(c, tc.log))
		return
	}
	apiresponses.RespondNoContent(c)
}

// ConfigController exposes the stored configuration with credentials masked.
type ConfigController struct {
	log   *zap.SugaredLogger
	store config.Store
}

func NewConfigController(log *zap.SugaredLogger, store config.Store) *ConfigController {
	return &ConfigController{log: log, store: store}
}

func (ConfigController) BasePath() string {
	return "config"
}

func (cc *ConfigController) Register(rg *gin.RouterGroup) error {
	rg.GET("", cc.handleGet)
	return nil
}

func (ConfigController) Handlers() []gin.HandlerFunc {
	return []gin.HandlerFunc{}
}

func (cc *ConfigController) handleGet(c *gin.Context) {
	cfg, err := cc.store.Get()
	if err != nil {
		apiresponses.RespondInternalError(c, "load configuration", err, system.GetReqLogger(c, cc.log))
		return
	}
	apiresponses.RespondOK(c, cfg.Redacted())
}
