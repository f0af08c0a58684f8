package api

import (
	"context"
	"encoding/csv"
	"fmt"
	"net/http"
	"os"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/agentis-health/discharge-orchestrator/internal/audit"
	"github.com/agentis-health/discharge-orchestrator/internal/config"
	"github.com/agentis-health/discharge-orchestrator/internal/consent"
	"github.com/agentis-health/discharge-orchestrator/internal/domain"
	"github.com/agentis-health/discharge-orchestrator/internal/orchestrate"
)

const defaultPatientID = "123"

// PolicyReloader re-reads the consent policy source on demand.
type PolicyReloader interface {
	Reload()
}

// ConsentChecker is the engine surface exposed over HTTP.
type ConsentChecker interface {
	Check(subjectRef, recipientRef, action, purposeOfUse string) consent.Decision
}

// Billing is the change-of-ownership collaborator surface.
type Billing interface {
	Ownership(ctx context.Context) (map[string]any, error)
	BillTransfer(ctx context.Context) (map[string]any, error)
	Reset(ctx context.Context) (map[string]any, error)
}

// Server holds the trigger service's HTTP handlers.
type Server struct {
	engine   ConsentChecker
	pipeline *orchestrate.Pipeline
	billing  Billing
	auditMem *audit.MemorySink
	reloader PolicyReloader

	patientsCSV string
	log         zerolog.Logger
}

func NewServer(engine ConsentChecker, pipeline *orchestrate.Pipeline, billing Billing, auditMem *audit.MemorySink, reloader PolicyReloader, patientsCSV string, log zerolog.Logger) *Server {
	return &Server{
		engine:      engine,
		pipeline:    pipeline,
		billing:     billing,
		auditMem:    auditMem,
		reloader:    reloader,
		patientsCSV: patientsCSV,
		log:         log,
	}
}

// Router builds the gin engine with middleware and all routes registered.
func (s *Server) Router(cfg *config.Config) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestLogger(s.log))

	corsCfg := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*" {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
		corsCfg.AllowCredentials = cfg.AllowedCredentials
	}
	corsCfg.AllowHeaders = []string{"*"}
	router.Use(cors.New(corsCfg))

	router.GET("/health", s.Health)
	router.GET("/patients", s.ListPatients)

	demo := router.Group("/demo")
	if cfg.Auth.Enabled {
		demo.Use(Auth(cfg.Auth.JWTSecret))
	}
	demo.POST("/discharge", s.DemoDischarge)
	demo.POST("/agentis", s.DemoAgentis)
	demo.POST("/agentis-referral", s.DemoAgentisReferral)
	demo.POST("/referral", s.DemoReferral)
	demo.POST("/consent-check", s.DemoConsentCheck)
	demo.POST("/audit-check", s.DemoAuditCheck)
	demo.POST("/coo/:op", s.DemoChangeOfOwnership)

	router.GET("/audit", s.AuditEvents)
	router.POST("/admin/policy/reload", s.ReloadPolicy)

	return router
}

func (s *Server) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "trigger-server"})
}

// ListPatients reads the patient CSV, falling back to the single demo
// patient when the fixture file is absent.
func (s *Server) ListPatients(c *gin.Context) {
	rows := s.readPatients()
	c.JSON(http.StatusOK, gin.H{"count": len(rows), "patients": rows})
}

func (s *Server) readPatients() []gin.H {
	fallback := []gin.H{{
		"patient_id": defaultPatientID,
		"mrn":        "MRN-123-LOCAL",
		"ihi":        "8003608166690503",
		"name":       "Jane Doe",
	}}

	f, err := os.Open(s.patientsCSV)
	if err != nil {
		return fallback
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil || len(records) < 2 {
		return fallback
	}

	header := records[0]
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[name] = i
	}
	field := func(row []string, name string) string {
		if i, ok := col[name]; ok && i < len(row) {
			return row[i]
		}
		return ""
	}

	out := make([]gin.H, 0, len(records)-1)
	for _, row := range records[1:] {
		out = append(out, gin.H{
			"patient_id": field(row, "patient_id"),
			"mrn":        field(row, "mrn"),
			"ihi":        field(row, "ihi"),
			"name":       fmt.Sprintf("%s %s", field(row, "given_name"), field(row, "family_name")),
		})
	}
	return out
}

type dischargeRequest struct {
	PatientID string `json:"patient_id"`
}

func (s *Server) DemoDischarge(c *gin.Context) {
	var req dischargeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}
	if req.PatientID == "" {
		req.PatientID = defaultPatientID
	}

	out, err := s.pipeline.Discharge(c.Request.Context(), req.PatientID)
	if err != nil {
		s.log.Error().Err(err).Str("patient_id", req.PatientID).Msg("discharge demo failed")
		ErrorFromDomain(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

type referralRequest struct {
	PatientID string         `json:"patient_id"`
	Context   map[string]any `json:"context"`
}

// DemoAgentisReferral runs the planner-driven referral pipeline: propose
// actions, then push them through the consent-gated executor.
func (s *Server) DemoAgentisReferral(c *gin.Context) {
	var req referralRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}
	if req.PatientID == "" {
		req.PatientID = defaultPatientID
	}

	result, err := s.pipeline.RunReferral(c.Request.Context(), req.PatientID, req.Context)
	if err != nil {
		s.log.Error().Err(err).Str("patient_id", req.PatientID).Msg("referral demo failed")
		ErrorFromDomain(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// DemoAgentis runs the pipeline-stage demo: prompt assembly, planner
// completion, and the sense/normalize/explain stage shells.
func (s *Server) DemoAgentis(c *gin.Context) {
	var req dischargeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}
	if req.PatientID == "" {
		req.PatientID = defaultPatientID
	}

	result, err := s.pipeline.RunDemo(c.Request.Context(), req.PatientID)
	if err != nil {
		s.log.Error().Err(err).Str("patient_id", req.PatientID).Msg("pipeline demo failed")
		ErrorFromDomain(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// DemoReferral searches the patient's ServiceRequest referrals and writes
// back a follow-up Task when one is found.
func (s *Server) DemoReferral(c *gin.Context) {
	var req dischargeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}
	if req.PatientID == "" {
		req.PatientID = defaultPatientID
	}

	result, err := s.pipeline.SearchReferrals(c.Request.Context(), req.PatientID)
	if err != nil {
		s.log.Error().Err(err).Str("patient_id", req.PatientID).Msg("referral search demo failed")
		ErrorFromDomain(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// DemoAuditCheck drives the EMR audit trail demo for the fixture patient.
func (s *Server) DemoAuditCheck(c *gin.Context) {
	result, err := s.pipeline.AuditCheck(c.Request.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("audit check demo failed")
		ErrorFromDomain(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type consentCheckRequest struct {
	PatientID    string `json:"patient_id"`
	RecipientRef string `json:"recipient_ref" binding:"required"`
	Action       string `json:"action" binding:"required"`
	PurposeOfUse string `json:"purpose_of_use" binding:"required"`
}

func (s *Server) DemoConsentCheck(c *gin.Context) {
	var req consentCheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}
	if req.PatientID == "" {
		req.PatientID = defaultPatientID
	}

	patientRef := domain.PatientRef(req.PatientID)
	decision := s.engine.Check(patientRef, req.RecipientRef, req.Action, req.PurposeOfUse)

	c.JSON(http.StatusOK, gin.H{
		"request": gin.H{
			"patient_ref":    patientRef,
			"recipient_ref":  req.RecipientRef,
			"action":         req.Action,
			"purpose_of_use": req.PurposeOfUse,
		},
		"decision": decision,
	})
}

// DemoChangeOfOwnership forwards one change-of-ownership demo operation to
// the billing collaborator.
func (s *Server) DemoChangeOfOwnership(c *gin.Context) {
	if s.billing == nil {
		Error(c, http.StatusNotFound, CodeNotFound, "billing collaborator is not configured")
		return
	}

	var out map[string]any
	var err error
	switch op := c.Param("op"); op {
	case "ownership":
		out, err = s.billing.Ownership(c.Request.Context())
	case "bill-transfer":
		out, err = s.billing.BillTransfer(c.Request.Context())
	case "reset":
		out, err = s.billing.Reset(c.Request.Context())
	default:
		Error(c, http.StatusBadRequest, CodeBadRequest, fmt.Sprintf("unknown coo operation: %s", op))
		return
	}
	if err != nil {
		s.log.Error().Err(err).Msg("coo demo call failed")
		Error(c, http.StatusBadGateway, CodeBadGateway, err.Error())
		return
	}
	c.JSON(http.StatusOK, out)
}

// AuditEvents dumps the in-memory audit ring, oldest first.
func (s *Server) AuditEvents(c *gin.Context) {
	events := s.auditMem.Events()
	c.JSON(http.StatusOK, gin.H{"count": len(events), "events": events})
}

// ReloadPolicy republishes the consent policy snapshot from disk.
func (s *Server) ReloadPolicy(c *gin.Context) {
	if s.reloader == nil {
		Error(c, http.StatusNotFound, CodeNotFound, "policy source is not reloadable")
		return
	}
	s.reloader.Reload()
	Success(c, gin.H{"reloaded": true})
}
