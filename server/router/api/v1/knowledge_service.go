package v1

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/jeremymatthewwerner/dining-philosophers-Dec25-sw-factory/store"
)

type knowledgeResponse struct {
	Name         string          `json:"name"`
	Status       string          `json:"status"`
	Data         json.RawMessage `json:"data"`
	ErrorMessage string          `json:"error_message,omitempty"`
	CreatedTs    int64           `json:"created_ts"`
	UpdatedTs    int64           `json:"updated_ts"`
}

// GetThinkerKnowledge returns the cached research for a thinker, creating a
// pending record and queueing research when none is fresh. Never blocks on
// the research itself.
func (s *APIV1Service) GetThinkerKnowledge(c echo.Context) error {
	name, err := thinkerNameParam(c)
	if err != nil {
		return err
	}
	rec, err := s.Knowledge.GetOrTrigger(c.Request().Context(), name)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, convertResearchRecord(rec))
}

type knowledgeStatusResponse struct {
	Name      string `json:"name"`
	Status    string `json:"status"`
	HasData   bool   `json:"has_data"`
	UpdatedTs int64  `json:"updated_ts"`
}

// GetThinkerKnowledgeStatus is the read-only variant: a lightweight probe for
// UI polling that reports the current state without creating a record or
// queueing research, and without shipping the payload.
func (s *APIV1Service) GetThinkerKnowledgeStatus(c echo.Context) error {
	name, err := thinkerNameParam(c)
	if err != nil {
		return err
	}
	rec, err := s.Knowledge.Status(c.Request().Context(), name)
	if err != nil {
		return httpError(err)
	}
	if rec == nil {
		return echo.NewHTTPError(http.StatusNotFound, "no research record for this thinker")
	}
	return c.JSON(http.StatusOK, &knowledgeStatusResponse{
		Name:      rec.Name,
		Status:    string(rec.Status),
		HasData:   rec.Status == store.ResearchComplete && rec.Payload != "" && rec.Payload != "{}",
		UpdatedTs: rec.UpdatedTs,
	})
}

// RefreshThinkerKnowledge queues a new research job regardless of freshness,
// including retrying a failed record.
func (s *APIV1Service) RefreshThinkerKnowledge(c echo.Context) error {
	name, err := thinkerNameParam(c)
	if err != nil {
		return err
	}
	rec, err := s.Knowledge.Refresh(c.Request().Context(), name)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusAccepted, convertResearchRecord(rec))
}

// RefreshStaleKnowledge queues research for every complete record past the
// staleness window and reports how many were queued.
func (s *APIV1Service) RefreshStaleKnowledge(c echo.Context) error {
	queued, err := s.Knowledge.RefreshStale(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusAccepted, map[string]int{"queued": queued})
}

func thinkerNameParam(c echo.Context) (string, error) {
	name := strings.TrimSpace(c.Param("name"))
	if name == "" {
		return "", echo.NewHTTPError(http.StatusBadRequest, "thinker name is required")
	}
	return name, nil
}

func convertResearchRecord(rec *store.ResearchRecord) *knowledgeResponse {
	data := json.RawMessage(rec.Payload)
	if !json.Valid(data) {
		data = json.RawMessage("{}")
	}
	return &knowledgeResponse{
		Name:         rec.Name,
		Status:       string(rec.Status),
		Data:         data,
		ErrorMessage: rec.ErrorMessage,
		CreatedTs:    rec.CreatedTs,
		UpdatedTs:    rec.UpdatedTs,
	}
}
