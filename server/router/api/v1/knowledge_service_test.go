package v1

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremymatthewwerner/dining-philosophers-Dec25-sw-factory/store"
)

func TestGetThinkerKnowledgeCreatesPendingRecord(t *testing.T) {
	svc, _ := newTestService()

	rec, err := invoke(t, svc.GetThinkerKnowledge, http.MethodGet, "", map[string]string{"name": "Hannah Arendt"})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := &knowledgeResponse{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), resp))
	assert.Equal(t, "Hannah Arendt", resp.Name)
	assert.Equal(t, string(store.ResearchPending), resp.Status)
	assert.JSONEq(t, "{}", string(resp.Data))
}

func TestGetThinkerKnowledgeStatusIsReadOnly(t *testing.T) {
	svc, _ := newTestService()

	rec, err := invoke(t, svc.GetThinkerKnowledgeStatus, http.MethodGet, "", map[string]string{"name": "Nobody Known"})
	assert.Equal(t, http.StatusNotFound, statusOf(t, rec, err))

	// The status probe must not have created a record.
	researcher := svc.Knowledge.(*stubResearcher)
	researcher.mu.Lock()
	_, exists := researcher.records["Nobody Known"]
	researcher.mu.Unlock()
	assert.False(t, exists)
}

func TestGetThinkerKnowledgeStatusReturnsRecord(t *testing.T) {
	svc, _ := newTestService()
	researcher := svc.Knowledge.(*stubResearcher)
	researcher.mu.Lock()
	researcher.records["Mary Wollstonecraft"] = &store.ResearchRecord{
		Name:    "Mary Wollstonecraft",
		Status:  store.ResearchComplete,
		Payload: `{"wikipedia":{"title":"Mary Wollstonecraft"}}`,
	}
	researcher.mu.Unlock()

	rec, err := invoke(t, svc.GetThinkerKnowledgeStatus, http.MethodGet, "", map[string]string{"name": "Mary Wollstonecraft"})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := &knowledgeStatusResponse{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), resp))
	assert.Equal(t, string(store.ResearchComplete), resp.Status)
	assert.True(t, resp.HasData)
	// The status probe never ships the payload itself.
	assert.NotContains(t, rec.Body.String(), "wikipedia")
}

func TestRefreshThinkerKnowledgeQueues(t *testing.T) {
	svc, _ := newTestService()

	rec, err := invoke(t, svc.RefreshThinkerKnowledge, http.MethodPost, "", map[string]string{"name": "Laozi"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, rec.Code)

	researcher := svc.Knowledge.(*stubResearcher)
	researcher.mu.Lock()
	queued := append([]string(nil), researcher.queued...)
	researcher.mu.Unlock()
	assert.Contains(t, queued, "Laozi")
}

func TestRefreshStaleKnowledge(t *testing.T) {
	svc, _ := newTestService()

	rec, err := invoke(t, svc.RefreshStaleKnowledge, http.MethodPost, "", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.JSONEq(t, `{"queued":0}`, rec.Body.String())
}

func TestConvertResearchRecordSanitizesPayload(t *testing.T) {
	resp := convertResearchRecord(&store.ResearchRecord{
		Name:    "X",
		Status:  store.ResearchFailed,
		Payload: "not json at all",
	})
	assert.JSONEq(t, "{}", string(resp.Data))
}
