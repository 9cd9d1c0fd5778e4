package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"agifund/internal/store"
	"agifund/pkg/models"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLedger struct {
	agents     []models.FundedAgent
	rejections []models.RejectionRecord
	failures   []models.EvaluationFailure
}

func (f *fakeLedger) FundedAgents() []models.FundedAgent           { return f.agents }
func (f *fakeLedger) Rejections() []models.RejectionRecord         { return f.rejections }
func (f *fakeLedger) EvaluationFailures() []models.EvaluationFailure { return f.failures }

func (f *fakeLedger) FindFundedByID(id string) (*models.FundedAgent, bool) {
	for i := range f.agents {
		if f.agents[i].ID == id {
			return &f.agents[i], true
		}
	}
	return nil, false
}

func (f *fakeLedger) FindRejectionByID(id string) (*models.RejectionRecord, bool) {
	for i := range f.rejections {
		if f.rejections[i].ApplicationID == id {
			return &f.rejections[i], true
		}
	}
	return nil, false
}

type fakeStats struct {
	info store.CheckpointInfo
}

func (f *fakeStats) Info() *store.CheckpointInfo {
	return &f.info
}

func newTestServer(ledger LedgerReader, stats StatsSource) *Server {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return NewServer(0, ledger, stats, NewLogManager(10), logger)
}

func doGet(s *Server, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	s.Engine().ServeHTTP(w, req)
	return w
}

// TestHealthEndpoint 测试健康检查
func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(&fakeLedger{}, nil)

	w := doGet(s, "/health")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}

// TestFundedAgentsEmptyReturnsArray 测试空账本返回空数组而非null
func TestFundedAgentsEmptyReturnsArray(t *testing.T) {
	s := newTestServer(&fakeLedger{}, nil)

	w := doGet(s, "/api/funded-agents")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "[]", w.Body.String())

	w = doGet(s, "/api/rejections")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "[]", w.Body.String())
}

// TestApplicationStatusLookup 测试申请状态查询的三种结果
func TestApplicationStatusLookup(t *testing.T) {
	ledger := &fakeLedger{
		agents:     []models.FundedAgent{{ID: "0xfunded", Name: "A", Status: models.AgentStatusActive}},
		rejections: []models.RejectionRecord{{ApplicationID: "0xrejected", AgentName: "B"}},
	}
	s := newTestServer(ledger, nil)

	var resp map[string]interface{}

	w := doGet(s, "/api/application/0xfunded")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "FUNDED", resp["status"])

	w = doGet(s, "/api/application/0xrejected")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "REJECTED", resp["status"])

	w = doGet(s, "/api/application/0xnothing")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "UNKNOWN", resp["status"])
}

// TestStatsEndpoint 测试统计汇总
func TestStatsEndpoint(t *testing.T) {
	ledger := &fakeLedger{
		agents: []models.FundedAgent{
			{ID: "0x01", FundedAmount: 500, TotalRevenuePaid: 50},
			{ID: "0x02", FundedAmount: 300, TotalRevenuePaid: 10},
		},
		rejections: []models.RejectionRecord{{ApplicationID: "0x03"}},
		failures:   []models.EvaluationFailure{{ApplicationID: "0x04"}},
	}
	stats := &fakeStats{info: store.CheckpointInfo{LastScannedBlock: 12345, ScanCycles: 7}}
	s := newTestServer(ledger, stats)

	w := doGet(s, "/api/stats")
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.EqualValues(t, 2, resp["agentsFunded"])
	assert.EqualValues(t, 800, resp["totalInvested"])
	assert.EqualValues(t, 60, resp["totalRevenue"])
	assert.EqualValues(t, 1, resp["totalRejections"])
	assert.EqualValues(t, 1, resp["evaluationFailures"])
	assert.EqualValues(t, 12345, resp["lastScannedBlock"])
}

// TestLogsEndpoint 测试日志环形缓冲区
func TestLogsEndpoint(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.InfoLevel)

	manager := NewLogManager(3)
	logger.AddHook(manager.Hook())
	s := NewServer(0, &fakeLedger{}, nil, manager, logger)

	logger.Info("第一条")
	logger.Info("第二条")
	logger.Info("第三条")
	logger.Info("第四条")

	w := doGet(s, "/api/logs")
	require.Equal(t, http.StatusOK, w.Code)

	var entries []LogEntry
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &entries))
	require.Len(t, entries, 3, "缓冲区容量为3，最旧的被覆盖")
	assert.Equal(t, "第四条", entries[0].Message, "最新的在前")
	assert.Equal(t, "第二条", entries[2].Message)
}

// TestCORSHeaders 测试跨域响应头
func TestCORSHeaders(t *testing.T) {
	s := newTestServer(&fakeLedger{}, nil)

	w := doGet(s, "/health")
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))

	// 预检请求
	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/api/stats", nil)
	s.Engine().ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
}
