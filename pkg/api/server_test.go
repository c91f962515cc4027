package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/umami-labs/brigade/pkg/config"
	"github.com/umami-labs/brigade/pkg/llm"
	"github.com/umami-labs/brigade/pkg/models"
	"github.com/umami-labs/brigade/pkg/resource"
	"github.com/umami-labs/brigade/pkg/services"
	"github.com/umami-labs/brigade/pkg/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// fakeSampler returns scripted readings.
type fakeSampler struct {
	ramPercent float64
	swapMB     float64
	vramGB     float64
	vramPct    float64
}

func (f *fakeSampler) Memory() (float64, float64, error) { return f.ramPercent, f.swapMB, nil }
func (f *fakeSampler) GPU() (float64, float64, error)    { return f.vramGB, f.vramPct, nil }

// newTestServer builds a router over the in-memory store and a scripted LLM.
func newTestServer(t *testing.T, mock *llm.Mock, sampler resource.Sampler) (*gin.Engine, store.Store) {
	t.Helper()
	if mock == nil {
		mock = llm.NewMock()
		mock.Default = "Stir well and serve."
	}
	if sampler == nil {
		sampler = &fakeSampler{ramPercent: 40}
	}
	cfg := config.Load()
	st := store.NewMemory()
	monitor := resource.NewMonitor(sampler)
	svc := services.NewChatService(cfg, st, mock, monitor, nil, nil)
	srv := NewServer(cfg, st, svc, monitor, nil)
	return srv.Router(), st
}

func doRequest(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func seedSession(t *testing.T, st store.Store, owner string) *models.Session {
	t.Helper()
	sess, err := st.CreateSession(context.Background(), owner)
	require.NoError(t, err)
	return sess
}
