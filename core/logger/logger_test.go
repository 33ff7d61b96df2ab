package logger

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextWithLogger(t *testing.T) {
	ctx, rlog := ContextWithLogger(context.Background())
	require.NotNil(t, rlog)
	id := RequestIDFromContext(ctx)
	assert.NotEmpty(t, id)

	again, same := ContextWithLogger(ctx)
	assert.Equal(t, rlog, same)
	assert.Equal(t, id, RequestIDFromContext(again))
}

func TestFromContextWithoutLogger(t *testing.T) {
	assert.NotNil(t, FromContext(context.Background()))
	assert.Empty(t, RequestIDFromContext(context.Background()))
}

func TestContextWithMessage(t *testing.T) {
	ctx, _ := ContextWithLogger(context.Background())
	requestID := RequestIDFromContext(ctx)

	ctx1, rlog1 := ContextWithMessage(ctx, nil, "iot-2/type/t/id/d/evt/e/fmt/json")
	ctx2, _ := ContextWithMessage(ctx, nil, "iot-2/type/t/id/d/evt/e/fmt/json")

	assert.Equal(t, requestID, RequestIDFromContext(ctx1), "request id is inherited")
	assert.Equal(t, "iot-2/type/t/id/d/evt/e/fmt/json", rlog1.Data[topicLoggerKey])
	assert.NotEmpty(t, MessageIDFromContext(ctx1))
	assert.NotEqual(t, MessageIDFromContext(ctx1), MessageIDFromContext(ctx2))

	base := logrus.NewEntry(logrus.New()).WithField("component", "test")
	_, rlog3 := ContextWithMessage(context.Background(), base, "x")
	assert.Equal(t, "test", rlog3.Data["component"])
}

func TestContextWithDevice(t *testing.T) {
	ctx, rlog := ContextWithDevice(context.Background(), "sensor", "s1")
	assert.Equal(t, "sensor", rlog.Data[deviceTypeLoggerKey])
	assert.Equal(t, "s1", FromContext(ctx).Data[deviceIDLoggerKey])
	assert.NotEmpty(t, RequestIDFromContext(ctx))
}

func TestAddRequestID(t *testing.T) {
	router := mux.NewRouter()
	AddRequestID(router)
	var requestID string
	router.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		requestID = RequestIDFromContext(r.Context())
	})
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, requestID)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, logrus.DebugLevel, ParseLevel("debug"))
	assert.Equal(t, logrus.InfoLevel, ParseLevel("chatty"))
}
