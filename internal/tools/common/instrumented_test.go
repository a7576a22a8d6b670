package common

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/teemow/mcp-caldav/internal/calendar"
	"github.com/teemow/mcp-caldav/internal/instrumentation"
	"github.com/teemow/mcp-caldav/internal/server"
)

type instrumentedFixture struct {
	sc      *server.ServerContext
	reader  *sdkmetric.ManualReader
	spans   *tracetest.SpanRecorder
	audited *bytes.Buffer
}

func newInstrumentedFixture(t *testing.T) *instrumentedFixture {
	t.Helper()

	client, err := calendar.NewClient(calendar.Config{URL: "https://caldav.example.com/dav/", Username: "jane@example.com"})
	require.NoError(t, err)
	sc := server.NewServerContext(context.Background(), server.Options{Client: client})
	t.Cleanup(func() { _ = sc.Shutdown() })

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	metrics, err := instrumentation.NewMetrics(mp.Meter("test"), true)
	require.NoError(t, err)
	sc.SetMetrics(metrics)

	audited := &bytes.Buffer{}
	sc.SetAuditLogger(instrumentation.NewAuditLogger(slog.New(slog.NewJSONHandler(audited, nil))))

	spans := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans))
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(previous)
		_ = tp.Shutdown(context.Background())
	})

	return &instrumentedFixture{sc: sc, reader: reader, spans: spans, audited: audited}
}

func (f *instrumentedFixture) toolInvocations(t *testing.T) map[string]int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, f.reader.Collect(context.Background(), &rm))

	counts := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "mcp_tool_invocations_total" {
				continue
			}
			for _, p := range m.Data.(metricdata.Sum[int64]).DataPoints {
				tool, _ := p.Attributes.Value("tool")
				status, _ := p.Attributes.Value("status")
				host, _ := p.Attributes.Value("server")
				counts[tool.AsString()+"/"+status.AsString()+"/"+host.AsString()] += p.Value
			}
		}
	}
	return counts
}

func callRequest(args map[string]interface{}) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

func TestInstrumentedToolHandler_Success(t *testing.T) {
	f := newInstrumentedFixture(t)

	called := false
	wrapped := InstrumentedToolHandler("caldav_get_event_by_uid", instrumentation.OperationGet, f.sc,
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			called = true
			return mcp.NewToolResultText(`{"uid":"event-1"}`), nil
		})

	result, err := wrapped(context.Background(), callRequest(map[string]interface{}{"uid": "event-1"}))
	require.NoError(t, err)
	assert.True(t, called)
	assert.False(t, result.IsError)

	assert.Equal(t, map[string]int64{"caldav_get_event_by_uid/success/caldav.example.com": 1}, f.toolInvocations(t))

	spans := f.spans.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "tool.caldav_get_event_by_uid", spans[0].Name())
	assert.Equal(t, codes.Ok, spans[0].Status().Code)

	audit := f.audited.String()
	assert.Contains(t, audit, `"msg":"tool_executed"`)
	assert.Contains(t, audit, `"event_uid":"event-1"`)
	assert.Contains(t, audit, `"operation":"get"`)
	assert.Contains(t, audit, `"user_domain":"example.com"`)
	assert.NotContains(t, audit, "jane@example.com")
}

func TestInstrumentedToolHandler_ErrorResult(t *testing.T) {
	f := newInstrumentedFixture(t)

	wrapped := InstrumentedToolHandler("caldav_delete_event", instrumentation.OperationDelete, f.sc,
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return ErrorMessage("Event with UID event-9 not found"), nil
		})

	result, err := wrapped(context.Background(), callRequest(map[string]interface{}{"uid": "event-9"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)

	assert.Equal(t, map[string]int64{"caldav_delete_event/error/caldav.example.com": 1}, f.toolInvocations(t))

	spans := f.spans.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)

	assert.Contains(t, f.audited.String(), `"msg":"tool_failed"`)
	assert.Contains(t, f.audited.String(), "Event with UID event-9 not found")
}

func TestInstrumentedToolHandler_GoError(t *testing.T) {
	f := newInstrumentedFixture(t)
	expected := errors.New("handler exploded")

	wrapped := InstrumentedToolHandler("caldav_update_event", instrumentation.OperationUpdate, f.sc,
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return nil, expected
		})

	_, err := wrapped(context.Background(), callRequest(map[string]interface{}{"event_uid": "event-2"}))
	assert.Same(t, expected, err)
	assert.Equal(t, map[string]int64{"caldav_update_event/error/caldav.example.com": 1}, f.toolInvocations(t))
	assert.Contains(t, f.audited.String(), `"event_uid":"event-2"`)
}

func TestInstrumentedToolHandler_WithoutInstrumentation(t *testing.T) {
	sc := server.NewServerContext(context.Background(), server.Options{})
	defer func() { _ = sc.Shutdown() }()

	wrapped := InstrumentedToolHandler("caldav_list_calendars", instrumentation.OperationListCalendars, sc,
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return mcp.NewToolResultText("[]"), nil
		})

	result, err := wrapped(context.Background(), mcp.CallToolRequest{})
	require.NoError(t, err)
	assert.Equal(t, "[]", ResultText(result))
}
