package gqlclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"attendboard/internal/model"
)

type captured struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

// fakeBackend answers by the first operation field found in the query.
func fakeBackend(t *testing.T, handle func(op string, req captured) any) (*httptest.Server, *[]captured) {
	t.Helper()
	var seen []captured
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("x-api-key"))
		var req captured
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		seen = append(seen, req)
		op := operationOf(req.Query)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(handle(op, req))
	}))
	t.Cleanup(srv.Close)
	return srv, &seen
}

func operationOf(q string) string {
	for _, name := range []string{
		"listStudents", "listAttendanceRecords", "listAlerts", "listFaceIndices", "listAttendances",
		"createStudent", "createAttendanceRecord", "createAlert", "createFaceIndex", "createAttendance", "__typename",
	} {
		if strings.Contains(q, name+"(") || strings.Contains(q, "{ "+name+" }") {
			return name
		}
	}
	return ""
}

func newTestClient(endpoint string, schema Schema) *Client {
	return New(Options{Endpoint: endpoint, APIKey: "secret", Schema: schema, PageSize: 2, Timeout: time.Second}, zerolog.Nop())
}

func TestFetchRosterFollowsNextToken(t *testing.T) {
	srv, seen := fakeBackend(t, func(op string, req captured) any {
		require.Equal(t, "listStudents", op)
		if req.Variables["nextToken"] == nil {
			return map[string]any{"data": map[string]any{"listStudents": map[string]any{
				"items":     []map[string]any{{"id": "s1", "name": "John Smith", "studentIDNumber": "STU001"}, {"id": "s2", "name": "Maria Garcia", "studentIDNumber": "STU002"}},
				"nextToken": "page-2",
			}}}
		}
		return map[string]any{"data": map[string]any{"listStudents": map[string]any{
			"items":     []map[string]any{{"id": "s3", "name": "Ahmed Khan", "studentIDNumber": "STU003"}},
			"nextToken": nil,
		}}}
	})

	roster, err := newTestClient(srv.URL, SchemaRecords).FetchRoster(context.Background())
	require.NoError(t, err)
	require.Len(t, roster, 3)
	assert.Equal(t, model.Student{ID: "s3", Name: "Ahmed Khan", ExternalCode: "STU003"}, roster[2])
	require.Len(t, *seen, 2)
	assert.Equal(t, "page-2", (*seen)[1].Variables["nextToken"])
	assert.EqualValues(t, 2, (*seen)[0].Variables["limit"])
}

func TestFetchAttendanceMapsStatusesAndFilter(t *testing.T) {
	srv, seen := fakeBackend(t, func(op string, _ captured) any {
		require.Equal(t, "listAttendanceRecords", op)
		return map[string]any{"data": map[string]any{"listAttendanceRecords": map[string]any{
			"items": []map[string]any{
				{"id": "r1", "studentID": "s1", "timestamp": "2024-05-15T08:00:00Z", "status": "PRESENT"},
				{"id": "r2", "studentID": "s2", "timestamp": "2024-05-15T09:10:00.123Z", "status": "late"},
				{"id": "r3", "studentID": "s3", "timestamp": "2024-05-15T09:20:00Z", "status": "EXCUSED"},
				{"id": "r4", "studentID": "s3", "timestamp": "not-a-time", "status": "PRESENT"},
			},
		}}}
	})

	rng := &model.TimeRange{
		From: time.Date(2024, 5, 15, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2024, 5, 16, 0, 0, 0, 0, time.UTC),
	}
	records, err := newTestClient(srv.URL, SchemaRecords).FetchAttendance(context.Background(), rng)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, model.Present, records[0].Status)
	assert.Equal(t, model.Late, records[1].Status)
	assert.Equal(t, model.Absent, records[2].Status)
	assert.Equal(t, "EXCUSED", records[2].RawStatus)

	filter := (*seen)[0].Variables["filter"].(map[string]any)
	between := filter["timestamp"].(map[string]any)["between"].([]any)
	assert.Equal(t, []any{"2024-05-15T00:00:00Z", "2024-05-16T00:00:00Z"}, between)
}

func TestLegacySchema(t *testing.T) {
	srv, seen := fakeBackend(t, func(op string, _ captured) any {
		switch op {
		case "listFaceIndices":
			return map[string]any{"data": map[string]any{"listFaceIndices": map[string]any{
				"items": []map[string]any{{"StudentID": "STU001", "Name": "John Smith"}},
			}}}
		case "listAttendances":
			return map[string]any{"data": map[string]any{"listAttendances": map[string]any{
				"items": []map[string]any{
					{"StudentID": "STU001", "Date": "2024-05-15", "Time": "08:30:15", "Name": "John Smith", "Image": "cap_1.jpg"},
					{"StudentID": "STU001", "Date": "2024-05-15", "Time": "13:02:00", "Name": "John Smith"},
				},
			}}}
		case "createAttendance":
			return map[string]any{"data": map[string]any{"createAttendance": map[string]any{"StudentID": "STU001", "Date": "2024-05-15", "Time": "09:00:00", "Name": "John Smith"}}}
		}
		t.Fatalf("unexpected operation %q", op)
		return nil
	})
	c := newTestClient(srv.URL, SchemaLegacy)
	ctx := context.Background()

	roster, err := c.FetchRoster(ctx)
	require.NoError(t, err)
	assert.Equal(t, []model.Student{{ID: "STU001", Name: "John Smith", ExternalCode: "STU001"}}, roster)

	rng := &model.TimeRange{From: time.Date(2024, 5, 9, 0, 0, 0, 0, time.UTC), To: time.Date(2024, 5, 16, 0, 0, 0, 0, time.UTC)}
	records, err := c.FetchAttendance(ctx, rng)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, model.Present, records[0].Status)
	assert.Equal(t, time.Date(2024, 5, 15, 8, 30, 15, 0, time.UTC), records[0].OccurredAt)
	assert.Equal(t, "STU001_2024-05-15_08:30:15", records[0].ID)
	assert.Equal(t, "STU001_2024-05-15_13:02:00", records[1].ID)
	assert.NotContains(t, (*seen)[1].Query, " id ")
	between := (*seen)[1].Variables["filter"].(map[string]any)["Date"].(map[string]any)["between"].([]any)
	assert.Equal(t, []any{"2024-05-09", "2024-05-15"}, between)

	alerts, err := c.FetchAlerts(ctx)
	require.NoError(t, err)
	assert.Empty(t, alerts)

	created, err := c.CreateAttendanceRecord(ctx, model.AttendanceInput{StudentRef: "STU001", Name: "John Smith", Date: "2024-05-15", Time: "09:00:00"})
	require.NoError(t, err)
	assert.Equal(t, "STU001_2024-05-15_09:00:00", created.ID)
	assert.NotContains(t, (*seen)[len(*seen)-1].Query, " id ")
	input := (*seen)[len(*seen)-1].Variables["input"].(map[string]any)
	assert.Equal(t, "John Smith", input["Name"])

	_, err = c.CreateAlert(ctx, model.AlertInput{Message: "x", OccurredAt: time.Now(), Kind: model.AlertSystem})
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestCreateMutationsRecordsSchema(t *testing.T) {
	srv, seen := fakeBackend(t, func(op string, req captured) any {
		input := req.Variables["input"].(map[string]any)
		switch op {
		case "createStudent":
			return map[string]any{"data": map[string]any{"createStudent": map[string]any{"id": "new-1", "name": input["name"], "studentIDNumber": input["studentIDNumber"]}}}
		case "createAttendanceRecord":
			return map[string]any{"data": map[string]any{"createAttendanceRecord": map[string]any{"id": "rec-1", "studentID": input["studentID"], "timestamp": input["timestamp"], "status": input["status"]}}}
		case "createAlert":
			return map[string]any{"data": map[string]any{"createAlert": map[string]any{"id": "al-1", "message": input["message"], "timestamp": input["timestamp"], "alertType": input["alertType"]}}}
		}
		return nil
	})
	c := newTestClient(srv.URL, SchemaRecords)
	ctx := context.Background()

	st, err := c.CreateStudent(ctx, model.StudentInput{Name: "Li Wei", ExternalCode: "STU005"})
	require.NoError(t, err)
	assert.Equal(t, model.Student{ID: "new-1", Name: "Li Wei", ExternalCode: "STU005"}, st)

	rec, err := c.CreateAttendanceRecord(ctx, model.AttendanceInput{StudentRef: "new-1", Name: "Li Wei", Date: "2024-05-14", Time: "08:05:00", Status: model.Late})
	require.NoError(t, err)
	assert.Equal(t, model.Late, rec.Status)
	assert.Equal(t, time.Date(2024, 5, 14, 8, 5, 0, 0, time.UTC), rec.OccurredAt)
	sent := (*seen)[1].Variables["input"].(map[string]any)
	assert.Equal(t, "2024-05-14T08:05:00Z", sent["timestamp"])
	assert.Equal(t, "LATE", sent["status"])

	alert, err := c.CreateAlert(ctx, model.AlertInput{Message: "Unknown face detected", OccurredAt: time.Date(2024, 5, 14, 9, 0, 0, 0, time.UTC), Kind: model.AlertUnknownFace})
	require.NoError(t, err)
	assert.Equal(t, model.AlertUnknownFace, alert.Kind)
	assert.Equal(t, time.Date(2024, 5, 14, 9, 0, 0, 0, time.UTC), alert.OccurredAt)
}

func TestResponseErrorsAndTransportErrors(t *testing.T) {
	srv, _ := fakeBackend(t, func(string, captured) any {
		return map[string]any{
			"data":   nil,
			"errors": []map[string]any{{"message": "Not Authorized to access listStudents on type Query", "path": []string{"listStudents"}}},
		}
	})
	_, err := newTestClient(srv.URL, SchemaRecords).FetchRoster(context.Background())
	var respErr *ResponseError
	require.True(t, errors.As(err, &respErr))
	assert.Equal(t, "listStudents", respErr.Operation)
	assert.Contains(t, err.Error(), "Not Authorized")

	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer down.Close()
	err = newTestClient(down.URL, SchemaRecords).Ping(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")

	_, err = newTestClient("", SchemaRecords).FetchRoster(context.Background())
	assert.ErrorIs(t, err, ErrEndpointMissing)
}

func TestPing(t *testing.T) {
	srv, _ := fakeBackend(t, func(op string, _ captured) any {
		assert.Equal(t, "__typename", op)
		return map[string]any{"data": map[string]any{"__typename": "Query"}}
	})
	assert.NoError(t, newTestClient(srv.URL, SchemaRecords).Ping(context.Background()))
}

func TestParseSchema(t *testing.T) {
	s, err := ParseSchema("")
	require.NoError(t, err)
	assert.Equal(t, SchemaRecords, s)
	s, err = ParseSchema("LEGACY")
	require.NoError(t, err)
	assert.Equal(t, SchemaLegacy, s)
	_, err = ParseSchema("v3")
	assert.Error(t, err)
}
