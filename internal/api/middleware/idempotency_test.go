package middleware

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type countingHandler struct {
	calls  int
	status int
}

func (h *countingHandler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	h.calls++
	w.WriteHeader(h.status)
	w.Write([]byte(`{"ok":true}`))
}

func post(key string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/tickets", nil)
	if key != "" {
		req.Header.Set("Idempotency-Key", key)
	}
	return req
}

func TestIdempotency_NoKeyPassesThrough(t *testing.T) {
	db, mock := redismock.NewClientMock()
	next := &countingHandler{status: http.StatusAccepted}

	rec := httptest.NewRecorder()
	Idempotency(db, discardLogger())(next).ServeHTTP(rec, post(""))

	assert.Equal(t, 1, next.calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIdempotency_StoresFirstResponse(t *testing.T) {
	db, mock := redismock.NewClientMock()
	next := &countingHandler{status: http.StatusAccepted}
	key := IdempotencyKey("abc")

	mock.ExpectGet(key).RedisNil()
	mock.ExpectSetNX(key, processingMarker, lockTTL).SetVal(true)
	mock.ExpectSet(key, []byte(`{"status":202,"body":{"ok":true}}`), resultTTL).SetVal("OK")

	rec := httptest.NewRecorder()
	Idempotency(db, discardLogger())(next).ServeHTTP(rec, post("abc"))

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, 1, next.calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIdempotency_ReplaysStoredResponse(t *testing.T) {
	db, mock := redismock.NewClientMock()
	next := &countingHandler{status: http.StatusAccepted}

	mock.ExpectGet(IdempotencyKey("abc")).SetVal(`{"status":202,"body":{"ok":true}}`)

	rec := httptest.NewRecorder()
	Idempotency(db, discardLogger())(next).ServeHTTP(rec, post("abc"))

	assert.Equal(t, 0, next.calls)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "true", rec.Header().Get("X-Idempotency-Hit"))
	assert.JSONEq(t, `{"ok":true}`, rec.Body.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIdempotency_InFlightIsConflict(t *testing.T) {
	db, mock := redismock.NewClientMock()
	next := &countingHandler{status: http.StatusAccepted}

	mock.ExpectGet(IdempotencyKey("abc")).SetVal(processingMarker)

	rec := httptest.NewRecorder()
	Idempotency(db, discardLogger())(next).ServeHTTP(rec, post("abc"))

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, 0, next.calls)
}

func TestIdempotency_LostLockIsConflict(t *testing.T) {
	db, mock := redismock.NewClientMock()
	next := &countingHandler{status: http.StatusAccepted}
	key := IdempotencyKey("abc")

	mock.ExpectGet(key).RedisNil()
	mock.ExpectSetNX(key, processingMarker, lockTTL).SetVal(false)

	rec := httptest.NewRecorder()
	Idempotency(db, discardLogger())(next).ServeHTTP(rec, post("abc"))

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, 0, next.calls)
}

func TestIdempotency_FailureReleasesKey(t *testing.T) {
	db, mock := redismock.NewClientMock()
	next := &countingHandler{status: http.StatusServiceUnavailable}
	key := IdempotencyKey("abc")

	mock.ExpectGet(key).RedisNil()
	mock.ExpectSetNX(key, processingMarker, lockTTL).SetVal(true)
	mock.ExpectDel(key).SetVal(1)

	rec := httptest.NewRecorder()
	Idempotency(db, discardLogger())(next).ServeHTTP(rec, post("abc"))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIdempotency_RedisDownPassesThrough(t *testing.T) {
	db, mock := redismock.NewClientMock()
	next := &countingHandler{status: http.StatusAccepted}

	mock.ExpectGet(IdempotencyKey("abc")).SetErr(errors.New("dial tcp: connection refused"))

	rec := httptest.NewRecorder()
	Idempotency(db, discardLogger())(next).ServeHTTP(rec, post("abc"))

	assert.Equal(t, 1, next.calls)
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestIdempotency_KeyFormat(t *testing.T) {
	assert.Equal(t, "idempotency:abc", IdempotencyKey("abc"))
}
