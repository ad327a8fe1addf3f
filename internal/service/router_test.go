package service

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/dirk.krummacker/customers-service/internal/logger"
	"gitlab.com/dirk.krummacker/customers-service/internal/metrics"
	"gitlab.com/dirk.krummacker/customers-service/internal/model"
	"gitlab.com/dirk.krummacker/customers-service/internal/store"
)

var customerColumns = []string{"id", "email", "name", "phone", "address", "notes", "created_at", "updated_at"}

// createMockObjects builds a mock database handle and a mock object for defining our expected SQL
// calls.
func createMockObjects(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	return db, mock
}

// expectSingleRowSelect instructs the mock object to expect that a select statement for a single
// customer will be executed.
func expectSingleRowSelect(mock sqlmock.Sqlmock, id int64, name string, phone int64) {
	rows := mock.NewRows(customerColumns).
		AddRow(id, "", name, phone, "", "", created, created)
	mock.ExpectQuery(regexp.QuoteMeta("FROM customers WHERE id = ?")).
		WithArgs(id).
		WillReturnRows(rows)
}

// expectNameLookup instructs the mock object to expect a lookup by folded name. If existingID is
// not 0, a customer with that id is found.
func expectNameLookup(mock sqlmock.Sqlmock, fold string, existingID int64) {
	rows := mock.NewRows(customerColumns)
	if existingID != 0 {
		rows.AddRow(existingID, "", fold, 1, "", "", created, created)
	}
	mock.ExpectQuery(regexp.QuoteMeta("FROM customers WHERE name_fold = ?")).
		WithArgs(fold).
		WillReturnRows(rows)
}

// initializeCustomersService sets up the customers service with the mock database and returns a
// handle to the gin engine against which requests can be executed.
func initializeCustomersService(db *sql.DB, collector *metrics.Collector) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	svc := newTestService(store.New(sqlx.NewDb(db, "mysql")))
	return SetupHttpRouter(svc, RouterOptions{Metrics: collector})
}

// runTest executes the HTTP request with the specified arguments and returns the response.
func runTest(db *sql.DB, method string, url string, body *strings.Reader) *httptest.ResponseRecorder {
	router := initializeCustomersService(db, nil)
	return serve(router, method, url, body)
}

func serve(router *gin.Engine, method string, url string, body *strings.Reader) *httptest.ResponseRecorder {
	recorder := httptest.NewRecorder()
	if body == nil {
		body = strings.NewReader("")
	}
	request, _ := http.NewRequest(method, url, body)
	request.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(recorder, request)
	return recorder
}

// errorBody decodes the JSON error answer of a failed request.
func errorBody(t *testing.T, recorder *httptest.ResponseRecorder) map[string]any {
	var body map[string]any
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
	return body
}

func expectationsMet(t *testing.T, mock sqlmock.Sqlmock) {
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("there were unfulfilled expectations: %s", err)
	}
}

// TestHttpGetAll executes a GET request for all customers in the database. It expects that the
// JSON for a list of customers is returned.
func TestHttpGetAll(t *testing.T) {
	db, mock := createMockObjects(t)
	defer db.Close()

	// Define expectations on SQL statements
	rows := mock.NewRows(customerColumns).
		AddRow(1, "", "Aaron", 111, "", "", created, created).
		AddRow(2, "", "Berta", 222, "", "", created, created).
		AddRow(3, "", "Carla", 333, "", "", created, created)
	mock.ExpectQuery(regexp.QuoteMeta("FROM customers ORDER BY id")).
		WillReturnRows(rows)

	// Run test and compare results
	recorder := runTest(db, "GET", "/customers", nil)
	assert.Equal(t, http.StatusOK, recorder.Code)

	var customers []model.CustomerRead
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &customers))
	require.Len(t, customers, 3)
	assert.Equal(t, model.CustomerRead{Id: 1, Name: "Aaron", Phone: 111}, customers[0])
	assert.Equal(t, model.CustomerRead{Id: 2, Name: "Berta", Phone: 222}, customers[1])
	assert.Equal(t, model.CustomerRead{Id: 3, Name: "Carla", Phone: 333}, customers[2])
	expectationsMet(t, mock)
}

// TestHttpGetAllEmpty expects an empty JSON array, not null, for an empty database.
func TestHttpGetAllEmpty(t *testing.T) {
	db, mock := createMockObjects(t)
	defer db.Close()

	// Define expectations on SQL statements
	mock.ExpectQuery("FROM customers").WillReturnRows(mock.NewRows(customerColumns))

	// Run test and compare results
	recorder := runTest(db, "GET", "/customers", nil)
	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.JSONEq(t, "[]", recorder.Body.String())
	expectationsMet(t, mock)
}

// TestHttpGet executes a GET request for a single customer with a valid ID. It expects that the
// JSON for the customer is returned, without audit timestamps.
func TestHttpGet(t *testing.T) {
	db, mock := createMockObjects(t)
	defer db.Close()

	// Define expectations on SQL statements
	expectSingleRowSelect(mock, 29, "Erika Mustermann", 4908154711)

	// Run test and compare results
	recorder := runTest(db, "GET", "/customers/29", nil)
	assert.Equal(t, http.StatusOK, recorder.Code)
	var getBody map[string]interface{}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &getBody))
	assert.Equal(t, 29.0, getBody["id"])
	assert.Equal(t, "Erika Mustermann", getBody["name"])
	assert.Equal(t, 4908154711.0, getBody["phone"])
	assert.NotContains(t, getBody, "created_at")
	assert.NotEmpty(t, recorder.Header().Get(logger.RequestIDHeader))
	expectationsMet(t, mock)
}

// TestHttpGetInvalidNumericID executes a GET request with an unknown but still numeric ID. It
// expects that the HTTP request is answered with the NOT FOUND status code.
func TestHttpGetInvalidNumericID(t *testing.T) {
	db, mock := createMockObjects(t)
	defer db.Close()

	// Define expectations on SQL statements
	mock.ExpectQuery("FROM customers WHERE id = ").
		WithArgs(int64(9999)).
		WillReturnRows(mock.NewRows(customerColumns))

	// Run test and compare results
	recorder := runTest(db, "GET", "/customers/9999", nil)
	assert.Equal(t, http.StatusNotFound, recorder.Code)
	assert.Equal(t, "NotFound", errorBody(t, recorder)["kind"])
	expectationsMet(t, mock)
}

// TestHttpGetInvalidIDs executes GET requests with IDs that can never exist. It expects that the
// HTTP request is answered with the BAD REQUEST status code. It also expects that we do not reach
// out to the database in the first place.
func TestHttpGetInvalidIDs(t *testing.T) {
	for _, id := range []string{"INVALID", "0", "-4", "1.5", "99999999999999999999"} {
		t.Run(id, func(t *testing.T) {
			db, mock := createMockObjects(t)
			defer db.Close()

			recorder := runTest(db, "GET", "/customers/"+id, nil)
			assert.Equal(t, http.StatusBadRequest, recorder.Code)
			assert.Equal(t, "InvalidIdentifier", errorBody(t, recorder)["kind"])
			expectationsMet(t, mock)
		})
	}
}

// TestHttpGetDatabaseFailure expects that a failing database is reported as an internal error
// without leaking details.
func TestHttpGetDatabaseFailure(t *testing.T) {
	db, mock := createMockObjects(t)
	defer db.Close()

	// Define expectations on SQL statements
	mock.ExpectQuery("FROM customers WHERE id = ").WillReturnError(errors.New("connection reset"))

	// Run test and compare results
	recorder := runTest(db, "GET", "/customers/3", nil)
	assert.Equal(t, http.StatusInternalServerError, recorder.Code)
	assert.Equal(t, map[string]any{"message": "internal server error"}, errorBody(t, recorder))
	expectationsMet(t, mock)
}

// TestHttpPost executes a POST request with a valid body. It expects that the HTTP request is
// answered with the CREATED status code, a body with the posted values and the new location.
func TestHttpPost(t *testing.T) {
	db, mock := createMockObjects(t)
	defer db.Close()

	// Define expectations on SQL statements
	expectNameLookup(mock, "erika mustermann", 0)
	mock.ExpectExec("INSERT INTO customers").
		WithArgs("erika@example.com", "Erika Mustermann", "erika mustermann", int64(4908154711), "", "",
			later, later).
		WillReturnResult(sqlmock.NewResult(42, 1))

	// Run test and compare results
	recorder := runTest(db, "POST", "/customers", strings.NewReader(`
		{
			"name": "Erika Mustermann",
			"email": "erika@example.com",
			"phone": 4908154711
		}
	`))
	assert.Equal(t, http.StatusCreated, recorder.Code)
	assert.Equal(t, "/customers/42", recorder.Header().Get("Location"))
	var customer model.CustomerRead
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &customer))
	assert.Equal(t, model.CustomerRead{
		Id: 42, Name: "Erika Mustermann", Email: "erika@example.com", Phone: 4908154711,
	}, customer)
	expectationsMet(t, mock)
}

// TestHttpPostDuplicate expects that a name that only differs in case from an existing one is
// rejected.
func TestHttpPostDuplicate(t *testing.T) {
	db, mock := createMockObjects(t)
	defer db.Close()

	// Define expectations on SQL statements
	expectNameLookup(mock, "acme", 7)

	// Run test and compare results
	recorder := runTest(db, "POST", "/customers", strings.NewReader(`{"name": "ACME", "phone": 1}`))
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
	assert.Equal(t, "DuplicateName", errorBody(t, recorder)["kind"])
	expectationsMet(t, mock)
}

// TestHttpPostInvalidBodies executes POST requests with bodies that must be rejected before the
// database is asked anything.
func TestHttpPostInvalidBodies(t *testing.T) {
	tests := []struct {
		body string
		kind string
	}{
		{``, "ValidationFailed"},
		{`{`, "ValidationFailed"},
		{`[]`, "ValidationFailed"},
		{`{"name": "Acme", "phone": "0815"}`, "ValidationFailed"},
		{`{"name": "Acme"}`, "ValidationFailed"},
		{`{"phone": 4711}`, "ValidationFailed"},
		{`{"name": "` + strings.Repeat("a", 226) + `", "phone": 1}`, "ValidationFailed"},
		{`{"id": 5, "name": "Acme", "phone": 1}`, "InvalidIdentifier"},
		{`{"id": null, "name": "Acme", "phone": 1}`, "InvalidIdentifier"},
		{`{"id": "5", "name": "Acme", "phone": 1}`, "InvalidIdentifier"},
	}
	for _, tt := range tests {
		t.Run(tt.body, func(t *testing.T) {
			db, mock := createMockObjects(t)
			defer db.Close()

			recorder := runTest(db, "POST", "/customers", strings.NewReader(tt.body))
			assert.Equal(t, http.StatusBadRequest, recorder.Code)
			assert.Equal(t, tt.kind, errorBody(t, recorder)["kind"])
			expectationsMet(t, mock)
		})
	}
}

// TestHttpPut executes a PUT request that replaces all fields of a customer.
func TestHttpPut(t *testing.T) {
	db, mock := createMockObjects(t)
	defer db.Close()

	// Define expectations on SQL statements
	expectSingleRowSelect(mock, 56, "Erika Mustermann", 4908154711)
	expectNameLookup(mock, "erika musterfrau", 0)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE customers SET")).
		WithArgs("", "Erika Musterfrau", "erika musterfrau", int64(815), "Köln", "", later, int64(56)).
		WillReturnResult(sqlmock.NewResult(-1, 1))

	// Run test and compare results
	recorder := runTest(db, "PUT", "/customers/56", strings.NewReader(
		`{"id": 56, "name": "Erika Musterfrau", "phone": 815, "address": "Köln"}`))
	assert.Equal(t, http.StatusNoContent, recorder.Code)
	assert.Empty(t, recorder.Body.String())
	expectationsMet(t, mock)
}

// TestHttpPutIdentifierMismatch expects that the body id must equal the path id, checked before
// the database is touched.
func TestHttpPutIdentifierMismatch(t *testing.T) {
	db, mock := createMockObjects(t)
	defer db.Close()

	recorder := runTest(db, "PUT", "/customers/8", strings.NewReader(`{"id": 7, "name": "Acme", "phone": 1}`))
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
	assert.Equal(t, "IdentifierMismatch", errorBody(t, recorder)["kind"])
	expectationsMet(t, mock)
}

// TestHttpPutMissing expects NOT FOUND when replacing a customer that does not exist.
func TestHttpPutMissing(t *testing.T) {
	db, mock := createMockObjects(t)
	defer db.Close()

	// Define expectations on SQL statements
	mock.ExpectQuery("FROM customers WHERE id = ").
		WithArgs(int64(8)).
		WillReturnRows(mock.NewRows(customerColumns))

	// Run test and compare results
	recorder := runTest(db, "PUT", "/customers/8", strings.NewReader(`{"id": 8, "name": "Acme", "phone": 1}`))
	assert.Equal(t, http.StatusNotFound, recorder.Code)
	expectationsMet(t, mock)
}

// TestHttpPutDeletedConcurrently expects NOT FOUND if the customer disappears between read and
// write.
func TestHttpPutDeletedConcurrently(t *testing.T) {
	db, mock := createMockObjects(t)
	defer db.Close()

	// Define expectations on SQL statements
	expectSingleRowSelect(mock, 8, "Acme", 1)
	mock.ExpectExec("UPDATE customers").WillReturnResult(sqlmock.NewResult(-1, 0))

	// Run test and compare results
	recorder := runTest(db, "PUT", "/customers/8", strings.NewReader(`{"id": 8, "name": "Acme", "phone": 2}`))
	assert.Equal(t, http.StatusNotFound, recorder.Code)
	expectationsMet(t, mock)
}

// TestHttpPatch executes a PATCH request whose operations all succeed.
func TestHttpPatch(t *testing.T) {
	db, mock := createMockObjects(t)
	defer db.Close()

	// Define expectations on SQL statements
	expectSingleRowSelect(mock, 56, "Erika Mustermann", 4908154711)
	mock.ExpectExec("UPDATE customers").
		WithArgs("", "Erika Mustermann", "erika mustermann", int64(4908154711), "", "VIP", later, int64(56)).
		WillReturnResult(sqlmock.NewResult(-1, 1))

	// Run test and compare results
	recorder := runTest(db, "PATCH", "/customers/56", strings.NewReader(`[
		{"op": "test", "path": "/name", "value": "Erika Mustermann"},
		{"op": "add", "path": "/notes", "value": "VIP"}
	]`))
	assert.Equal(t, http.StatusNoContent, recorder.Code)
	expectationsMet(t, mock)
}

// TestHttpPatchFailedOperation expects that a failing operation is reported with its index and
// that nothing is written.
func TestHttpPatchFailedOperation(t *testing.T) {
	db, mock := createMockObjects(t)
	defer db.Close()

	// Define expectations on SQL statements
	expectSingleRowSelect(mock, 56, "Erika Mustermann", 4908154711)

	// Run test and compare results
	recorder := runTest(db, "PATCH", "/customers/56", strings.NewReader(`[
		{"op": "add", "path": "/name", "value": "Bob"},
		{"op": "test", "path": "/name", "value": "Alice"}
	]`))
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
	body := errorBody(t, recorder)
	assert.Equal(t, "PatchPreconditionFailed", body["kind"])
	assert.Equal(t, 1.0, body["operation"])
	expectationsMet(t, mock)
}

// TestHttpPatchInvalidRequests executes PATCH requests that must be rejected before the database
// is asked anything.
func TestHttpPatchInvalidRequests(t *testing.T) {
	tests := []struct {
		url  string
		body string
		kind string
	}{
		{"/customers/1", ``, "InvalidPatchRequest"},
		{"/customers/1", `[]`, "InvalidPatchRequest"},
		{"/customers/1", `{"op": "add"}`, "InvalidPatchRequest"},
		{"/customers/0", `[{"op": "remove", "path": "/notes"}]`, "InvalidPatchRequest"},
		{"/customers/abc", `[{"op": "remove", "path": "/notes"}]`, "InvalidIdentifier"},
	}
	for _, tt := range tests {
		t.Run(tt.url+" "+tt.body, func(t *testing.T) {
			db, mock := createMockObjects(t)
			defer db.Close()

			recorder := runTest(db, "PATCH", tt.url, strings.NewReader(tt.body))
			assert.Equal(t, http.StatusBadRequest, recorder.Code)
			assert.Equal(t, tt.kind, errorBody(t, recorder)["kind"])
			expectationsMet(t, mock)
		})
	}
}

// TestHttpDelete executes a DELETE request for an existing customer.
func TestHttpDelete(t *testing.T) {
	db, mock := createMockObjects(t)
	defer db.Close()

	// Define expectations on SQL statements
	expectSingleRowSelect(mock, 56, "Erika Mustermann", 4908154711)
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM customers WHERE id = ?")).
		WithArgs(int64(56)).
		WillReturnResult(sqlmock.NewResult(-1, 1))

	// Run test and compare results
	recorder := runTest(db, "DELETE", "/customers/56", nil)
	assert.Equal(t, http.StatusNoContent, recorder.Code)
	expectationsMet(t, mock)
}

// TestHttpDeleteMissing expects NOT FOUND when deleting a customer that does not exist.
func TestHttpDeleteMissing(t *testing.T) {
	db, mock := createMockObjects(t)
	defer db.Close()

	// Define expectations on SQL statements
	mock.ExpectQuery("FROM customers WHERE id = ").
		WithArgs(int64(9999)).
		WillReturnRows(mock.NewRows(customerColumns))

	// Run test and compare results
	recorder := runTest(db, "DELETE", "/customers/9999", nil)
	assert.Equal(t, http.StatusNotFound, recorder.Code)
	expectationsMet(t, mock)
}

// TestHttpHealth expects the health endpoint to report the database state.
func TestHttpHealth(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()
	router := initializeCustomersService(db, nil)

	mock.ExpectPing()
	recorder := serve(router, "GET", "/healthz", nil)
	assert.Equal(t, http.StatusOK, recorder.Code)

	mock.ExpectPing().WillReturnError(errors.New("down"))
	recorder = serve(router, "GET", "/healthz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, recorder.Code)
	expectationsMet(t, mock)
}

// TestHttpMetrics expects client errors to be counted by kind and served on /metrics.
func TestHttpMetrics(t *testing.T) {
	db, mock := createMockObjects(t)
	defer db.Close()
	router := initializeCustomersService(db, metrics.NewCollector())

	recorder := serve(router, "GET", "/customers/0", nil)
	assert.Equal(t, http.StatusBadRequest, recorder.Code)

	recorder = serve(router, "GET", "/metrics", nil)
	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.Contains(t, recorder.Body.String(), `customers_client_errors_total{kind="InvalidIdentifier"} 1`)
	assert.Contains(t, recorder.Body.String(), `route="/customers/:id"`)
	expectationsMet(t, mock)
}

// TestHttpRequestIDIsEchoed expects a client supplied request id to be returned unchanged.
func TestHttpRequestIDIsEchoed(t *testing.T) {
	db, mock := createMockObjects(t)
	defer db.Close()
	router := initializeCustomersService(db, nil)

	recorder := httptest.NewRecorder()
	request, _ := http.NewRequest("GET", "/customers/0", nil)
	request.Header.Set(logger.RequestIDHeader, "req-4711")
	router.ServeHTTP(recorder, request)
	assert.Equal(t, "req-4711", recorder.Header().Get(logger.RequestIDHeader))
	expectationsMet(t, mock)
}
