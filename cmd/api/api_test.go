package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/metroware/equip-ledger/internal/config"
	"github.com/metroware/equip-ledger/internal/models"
)

// TestAPI_LoginThenListLogs is an integration test: it builds the full router with a
// sqlmock-backed DB, logs in to get a JWT, then calls GET /v1/logs with the token.
func TestAPI_LoginThenListLogs(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	// Login: GetByUsername("integration"); no password set on the account
	mock.ExpectQuery(`SELECT id, username`).
		WithArgs("integration").
		WillReturnRows(sqlmock.NewRows([]string{"id", "username", "password_hash", "role"}).
			AddRow(1, "integration", "", models.RoleUser))

	// GET /v1/logs: a regular user only sees their own entries
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM operation_logs WHERE user_id = \$1`).
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(`FROM operation_logs WHERE user_id = \$1 ORDER BY id DESC LIMIT \$2 OFFSET \$3`).
		WithArgs(1, 50, 0).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "user_id", "equipment_id", "target_table", "target_id",
			"action", "description", "old_value", "new_value", "operation_type",
			"parent_log_id", "rollback_log_id", "is_rollback", "rollback_reason",
			"ip_address", "user_agent", "created_at",
		}).AddRow(int64(9), 1, 3, "equipment", 3, "update", "更新设备", "{}", "{}", "equipment",
			nil, nil, false, "", "", "", time.Now()))

	cfg := config.Config{
		JWTSecret:      "test-secret-for-integration",
		JWTExpireHours: 1,
	}
	r := newRouter(db, cfg)
	srv := httptest.NewServer(r)
	defer srv.Close()

	// 1) Login
	loginBody, _ := json.Marshal(map[string]string{"username": "integration"})
	loginResp, err := http.Post(srv.URL+"/v1/auth/login", "application/json", bytes.NewReader(loginBody))
	if err != nil {
		t.Fatalf("login request: %v", err)
	}
	defer loginResp.Body.Close()
	if loginResp.StatusCode != http.StatusOK {
		t.Fatalf("login status: got %d, want 200", loginResp.StatusCode)
	}
	var loginOut struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(loginResp.Body).Decode(&loginOut); err != nil || loginOut.Token == "" {
		t.Fatalf("login response: %v", err)
	}

	// 2) GET /v1/logs with Bearer token
	req, _ := http.NewRequest("GET", srv.URL+"/v1/logs", nil)
	req.Header.Set("Authorization", "Bearer "+loginOut.Token)
	logsResp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("logs request: %v", err)
	}
	defer logsResp.Body.Close()
	if logsResp.StatusCode != http.StatusOK {
		t.Fatalf("GET /v1/logs status: got %d, want 200", logsResp.StatusCode)
	}
	var out struct {
		Items []models.OperationLog `json:"items"`
		Total int                   `json:"total"`
	}
	if err := json.NewDecoder(logsResp.Body).Decode(&out); err != nil {
		t.Fatalf("decode logs: %v", err)
	}
	if out.Total != 1 || len(out.Items) != 1 || out.Items[0].Description != "更新设备" {
		t.Errorf("unexpected logs: %+v", out)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

// TestAPI_Health is a quick smoke test for the health endpoint.
func TestAPI_Health(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	cfg := config.Config{JWTSecret: "x"}
	r := newRouter(db, cfg)
	srv := httptest.NewServer(r)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("health request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("GET /health status: got %d, want 200", resp.StatusCode)
	}
}

// TestAPI_LogsRequireAuth checks that the log endpoints reject missing tokens.
func TestAPI_LogsRequireAuth(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	cfg := config.Config{JWTSecret: "x"}
	r := newRouter(db, cfg)
	srv := httptest.NewServer(r)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/logs")
	if err != nil {
		t.Fatalf("logs request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("GET /v1/logs status: got %d, want 401", resp.StatusCode)
	}
}
