package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"node-ledger/services"
	"node-ledger/testutil"
)

type testServer struct {
	app   *fiber.App
	clock *clockwork.FakeClock
	nodes *services.NodeService
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	db := testutil.NewDB(t)
	clock := clockwork.NewFakeClockAt(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	catalog, err := services.NewCatalog(services.DefaultTiers())
	require.NoError(t, err)

	ledger := services.NewLedger(db, clock)
	referrals := services.NewReferralService(ledger, services.DefaultReferralBonus)
	nodes := services.NewNodeService(ledger, catalog, referrals, nil, 24*time.Hour)

	app := NewApp(Deps{
		DB:          db,
		Catalog:     catalog,
		Auth:        services.NewAuthService(ledger, referrals, "test-secret").WithBcryptCost(bcrypt.MinCost),
		Nodes:       nodes,
		Purchases:   services.NewPurchaseService(nodes, catalog, services.OptimisticOracle{}, time.Second),
		Withdrawals: services.NewWithdrawalService(ledger, nil),
		Referrals:   referrals,
		Feed:        services.NewFeedService(nil, ledger),
		TRXAddress:  "TTestAddress",
	})
	return &testServer{app: app, clock: clock, nodes: nodes}
}

func (s *testServer) do(t *testing.T, method, path, token string, body interface{}) (int, map[string]interface{}) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]interface{}{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &out))
	}
	return resp.StatusCode, out
}

func (s *testServer) signup(t *testing.T, username, code string) (string, map[string]interface{}) {
	t.Helper()
	status, body := s.do(t, http.MethodPost, "/api/auth/signup", "", fiber.Map{
		"username": username, "password": "secret123", "refer_code": code,
	})
	require.Equal(t, http.StatusOK, status, body)
	return body["token"].(string), body["user"].(map[string]interface{})
}

func TestAPI_signupLoginProfile(t *testing.T) {
	s := newTestServer(t)

	token, user := s.signup(t, "alice", "")
	require.Equal(t, 25.0, user["mine_balance"])
	require.Equal(t, 0.0, user["referral_balance"])

	status, body := s.do(t, http.MethodPost, "/api/auth/signup", "", fiber.Map{"username": "alice", "password": "secret123"})
	require.Equal(t, http.StatusConflict, status)
	require.Equal(t, "Username already exists", body["detail"])

	status, body = s.do(t, http.MethodPost, "/api/auth/signup", "", fiber.Map{"username": "al", "password": "secret123"})
	require.Equal(t, http.StatusBadRequest, status)
	require.NotEmpty(t, body["detail"])

	status, body = s.do(t, http.MethodPost, "/api/auth/login", "", fiber.Map{"username": "alice", "password": "nope123"})
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, "Invalid credentials", body["detail"])

	status, body = s.do(t, http.MethodPost, "/api/auth/login", "", fiber.Map{"username": "alice", "password": "secret123"})
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, true, body["success"])

	status, body = s.do(t, http.MethodGet, "/api/user/profile", token, nil)
	require.Equal(t, http.StatusOK, status)
	profile := body["user"].(map[string]interface{})
	require.Equal(t, "alice", profile["username"])
	require.Equal(t, false, profile["has_purchased_node"])
	require.Equal(t, false, profile["has_purchased_node4"])
}

func TestAPI_requiresToken(t *testing.T) {
	s := newTestServer(t)

	status, body := s.do(t, http.MethodGet, "/api/nodes", "", nil)
	require.Equal(t, http.StatusUnauthorized, status)
	require.NotEmpty(t, body["detail"])

	status, body = s.do(t, http.MethodGet, "/api/nodes", "garbage", nil)
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, "Invalid token", body["detail"])

	token, _ := s.signup(t, "alice", "")
	s.clock.Advance(8 * 24 * time.Hour)
	status, body = s.do(t, http.MethodGet, "/api/user/profile", token, nil)
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, "Token expired", body["detail"])
}

func TestAPI_purchaseAndNodes(t *testing.T) {
	s := newTestServer(t)
	token, _ := s.signup(t, "alice", "")

	status, body := s.do(t, http.MethodPost, "/api/nodes/purchase", token, fiber.Map{"node_id": "node4", "transaction_hash": "0xabc"})
	require.Equal(t, http.StatusOK, status, body)
	require.Equal(t, "Successfully purchased 1024 GB Node! Mining started.", body["message"])
	node := body["node"].(map[string]interface{})
	require.Equal(t, "node4", node["node_id"])
	require.Equal(t, "active", node["state"])

	status, body = s.do(t, http.MethodPost, "/api/nodes/purchase", token, fiber.Map{"node_id": "node4", "transaction_hash": "0xdef"})
	require.Equal(t, http.StatusConflict, status)
	require.Equal(t, "You already own this active node", body["detail"])

	status, body = s.do(t, http.MethodPost, "/api/nodes/purchase", token, fiber.Map{"node_id": "node9", "transaction_hash": "0xdef"})
	require.Equal(t, http.StatusNotFound, status)
	require.Equal(t, "Invalid node ID", body["detail"])

	status, _ = s.do(t, http.MethodPost, "/api/nodes/purchase", token, fiber.Map{"node_id": "node1"})
	require.Equal(t, http.StatusBadRequest, status)

	s.clock.Advance(24 * time.Hour)
	status, body = s.do(t, http.MethodGet, "/api/nodes", token, nil)
	require.Equal(t, http.StatusOK, status)
	nodes := body["nodes"].(map[string]interface{})
	require.Len(t, nodes, 4)

	n4 := nodes["node4"].(map[string]interface{})
	require.Equal(t, true, n4["owned"])
	require.Equal(t, true, n4["active"])
	require.Equal(t, false, n4["can_rebuy"])
	require.InDelta(t, 100.0/3, n4["progress"].(float64), 1e-6)
	require.Equal(t, 1024.0, n4["config"].(map[string]interface{})["gb"])

	n1 := nodes["node1"].(map[string]interface{})
	require.Equal(t, false, n1["owned"])
	require.Equal(t, true, n1["can_rebuy"])
	require.Nil(t, n1["purchase_time"])

	status, body = s.do(t, http.MethodGet, "/api/user/profile", token, nil)
	require.Equal(t, http.StatusOK, status)
	profile := body["user"].(map[string]interface{})
	require.Equal(t, true, profile["has_purchased_node"])
	require.Equal(t, true, profile["has_purchased_node4"])
}

func TestAPI_withdrawAndReferrals(t *testing.T) {
	s := newTestServer(t)
	aToken, aUser := s.signup(t, "alice", "")
	bToken, _ := s.signup(t, "bobby", aUser["refer_code"].(string))

	status, body := s.do(t, http.MethodGet, "/api/referrals", aToken, nil)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, body["invalid_referrals"], 1)
	require.Len(t, body["valid_referrals"], 0)
	require.Equal(t, 0.0, body["total_earned"])

	status, _ = s.do(t, http.MethodPost, "/api/nodes/purchase", bToken, fiber.Map{"node_id": "node1", "transaction_hash": "0xb"})
	require.Equal(t, http.StatusOK, status)

	status, body = s.do(t, http.MethodGet, "/api/referrals", aToken, nil)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, body["valid_referrals"], 1)
	require.Equal(t, 50.0, body["total_earned"])
	entry := body["valid_referrals"].([]interface{})[0].(map[string]interface{})
	require.Equal(t, "bobby", entry["username"])
	require.Equal(t, true, entry["is_valid"])

	// mine withdrawal is gated on owning a node
	status, body = s.do(t, http.MethodPost, "/api/withdraw", aToken, fiber.Map{"balance_type": "mine", "amount": 25})
	require.Equal(t, http.StatusBadRequest, status)
	require.Contains(t, body["detail"], "purchase any node")

	status, body = s.do(t, http.MethodPost, "/api/withdraw", bToken, fiber.Map{"balance_type": "mine", "amount": 10})
	require.Equal(t, http.StatusBadRequest, status)
	require.Contains(t, body["detail"], "Minimum withdrawal")

	status, body = s.do(t, http.MethodPost, "/api/withdraw", bToken, fiber.Map{"balance_type": "mine", "amount": 25})
	require.Equal(t, http.StatusOK, status, body)
	require.Equal(t, true, body["success"])

	status, _ = s.do(t, http.MethodPost, "/api/withdraw", bToken, fiber.Map{"balance_type": "bonus", "amount": 25})
	require.Equal(t, http.StatusBadRequest, status)

	status, body = s.do(t, http.MethodGet, "/api/withdrawals", bToken, nil)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, body["withdrawals"], 2)

	status, body = s.do(t, http.MethodGet, "/api/user/profile", bToken, nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, 0.0, body["user"].(map[string]interface{})["mine_balance"])
}

func TestAPI_publicEndpoints(t *testing.T) {
	s := newTestServer(t)

	status, body := s.do(t, http.MethodGet, "/api/config", "", nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "TTestAddress", body["trx_address"])
	require.Len(t, body["nodes"], 4)

	status, body = s.do(t, http.MethodGet, "/api/mock-withdrawals", "", nil)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, body["withdrawals"], 10)

	status, body = s.do(t, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "ok", body["status"])

	status, _ = s.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, status)
}
