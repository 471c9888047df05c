package e2e

import (
	"context"
	"database/sql"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/eddy-backend/eddy/internal/handlers"
	"github.com/eddy-backend/eddy/internal/infrastructure/config"
	"github.com/eddy-backend/eddy/internal/infrastructure/database"
	"github.com/eddy-backend/eddy/internal/repositories/postgres"
	"github.com/eddy-backend/eddy/internal/services"
	"github.com/eddy-backend/eddy/internal/services/bootstrap"
	"github.com/eddy-backend/eddy/internal/services/connectors"
	"github.com/eddy-backend/eddy/internal/services/session"
	"github.com/eddy-backend/eddy/internal/services/synthesizer"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	bufSize       = 1024 * 1024
	adminUsername = "admin"
	adminPassword = "admin-password"
)

// E2ETestServer is the full stack over a test database and a fake Kafka Connect
type E2ETestServer struct {
	Server   *grpc.Server
	Conn     *grpc.ClientConn
	DB       *sql.DB
	Listener *bufconn.Listener
	Connect  *FakeConnect
	Sets     map[string]*synthesizer.OperationSet
}

// FakeConnect records the Kafka Connect requests it receives
type FakeConnect struct {
	*httptest.Server
	mu       sync.Mutex
	requests []string
}

func newFakeConnect() *FakeConnect {
	f := &FakeConnect{}
	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.requests = append(f.requests, r.Method+" "+r.URL.Path)
		f.mu.Unlock()
		switch r.Method {
		case http.MethodPost:
			w.WriteHeader(http.StatusCreated)
		case http.MethodDelete:
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusOK)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{})
	}))
	return f
}

// Requests returns the "METHOD path" of every request received so far
func (f *FakeConnect) Requests() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.requests...)
}

// SetupE2ETest builds the server over the shipped schema.
// The test is skipped when no test database is reachable.
func SetupE2ETest(t *testing.T) *E2ETestServer {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping e2e test in short mode")
	}

	if err := config.InitConfig("test"); err != nil {
		t.Fatalf("failed to init config: %v", err)
	}
	cfg, err := config.Load()
	if err != nil {
		t.Skipf("skipping e2e test: %v", err)
	}
	pg, err := database.NewPostgres(&cfg.Database)
	if err != nil {
		t.Skipf("skipping e2e test: %v", err)
	}

	projectRoot, err := config.FindProjectRoot()
	if err != nil {
		t.Fatalf("failed to find project root: %v", err)
	}
	if err := pg.RunMigrations(filepath.Join(projectRoot, database.MigrationsDir)); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}
	cleanupDatabase(t, pg.DB)

	schemas, err := services.NewSchemaService()
	if err != nil {
		t.Fatalf("failed to create schema service: %v", err)
	}
	if err := schemas.LoadSchema(filepath.Join(projectRoot, "schema", "eddy.schema")); err != nil {
		t.Fatalf("failed to load schema: %v", err)
	}

	store := postgres.NewPostgresRecordRepository(pg.DB)
	hasher := session.NewBcryptHasher(bcrypt.MinCost)
	issuer, err := session.NewTokenIssuer("e2e-secret", "eddy-e2e", time.Hour)
	if err != nil {
		t.Fatalf("failed to create issuer: %v", err)
	}
	provider, err := session.NewProvider(schemas.Registry(), store, issuer, hasher)
	if err != nil {
		t.Fatalf("failed to create provider: %v", err)
	}

	fake := newFakeConnect()
	client := connectors.NewKafkaConnectClient(fake.URL, 0, zap.NewNop())
	sets, err := schemas.BuildOperations(store, hasher,
		synthesizer.WithHook(provider.PrincipalEntity(), session.NewInvalidationHook(provider)),
		synthesizer.WithHook(connectors.ConnectorEntity, connectors.NewDebeziumHook(client, store, zap.NewNop())),
		synthesizer.WithHook(connectors.ConfigEntity, connectors.NewConfigHook(client, store, zap.NewNop())),
	)
	if err != nil {
		t.Fatalf("failed to build operations: %v", err)
	}

	if _, err := bootstrap.NewSeeder(sets, nil).EnsureAdminUser(context.Background(), adminUsername, adminPassword); err != nil {
		t.Fatalf("failed to seed admin: %v", err)
	}

	operations, err := handlers.NewOperationService(sets, nil)
	if err != nil {
		t.Fatalf("failed to create operation service: %v", err)
	}

	listener := bufconn.Listen(bufSize)
	server := grpc.NewServer(grpc.ChainUnaryInterceptor(handlers.UnaryInterceptors(zap.NewNop(), provider)...))
	operations.Register(server)
	handlers.NewAuthHandler(provider).Register(server)
	go func() {
		if err := server.Serve(listener); err != nil {
			t.Logf("server error: %v", err)
		}
	}()

	conn, err := grpc.NewClient(
		"passthrough://bufconn",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return listener.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("failed to create client connection: %v", err)
	}

	byName := make(map[string]*synthesizer.OperationSet, len(sets))
	for _, set := range sets {
		byName[set.Schema.Name] = set
	}

	e := &E2ETestServer{
		Server:   server,
		Conn:     conn,
		DB:       pg.DB,
		Listener: listener,
		Connect:  fake,
		Sets:     byName,
	}
	t.Cleanup(func() { e.Teardown(t) })
	return e
}

// Teardown cleans up the E2E test environment
func (e *E2ETestServer) Teardown(t *testing.T) {
	t.Helper()

	if e.Conn != nil {
		e.Conn.Close()
	}
	if e.Server != nil {
		e.Server.Stop()
	}
	if e.Listener != nil {
		e.Listener.Close()
	}
	if e.Connect != nil {
		e.Connect.Close()
	}
	if e.DB != nil {
		cleanupDatabase(t, e.DB)
		e.DB.Close()
	}
}

// Call invokes one method with the given arguments
func (e *E2ETestServer) Call(ctx context.Context, service, method string, args map[string]interface{}) (map[string]interface{}, error) {
	req, err := structpb.NewStruct(args)
	if err != nil {
		return nil, err
	}
	resp := new(structpb.Struct)
	if err := e.Conn.Invoke(ctx, "/"+service+"/"+method, req, resp); err != nil {
		return nil, err
	}
	return resp.AsMap(), nil
}

// Op invokes a synthesized operation
func (e *E2ETestServer) Op(ctx context.Context, method string, args map[string]interface{}) (map[string]interface{}, error) {
	return e.Call(ctx, handlers.OperationServiceName, method, args)
}

// Login obtains a token and returns a context sending it
func (e *E2ETestServer) Login(t *testing.T, username, password string) context.Context {
	t.Helper()
	resp, err := e.Call(context.Background(), handlers.AuthServiceName, "ObtainToken", map[string]interface{}{
		"username": username,
		"password": password,
	})
	if err != nil {
		t.Fatalf("ObtainToken(%s) failed: %v", username, err)
	}
	token, _ := resp["token"].(string)
	return metadata.AppendToOutgoingContext(context.Background(), "authorization", "Bearer "+token)
}

// SignUp creates a user as the admin and logs in as that user
func (e *E2ETestServer) SignUp(t *testing.T, admin context.Context, username string) (context.Context, float64) {
	t.Helper()
	user, err := e.Op(admin, "createUser", map[string]interface{}{
		"username":     username,
		"password":     username + "-password",
		"is_superuser": false,
	})
	if err != nil {
		t.Fatalf("createUser(%s) failed: %v", username, err)
	}
	if _, leaked := user["password"]; leaked {
		t.Fatalf("createUser response exposes the password")
	}
	return e.Login(t, username, username+"-password"), user["id"].(float64)
}

// MustOp invokes an operation and fails the test on error
func (e *E2ETestServer) MustOp(t *testing.T, ctx context.Context, method string, args map[string]interface{}) map[string]interface{} {
	t.Helper()
	resp, err := e.Op(ctx, method, args)
	if err != nil {
		t.Fatalf("%s failed: %v", method, err)
	}
	return resp
}

// ConnectRequests returns the Kafka Connect requests matching a prefix
func (e *E2ETestServer) ConnectRequests(prefix string) []string {
	var out []string
	for _, r := range e.Connect.Requests() {
		if strings.HasPrefix(r, prefix) {
			out = append(out, r)
		}
	}
	return out
}

// cleanupDatabase removes all records from the test database
func cleanupDatabase(t *testing.T, db *sql.DB) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := db.ExecContext(ctx, "DELETE FROM records"); err != nil {
		t.Logf("warning: failed to clean up records: %v", err)
	}
}
