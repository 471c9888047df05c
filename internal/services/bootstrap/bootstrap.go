package bootstrap

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/eddy-backend/eddy/internal/entities"
	"github.com/eddy-backend/eddy/internal/services/session"
	"github.com/eddy-backend/eddy/internal/services/synthesizer"
)

// Catalog entities seeded at installation time
const (
	IntegrationTypeEntity   = "integration_type"
	DataConnectorTypeEntity = "data_connector_type"
)

// Seeder creates the records a fresh installation needs.
// Every seed runs through the synthesized operations as a system superuser, so secrets
// are hashed and uniqueness is enforced exactly as for API writes.
type Seeder struct {
	sets   map[string]*synthesizer.OperationSet
	logger *zap.Logger
}

// NewSeeder creates a Seeder over the built operation sets
func NewSeeder(sets []*synthesizer.OperationSet, logger *zap.Logger) *Seeder {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Seeder{sets: make(map[string]*synthesizer.OperationSet, len(sets)), logger: logger}
	for _, set := range sets {
		s.sets[set.Schema.Name] = set
	}
	return s
}

// systemContext carries a superuser principal that is not backed by a record
func systemContext(ctx context.Context) context.Context {
	return entities.ContextWithPrincipal(ctx, &entities.Principal{Authenticated: true, Superuser: true})
}

// EnsureAdminUser creates a superuser when no principal exists yet.
// It reports whether a record was created.
func (s *Seeder) EnsureAdminUser(ctx context.Context, username, password string) (bool, error) {
	set, err := s.principalSet()
	if err != nil {
		return false, err
	}

	args := map[string]interface{}{
		session.UsernameField: username,
		session.PasswordField: password,
	}
	if set.Schema.FieldByArgument(session.SuperuserField) != nil {
		args[session.SuperuserField] = true
	}

	created, err := s.ensure(ctx, set, args)
	if err != nil {
		return false, fmt.Errorf("failed to create admin user: %w", err)
	}
	if created {
		s.logger.Info("admin user created", zap.String("username", username))
	} else {
		s.logger.Info("admin user already exists")
	}
	return created, nil
}

// EnsureIntegrationType creates the Debezium integration type when no integration type exists
func (s *Seeder) EnsureIntegrationType(ctx context.Context) (bool, error) {
	set, ok := s.sets[IntegrationTypeEntity]
	if !ok {
		return false, fmt.Errorf("entity %s is not registered", IntegrationTypeEntity)
	}

	created, err := s.ensure(ctx, set, map[string]interface{}{
		"label": "Debezium",
		"schema": map[string]interface{}{
			"host": "debezium-connect",
			"port": "8083",
		},
	})
	if err != nil {
		return false, fmt.Errorf("failed to create integration type: %w", err)
	}
	s.logger.Info("debezium integration type", zap.Bool("created", created))
	return created, nil
}

// EnsureDataConnectorType creates the Debezium data connector type when none exists
func (s *Seeder) EnsureDataConnectorType(ctx context.Context) (bool, error) {
	set, ok := s.sets[DataConnectorTypeEntity]
	if !ok {
		return false, fmt.Errorf("entity %s is not registered", DataConnectorTypeEntity)
	}

	created, err := s.ensure(ctx, set, map[string]interface{}{
		"label": "Debezium",
		"config": map[string]interface{}{
			"type":     "mysql",
			"hostname": "debezium-mysql",
			"port":     3307,
			"user":     "root",
			"password": "debezium",
		},
	})
	if err != nil {
		return false, fmt.Errorf("failed to create data connector type: %w", err)
	}
	s.logger.Info("debezium data connector type", zap.Bool("created", created))
	return created, nil
}

// ensure creates a record from args unless the entity already has records
func (s *Seeder) ensure(ctx context.Context, set *synthesizer.OperationSet, args map[string]interface{}) (bool, error) {
	ctx = systemContext(ctx)

	existing, err := set.ReadAll(ctx)
	if err != nil {
		return false, err
	}
	if len(existing) > 0 {
		return false, nil
	}
	if _, err := set.Create(ctx, args); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Seeder) principalSet() (*synthesizer.OperationSet, error) {
	for _, set := range s.sets {
		if set.Schema.IsPrincipal {
			return set, nil
		}
	}
	return nil, fmt.Errorf("no principal entity is registered")
}
