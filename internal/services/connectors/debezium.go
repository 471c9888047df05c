package connectors

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"go.uber.org/zap"

	"github.com/eddy-backend/eddy/internal/entities"
	"github.com/eddy-backend/eddy/internal/repositories"
	"github.com/eddy-backend/eddy/internal/services/coercion"
	"github.com/eddy-backend/eddy/internal/services/synthesizer"
)

// Entity and field names the Debezium hooks read
const (
	ConnectorEntity = "debezium_connector"
	ConfigEntity    = "debezium_connector_config"

	connectorNameField   = "name"
	connectorConfigField = "config"

	// DefaultConnectorName is used for connectors created without a name
	DefaultConnectorName = "inventory-connector"
)

// configKey maps a debezium_connector_config field onto a Kafka Connect property
type configKey struct {
	field    string
	property string
	fallback string
}

// configKeys lists the connector properties with the values used when a field is unset
var configKeys = []configKey{
	{"connector_class", "connector.class", "io.debezium.connector.mysql.MySqlConnector"},
	{"tasks_max", "tasks.max", "1"},
	{"database_hostname", "database.hostname", "mysql"},
	{"database_port", "database.port", "3306"},
	{"database_user", "database.user", "root"},
	{"database_password", "database.password", "debezium"},
	{"database_server_id", "database.server.id", "184054"},
	{"database_server_name", "database.server.name", "mysql1"},
	{"database_whitelist", "database.whitelist", "inventory"},
	{"database_history_kafka_bootstrap_servers", "database.history.kafka.bootstrap.servers", "kafka:9092"},
	{"database_history_kafka_topic", "database.history.kafka.topic", "schema-changes.inventory"},
}

// ConnectorConfig renders a config record as Kafka Connect properties.
// A nil record yields the defaults.
func ConnectorConfig(rec *entities.Record) map[string]string {
	config := make(map[string]string, len(configKeys))
	for _, key := range configKeys {
		config[key.property] = key.fallback
		if rec == nil {
			continue
		}
		if v, ok := rec.Values[key.field]; ok && v != nil {
			config[key.property] = fmt.Sprint(v)
		}
	}
	return config
}

// DebeziumHook keeps Kafka Connect in step with debezium_connector records
type DebeziumHook struct {
	client *KafkaConnectClient
	store  repositories.RecordRepository
	logger *zap.Logger
}

var _ synthesizer.Hook = (*DebeziumHook)(nil)

// NewDebeziumHook creates the hook for the debezium_connector entity
func NewDebeziumHook(client *KafkaConnectClient, store repositories.RecordRepository, logger *zap.Logger) *DebeziumHook {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DebeziumHook{client: client, store: store, logger: logger}
}

// AfterCreate provisions the connector
func (h *DebeziumHook) AfterCreate(ctx context.Context, schema *entities.EntitySchema, rec *entities.Record) error {
	spec, err := h.spec(ctx, rec)
	if err != nil {
		return err
	}
	if err := h.client.CreateConnector(ctx, spec); err != nil {
		return err
	}
	h.logger.Info("connector created", zap.String("connector", spec.Name), zap.Int64("record_id", rec.ID))
	return nil
}

// AfterUpdate recreates a renamed connector and pushes a changed configuration
func (h *DebeziumHook) AfterUpdate(ctx context.Context, schema *entities.EntitySchema, before, after *entities.Record) error {
	oldName, newName := connectorName(before), connectorName(after)
	if oldName != newName {
		if err := h.remove(ctx, oldName); err != nil {
			return err
		}
		return h.AfterCreate(ctx, schema, after)
	}

	if reflect.DeepEqual(before.Values[connectorConfigField], after.Values[connectorConfigField]) {
		return nil
	}
	spec, err := h.spec(ctx, after)
	if err != nil {
		return err
	}
	if err := h.client.UpdateConnectorConfig(ctx, spec.Name, spec.Config); err != nil {
		return err
	}
	h.logger.Info("connector reconfigured", zap.String("connector", spec.Name))
	return nil
}

// AfterDelete removes the connector. A connector Kafka Connect no longer knows is not an error.
func (h *DebeziumHook) AfterDelete(ctx context.Context, schema *entities.EntitySchema, rec *entities.Record) error {
	return h.remove(ctx, connectorName(rec))
}

func (h *DebeziumHook) remove(ctx context.Context, name string) error {
	err := h.client.DeleteConnector(ctx, name)
	if errors.Is(err, ErrConnectorNotFound) {
		h.logger.Warn("connector already absent", zap.String("connector", name))
		return nil
	}
	if err != nil {
		return err
	}
	h.logger.Info("connector deleted", zap.String("connector", name))
	return nil
}

// spec builds the connector body from the record and its config record
func (h *DebeziumHook) spec(ctx context.Context, rec *entities.Record) (*ConnectorSpec, error) {
	var configRec *entities.Record
	if raw, ok := rec.Values[connectorConfigField]; ok && raw != nil {
		id, err := coercion.ParseID(raw)
		if err != nil {
			return nil, fmt.Errorf("connector %s has a malformed config reference: %w", rec, err)
		}
		configRec, err = h.store.GetByID(ctx, ConfigEntity, id)
		if errors.Is(err, repositories.ErrRecordNotFound) {
			configRec = nil
		} else if err != nil {
			return nil, fmt.Errorf("failed to load connector config %d: %w", id, err)
		}
	}
	return &ConnectorSpec{Name: connectorName(rec), Config: ConnectorConfig(configRec)}, nil
}

// ConfigHook pushes edits of debezium_connector_config records to the connectors using them
type ConfigHook struct {
	synthesizer.NopHook
	client *KafkaConnectClient
	store  repositories.RecordRepository
	logger *zap.Logger
}

// NewConfigHook creates the hook for the debezium_connector_config entity
func NewConfigHook(client *KafkaConnectClient, store repositories.RecordRepository, logger *zap.Logger) *ConfigHook {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConfigHook{client: client, store: store, logger: logger}
}

// AfterUpdate reconfigures every connector referencing the config record
func (h *ConfigHook) AfterUpdate(ctx context.Context, schema *entities.EntitySchema, before, after *entities.Record) error {
	connectors, err := h.store.List(ctx, ConnectorEntity, &repositories.RecordFilter{
		Equals: map[string]interface{}{connectorConfigField: after.ID},
	})
	if err != nil {
		return fmt.Errorf("failed to list connectors: %w", err)
	}

	config := ConnectorConfig(after)
	for _, c := range connectors {
		name := connectorName(c)
		if err := h.client.UpdateConnectorConfig(ctx, name, config); err != nil {
			return err
		}
		h.logger.Info("connector reconfigured", zap.String("connector", name), zap.Int64("config_id", after.ID))
	}
	return nil
}

func connectorName(rec *entities.Record) string {
	if name, ok := rec.Values[connectorNameField].(string); ok && name != "" {
		return name
	}
	return DefaultConnectorName
}
