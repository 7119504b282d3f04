// Package schema holds the ClickHouse table definitions for the WeSense
// columnar store and applies them idempotently.
package schema

// ReadingsTable creates the unified readings table. One row per sensor
// reading, carrying the original ingester's signature so any node's store
// holds the same verifiable data.
const ReadingsTable = `
	CREATE TABLE IF NOT EXISTS readings (
		timestamp DateTime64(3),
		device_id String,
		data_source String,
		network_source String,
		ingestion_node_id String,
		reading_type String,
		value Float64,
		unit String,
		latitude Float64,
		longitude Float64,
		altitude Float64,
		geo_country String,
		geo_subdivision String,
		board_model String,
		sensor_model String,
		deployment_type String,
		deployment_type_source String,
		transport_type String,
		deployment_location String,
		node_name String,
		node_info String,
		node_info_url String,
		signature String,
		ingester_id String,
		key_version UInt32
	) ENGINE = MergeTree()
	PARTITION BY toYYYYMM(timestamp)
	ORDER BY (device_id, reading_type, timestamp)
`

// DeviceRegistryTable creates the device registry. ReplacingMergeTree on
// last_seen keeps the newest row per device.
const DeviceRegistryTable = `
	CREATE TABLE IF NOT EXISTS device_registry (
		device_id String,
		name String,
		location String,
		board_model String,
		sensor_model String,
		registered_at DateTime64(3),
		last_seen DateTime64(3),
		is_active Bool
	) ENGINE = ReplacingMergeTree(last_seen)
	ORDER BY device_id
`

// Tables lists every DDL statement in application order.
var Tables = []string{
	ReadingsTable,
	DeviceRegistryTable,
}

// ReadingsColumns is the canonical column order for inserts into the
// readings table. Must match ReadingsTable.
var ReadingsColumns = []string{
	"timestamp", "device_id", "data_source", "network_source", "ingestion_node_id",
	"reading_type", "value", "unit",
	"latitude", "longitude", "altitude", "geo_country", "geo_subdivision",
	"board_model", "sensor_model", "deployment_type", "deployment_type_source",
	"transport_type", "deployment_location", "node_name", "node_info", "node_info_url",
	"signature", "ingester_id", "key_version",
}
