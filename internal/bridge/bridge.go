// Package bridge is the observer persona's data receiver: it subscribes to
// the live readings topic, verifies signatures against the trust list, and
// writes incoming readings to the local ClickHouse instance.
//
// The bridge does not re-sign readings. The original ingester's signature
// is preserved so the observer's store contains the same verifiable data
// as the station's.
package bridge

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"wesense/internal/sysstats"
	"wesense/internal/trust"
)

// DefaultTopic is the live readings subscription.
const DefaultTopic = "wesense/v2/live/#"

// DefaultStatsInterval is how often the stats line is logged.
const DefaultStatsInterval = 60 * time.Second

// ParseInterval parses a stats interval from config: a Go duration
// ("90s") or bare seconds ("60", the container contract form). Empty,
// invalid, or non-positive values fall back to the default.
func ParseInterval(s string) time.Duration {
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	if secs, err := strconv.Atoi(s); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return DefaultStatsInterval
}

// Envelope is the wire format published by ingesters: the raw reading
// bytes plus the signature metadata. The signature covers the exact bytes
// of the reading field, so verification never depends on JSON key order.
type Envelope struct {
	Reading    json.RawMessage `json:"reading"`
	Signature  string          `json:"signature,omitempty"`
	IngesterID string          `json:"ingester_id,omitempty"`
	KeyVersion int             `json:"key_version,omitempty"`
}

// Reading is one sensor measurement with its deployment metadata.
// Timestamp is epoch seconds (fractional part carries milliseconds).
type Reading struct {
	Timestamp          float64 `json:"timestamp"`
	DeviceID           string  `json:"device_id"`
	DataSource         string  `json:"data_source"`
	NetworkSource      string  `json:"network_source"`
	IngestionNodeID    string  `json:"ingestion_node_id"`
	ReadingType        string  `json:"reading_type"`
	Value              float64 `json:"value"`
	Unit               string  `json:"unit"`
	Latitude           float64 `json:"latitude"`
	Longitude          float64 `json:"longitude"`
	Altitude           float64 `json:"altitude"`
	GeoCountry         string  `json:"geo_country"`
	GeoSubdivision     string  `json:"geo_subdivision"`
	BoardModel         string  `json:"board_model"`
	SensorModel        string  `json:"sensor_model"`
	DeploymentType     string  `json:"deployment_type"`
	DeploymentTypeSrc  string  `json:"deployment_type_source"`
	TransportType      string  `json:"transport_type"`
	DeploymentLocation string  `json:"deployment_location"`
	NodeName           string  `json:"node_name"`
	NodeInfo           string  `json:"node_info"`
	NodeInfoURL        string  `json:"node_info_url"`
}

// RowWriter is the slice of the buffered ClickHouse writer the bridge
// needs.
type RowWriter interface {
	Append(row []any) error
}

// Config holds the bridge's connection settings.
type Config struct {
	BrokerURL string
	Username  string
	Password  string
	ClientID  string
	Topic     string
	// StatsInterval between periodic stats lines; zero takes the default.
	StatsInterval time.Duration
}

// Bridge wires the subscriber, trust store, dedup cache, and writer
// together.
type Bridge struct {
	cfg    Config
	trust  *trust.Store
	dedup  *DedupCache
	writer RowWriter
	stats  Stats
	log    zerolog.Logger
}

// New creates a bridge. The writer is typically a clickhouse.Writer over
// the readings table.
func New(cfg Config, store *trust.Store, writer RowWriter, log zerolog.Logger) *Bridge {
	if cfg.Topic == "" {
		cfg.Topic = DefaultTopic
	}
	if cfg.StatsInterval <= 0 {
		cfg.StatsInterval = DefaultStatsInterval
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "wesense-bridge"
	}
	return &Bridge{
		cfg:    cfg,
		trust:  store,
		dedup:  NewDedupCache(0, 0),
		writer: writer,
		log:    log,
	}
}

// Handle processes one published message: verify, dedup, buffer.
func (b *Bridge) Handle(payload []byte) {
	b.stats.received.Add(1)

	var env Envelope
	if err := json.Unmarshal(payload, &env); err != nil || env.Reading == nil {
		b.stats.failed.Add(1)
		b.log.Warn().Err(err).Msg("dropping malformed message")
		return
	}

	var reading Reading
	if err := json.Unmarshal(env.Reading, &reading); err != nil {
		b.stats.failed.Add(1)
		b.log.Warn().Err(err).Msg("dropping message with malformed reading")
		return
	}

	signature, ingesterID, keyVersion := "", "", 0
	if env.Signature != "" {
		sig, err := hex.DecodeString(env.Signature)
		if err != nil {
			b.stats.rejected.Add(1)
			b.log.Warn().Str("ingester", env.IngesterID).Msg("dropping reading with undecodable signature")
			return
		}
		if err := b.trust.Verify(env.IngesterID, env.KeyVersion, env.Reading, sig); err != nil {
			b.stats.rejected.Add(1)
			b.log.Warn().Err(err).Str("device", reading.DeviceID).Msg("dropping reading that failed verification")
			return
		}
		signature, ingesterID, keyVersion = env.Signature, env.IngesterID, env.KeyVersion
	} else {
		// Unsigned readings are stored but flagged: empty signature
		// fields mark them as unverifiable.
		b.stats.unsigned.Add(1)
	}

	// Dedup only sees readings that passed verification: a rejected
	// forgery must not claim a key and suppress the legitimate reading
	// behind it.
	if b.dedup.IsDuplicate(reading.DeviceID, reading.ReadingType, reading.Timestamp) {
		b.stats.duplicates.Add(1)
		return
	}

	row := readingRow(reading, signature, ingesterID, keyVersion)
	if err := b.writer.Append(row); err != nil {
		b.stats.failed.Add(1)
		b.log.Error().Err(err).Str("device", reading.DeviceID).Msg("buffering reading failed")
		return
	}
	b.stats.written.Add(1)
}

// Stats exposes the counters, for tests and the stats loop.
func (b *Bridge) Stats() Snapshot {
	return b.stats.Snapshot()
}

// readingRow lays a reading out in schema.ReadingsColumns order.
func readingRow(r Reading, signature, ingesterID string, keyVersion int) []any {
	return []any{
		timestampTime(r.Timestamp),
		r.DeviceID, r.DataSource, r.NetworkSource, r.IngestionNodeID,
		r.ReadingType, r.Value, r.Unit,
		r.Latitude, r.Longitude, r.Altitude, r.GeoCountry, r.GeoSubdivision,
		r.BoardModel, r.SensorModel, r.DeploymentType, r.DeploymentTypeSrc,
		r.TransportType, r.DeploymentLocation, r.NodeName, r.NodeInfo, r.NodeInfoURL,
		signature, ingesterID, uint32(keyVersion),
	}
}

// timestampTime converts epoch seconds (fractional) to UTC time. A missing
// timestamp falls back to arrival time.
func timestampTime(epoch float64) time.Time {
	if epoch <= 0 {
		return time.Now().UTC()
	}
	sec, frac := math.Modf(epoch)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC()
}

// Run connects to the broker, subscribes, and processes messages until the
// context is cancelled. Logs a stats line every StatsInterval.
func (b *Bridge) Run(ctx context.Context) error {
	opts := mqtt.NewClientOptions().
		AddBroker(b.cfg.BrokerURL).
		SetClientID(b.cfg.ClientID).
		SetUsername(b.cfg.Username).
		SetPassword(b.cfg.Password).
		SetAutoReconnect(true).
		SetOrderMatters(false)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("connecting to broker %s: %w", b.cfg.BrokerURL, token.Error())
	}
	defer client.Disconnect(250)

	handler := func(_ mqtt.Client, m mqtt.Message) { b.Handle(m.Payload()) }
	if token := client.Subscribe(b.cfg.Topic, 1, handler); token.Wait() && token.Error() != nil {
		return fmt.Errorf("subscribing to %s: %w", b.cfg.Topic, token.Error())
	}
	b.log.Info().Str("broker", b.cfg.BrokerURL).Str("topic", b.cfg.Topic).
		Int("trusted_ingesters", b.trust.Len()).Msg("bridge subscribed")

	ticker := time.NewTicker(b.cfg.StatsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			b.logStats()
		case <-ctx.Done():
			b.logStats()
			return nil
		}
	}
}

func (b *Bridge) logStats() {
	snap := b.stats.Snapshot()
	sys := sysstats.Collect()
	b.log.Info().
		Uint64("received", snap.Received).
		Uint64("written", snap.Written).
		Uint64("duplicates", snap.Duplicates).
		Uint64("unsigned", snap.Unsigned).
		Uint64("rejected", snap.Rejected).
		Uint64("failed", snap.Failed).
		Str("rss", sysstats.FormatBytes(sys.ProcessRSS)).
		Str("uptime", sys.Uptime).
		Msg("bridge stats")
}
