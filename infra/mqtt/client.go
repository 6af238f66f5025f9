package mqtt

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	coremon "github.com/lubricentro/usagepredict/core/monitoring"
	coremqtt "github.com/lubricentro/usagepredict/core/mqtt"
	"github.com/lubricentro/usagepredict/core/prediction"
	"github.com/lubricentro/usagepredict/core/trigger"
	"github.com/lubricentro/usagepredict/infra/logger"
)

// DefaultPredictionTopic is the topic template of published predictions.
const DefaultPredictionTopic = "lubricentro/vehicles/{id}/prediction"

// Config defines the connection parameters for the Paho MQTT client.
type Config struct {
	Broker     string `json:"broker"`
	ClientID   string `json:"client_id"`
	Username   string `json:"username"`
	Password   string `json:"password"`
	UseTLS     bool   `json:"use_tls"`
	ClientCert string `json:"client_cert"`
	ClientKey  string `json:"client_key"`
	CABundle   string `json:"ca_bundle"`
	AuthMethod string `json:"auth_method"`
	// TriggerTopic carries "work order completed" events. Empty disables
	// the subscription.
	TriggerTopic string `json:"trigger_topic"`
	// PredictionTopic is a template where {id} is replaced by the vehicle ID.
	PredictionTopic  string          `json:"prediction_topic"`
	RetainPrediction bool            `json:"retain_prediction"`
	QoS              map[string]byte `json:"qos"`
	LWTTopic         string          `json:"lwt_topic"`
	LWTPayload       string          `json:"lwt_payload"`
	LWTQoS           byte            `json:"lwt_qos"`
	LWTRetain        bool            `json:"lwt_retain"`
	MaxRetries       int             `json:"max_retries"`
	BackoffMS        int             `json:"backoff_ms"`
	TLSConfig        *tls.Config     `json:"-"`
}

// SetDefaults applies default values.
func (c *Config) SetDefaults() {
	if c.ClientID == "" {
		c.ClientID = "usagepredict-" + uuid.NewString()[:8]
	}
	if c.PredictionTopic == "" {
		c.PredictionTopic = DefaultPredictionTopic
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.BackoffMS <= 0 {
		c.BackoffMS = 100
	}
}

// Enabled reports whether a broker is configured.
func (c Config) Enabled() bool { return c.Broker != "" }

// PredictionTopicFor returns the topic of a vehicle.
func (c Config) PredictionTopicFor(vehicleID string) string {
	return strings.ReplaceAll(c.PredictionTopic, "{id}", vehicleID)
}

type pahoClient interface {
	IsConnected() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
}

// TriggerFunc handles a decoded trigger event.
type TriggerFunc func(ctx context.Context, ev trigger.Event)

// PahoClient publishes predictions and receives work order events using
// Eclipse Paho.
type PahoClient struct {
	cli     pahoClient
	cfg     Config
	ctx     context.Context
	onEvent TriggerFunc
	logger  logger.Logger
	monitor coremon.Monitor
	backoff time.Duration
}

var _ coremqtt.Publisher = (*PahoClient)(nil)

var newMQTTClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

// Option customises a PahoClient.
type Option func(*PahoClient)

// WithTrigger subscribes to cfg.TriggerTopic and passes each decoded event
// to fn. Events are handled on their own goroutine with ctx.
func WithTrigger(ctx context.Context, fn TriggerFunc) Option {
	return func(p *PahoClient) {
		p.ctx = ctx
		p.onEvent = fn
	}
}

// WithMonitor reports publish failures.
func WithMonitor(m coremon.Monitor) Option {
	return func(p *PahoClient) {
		if m != nil {
			p.monitor = m
		}
	}
}

// NewPahoClient connects to the MQTT broker and, with WithTrigger,
// subscribes to the trigger topic on every (re)connect.
func NewPahoClient(cfg Config, opts ...Option) (*PahoClient, error) {
	cfg.SetDefaults()
	copts, err := NewClientOptions(cfg)
	if err != nil {
		return nil, err
	}

	logger := logger.New("mqtt_client")
	pc := &PahoClient{
		cfg:     cfg,
		ctx:     context.Background(),
		logger:  logger,
		monitor: coremon.NopMonitor{},
		backoff: time.Duration(cfg.BackoffMS) * time.Millisecond,
	}
	for _, o := range opts {
		o(pc)
	}

	copts.OnConnect = func(c paho.Client) {
		logger.Infof("MQTT connected")
		if pc.onEvent == nil || cfg.TriggerTopic == "" {
			return
		}
		if token := c.Subscribe(cfg.TriggerTopic, pc.qos("trigger"), pc.onTrigger); token.Wait() && token.Error() != nil {
			logger.Errorf("subscribe error: %v", token.Error())
		}
	}
	copts.OnConnectionLost = func(_ paho.Client, err error) {
		logger.Errorf("connection lost: %v", err)
	}
	copts.OnReconnecting = func(_ paho.Client, _ *paho.ClientOptions) {
		logger.Warnf("reconnecting to MQTT broker")
	}
	c := newMQTTClient(copts)
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	pc.cli = c
	return pc, nil
}

// NewClientOptions builds mqtt client options from Config.
func NewClientOptions(cfg Config) (*paho.ClientOptions, error) {
	opts := paho.NewClientOptions().AddBroker(cfg.Broker).SetClientID(cfg.ClientID)
	opts.AutoReconnect = true
	if cfg.AuthMethod == "username_password" || cfg.AuthMethod == "both" || cfg.AuthMethod == "" {
		if cfg.Username != "" {
			opts.SetUsername(cfg.Username)
		}
		if cfg.Password != "" {
			opts.SetPassword(cfg.Password)
		}
	}
	if cfg.UseTLS {
		tlsCfg, err := cfg.LoadTLSConfig()
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsCfg)
	}
	if cfg.LWTTopic != "" {
		opts.SetWill(cfg.LWTTopic, cfg.LWTPayload, cfg.LWTQoS, cfg.LWTRetain)
	}
	return opts, nil
}

// LoadTLSConfig loads the TLS configuration from the file paths in the config.
func (c Config) LoadTLSConfig() (*tls.Config, error) {
	if c.TLSConfig != nil {
		return c.TLSConfig, nil
	}
	if c.ClientCert == "" || c.ClientKey == "" || c.CABundle == "" {
		return nil, fmt.Errorf("tls config requires client_cert, client_key and ca_bundle")
	}
	cert, err := tls.LoadX509KeyPair(c.ClientCert, c.ClientKey)
	if err != nil {
		return nil, fmt.Errorf("load cert: %w", err)
	}
	caBytes, err := os.ReadFile(c.CABundle)
	if err != nil {
		return nil, fmt.Errorf("read ca: %w", err)
	}
	pool := x509.NewCertPool()
	pool.AppendCertsFromPEM(caBytes)
	return &tls.Config{Certificates: []tls.Certificate{cert}, RootCAs: pool, MinVersion: tls.VersionTLS12}, nil
}

func (p *PahoClient) qos(kind string) byte {
	if q, ok := p.cfg.QoS[kind]; ok {
		return q
	}
	return 0
}

func (p *PahoClient) onTrigger(_ paho.Client, msg paho.Message) {
	ev, err := trigger.Decode(msg.Payload())
	if err != nil {
		p.logger.Warnf("drop message on %s: %v", msg.Topic(), err)
		return
	}
	// Paho delivers messages in order on a single goroutine; prediction
	// involves store I/O and must not stall it.
	go p.onEvent(p.ctx, ev)
}

type predictionMessage struct {
	MessageID string            `json:"message_id"`
	Timestamp int64             `json:"timestamp"`
	Result    prediction.Result `json:"prediction"`
}

// PublishPrediction sends res to the vehicle prediction topic, retrying
// with exponential backoff.
func (p *PahoClient) PublishPrediction(res prediction.Result) error {
	payload, err := json.Marshal(predictionMessage{
		MessageID: uuid.NewString(),
		Timestamp: time.Now().UnixMilli(),
		Result:    res,
	})
	if err != nil {
		return err
	}

	topic := p.cfg.PredictionTopicFor(res.VehicleID)
	var publishErr error
	for attempt := 0; attempt <= p.cfg.MaxRetries; attempt++ {
		token := p.cli.Publish(topic, p.qos("prediction"), p.cfg.RetainPrediction, payload)
		token.Wait()
		publishErr = token.Error()
		if publishErr == nil {
			p.logger.Debugf("published prediction for %s to %s", res.VehicleID, topic)
			return nil
		}
		p.logger.Errorf("publish attempt %d failed: %v", attempt+1, publishErr)
		if attempt < p.cfg.MaxRetries {
			time.Sleep(p.backoff * time.Duration(1<<attempt))
		}
	}
	err = fmt.Errorf("%w: %s: %v", coremqtt.ErrPublish, topic, publishErr)
	p.monitor.CaptureException(err, map[string]string{"vehicle_id": res.VehicleID, "module": "mqtt"})
	return err
}

// Disconnect gracefully closes the MQTT connection.
func (p *PahoClient) Disconnect() {
	if p.cli != nil && p.cli.IsConnected() {
		p.cli.Disconnect(250)
	}
}
