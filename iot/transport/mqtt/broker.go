package mqtt

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/DrmagicE/gmqtt"
	"github.com/DrmagicE/gmqtt/pkg/packets"
	"github.com/sirupsen/logrus"

	"github.com/relabs-tech/iotf/core/codec"
	"github.com/relabs-tech/iotf/core/logger"
	"github.com/relabs-tech/iotf/iot"
	"github.com/relabs-tech/iotf/iot/transport"
)

// Broker is an embedded MQTT broker for IoT. It is also a transport.Transport, local
// subscribers receive the messages of MQTT clients and local publishes reach MQTT
// subscribers.
type Broker struct {
	p *plugin

	startOnce sync.Once
	stop      func(ctx context.Context)
}

// Builder is a builder helper for the Broker
type Builder struct {
	// Address is the TCP listen address. Defaults to ":1883", or ":8883" with TLS.
	Address string
	// Listener replaces Address.
	Listener net.Listener
	// CertFile is the file path to the X.509 certificate file. Enables TLS.
	CertFile string
	// KeyFile is the file path to the X.509 private key file. Mandatory with CertFile.
	KeyFile string
	// CACertFile is the file path to the X.509 certificate of the certificate authority.
	// If set, clients must present a certificate signed by it.
	CACertFile string
	// EnforcePolicy restricts clients to the topics of their client id, see iot.ClientID
	EnforcePolicy bool
	// Logger defaults to logger.Default()
	Logger *logrus.Entry
}

// plugin is the plugin for GMQTT
type plugin struct {
	ln      net.Listener
	tls     bool
	policy  bool
	service gmqtt.Server
	log     *logrus.Entry
	now     func() time.Time

	mu            sync.RWMutex
	subscriptions map[int]subscription
	next          int
	closed        bool
	done          chan struct{}
}

type subscription struct {
	filter  string
	handler transport.Handler
}

var _ transport.Transport = (*Broker)(nil)

// NewBroker returns a new broker. The broker will not accept connections until you
// call Start or Run.
func NewBroker(bb *Builder) (*Broker, error) {
	p := &plugin{
		policy:        bb.EnforcePolicy,
		log:           bb.Logger,
		now:           time.Now,
		subscriptions: make(map[int]subscription),
		done:          make(chan struct{}),
	}
	if p.log == nil {
		p.log = logger.Default()
	}
	p.log = p.log.WithField("component", "mqtt")

	ln := bb.Listener
	if ln == nil {
		var err error
		if bb.CertFile != "" {
			ln, err = listenTLS(bb)
			p.tls = true
		} else {
			address := bb.Address
			if address == "" {
				address = ":1883"
			}
			ln, err = net.Listen("tcp", address)
		}
		if err != nil {
			return nil, err
		}
	}
	p.ln = ln
	return &Broker{p: p}, nil
}

func listenTLS(bb *Builder) (net.Listener, error) {
	if bb.KeyFile == "" {
		return nil, errors.New("key file missing")
	}
	crt, err := tls.LoadX509KeyPair(bb.CertFile, bb.KeyFile)
	if err != nil {
		return nil, err
	}
	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{crt},
		MinVersion:   tls.VersionTLS12,
	}
	if bb.CACertFile != "" {
		caCert, err := os.ReadFile(bb.CACertFile)
		if err != nil {
			return nil, err
		}
		caCertPool := x509.NewCertPool()
		if !caCertPool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("no certificates in %s", bb.CACertFile)
		}
		tlsConfig.ClientCAs = caCertPool
		tlsConfig.ClientAuth = tls.RequireAndVerifyClientCert
	}
	address := bb.Address
	if address == "" {
		address = ":8883"
	}
	return tls.Listen("tcp", address, tlsConfig)
}

// Addr returns the listen address
func (b *Broker) Addr() net.Addr {
	return b.p.ln.Addr()
}

// Start starts the server in the background
func (b *Broker) Start() {
	b.startOnce.Do(func() {
		s := gmqtt.NewServer(
			gmqtt.WithTCPListener(b.p.ln),
			gmqtt.WithPlugin(b.p),
		)
		s.Run()
		stop := func(ctx context.Context) { s.Stop(ctx) }

		b.p.mu.Lock()
		closed := b.p.closed
		if !closed {
			b.stop = stop
		}
		b.p.mu.Unlock()
		if closed {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			stop(ctx)
			return
		}
		b.p.log.Infoln("started on", b.p.ln.Addr())
	})
}

// Run is blocking and runs the server. It listens on syscall.SIGTERM and
// a gracefully shutdown.
func (b *Broker) Run() {
	b.Start()
	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)
	<-signalCh
	_ = b.Close()
}

// Publish delivers payload to local subscribers and publishes it to MQTT subscribers
// with quality level 1
func (b *Broker) Publish(ctx context.Context, topic string, payload []byte) error {
	return b.p.publish(ctx, topic, payload)
}

// Subscribe registers a local handler for filter until ctx is done or the broker is closed
func (b *Broker) Subscribe(ctx context.Context, filter string, handler transport.Handler) error {
	if !transport.ValidFilter(filter) {
		return fmt.Errorf("invalid filter %q", filter)
	}
	p := b.p
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return transport.ErrClosed
	}
	id := p.next
	p.next++
	p.subscriptions[id] = subscription{filter: filter, handler: handler}
	go func() {
		select {
		case <-ctx.Done():
			p.mu.Lock()
			delete(p.subscriptions, id)
			p.mu.Unlock()
		case <-p.done:
		}
	}()
	return nil
}

// Close stops the server and drops all local subscriptions
func (b *Broker) Close() error {
	p := b.p
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return transport.ErrClosed
	}
	p.closed = true
	p.subscriptions = make(map[int]subscription)
	close(p.done)
	stop := b.stop
	p.mu.Unlock()

	if stop != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		stop(ctx)
	} else {
		_ = p.ln.Close()
	}
	p.log.Infoln("stopped")
	return nil
}

func (p *plugin) publish(ctx context.Context, topic string, payload []byte) error {
	p.mu.RLock()
	closed := p.closed
	service := p.service
	p.mu.RUnlock()
	if closed {
		return transport.ErrClosed
	}
	p.log.Debugf("publish on %s (%d bytes)", topic, len(payload))
	p.deliver(ctx, topic, payload)
	if service != nil {
		service.PublishService().Publish(gmqtt.NewMessage(topic, payload, packets.QOS_1))
	}
	return nil
}

// deliver hands a copy of payload to each local subscription matching topic
func (p *plugin) deliver(ctx context.Context, topic string, payload []byte) {
	p.mu.RLock()
	var handlers []transport.Handler
	for _, s := range p.subscriptions {
		if transport.Match(s.filter, topic) {
			handlers = append(handlers, s.handler)
		}
	}
	p.mu.RUnlock()

	receivedAt := p.now().UTC()
	for _, h := range handlers {
		buf := make([]byte, len(payload))
		copy(buf, payload)
		h(ctx, codec.RawMessage{Topic: topic, Payload: buf, ReceivedAt: receivedAt})
	}
}

// Load implements plugin interface
func (p *plugin) Load(service gmqtt.Server) error {
	p.mu.Lock()
	p.service = service
	p.mu.Unlock()
	return nil
}

// Unload implements plugin interface
func (p *plugin) Unload() error {
	return nil
}

// Name implements plugin interface
func (p *plugin) Name() string { return "iotf broker" }

// HookWrapper implements plugin interface
func (p *plugin) HookWrapper() gmqtt.HookWrapper {
	return gmqtt.HookWrapper{
		OnConnectWrapper:    p.OnConnectWrapper,
		OnSubscribeWrapper:  p.OnSubscribeWrapper,
		OnSubscribedWrapper: p.OnSubscribedWrapper,
		OnMsgArrivedWrapper: p.OnMsgArrivedWrapper,
	}
}

// OnConnectWrapper rejects malformed client ids when the policy is enforced and
// publishes a Connect status for accepted clients
func (p *plugin) OnConnectWrapper(connect gmqtt.OnConnect) gmqtt.OnConnect {
	return func(ctx context.Context, client gmqtt.Client) (code uint8) {
		clientID := client.OptionsReader().ClientID()
		id, err := iot.ParseClientID(clientID)
		if err != nil && p.policy {
			p.log.Warnln("connect denied,", err)
			return packets.CodeNotAuthorized
		}
		code = connect(ctx, client)
		if code != packets.CodeAccepted || err != nil {
			return code
		}
		p.log.Infoln("connect", clientID)
		status := connectStatus(id, client.Connection().RemoteAddr(), p.tls, p.now())
		raw, err := iot.EncodeStatus(status)
		if err != nil {
			p.log.WithError(err).Errorln("cannot encode status")
			return code
		}
		if err := p.publish(ctx, raw.Topic, raw.Payload); err != nil {
			p.log.WithError(err).Errorln("cannot publish status")
		}
		return code
	}
}

// connectStatus returns the status message announcing a new connection of id
func connectStatus(id iot.ClientID, addr net.Addr, ssl bool, now time.Time) *iot.Status {
	status := &iot.Status{
		DeviceType: id.DeviceType,
		DeviceID:   id.DeviceID,
		AppID:      id.AppID,
		Action:     iot.StatusConnect,
		Time:       now.UTC(),
		ClientID:   id.String(),
		SSL:        ssl,
		Protocol:   "mqtt-tcp",
	}
	if ssl {
		status.Protocol = "mqtt-tls"
	}
	if tcp, ok := addr.(*net.TCPAddr); ok {
		status.ClientAddr = tcp.IP.String()
		status.Port = tcp.Port
	} else if addr != nil {
		status.ClientAddr = addr.String()
	}
	return status
}

// OnMsgArrivedWrapper hands arriving messages to local subscribers. Payloads are not
// checked, subscribers decode them with the codec of the topic.
func (p *plugin) OnMsgArrivedWrapper(arrived gmqtt.OnMsgArrived) gmqtt.OnMsgArrived {
	return func(ctx context.Context, client gmqtt.Client, msg packets.Message) (valid bool) {
		clientID := client.OptionsReader().ClientID()
		topic := msg.Topic()
		if p.policy {
			id, err := iot.ParseClientID(clientID)
			if err != nil || !id.MayPublish(topic) {
				p.log.Warnln("publish of", clientID, "on", topic, "denied!")
				return false
			}
		}
		p.log.Debugln("OnMsgArrived", clientID, topic)
		p.deliver(ctx, topic, msg.Payload())
		return arrived(ctx, client, msg)
	}
}

// OnSubscribeWrapper enforces topic policy
func (p *plugin) OnSubscribeWrapper(subscribe gmqtt.OnSubscribe) gmqtt.OnSubscribe {
	return func(ctx context.Context, client gmqtt.Client, topic packets.Topic) (qos uint8) {
		if p.policy {
			clientID := client.OptionsReader().ClientID()
			id, err := iot.ParseClientID(clientID)
			if err != nil || !id.MaySubscribe(topic.Name) {
				p.log.Warnln("OnSubscribe", clientID, topic.Name, "denied!")
				return packets.SUBSCRIBE_FAILURE
			}
		}
		return subscribe(ctx, client, topic)
	}
}

// OnSubscribedWrapper logs the subscription
func (p *plugin) OnSubscribedWrapper(subscribed gmqtt.OnSubscribed) gmqtt.OnSubscribed {
	return func(ctx context.Context, client gmqtt.Client, topic packets.Topic) {
		p.log.Debugln("OnSubscribed", client.OptionsReader().ClientID(), topic.Name)
		subscribed(ctx, client, topic)
	}
}
